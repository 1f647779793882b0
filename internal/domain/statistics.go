package domain

// BreakdownStats aggregates the sessions sharing a platform or category.
type BreakdownStats struct {
	SessionCount int     `json:"sessionCount"`
	ProductCount int     `json:"productCount"`
	ScrapedCount int     `json:"scrapedCount"`
	SuccessRate  float64 `json:"successRate"`
}

// Statistics is a snapshot derived from the full history on every query.
type Statistics struct {
	TotalSessions      int                       `json:"totalSessions"`
	ActiveSessions     int                       `json:"activeSessions"`
	CompletedSessions  int                       `json:"completedSessions"`
	FailedSessions     int                       `json:"failedSessions"`
	CancelledSessions  int                       `json:"cancelledSessions"`
	TotalProducts      int                       `json:"totalProducts"`
	TotalScraped       int                       `json:"totalScraped"`
	TotalFailed        int                       `json:"totalFailed"`
	AverageSuccessRate float64                   `json:"averageSuccessRate"`
	TotalDuration      int64                     `json:"totalDuration"`
	AverageDuration    int64                     `json:"averageDuration"`
	PlatformStats      map[string]BreakdownStats `json:"platformStats"`
	CategoryStats      map[string]BreakdownStats `json:"categoryStats"`
}
