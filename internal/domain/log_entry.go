package domain

import "time"

// LogProgress is the progress block sent to the remote job-log API.
type LogProgress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// LogEntry is the scrape log row mirrored to the remote job-log API.
// Update calls send a partial entry; zero-valued optional fields are omitted.
type LogEntry struct {
	Timestamp       time.Time     `json:"timestamp"`
	Platform        string        `json:"platform,omitempty"`
	Type            ScrapeType    `json:"type,omitempty"`
	URL             string        `json:"url,omitempty"`
	Category        string        `json:"category,omitempty"`
	Status          SessionStatus `json:"status,omitempty"`
	Action          string        `json:"action,omitempty"`
	OperationID     string        `json:"operationId,omitempty"`
	TotalProducts   *int          `json:"totalProducts,omitempty"`
	ScrapedProducts *int          `json:"scrapedProducts,omitempty"`
	FailedProducts  *int          `json:"failedProducts,omitempty"`
	Progress        *LogProgress  `json:"progress,omitempty"`
	Duration        *int64        `json:"duration,omitempty"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	RetryCount      *int          `json:"retryCount,omitempty"`
}

// Log actions reported to the remote API.
const (
	LogActionStart    = "start"
	LogActionProgress = "progress"
	LogActionComplete = "complete"
	LogActionCancel   = "cancel"
	LogActionCategory = "category_progress"
)

// NewStartLogEntry builds the create payload for a session.
func NewStartLogEntry(s *Session, at time.Time) LogEntry {
	scrapeType := ScrapeTypeProduct
	url := ""
	if s.Config.CategoryURL != "" {
		scrapeType = ScrapeTypeCategory
		url = s.Config.CategoryURL
	} else if items := s.Config.SelectedItems(); len(items) > 0 {
		url = items[0].URL
	}
	total := s.Progress.Total
	return LogEntry{
		Timestamp:     at,
		Platform:      s.Config.Platform,
		Type:          scrapeType,
		URL:           url,
		Category:      s.Config.Category,
		Status:        SessionStatusPending,
		Action:        LogActionStart,
		OperationID:   s.ID,
		TotalProducts: &total,
		Progress:      &LogProgress{Total: total},
	}
}

// NewProgressLogEntry builds a partial update reflecting the session's counters.
func NewProgressLogEntry(s *Session, action string, at time.Time) LogEntry {
	scraped, failed, total := s.Progress.Scraped, s.Progress.Failed, s.Progress.Total
	e := LogEntry{
		Timestamp:       at,
		Status:          s.Status,
		Action:          action,
		OperationID:     s.ID,
		TotalProducts:   &total,
		ScrapedProducts: &scraped,
		FailedProducts:  &failed,
		Progress: &LogProgress{
			Current:    s.Progress.Processed(),
			Total:      total,
			Percentage: s.Progress.Percentage,
		},
	}
	d := DurationMs(s.StartedAt, at)
	e.Duration = &d
	return e
}
