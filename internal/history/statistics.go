package history

import (
	"github.com/timmy/scrapetrack/internal/domain"
)

// ComputeStatistics derives the statistics snapshot from records.
// Platforms are grouped by exact match; records without a category are left out of the
// category breakdown.
func ComputeStatistics(records []*domain.HistoryRecord) domain.Statistics {
	stats := domain.Statistics{
		PlatformStats: make(map[string]domain.BreakdownStats),
		CategoryStats: make(map[string]domain.BreakdownStats),
	}

	var timed int64
	for _, r := range records {
		stats.TotalSessions++
		switch r.Status {
		case domain.SessionStatusCompleted:
			stats.CompletedSessions++
		case domain.SessionStatusFailed:
			stats.FailedSessions++
		case domain.SessionStatusCancelled:
			stats.CancelledSessions++
		default:
			stats.ActiveSessions++
		}

		stats.TotalProducts += r.Progress.Total
		stats.TotalScraped += r.Progress.Scraped
		stats.TotalFailed += r.Progress.Failed
		if r.Duration != nil {
			stats.TotalDuration += *r.Duration
			timed++
		}

		stats.PlatformStats[r.Platform] = accumulate(stats.PlatformStats[r.Platform], r)
		if r.Category != "" {
			stats.CategoryStats[r.Category] = accumulate(stats.CategoryStats[r.Category], r)
		}
	}

	stats.AverageSuccessRate = domain.Rate(stats.TotalScraped, stats.TotalProducts)
	if timed > 0 {
		stats.AverageDuration = stats.TotalDuration / timed
	}
	return stats
}

func accumulate(b domain.BreakdownStats, r *domain.HistoryRecord) domain.BreakdownStats {
	b.SessionCount++
	b.ProductCount += r.Progress.Total
	b.ScrapedCount += r.Progress.Scraped
	b.SuccessRate = domain.Rate(b.ScrapedCount, b.ProductCount)
	return b
}
