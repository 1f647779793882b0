package domain

import (
	"encoding/json"
	"time"
)

// ScrapeType distinguishes category-listing jobs from single-product jobs.
type ScrapeType string

const (
	ScrapeTypeCategory ScrapeType = "category"
	ScrapeTypeProduct  ScrapeType = "product"
)

// CategoryProgress tracks one sub-category of a multi-category job.
// Products are passthrough payloads the tracker stores but never interprets.
type CategoryProgress struct {
	Total    int               `json:"total"`
	Scraped  int               `json:"scraped"`
	Failed   int               `json:"failed"`
	Products []json.RawMessage `json:"products,omitempty"`
}

// HistoryRecord is the durable representation of a session.
// Progress.Percentage, SuccessRate and Duration are cached derived values; call Recompute
// after every mutation so they never drift from their source fields.
type HistoryRecord struct {
	ID               string                       `json:"id"`
	SessionID        string                       `json:"sessionId"`
	RemoteLogID      string                       `json:"remoteLogId,omitempty"`
	Type             ScrapeType                   `json:"type"`
	Platform         string                       `json:"platform"`
	Category         string                       `json:"category,omitempty"`
	CategoryURL      string                       `json:"categoryUrl,omitempty"`
	Items            []Item                       `json:"items,omitempty"`
	Status           SessionStatus                `json:"status"`
	Progress         Progress                     `json:"progress"`
	RetryCount       int                          `json:"retryCount"`
	ErrorMessage     string                       `json:"errorMessage,omitempty"`
	SuccessRate      float64                      `json:"successRate"`
	Duration         *int64                       `json:"duration,omitempty"`
	StartedAt        time.Time                    `json:"startedAt"`
	CompletedAt      *time.Time                   `json:"completedAt,omitempty"`
	CategoryProducts map[string]*CategoryProgress `json:"categoryProducts,omitempty"`
	ScrapedData      []json.RawMessage            `json:"scrapedData,omitempty"`
}

// NewHistoryRecord builds the initial record for a freshly started session.
func NewHistoryRecord(id string, s *Session) *HistoryRecord {
	scrapeType := ScrapeTypeProduct
	if s.Config.CategoryURL != "" {
		scrapeType = ScrapeTypeCategory
	}
	r := &HistoryRecord{
		ID:          id,
		SessionID:   s.ID,
		Type:        scrapeType,
		Platform:    s.Config.Platform,
		Category:    s.Config.Category,
		CategoryURL: s.Config.CategoryURL,
		Items:       append([]Item(nil), s.Config.SelectedItems()...),
		Status:      s.Status,
		Progress:    s.Progress,
		StartedAt:   s.StartedAt,
	}
	r.Recompute()
	return r
}

// Recompute refreshes percentage, success rate and duration from source fields.
func (r *HistoryRecord) Recompute() {
	r.Progress.Recompute()
	r.SuccessRate = Rate(r.Progress.Scraped, r.Progress.Total)
	if r.Status.IsTerminal() && r.CompletedAt != nil {
		d := DurationMs(r.StartedAt, *r.CompletedAt)
		r.Duration = &d
	} else {
		r.Duration = nil
	}
}

// Finish stamps completion at the given time with a terminal status.
func (r *HistoryRecord) Finish(status SessionStatus, at time.Time) {
	r.Status = status
	t := at
	r.CompletedAt = &t
	r.Recompute()
}

// DurationMs returns the cached duration, or 0 when the record is not terminal.
func (r *HistoryRecord) DurationMs() int64 {
	if r.Duration == nil {
		return 0
	}
	return *r.Duration
}

// Clone returns a deep copy of the record.
func (r *HistoryRecord) Clone() *HistoryRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Items = append([]Item(nil), r.Items...)
	c.ScrapedData = append([]json.RawMessage(nil), r.ScrapedData...)
	if r.Duration != nil {
		d := *r.Duration
		c.Duration = &d
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.CategoryProducts != nil {
		c.CategoryProducts = make(map[string]*CategoryProgress, len(r.CategoryProducts))
		for k, v := range r.CategoryProducts {
			cp := *v
			cp.Products = append([]json.RawMessage(nil), v.Products...)
			c.CategoryProducts[k] = &cp
		}
	}
	return &c
}
