package domain

import (
	"encoding/json"
	"math"
	"time"
)

// SessionStatus represents the lifecycle state of a scrape session.
// Values include SessionStatusPending, SessionStatusInProgress, SessionStatusCompleted,
// SessionStatusFailed, and SessionStatusCancelled.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// IsTerminal reports whether no further progress events are meaningful.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status is pending or in progress.
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusPending || s == SessionStatusInProgress
}

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// Outcome is the result of processing a single item.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Item is one selectable unit of work inside a session.
type Item struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Selected bool   `json:"selected"`
}

// SessionConfig describes what a session will work on.
type SessionConfig struct {
	Platform    string `json:"platform"`
	Category    string `json:"category,omitempty"`
	CategoryURL string `json:"categoryUrl,omitempty"`
	Items       []Item `json:"items"`
}

// SelectedItems returns the items flagged as selected, preserving order.
func (c SessionConfig) SelectedItems() []Item {
	selected := make([]Item, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Selected {
			selected = append(selected, item)
		}
	}
	return selected
}

// Validate rejects configurations that cannot start a session.
func (c SessionConfig) Validate() error {
	if c.Platform == "" {
		return &ValidationError{Field: "platform", Reason: "must not be empty"}
	}
	if len(c.SelectedItems()) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item must be selected"}
	}
	return nil
}

// Progress is the processed/total tuple of a session.
// Percentage is derived from Scraped and Total and must only be set through Recompute.
type Progress struct {
	Scraped    int `json:"scraped"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Processed returns scraped plus failed.
func (p Progress) Processed() int {
	return p.Scraped + p.Failed
}

// Done reports whether every item has been accounted for.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Processed() >= p.Total
}

// Recompute refreshes the derived percentage.
func (p *Progress) Recompute() {
	p.Percentage = Percentage(p.Scraped, p.Total)
}

// Percentage returns round(part/total*100), or 0 when total is 0.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// Rate returns part/total*100 without rounding, or 0 when total is 0.
func Rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Session is the live, in-memory state of a session owned by the tracker.
type Session struct {
	ID          string        `json:"id"`
	LogID       string        `json:"logId"`
	RemoteLogID string        `json:"remoteLogId,omitempty"`
	Config      SessionConfig `json:"config"`
	Status      SessionStatus `json:"status"`
	Progress    Progress      `json:"progress"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// Clone returns a deep copy safe to hand out of the tracker.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Config.Items = append([]Item(nil), s.Config.Items...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// DurationMs returns milliseconds elapsed between StartedAt and at.
func DurationMs(startedAt, at time.Time) int64 {
	d := at.Sub(startedAt).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

// ProgressEvent reports the outcome of one item of a session.
// Data is passthrough payload stored with the history record and never interpreted.
type ProgressEvent struct {
	ItemURL      string          `json:"itemUrl"`
	Outcome      Outcome         `json:"outcome"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Validate checks the event shape.
func (e ProgressEvent) Validate() error {
	if e.ItemURL == "" {
		return &ValidationError{Field: "itemUrl", Reason: "must not be empty"}
	}
	if e.Outcome != OutcomeSuccess && e.Outcome != OutcomeFailed {
		return &ValidationError{Field: "outcome", Reason: "must be success or failed"}
	}
	return nil
}
