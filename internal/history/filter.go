package history

import (
	"context"
	"strings"
	"time"

	"github.com/timmy/scrapetrack/internal/domain"
)

// Filter combines optional criteria with AND semantics. Zero values match everything.
type Filter struct {
	From     time.Time
	To       time.Time
	Platform string // case-insensitive equality
	Category string // case-insensitive substring
	Status   domain.SessionStatus
}

// Match reports whether r satisfies every set criterion.
func (f Filter) Match(r *domain.HistoryRecord) bool {
	if !f.From.IsZero() && r.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.StartedAt.After(f.To) {
		return false
	}
	if f.Platform != "" && !strings.EqualFold(r.Platform, f.Platform) {
		return false
	}
	if f.Category != "" && !strings.Contains(strings.ToLower(r.Category), strings.ToLower(f.Category)) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// Filter returns the records matching f, most recent first.
func (s *Store) Filter(ctx context.Context, f Filter) []*domain.HistoryRecord {
	all := s.List(ctx)
	out := make([]*domain.HistoryRecord, 0, len(all))
	for _, r := range all {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByDateRange returns records started within [start, end].
func (s *Store) FilterByDateRange(ctx context.Context, start, end time.Time) []*domain.HistoryRecord {
	return s.Filter(ctx, Filter{From: start, To: end})
}

// FilterByPlatform returns records whose platform equals name, ignoring case.
func (s *Store) FilterByPlatform(ctx context.Context, name string) []*domain.HistoryRecord {
	return s.Filter(ctx, Filter{Platform: name})
}

// FilterByCategory returns records whose category contains substr, ignoring case.
func (s *Store) FilterByCategory(ctx context.Context, substr string) []*domain.HistoryRecord {
	return s.Filter(ctx, Filter{Category: substr})
}

// FilterByStatus returns records with exactly the given status.
func (s *Store) FilterByStatus(ctx context.Context, status domain.SessionStatus) []*domain.HistoryRecord {
	return s.Filter(ctx, Filter{Status: status})
}
