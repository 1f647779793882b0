// Package history keeps the capacity-bounded record of scrape sessions and derives
// statistics from it.
//
// The whole record set lives under a single key of a kvstore.Store as a JSON array,
// most-recent-first. Every mutation loads the array, applies the change, re-sorts,
// truncates to the configured cap and writes it back. Persistence is best effort:
// write failures are logged and a corrupt or unreadable blob is treated as an empty
// history.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/kvstore"
	"github.com/timmy/scrapetrack/internal/logger"
)

const (
	// DefaultKey is the kv key reserved for the history array.
	DefaultKey = "scrape_history"

	// DefaultMaxItems caps the number of retained records.
	DefaultMaxItems = 1000
)

// Config holds configuration for the history store.
type Config struct {
	Key      string
	MaxItems int
}

// Store is the sole writer of the persisted history array.
type Store struct {
	kv       kvstore.Store
	key      string
	maxItems int

	// mu serializes load-modify-save cycles.
	mu sync.Mutex
}

// NewStore creates a history store on top of kv.
func NewStore(kv kvstore.Store, cfg *Config) *Store {
	key, maxItems := DefaultKey, DefaultMaxItems
	if cfg != nil {
		if cfg.Key != "" {
			key = cfg.Key
		}
		if cfg.MaxItems > 0 {
			maxItems = cfg.MaxItems
		}
	}
	return &Store{kv: kv, key: key, maxItems: maxItems}
}

// MaxItems returns the retention cap.
func (s *Store) MaxItems() int {
	return s.maxItems
}

func (s *Store) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "history")
}

// load reads the persisted array. Missing, unreadable or corrupt data yields an empty history.
func (s *Store) load(ctx context.Context) []*domain.HistoryRecord {
	data, err := s.kv.Read(ctx, s.key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrKeyNotFound) {
			s.log(ctx).WithError(err).Warn("Failed to read history, treating as empty")
		}
		return nil
	}

	var records []*domain.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.log(ctx).WithError(err).Warn("Corrupt history blob, treating as empty")
		return nil
	}

	out := records[:0]
	for _, r := range records {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// save sorts by recency, truncates to the cap and writes the array.
// Write failures are logged and never returned.
func (s *Store) save(ctx context.Context, records []*domain.HistoryRecord) []*domain.HistoryRecord {
	sortByRecency(records)
	if len(records) > s.maxItems {
		evicted := len(records) - s.maxItems
		records = records[:s.maxItems]
		logger.With(logger.Fields{logger.FieldComponent: "history"}).WithCount(evicted).Debug(ctx, "Evicted oldest history records")
	}

	data, err := json.Marshal(records)
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to serialize history")
		return records
	}
	if err := s.kv.Write(ctx, s.key, data); err != nil {
		s.log(ctx).WithError(err).Error("Failed to persist history")
	}
	return records
}

func sortByRecency(records []*domain.HistoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.ID > b.ID
	})
}

func indexOf(records []*domain.HistoryRecord, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(records []*domain.HistoryRecord) []*domain.HistoryRecord {
	out := make([]*domain.HistoryRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Add inserts a new record. A record with the same ID must not already exist.
func (s *Store) Add(ctx context.Context, record *domain.HistoryRecord) error {
	if record.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	if indexOf(records, record.ID) >= 0 {
		return &domain.ValidationError{Field: "id", Reason: fmt.Sprintf("record %s already exists", record.ID)}
	}

	r := record.Clone()
	r.Recompute()
	s.save(ctx, append(records, r))
	logger.CtxDebug(ctx, "History record added: history_id=%s", r.ID)
	return nil
}

// Upsert inserts the record or replaces the one with the same ID.
func (s *Store) Upsert(ctx context.Context, record *domain.HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := record.Clone()
	r.Recompute()

	records := s.load(ctx)
	if i := indexOf(records, r.ID); i >= 0 {
		records[i] = r
	} else {
		records = append(records, r)
	}
	s.save(ctx, records)
}

// Update mutates the record with the given ID in place and recomputes its derived fields.
// Records that were evicted or deleted are never recreated; ErrRecordNotFound is returned.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.HistoryRecord)) (*domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	i := indexOf(records, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}

	r := records[i]
	fn(r)
	r.ID = id
	r.Recompute()
	s.save(ctx, records)
	return r.Clone(), nil
}

// RecordCategoryProgress stores the progress of one sub-category of a multi-category job.
func (s *Store) RecordCategoryProgress(ctx context.Context, id, categoryURL string, progress domain.CategoryProgress) (*domain.HistoryRecord, error) {
	if categoryURL == "" {
		return nil, &domain.ValidationError{Field: "categoryUrl", Reason: "must not be empty"}
	}
	return s.Update(ctx, id, func(r *domain.HistoryRecord) {
		if r.CategoryProducts == nil {
			r.CategoryProducts = make(map[string]*domain.CategoryProgress)
		}
		cp := progress
		cp.Products = append([]json.RawMessage(nil), progress.Products...)
		r.CategoryProducts[categoryURL] = &cp
	})
}

// MarkFailed records an externally reported failure at the given time.
// This is the only path to the failed status.
func (s *Store) MarkFailed(ctx context.Context, id, message string, at time.Time) (*domain.HistoryRecord, error) {
	return s.Update(ctx, id, func(r *domain.HistoryRecord) {
		r.ErrorMessage = message
		r.Finish(domain.SessionStatusFailed, at)
	})
}

// Delete removes a single record and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	i := indexOf(records, id)
	if i < 0 {
		return false
	}
	records = append(records[:i], records[i+1:]...)
	s.save(ctx, records)
	return true
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, s.key); err != nil {
		s.log(ctx).WithError(err).Error("Failed to clear history")
	}
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	if i := indexOf(records, id); i >= 0 {
		return records[i].Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
}

// List returns all records, most recent first.
func (s *Store) List(ctx context.Context) []*domain.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	sortByRecency(records)
	return cloneAll(records)
}

// Statistics recomputes the snapshot from the full record set.
func (s *Store) Statistics(ctx context.Context) domain.Statistics {
	return ComputeStatistics(s.List(ctx))
}

// Export serializes the history most-recent-first.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	records := s.List(ctx)
	if records == nil {
		records = []*domain.HistoryRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export history: %w", err)
	}
	return data, nil
}

// Import replaces the entire history with the records in data.
// The store is left untouched unless data is a JSON array of records.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	records, err := decodeRecords(data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.save(ctx, records)
	s.log(ctx).WithField(logger.FieldCount, len(kept)).Info("Imported history")
	return len(kept), nil
}

func decodeRecords(data []byte) ([]*domain.HistoryRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, domain.ErrImportFormat
	}

	records := make([]*domain.HistoryRecord, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, item := range raw {
		var r domain.HistoryRecord
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", domain.ErrImportFormat, i, err)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("%w: element %d has no id", domain.ErrImportFormat, i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", domain.ErrImportFormat, r.ID)
		}
		seen[r.ID] = struct{}{}
		r.Recompute()
		records = append(records, &r)
	}
	return records, nil
}
