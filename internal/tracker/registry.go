// Package tracker owns the live state of scrape sessions.
//
// The Registry is the single writer of in-memory session state. Each mutation is applied
// to the session first, then written to the history store and queued for the remote log
// mirror while the registry lock is still held, so both see the updates of a session in
// the order they were generated. Mirror and persistence failures never roll back the
// in-memory transition.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/history"
	"github.com/timmy/scrapetrack/internal/logger"
	"github.com/timmy/scrapetrack/internal/remotelog"
)

const defaultCancelReason = "cancelled by caller"

// Config holds configuration for the registry.
type Config struct {
	// AsyncMirror returns from Advance/Cancel without waiting for the remote log update.
	AsyncMirror bool
	// RejectDuplicates enforces at most one outcome per selected item URL.
	RejectDuplicates bool
}

// CurrentProgress is a session's status and counters at one point in time. It backs the
// current-progress slot and the result of Advance.
type CurrentProgress struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
	domain.Progress
}

type liveSession struct {
	session   *domain.Session
	selected  map[string]struct{}
	processed map[string]domain.Outcome
}

// Registry tracks sessions from start until they become terminal.
type Registry struct {
	history          *history.Store
	remote           remotelog.Client
	mirror           *remotelog.Mirror
	asyncMirror      bool
	rejectDuplicates bool
	newID            func() string
	now              func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
	current  *CurrentProgress
}

// NewRegistry creates a registry writing to store and mirroring to remote.
// Parameters:
//   - store: history store receiving a record per session.
//   - remote: remote job-log API client.
//   - cfg: registry behaviour; nil enables duplicate rejection with synchronous mirroring.
// Returns:
//   - *Registry: registry with no active sessions.
func NewRegistry(store *history.Store, remote remotelog.Client, cfg *Config) *Registry {
	if cfg == nil {
		cfg = &Config{RejectDuplicates: true}
	}
	return &Registry{
		history:          store,
		remote:           remote,
		mirror:           remotelog.NewMirror(remote, nil),
		asyncMirror:      cfg.AsyncMirror,
		rejectDuplicates: cfg.RejectDuplicates,
		newID:            func() string { return uuid.Must(uuid.NewV7()).String() },
		now:              time.Now,
		sessions:         make(map[string]*liveSession),
	}
}

func sessionContext(ctx context.Context, s *domain.Session) context.Context {
	return logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "tracker",
		logger.FieldSessionID: s.ID,
		logger.FieldPlatform:  s.Config.Platform,
	})
}

// Start registers a new session for the selected items of cfg and returns its ID.
//
// The history record is written before the remote log row is created. If the remote
// create fails, that record is marked failed and no live session is created.
func (r *Registry) Start(ctx context.Context, cfg domain.SessionConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	selected := cfg.SelectedItems()
	now := r.now()
	s := &domain.Session{
		ID:     r.newID(),
		LogID:  r.newID(),
		Status: domain.SessionStatusPending,
		Config: domain.SessionConfig{
			Platform:    cfg.Platform,
			Category:    cfg.Category,
			CategoryURL: cfg.CategoryURL,
			Items:       selected,
		},
		Progress:  domain.Progress{Total: len(selected)},
		StartedAt: now,
	}
	ctx = sessionContext(ctx, s)

	if err := r.history.Add(ctx, domain.NewHistoryRecord(s.LogID, s)); err != nil {
		return "", err
	}

	remoteID, err := r.remote.Create(ctx, domain.NewStartLogEntry(s, now))
	if err != nil {
		rerr := &domain.RemoteLogError{Op: "create", Err: err}
		if _, markErr := r.history.MarkFailed(ctx, s.LogID, rerr.Error(), r.now()); markErr != nil {
			logger.FromContext(ctx).WithError(markErr).Warn("Failed to mark orphaned history record")
		}
		logger.CtxError(ctx, "Failed to create remote log, session not started: %v", err)
		return "", rerr
	}

	s.RemoteLogID = remoteID
	s.Status = domain.SessionStatusInProgress

	ls := &liveSession{
		session:   s,
		selected:  make(map[string]struct{}, len(selected)),
		processed: make(map[string]domain.Outcome, len(selected)),
	}
	for _, item := range selected {
		ls.selected[item.URL] = struct{}{}
	}

	r.mu.Lock()
	r.sessions[s.ID] = ls
	r.touch(s)
	r.updateRecord(ctx, s, func(rec *domain.HistoryRecord) {
		rec.RemoteLogID = remoteID
	})
	r.mirror.Enqueue(ctx, s.ID, remoteID, domain.NewProgressLogEntry(s, domain.LogActionStart, now))
	r.mu.Unlock()

	logger.With(logger.Fields{logger.FieldCount: s.Progress.Total}).Info(ctx, "Session started")
	return s.ID, nil
}

// Advance records the outcome of one item. When every selected item is accounted for the
// session completes and leaves the active set.
//
// The returned snapshot is the session state right after this event was applied. A
// *domain.RemoteLogError is returned alongside it only in synchronous mirror mode.
func (r *Registry) Advance(ctx context.Context, sessionID string, ev domain.ProgressEvent) (*CurrentProgress, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	ls, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if r.rejectDuplicates {
		if _, selected := ls.selected[ev.ItemURL]; !selected {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownItem, ev.ItemURL)
		}
		if _, seen := ls.processed[ev.ItemURL]; seen {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", domain.ErrItemAlreadyProcessed, ev.ItemURL)
		}
	}
	ls.processed[ev.ItemURL] = ev.Outcome

	s := ls.session
	ctx = sessionContext(ctx, s)
	now := r.now()

	if ev.Outcome == domain.OutcomeSuccess {
		s.Progress.Scraped++
	} else {
		s.Progress.Failed++
	}
	s.Progress.Recompute()

	action := domain.LogActionProgress
	completed := s.Progress.Processed() >= s.Progress.Total
	if completed {
		action = domain.LogActionComplete
		s.Status = domain.SessionStatusCompleted
		s.CompletedAt = &now
		delete(r.sessions, s.ID)
		r.current = nil
	} else {
		r.touch(s)
	}

	r.updateRecord(ctx, s, func(rec *domain.HistoryRecord) {
		if ev.Outcome == domain.OutcomeFailed && ev.ErrorMessage != "" {
			rec.ErrorMessage = ev.ErrorMessage
		}
		if len(ev.Data) > 0 {
			rec.ScrapedData = append(rec.ScrapedData, append(json.RawMessage(nil), ev.Data...))
		}
		if completed {
			rec.Finish(domain.SessionStatusCompleted, now)
		}
	})

	entry := domain.NewProgressLogEntry(s, action, now)
	if ev.Outcome == domain.OutcomeFailed {
		entry.ErrorMessage = ev.ErrorMessage
	}
	done := r.mirror.Enqueue(ctx, s.ID, s.RemoteLogID, entry)
	if completed {
		r.mirror.Finish(s.ID)
	}
	snap := &CurrentProgress{SessionID: s.ID, Status: s.Status, Progress: s.Progress}
	r.mu.Unlock()

	if completed {
		logger.With(logger.Fields{
			logger.FieldCount:      snap.Scraped,
			logger.FieldDurationMs: domain.DurationMs(s.StartedAt, now),
			logger.FieldStatus:     string(domain.SessionStatusCompleted),
		}).Info(ctx, "Session completed: scraped=%d failed=%d", snap.Scraped, snap.Failed)
	}

	return snap, r.await(done)
}

// Cancel stops tracking an active session and records it as cancelled.
// It does not interrupt the external work.
func (r *Registry) Cancel(ctx context.Context, sessionID, reason string) error {
	if reason == "" {
		reason = defaultCancelReason
	}

	r.mu.Lock()
	ls, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	s := ls.session
	ctx = sessionContext(ctx, s)
	now := r.now()

	s.Status = domain.SessionStatusCancelled
	s.CompletedAt = &now
	delete(r.sessions, s.ID)
	r.current = nil

	r.updateRecord(ctx, s, func(rec *domain.HistoryRecord) {
		rec.ErrorMessage = reason
		rec.Finish(domain.SessionStatusCancelled, now)
	})

	entry := domain.NewProgressLogEntry(s, domain.LogActionCancel, now)
	entry.ErrorMessage = reason
	done := r.mirror.Enqueue(ctx, s.ID, s.RemoteLogID, entry)
	r.mirror.Finish(s.ID)
	r.mu.Unlock()

	logger.With(logger.Fields{logger.FieldComponent: "tracker"}).
		WithDuration(domain.DurationMs(s.StartedAt, now)).
		WithStatus(string(domain.SessionStatusCancelled)).
		Info(ctx, "Session cancelled: %s", reason)

	return r.await(done)
}

// ReportCategoryProgress records per-sub-category progress of a multi-category session.
func (r *Registry) ReportCategoryProgress(ctx context.Context, sessionID, categoryURL string, progress domain.CategoryProgress) error {
	if progress.Total < 0 || progress.Scraped < 0 || progress.Failed < 0 ||
		progress.Scraped+progress.Failed > progress.Total {
		return &domain.ValidationError{Field: "progress", Reason: "counters must satisfy 0 <= scraped+failed <= total"}
	}

	r.mu.Lock()
	ls, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	s := ls.session
	ctx = sessionContext(ctx, s)

	if _, err := r.history.RecordCategoryProgress(ctx, s.LogID, categoryURL, progress); err != nil {
		r.mu.Unlock()
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		logger.FromContext(ctx).WithError(err).Warn("Category progress not recorded")
		return nil
	}

	entry := domain.NewProgressLogEntry(s, domain.LogActionCategory, r.now())
	entry.URL = categoryURL
	done := r.mirror.Enqueue(ctx, s.ID, s.RemoteLogID, entry)
	r.touch(s)
	r.mu.Unlock()

	return r.await(done)
}

// Get returns a copy of an active session.
func (r *Registry) Get(sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ls, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return ls.session.Clone(), nil
}

// ListActive returns copies of all pending or in-progress sessions, oldest first.
func (r *Registry) ListActive() []*domain.Session {
	r.mu.Lock()
	out := make([]*domain.Session, 0, len(r.sessions))
	for _, ls := range r.sessions {
		if ls.session.Status.IsActive() {
			out = append(out, ls.session.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CurrentProgress returns the progress of the most recently touched active session, or nil.
func (r *Registry) CurrentProgress() *CurrentProgress {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	c := *r.current
	return &c
}

// Close drains pending remote log updates.
func (r *Registry) Close(ctx context.Context) error {
	return r.mirror.Close(ctx)
}

// touch publishes s as the current session. Callers hold r.mu.
func (r *Registry) touch(s *domain.Session) {
	r.current = &CurrentProgress{SessionID: s.ID, Status: s.Status, Progress: s.Progress}
}

// updateRecord copies the session counters into its history record and applies fn.
// A record that was evicted or deleted is left alone. Callers hold r.mu.
func (r *Registry) updateRecord(ctx context.Context, s *domain.Session, fn func(*domain.HistoryRecord)) {
	_, err := r.history.Update(ctx, s.LogID, func(rec *domain.HistoryRecord) {
		rec.Status = s.Status
		rec.Progress = s.Progress
		fn(rec)
	})
	if err != nil {
		logger.CtxWarn(ctx, "History record %s not updated: %v", s.LogID, err)
	}
}

func (r *Registry) await(done <-chan error) error {
	if r.asyncMirror {
		return nil
	}
	return <-done
}
