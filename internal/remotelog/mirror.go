package remotelog

import (
	"context"
	"errors"
	"sync"

	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/logger"
)

// ErrMirrorClosed is returned for updates enqueued after Close.
var ErrMirrorClosed = errors.New("remote log mirror closed")

// Mirror applies remote log updates in the background, FIFO per session.
// Each session with pending updates owns one worker goroutine; updates for different
// sessions proceed independently.
type Mirror struct {
	client  Client
	onError func(sessionID string, err error)

	mu     sync.Mutex
	queues map[string]*queue
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	ctx      context.Context
	remoteID string
	entry    domain.LogEntry
	done     chan error
}

type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     []job
	finished bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// NewMirror creates a mirror on top of client. onError may be nil.
func NewMirror(client Client, onError func(sessionID string, err error)) *Mirror {
	return &Mirror{
		client:  client,
		onError: onError,
		queues:  make(map[string]*queue),
	}
}

// Enqueue schedules an update of remoteID for sessionID. The returned channel receives
// the result once the update has been applied; callers may ignore it.
func (m *Mirror) Enqueue(ctx context.Context, sessionID, remoteID string, entry domain.LogEntry) <-chan error {
	done := make(chan error, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		done <- ErrMirrorClosed
		return done
	}

	q, ok := m.queues[sessionID]
	if !ok {
		q = newQueue()
		m.queues[sessionID] = q
		m.wg.Add(1)
		go m.run(sessionID, q)
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job{
		ctx:      context.WithoutCancel(ctx),
		remoteID: remoteID,
		entry:    entry,
		done:     done,
	})
	q.mu.Unlock()
	q.cond.Signal()

	return done
}

// Finish lets the session's worker exit once its queue is drained.
func (m *Mirror) Finish(sessionID string) {
	m.mu.Lock()
	q, ok := m.queues[sessionID]
	delete(m.queues, sessionID)
	m.mu.Unlock()

	if ok {
		q.finish()
	}
}

// Pending returns the number of sessions with a live worker.
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// Close stops accepting updates and waits for queued ones to drain or ctx to expire.
func (m *Mirror) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	queues := m.queues
	m.queues = make(map[string]*queue)
	m.mu.Unlock()

	for _, q := range queues {
		q.finish()
	}

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) finish() {
	q.mu.Lock()
	q.finished = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *queue) next() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.jobs) == 0 && !q.finished {
		q.cond.Wait()
	}
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

func (m *Mirror) run(sessionID string, q *queue) {
	defer m.wg.Done()

	for {
		j, ok := q.next()
		if !ok {
			return
		}

		err := m.client.Update(j.ctx, j.remoteID, j.entry)
		if err != nil {
			err = &domain.RemoteLogError{Op: "update", LogID: j.remoteID, Err: err}
			logger.FromContext(j.ctx).WithFields(logger.Fields{
				logger.FieldSessionID: sessionID,
				logger.FieldComponent: "remotelog",
			}).WithError(err).Warn("Failed to mirror session update")
			if m.onError != nil {
				m.onError(sessionID, err)
			}
		}
		j.done <- err
	}
}
