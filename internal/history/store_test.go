package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/kvstore"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRecord(id, platform, category string, total, scraped, failed int, startedAt time.Time) *domain.HistoryRecord {
	return &domain.HistoryRecord{
		ID:        id,
		SessionID: "sess-" + id,
		Type:      domain.ScrapeTypeProduct,
		Platform:  platform,
		Category:  category,
		Status:    domain.SessionStatusInProgress,
		Progress:  domain.Progress{Total: total, Scraped: scraped, Failed: failed},
		StartedAt: startedAt,
	}
}

// failingKV fails every write and optionally returns a fixed blob on read.
type failingKV struct {
	blob    []byte
	readErr error
	writes  int
}

func (f *failingKV) Read(context.Context, string) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.blob == nil {
		return nil, kvstore.ErrKeyNotFound
	}
	return f.blob, nil
}

func (f *failingKV) Write(context.Context, string, []byte) error {
	f.writes++
	return errors.New("disk full")
}

func (f *failingKV) Remove(context.Context, string) error { return nil }
func (f *failingKV) Close() error                          { return nil }

func TestStore_UpsertGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)

	s.Upsert(ctx, newRecord("a", "flipkart", "phones", 4, 0, 0, baseTime))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "flipkart", got.Platform)
	assert.Equal(t, 0, got.Progress.Percentage)

	updated, err := s.Update(ctx, "a", func(r *domain.HistoryRecord) {
		r.Progress.Scraped = 3
		r.Progress.Failed = 1
	})
	require.NoError(t, err)
	assert.Equal(t, 75, updated.Progress.Percentage)
	assert.InDelta(t, 75.0, updated.SuccessRate, 1e-9)
	assert.Nil(t, updated.Duration)

	_, err = s.Update(ctx, "missing", func(*domain.HistoryRecord) {})
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)
	s.Upsert(ctx, newRecord("a", "flipkart", "", 1, 0, 0, baseTime))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Platform = "mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "flipkart", again.Platform)
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)

	s.Upsert(ctx, newRecord("old", "p", "", 1, 0, 0, baseTime))
	s.Upsert(ctx, newRecord("new", "p", "", 1, 0, 0, baseTime.Add(2*time.Hour)))
	s.Upsert(ctx, newRecord("mid", "p", "", 1, 0, 0, baseTime.Add(time.Hour)))

	list := s.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestStore_CapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), &Config{MaxItems: 1000})

	for i := 0; i < 1001; i++ {
		s.Upsert(ctx, newRecord(fmt.Sprintf("r%04d", i), "p", "", 1, 0, 0, baseTime.Add(time.Duration(i)*time.Minute)))
	}

	list := s.List(ctx)
	assert.Len(t, list, 1000)
	_, err := s.Get(ctx, "r0000")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.Equal(t, "r1000", list[0].ID)
	assert.Equal(t, "r0001", list[len(list)-1].ID)

	// Late progress for an evicted record does not resurrect it.
	_, err = s.Update(ctx, "r0000", func(r *domain.HistoryRecord) { r.Progress.Scraped = 1 })
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.Len(t, s.List(ctx), 1000)
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)
	s.Upsert(ctx, newRecord("a", "p", "", 1, 0, 0, baseTime))
	s.Upsert(ctx, newRecord("b", "p", "", 1, 0, 0, baseTime))

	assert.True(t, s.Delete(ctx, "a"))
	assert.False(t, s.Delete(ctx, "a"))
	assert.Len(t, s.List(ctx), 1)

	s.Clear(ctx)
	assert.Empty(t, s.List(ctx))
	assert.Equal(t, 0, s.Statistics(ctx).TotalSessions)
}

func TestStore_CorruptBlobIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Write(ctx, DefaultKey, []byte("{not json")))

	s := NewStore(kv, nil)
	assert.Empty(t, s.List(ctx))

	s.Upsert(ctx, newRecord("a", "p", "", 1, 0, 0, baseTime))
	assert.Len(t, s.List(ctx), 1)
}

func TestStore_PersistenceFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{readErr: errors.New("io error")}
	s := NewStore(kv, nil)

	assert.NotPanics(t, func() {
		s.Upsert(ctx, newRecord("a", "p", "", 1, 0, 0, baseTime))
	})
	assert.Equal(t, 1, kv.writes)
	assert.Empty(t, s.List(ctx))
}

func TestStore_RecordCategoryProgress(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)
	s.Upsert(ctx, newRecord("a", "amazon", "laptops", 10, 0, 0, baseTime))

	r, err := s.RecordCategoryProgress(ctx, "a", "https://amazon.example/laptops/gaming", domain.CategoryProgress{
		Total:    5,
		Scraped:  4,
		Failed:   1,
		Products: []json.RawMessage{json.RawMessage(`{"sku":"x1"}`)},
	})
	require.NoError(t, err)
	require.Contains(t, r.CategoryProducts, "https://amazon.example/laptops/gaming")
	cp := r.CategoryProducts["https://amazon.example/laptops/gaming"]
	assert.Equal(t, 4, cp.Scraped)
	assert.JSONEq(t, `{"sku":"x1"}`, string(cp.Products[0]))

	_, err = s.RecordCategoryProgress(ctx, "a", "", domain.CategoryProgress{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_MarkFailed(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)
	s.Upsert(ctx, newRecord("a", "p", "", 2, 1, 0, baseTime))

	r, err := s.MarkFailed(ctx, "a", "proxy banned", baseTime.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusFailed, r.Status)
	assert.Equal(t, "proxy banned", r.ErrorMessage)
	require.NotNil(t, r.Duration)
	assert.Equal(t, int64(3000), *r.Duration)
	require.NotNil(t, r.CompletedAt)
	assert.True(t, baseTime.Add(3*time.Second).Equal(*r.CompletedAt))

	_, err = s.MarkFailed(ctx, "missing", "x", baseTime)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewStore(kvstore.NewMemory(), nil)

	done := newRecord("b", "flipkart", "shoes", 5, 5, 0, baseTime.Add(time.Hour))
	done.Finish(domain.SessionStatusCompleted, baseTime.Add(90*time.Minute))
	src.Upsert(ctx, newRecord("a", "flipkart", "phones", 10, 8, 2, baseTime))
	src.Upsert(ctx, done)

	blob, err := src.Export(ctx)
	require.NoError(t, err)

	dst := NewStore(kvstore.NewMemory(), nil)
	n, err := dst.Import(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	again, err := dst.Export(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), string(again))

	got, err := dst.Get(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, got.Duration)
	assert.Equal(t, int64(30*60*1000), *got.Duration)
}

func TestStore_ImportRejectsNonArray(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)
	s.Upsert(ctx, newRecord("keep", "p", "", 1, 0, 0, baseTime))

	for _, payload := range []string{`{"id":"x"}`, `null`, `"text"`, `not json`, `[{"id":""}]`, `[1,2]`} {
		t.Run(payload, func(t *testing.T) {
			_, err := s.Import(ctx, []byte(payload))
			assert.ErrorIs(t, err, domain.ErrImportFormat)

			list := s.List(ctx)
			require.Len(t, list, 1)
			assert.Equal(t, "keep", list[0].ID)
		})
	}
}

func TestStore_ImportDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)
	s.Upsert(ctx, newRecord("keep", "p", "", 1, 0, 0, baseTime))

	_, err := s.Import(ctx, []byte(`[{"id":"a","platform":"p"},{"id":"b"},{"id":"a","platform":"q"}]`))
	require.ErrorIs(t, err, domain.ErrImportFormat)
	assert.Contains(t, err.Error(), `duplicate id "a"`)

	list := s.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].ID)

	n, err := s.Import(ctx, []byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.Equal(t, 1, s.Statistics(ctx).TotalSessions)
}

func TestStore_ImportRecomputesDerivedFields(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)

	payload := `[{"id":"a","platform":"p","status":"in_progress","startedAt":"2026-03-01T12:00:00Z",
		"progress":{"scraped":1,"failed":0,"total":4,"percentage":99},"successRate":99}]`
	_, err := s.Import(ctx, []byte(payload))
	require.NoError(t, err)

	r, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 25, r.Progress.Percentage)
	assert.InDelta(t, 25.0, r.SuccessRate, 1e-9)
}

func TestStore_ImportTruncatesToCap(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), &Config{MaxItems: 2})

	var records []*domain.HistoryRecord
	for i := 0; i < 3; i++ {
		records = append(records, newRecord(fmt.Sprintf("r%d", i), "p", "", 1, 0, 0, baseTime.Add(time.Duration(i)*time.Hour)))
	}
	blob, err := json.Marshal(records)
	require.NoError(t, err)

	n, err := s.Import(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.Get(ctx, "r0")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestStore_AddRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory(), nil)

	require.NoError(t, s.Add(ctx, newRecord("a", "p", "", 1, 0, 0, baseTime)))
	assert.ErrorIs(t, s.Add(ctx, newRecord("a", "other", "", 1, 0, 0, baseTime)), domain.ErrValidation)
	assert.ErrorIs(t, s.Add(ctx, newRecord("", "p", "", 1, 0, 0, baseTime)), domain.ErrValidation)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "p", got.Platform)
}
