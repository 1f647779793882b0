package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/history"
)

const maxImportBytes = 32 << 20

// HistoryHandler exposes the session history store.
type HistoryHandler struct {
	store *history.Store
}

// NewHistoryHandler creates a new history handler.
// Parameters:
//   - store: history store instance.
// Returns:
//   - *HistoryHandler: initialized handler.
func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// ListHistory handles GET /api/v1/history.
// Query parameters platform, category, status, from and to (RFC3339) are combined with AND.
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	records := h.store.Filter(c.Request.Context(), f)
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}

func parseFilter(c *gin.Context) (history.Filter, error) {
	f := history.Filter{
		Platform: c.Query("platform"),
		Category: c.Query("category"),
		Status:   domain.SessionStatus(c.Query("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("invalid status %q", f.Status)
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s: %v", name, err)
		}
		*dst = t
	}
	return f, nil
}

// GetStats handles GET /api/v1/history/stats.
func (h *HistoryHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Statistics(c.Request.Context()))
}

// GetRecord handles GET /api/v1/history/:id.
func (h *HistoryHandler) GetRecord(c *gin.Context) {
	r, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteRecord handles DELETE /api/v1/history/:id.
func (h *HistoryHandler) DeleteRecord(c *gin.Context) {
	id := c.Param("id")
	if !h.store.Delete(c.Request.Context(), id) {
		respondError(c, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id))
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearHistory handles DELETE /api/v1/history.
func (h *HistoryHandler) ClearHistory(c *gin.Context) {
	h.store.Clear(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// ExportHistory handles GET /api/v1/history/export.
func (h *HistoryHandler) ExportHistory(c *gin.Context) {
	data, err := h.store.Export(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	filename := fmt.Sprintf("scrape-history-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// ImportHistory handles POST /api/v1/history/import.
// The body replaces the whole history and must be a JSON array of records.
func (h *HistoryHandler) ImportHistory(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	data, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Failed to read request body: "+err.Error())
		return
	}

	n, err := h.store.Import(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}
