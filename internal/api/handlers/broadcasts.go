package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/badlogic/nazi-radio/internal/broadcast"
	database "github.com/badlogic/nazi-radio/internal/db"
	"github.com/badlogic/nazi-radio/internal/index"
	"github.com/badlogic/nazi-radio/internal/models"
	"github.com/badlogic/nazi-radio/internal/storage"
)

// BroadcastHandler serves the broadcast catalog and the underlying files.
type BroadcastHandler struct {
	db      *database.Client
	store   *broadcast.Store
	builder *index.Builder
	archive *storage.Client // nil when mirroring is disabled
}

func NewBroadcastHandler(db *database.Client, store *broadcast.Store, builder *index.Builder, archive *storage.Client) *BroadcastHandler {
	return &BroadcastHandler{
		db:      db,
		store:   store,
		builder: builder,
		archive: archive,
	}
}

// ListEntry keeps the list payload small; the full transcript is only
// returned for single-broadcast requests.
type ListEntry struct {
	BroadcastID string `json:"id"`
	Title       string `json:"title"`
	Timestamp   string `json:"timestamp"`
	DurationMs  int64  `json:"duration"`
	Words       int    `json:"words"`
}

// GetBroadcasts returns a paginated, searchable list, newest first.
func (h *BroadcastHandler) GetBroadcasts(c *gin.Context) {
	// 1. Parse Query Parameters
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	search := c.Query("search")

	if limit > 200 {
		limit = 200 // Hard cap to protect the server
	}

	// 2. Build the Query
	query := h.db.DB.Model(&models.CatalogEntry{})
	if search != "" {
		query = query.Where("title LIKE ?", "%"+search+"%")
	}

	// 3. Total count for pagination math
	var total int64
	query.Count(&total)

	// 4. Fetch the page
	var entries []models.CatalogEntry
	result := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&entries)
	if result.Error != nil {
		log.Printf("❌ Catalog query failed: %v", result.Error)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	data := make([]ListEntry, 0, len(entries))
	for _, e := range entries {
		data = append(data, ListEntry{
			BroadcastID: e.BroadcastID,
			Title:       e.Title,
			Timestamp:   e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			DurationMs:  e.DurationMs,
			Words:       e.Words,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": gin.H{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// GetBroadcast returns the full JSON record including the transcript.
func (h *BroadcastHandler) GetBroadcast(c *gin.Context) {
	id := c.Param("id")

	record, err := h.store.Load(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// StreamAudio serves the merged audio file with range support.
func (h *BroadcastHandler) StreamAudio(c *gin.Context) {
	id := c.Param("id")

	record, err := h.store.Load(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000")
	c.File(h.store.AudioPath(record))
}

// GetManifest serves the derived index file directly.
func (h *BroadcastHandler) GetManifest(c *gin.Context) {
	c.Header("Cache-Control", "max-age=0, no-cache")
	c.File(h.builder.ManifestPath())
}

// DeleteBroadcast removes a broadcast and regenerates the derived views.
// This is the cleanup entry point; the monitor itself never deletes
// finished broadcasts.
func (h *BroadcastHandler) DeleteBroadcast(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.store.Load(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
		return
	}

	if err := h.store.Delete(id); err != nil {
		log.Printf("❌ Delete failed for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Delete failed"})
		return
	}

	broadcasts, err := h.builder.Rebuild()
	if err != nil {
		log.Printf("⚠️ Index rebuild after delete failed: %v", err)
	} else if err := h.db.SyncCatalog(broadcasts); err != nil {
		log.Printf("⚠️ Catalog sync after delete failed: %v", err)
	}

	if h.archive != nil {
		h.archive.DeleteBroadcast(id)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}
