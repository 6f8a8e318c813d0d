package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	database "github.com/badlogic/nazi-radio/internal/db"
	"github.com/badlogic/nazi-radio/internal/models"
)

// StatsHandler serves aggregate numbers for the frontend dashboard.
type StatsHandler struct {
	db *database.Client
}

func NewStatsHandler(db *database.Client) *StatsHandler {
	return &StatsHandler{db: db}
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	var total int64
	h.db.DB.Model(&models.CatalogEntry{}).Count(&total)

	var sums struct {
		DurationMs int64
		Words      int64
	}
	h.db.DB.Model(&models.CatalogEntry{}).
		Select("COALESCE(SUM(duration_ms),0) as duration_ms, COALESCE(SUM(words),0) as words").
		Scan(&sums)

	var latest models.CatalogEntry
	latestID := ""
	if err := h.db.DB.Order("timestamp DESC").First(&latest).Error; err == nil {
		latestID = latest.BroadcastID
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcasts":        total,
		"total_duration_ms": sums.DurationMs,
		"total_words":       sums.Words,
		"latest":            latestID,
	})
}
