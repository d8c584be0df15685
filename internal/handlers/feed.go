package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/export"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

// SnapshotSource provides a copy of the whole board
type SnapshotSource interface {
	Snapshot() *models.BoardSnapshot
}

// FeedHandler serves the board as a GTFS-Realtime feed
type FeedHandler struct {
	board SnapshotSource
	now   func() time.Time
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(board SnapshotSource) *FeedHandler {
	return &FeedHandler{board: board, now: time.Now}
}

// GetTripUpdates handles GET /gtfs-rt/trip-updates
// Protobuf by default; ?format=json returns the JSON form for debugging
func (h *FeedHandler) GetTripUpdates(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != export.FormatJSON && format != export.FormatProtobuf {
		writeError(w, http.StatusBadRequest, "Unknown feed format", map[string]interface{}{"format": format})
		return
	}

	feed := export.TripUpdates(h.board.Snapshot(), h.now())
	body, contentType, err := export.Encode(feed, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode feed", map[string]interface{}{
			"internal": err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Printf("HTTP: failed to write feed: %v", err)
	}
}
