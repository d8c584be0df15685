package handlers

import (
	"net/http"
	"time"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/board"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/metrics"
)

// StatusSource reports the board status
type StatusSource interface {
	Status() board.Status
}

// ClientCounter reports connected push clients
type ClientCounter interface {
	Count() int
}

// UpstreamStats reports upstream request statistics
type UpstreamStats interface {
	Snapshot() []metrics.EndpointStats
}

// HealthHandler serves the service health report
type HealthHandler struct {
	station  int
	board    StatusSource
	clients  ClientCounter
	upstream UpstreamStats
	now      func() time.Time
}

// NewHealthHandler creates a new health handler. clients and upstream may be nil.
func NewHealthHandler(station int, board StatusSource, clients ClientCounter, upstream UpstreamStats) *HealthHandler {
	return &HealthHandler{
		station:  station,
		board:    board,
		clients:  clients,
		upstream: upstream,
		now:      time.Now,
	}
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status    string                  `json:"status"` // "ok" or "cold"
	Station   int                     `json:"station"`
	Board     board.Status            `json:"board"`
	Clients   int                     `json:"clients"`
	Upstream  []metrics.EndpointStats `json:"upstream"`
	Timestamp time.Time               `json:"timestamp"`
}

// GetHealth handles GET /health
// Answers 503 until the first board has been built
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Station:   h.station,
		Board:     h.board.Status(),
		Upstream:  []metrics.EndpointStats{},
		Timestamp: h.now().UTC(),
	}
	if h.clients != nil {
		resp.Clients = h.clients.Count()
	}
	if h.upstream != nil {
		resp.Upstream = h.upstream.Snapshot()
	}

	status := http.StatusOK
	if resp.Board.State != board.StateReady {
		resp.Status = string(resp.Board.State)
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, resp)
}
