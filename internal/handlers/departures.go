package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

// DepartureBoard is the read side of the board used by the departure endpoints
type DepartureBoard interface {
	Window(platform string) ([]models.Departure, bool)
	At(platform string, idx int) (models.Departure, bool)
	After(platform, run string) (models.Departure, bool)
}

// DepartureHandler serves departure queries for display clients
type DepartureHandler struct {
	board DepartureBoard
}

// NewDepartureHandler creates a new handler reading from the given board
func NewDepartureHandler(board DepartureBoard) *DepartureHandler {
	return &DepartureHandler{board: board}
}

// GetWindow handles GET /departures/{platform}
// Returns the next (up to) three departures of the platform
func (h *DepartureHandler) GetWindow(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")

	queue, ok := h.board.Window(platform)
	if !ok {
		notFound(w, map[string]interface{}{"platform": platform})
		return
	}

	resp := make([]models.DepartureWire, 0, len(queue))
	for i := range queue {
		resp = append(resp, queue[i].Wire())
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// GetAt handles GET /departures/{platform}/{idx}
func (h *DepartureHandler) GetAt(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	raw := chi.URLParam(r, "idx")

	idx, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid departure index", map[string]interface{}{"idx": raw})
		return
	}

	dep, ok := h.board.At(platform, idx)
	if !ok {
		notFound(w, map[string]interface{}{"platform": platform, "idx": idx})
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, dep.Wire())
}

// GetAfter handles GET /departures/{platform}/after/{run}
// Returns the departure following the given run on the platform
func (h *DepartureHandler) GetAfter(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	run := chi.URLParam(r, "run")

	dep, ok := h.board.After(platform, run)
	if !ok {
		notFound(w, map[string]interface{}{"platform": platform, "run": run})
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, dep.Wire())
}

func notFound(w http.ResponseWriter, details map[string]interface{}) {
	writeError(w, http.StatusNotFound, "Not found", details)
}
