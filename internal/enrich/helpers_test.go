package enrich

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/ptv"
)

type entry struct {
	id      int
	name    string
	note    string
	skipped []ptv.Stop
}

func patternResponse(run ptv.Run, entries ...entry) *ptv.PatternResponse {
	resp := &ptv.PatternResponse{
		Stops: map[string]ptv.Stop{},
		Runs:  map[string]ptv.Run{run.RunRef: run},
	}
	for _, e := range entries {
		d := ptv.Departure{StopID: e.id, RunRef: run.RunRef, SkippedStops: e.skipped}
		if e.note != "" {
			note := e.note
			d.DepartureNote = &note
		}
		resp.Departures = append(resp.Departures, d)
		resp.Stops[strconv.Itoa(e.id)] = ptv.Stop{StopID: e.id, StopName: e.name}
	}
	return resp
}

type fakeSource struct {
	mu       sync.Mutex
	patterns map[string]*ptv.PatternResponse
	calls    map[string]int
}

func newFakeSource(patterns ...*ptv.PatternResponse) *fakeSource {
	f := &fakeSource{
		patterns: map[string]*ptv.PatternResponse{},
		calls:    map[string]int{},
	}
	for _, p := range patterns {
		for ref := range p.Runs {
			f.patterns[ref] = p
		}
	}
	return f
}

func (f *fakeSource) Pattern(_ context.Context, _ int, runRef string) (*ptv.PatternResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[runRef]++
	p, ok := f.patterns[runRef]
	if !ok {
		return nil, &ptv.StatusError{StatusCode: http.StatusNotFound, Body: "run not found"}
	}
	return p, nil
}

func (f *fakeSource) callCount(runRef string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[runRef]
}

func stopIDs(stops []models.Stop) []int {
	ids := make([]int, len(stops))
	for i, s := range stops {
		ids[i] = s.ID
	}
	return ids
}
