package board

import (
	"sort"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

// Window returns up to the first three departures of a platform.
// ok is false when the platform is unknown; a known platform with no
// departures left returns an empty slice.
func (m *Manager) Window(platform string) ([]models.Departure, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queue, ok := m.platforms[platform]
	if !ok {
		return nil, false
	}
	n := min(len(queue), windowSize)
	return append(make([]models.Departure, 0, n), queue[:n]...), true
}

// At returns the departure at a queue position
func (m *Manager) At(platform string, idx int) (models.Departure, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queue := m.platforms[platform]
	if idx < 0 || idx >= len(queue) {
		return models.Departure{}, false
	}
	return queue[idx], true
}

// After returns the departure following a run. ok is false when the run is
// not on the platform or is its last departure.
func (m *Manager) After(platform, run string) (models.Departure, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queue := m.platforms[platform]
	for i := 0; i < len(queue)-1; i++ {
		if queue[i].Run == run {
			return queue[i+1], true
		}
	}
	return models.Departure{}, false
}

// Platforms returns the platform identifiers on the board, sorted
func (m *Manager) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.platforms))
	for platform := range m.platforms {
		out = append(out, platform)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the whole board
func (m *Manager) Snapshot() *models.BoardSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// State returns the board state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status summarizes the board
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		State:       m.state,
		Version:     m.version,
		ServiceDate: m.serviceDate,
		RefreshedAt: m.refreshedAt,
		Platforms:   len(m.platforms),
		Enriching:   len(m.inflight),
	}
	for _, queue := range m.platforms {
		st.Departures += len(queue)
	}
	return st
}
