package models

import (
	"time"

	"github.com/google/uuid"
)

// BoardSnapshot is a copy of the whole board at one version, as persisted
// by the snapshot store
type BoardSnapshot struct {
	ID          uuid.UUID
	Station     int
	ServiceDate string // YYYY-MM-DD in the board's civil timezone
	Version     int64
	CreatedAt   time.Time
	Platforms   map[string][]Departure
}

// DepartureCount returns the number of departures over all platforms
func (s *BoardSnapshot) DepartureCount() int {
	n := 0
	for _, q := range s.Platforms {
		n += len(q)
	}
	return n
}
