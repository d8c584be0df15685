package ptv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// ErrStationNotFound is returned when a station search yields no stops
var ErrStationNotFound = errors.New("no station matches the search term")

// StopSearcher is the subset of the client used for station resolution
type StopSearcher interface {
	SearchStops(ctx context.Context, term string) (*SearchResponse, error)
}

// ResolveStation turns the configured station (numeric id or search term)
// into a stop. A search with no result yields ErrStationNotFound.
func ResolveStation(ctx context.Context, searcher StopSearcher, station string) (Stop, error) {
	station = strings.TrimSpace(station)
	if id, err := strconv.Atoi(station); err == nil {
		log.Printf("PTV: targeting station with ID %d", id)
		return Stop{StopID: id, RouteType: RouteTypeTrain}, nil
	}

	log.Printf("PTV: targeting station with name/search term %q", station)
	resp, err := searcher.SearchStops(ctx, station)
	if err != nil {
		return Stop{}, fmt.Errorf("station search failed: %w", err)
	}
	if len(resp.Stops) == 0 {
		return Stop{}, fmt.Errorf("%w: %q", ErrStationNotFound, station)
	}

	stop := resp.Stops[0]
	log.Printf("PTV: targeting station with ID %d (%s, %s)", stop.StopID, stop.StopName, stop.StopSuburb)
	return stop, nil
}
