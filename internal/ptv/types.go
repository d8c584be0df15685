package ptv

import (
	"strconv"
	"time"
)

// Route types used by the timetable API
const (
	RouteTypeTrain = 0 // metropolitan train network
	RouteTypeVLine = 3 // regional (long distance) network
)

// Stop is a stop record as returned in the stops map and in skipped_stops
type Stop struct {
	StopID     int    `json:"stop_id"`
	StopName   string `json:"stop_name"`
	StopSuburb string `json:"stop_suburb"`
	RouteType  int    `json:"route_type"`
}

// Route is a route record from the routes map
type Route struct {
	RouteType   int    `json:"route_type"`
	RouteID     int    `json:"route_id"`
	RouteName   string `json:"route_name"`
	RouteNumber string `json:"route_number"`
	RouteGTFSID string `json:"route_gtfs_id"`
}

// InterchangeRun describes a feeder or distributor run
type InterchangeRun struct {
	RunRef          string `json:"run_ref"`
	RouteID         int    `json:"route_id"`
	StopID          int    `json:"stop_id"`
	Advertised      bool   `json:"advertised"`
	DestinationName string `json:"destination_name"`
}

// Interchange links a run to the runs that feed into it and continue from it
type Interchange struct {
	Feeder      *InterchangeRun `json:"feeder"`
	Distributor *InterchangeRun `json:"distributor"`
}

// Run is a run record from the runs map
type Run struct {
	RunID           int          `json:"run_id"`
	RunRef          string       `json:"run_ref"`
	RouteID         int          `json:"route_id"`
	RouteType       int          `json:"route_type"`
	FinalStopID     int          `json:"final_stop_id"`
	DestinationName string       `json:"destination_name"`
	Status          string       `json:"status"`
	DirectionID     int          `json:"direction_id"`
	Interchange     *Interchange `json:"interchange"`
}

// Distributor returns the distributor run continuing this run, if any
func (r Run) Distributor() *InterchangeRun {
	if r.Interchange == nil || r.Interchange.Distributor == nil || r.Interchange.Distributor.RunRef == "" {
		return nil
	}
	return r.Interchange.Distributor
}

// Departure is a departure record; pattern responses reuse the same shape
// with one record per stop of the run.
type Departure struct {
	StopID                int        `json:"stop_id"`
	RouteID               int        `json:"route_id"`
	RunID                 int        `json:"run_id"`
	RunRef                string     `json:"run_ref"`
	DirectionID           int        `json:"direction_id"`
	ScheduledDepartureUTC time.Time  `json:"scheduled_departure_utc"`
	EstimatedDepartureUTC *time.Time `json:"estimated_departure_utc"`
	AtPlatform            bool       `json:"at_platform"`
	PlatformNumber        *string    `json:"platform_number"`
	DepartureNote         *string    `json:"departure_note"`
	SkippedStops          []Stop     `json:"skipped_stops"`
}

// Note returns the departure note or "" when absent
func (d Departure) Note() string {
	if d.DepartureNote == nil {
		return ""
	}
	return *d.DepartureNote
}

// DeparturesResponse is returned by /departures/route_type/{type}/stop/{stop}
type DeparturesResponse struct {
	Departures []Departure      `json:"departures"`
	Stops      map[string]Stop  `json:"stops"`
	Routes     map[string]Route `json:"routes"`
	Runs       map[string]Run   `json:"runs"`
	Status     *ResponseStatus  `json:"status"`
}

// PatternResponse is returned by /pattern/run/{run}/route_type/{type}
type PatternResponse struct {
	Departures []Departure      `json:"departures"`
	Stops      map[string]Stop  `json:"stops"`
	Routes     map[string]Route `json:"routes"`
	Runs       map[string]Run   `json:"runs"`
	Status     *ResponseStatus  `json:"status"`
}

// Run looks up a run by reference
func (p *PatternResponse) Run(ref string) (Run, bool) {
	run, ok := p.Runs[ref]
	return run, ok
}

// StopName looks up a stop name from the stops map
func (p *PatternResponse) StopName(id int) (string, bool) {
	stop, ok := p.Stops[strconv.Itoa(id)]
	return stop.StopName, ok
}

// SearchResponse is returned by /search/{term}
type SearchResponse struct {
	Stops  []Stop          `json:"stops"`
	Status *ResponseStatus `json:"status"`
}

// ResponseStatus is attached to every API response
type ResponseStatus struct {
	Version string `json:"version"`
	Health  int    `json:"health"`
}
