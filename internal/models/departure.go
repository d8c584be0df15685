package models

import (
	"encoding/json"
	"time"
)

// Stop is one entry of a departure's stopping pattern
type Stop struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Skipped bool   `json:"skipped"`
}

// Key identifies a departure within a platform queue
type Key struct {
	Type int
	Run  string
}

// Departure is one upcoming service on one platform.
// Dest, Stations and Subtitle are only meaningful when Enriched is set;
// they are always assigned together.
type Departure struct {
	Type     int
	Run      string
	RouteID  int
	Platform string
	Time     time.Time
	Group    string

	Enriched bool
	Dest     string
	Stations []Stop
	Subtitle string
}

// Key returns the (type, run) identity of the departure
func (d *Departure) Key() Key {
	return Key{Type: d.Type, Run: d.Run}
}

// Enrichment holds the resolved fields attached to a departure at once
type Enrichment struct {
	Dest     string
	Stations []Stop
	Subtitle string
}

// Apply attaches an enrichment result
func (d *Departure) Apply(e Enrichment) {
	d.Dest = e.Dest
	d.Stations = e.Stations
	d.Subtitle = e.Subtitle
	d.Enriched = true
}

// DepartureWire is the client-facing JSON form of a departure.
// Optional fields are omitted until the departure is enriched.
type DepartureWire struct {
	Type     int     `json:"type"`
	Run      string  `json:"run"`
	Time     int64   `json:"time"` // epoch millis
	Dest     *string `json:"dest,omitempty"`
	Subtitle *string `json:"subtitle,omitempty"`
	Group    string  `json:"group"`
	Stations *[]Stop `json:"stations,omitempty"`
}

// Wire converts the departure to its client-facing form
func (d *Departure) Wire() DepartureWire {
	w := DepartureWire{
		Type:  d.Type,
		Run:   d.Run,
		Time:  d.Time.UnixMilli(),
		Group: d.Group,
	}
	if d.Enriched {
		dest, subtitle := d.Dest, d.Subtitle
		stations := d.Stations
		if stations == nil {
			stations = []Stop{}
		}
		w.Dest = &dest
		w.Subtitle = &subtitle
		w.Stations = &stations
	}
	return w
}

// MarshalJSON encodes the departure in its client-facing form
func (d Departure) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Wire())
}
