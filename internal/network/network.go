package network

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Network is the static description of the rail network used to resolve
// destinations and service groups.
type Network struct {
	// Lines maps a normalized line code (GTFS route id without its "2-"
	// prefix) to a service group tag.
	Lines map[string]string `yaml:"lines" validate:"required,min=1,dive,keys,required,endkeys,required"`

	// CBDStations are the interchange stations of the central loop.
	CBDStations []int `yaml:"cbd_stations" validate:"required,min=1,dive,gt=0"`

	// CityTerminal is the terminus the loop is measured against.
	CityTerminal int `yaml:"city_terminal" validate:"required,gt=0"`

	// LoopInterchange is the only station a direct (non loop) service
	// reaches the terminal from.
	LoopInterchange int `yaml:"loop_interchange" validate:"required,gt=0"`

	LoopLabel      string `yaml:"loop_label" validate:"required"`
	CrossCityGroup string `yaml:"cross_city_group" validate:"required"`
}

// Default returns the built-in Melbourne metropolitan network
func Default() *Network {
	return &Network{
		Lines: map[string]string{
			"ALM": "burnley",
			"BEL": "burnley",
			"GLW": "burnley",
			"LIL": "burnley",
			"CRB": "caulfield",
			"PKM": "caulfield",
			"HBE": "clifton",
			"MDD": "clifton",
			"SUY": "northern",
			"CGB": "northern",
			"UFD": "northern",
			"FKN": "crosscity",
			"WBE": "crosscity",
			"WMN": "crosscity",
			"SDM": "sandringham",
			"STY": "special",
		},
		CBDStations: []int{
			1068, // Flagstaff
			1120, // Melbourne Central
			1155, // Parliament
			1181, // Southern Cross
			1071, // Flinders Street
		},
		CityTerminal:    1071,
		LoopInterchange: 1181,
		LoopLabel:       "City Loop",
		CrossCityGroup:  "crosscity",
	}
}

// Load reads a network file. A missing file falls back to Default.
func Load(path string) (*Network, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Network: %s not found, using built-in network", path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}

	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to parse network file %s: %w", path, err)
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network file %s: %w", path, err)
	}

	log.Printf("Network: loaded %d line(s), %d CBD station(s) from %s", len(n.Lines), len(n.CBDStations), path)
	return &n, nil
}

// Validate checks field constraints and that the terminal and loop
// interchange are CBD stations.
func (n *Network) Validate() error {
	if err := validator.New().Struct(n); err != nil {
		return err
	}
	if !n.IsCBD(n.CityTerminal) {
		return fmt.Errorf("city terminal %d is not a CBD station", n.CityTerminal)
	}
	if !n.IsCBD(n.LoopInterchange) {
		return fmt.Errorf("loop interchange %d is not a CBD station", n.LoopInterchange)
	}
	return nil
}

// IsCBD reports whether a stop is one of the CBD stations
func (n *Network) IsCBD(stopID int) bool {
	return slices.Contains(n.CBDStations, stopID)
}
