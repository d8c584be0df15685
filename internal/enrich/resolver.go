package enrich

import (
	"context"
	"log"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/network"
)

// maxExtensionDepth bounds how many distributor runs are chased
const maxExtensionDepth = 1

// PatternFetcher is implemented by Fetcher
type PatternFetcher interface {
	Fetch(ctx context.Context, routeType int, runRef string, saveAll bool) (*Pattern, error)
}

// Resolver determines the rider-facing destination and stop list of a departure
type Resolver struct {
	net       *network.Network
	fetcher   PatternFetcher
	home      int
	homeIsCBD bool
}

// NewResolver creates a resolver for the given home station
func NewResolver(net *network.Network, fetcher PatternFetcher, home int) *Resolver {
	r := &Resolver{net: net, fetcher: fetcher, home: home, homeIsCBD: net.IsCBD(home)}
	if r.homeIsCBD {
		log.Printf("Resolver: station %d is in the CBD", home)
	}
	return r
}

// Resolution is the outcome of destination resolution, before shortening
type Resolution struct {
	Dest     string
	Stations []models.Stop
}

// Resolve applies the interchange extension and City Loop rules to the
// departure's own pattern. Only dep.Type and dep.Group are read.
func (r *Resolver) Resolve(ctx context.Context, dep models.Departure, p *Pattern, groups network.RouteGroups) Resolution {
	dest := p.Run.DestinationName
	stations := append([]models.Stop(nil), p.Stations...)
	final := p.Run.FinalStopID

	// Services terminating in the CBD may continue as a distributor run.
	run := p.Run
	for depth := 0; depth < maxExtensionDepth && r.net.IsCBD(final); depth++ {
		if !r.homeIsCBD && dep.Group != r.net.CrossCityGroup {
			break
		}
		dist := run.Distributor()
		if dist == nil {
			break
		}

		dest = dist.DestinationName
		next, err := r.fetcher.Fetch(ctx, dep.Type, dist.RunRef, true)
		if err != nil {
			log.Printf("Resolver: distributor %s of run %s unavailable: %v", dist.RunRef, dep.Run, err)
			break
		}

		routeID := next.Run.RouteID
		if routeID == 0 {
			routeID = dist.RouteID
		}
		if group, ok := groups.Lookup(routeID); ok && group == dep.Group {
			for i, s := range next.Stations {
				if s.ID == final {
					stations = append(stations, next.Stations[i+1:]...)
					break
				}
			}
		}
		if len(stations) > 0 {
			final = stations[len(stations)-1].ID
		}
		run = next.Run
	}

	// Away from the CBD, a service ending elsewhere in the loop is shown as
	// terminating at the city terminal.
	if r.net.IsCBD(final) && !r.homeIsCBD && final != r.net.CityTerminal {
		for idx := len(stations) - 1; idx >= 0; idx-- {
			if stations[idx].ID == r.net.CityTerminal {
				dest = stations[idx].Name
				stations = stations[:idx+1]
				break
			}
		}
	}

	// Reaching the terminal other than from the loop interchange means the
	// service runs around the loop.
	if n := len(stations); n > 0 && stations[n-1].ID == r.net.CityTerminal {
		prev := r.home
		if n >= 2 {
			prev = stations[n-2].ID
		}
		if prev != r.net.LoopInterchange {
			dest = r.net.LoopLabel
		}
	}

	return Resolution{Dest: dest, Stations: stations}
}
