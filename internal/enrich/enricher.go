package enrich

import (
	"context"
	"log"
	"time"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/network"
)

// Enricher runs the full enrichment pipeline for one departure:
// pattern fetch, destination resolution, classification.
type Enricher struct {
	fetcher  PatternFetcher
	resolver *Resolver
	loc      *time.Location
}

// NewEnricher wires the pipeline for a home station
func NewEnricher(net *network.Network, fetcher PatternFetcher, home int, loc *time.Location) *Enricher {
	if loc == nil {
		loc = time.UTC
	}
	return &Enricher{
		fetcher:  fetcher,
		resolver: NewResolver(net, fetcher, home),
		loc:      loc,
	}
}

// Enrich computes the destination, stop list and subtitle of a departure.
// The departure itself is not modified.
func (e *Enricher) Enrich(ctx context.Context, dep models.Departure, groups network.RouteGroups) (models.Enrichment, error) {
	p, err := e.fetcher.Fetch(ctx, dep.Type, dep.Run, false)
	if err != nil {
		return models.Enrichment{}, err
	}

	res := e.resolver.Resolve(ctx, dep, p, groups)
	subtitle := Classify(res.Stations, p.Note)

	log.Printf("Enrich: %s %s %s %s", dep.Run, dep.Time.In(e.loc).Format("15:04"), res.Dest, subtitle)

	return models.Enrichment{
		Dest:     shortenDest(res.Dest),
		Stations: res.Stations,
		Subtitle: subtitle,
	}, nil
}
