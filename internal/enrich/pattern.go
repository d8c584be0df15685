package enrich

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/ptv"
)

// PatternSource fetches raw stopping patterns from the timetable API
type PatternSource interface {
	Pattern(ctx context.Context, routeType int, runRef string) (*ptv.PatternResponse, error)
}

// Pattern is a stopping pattern reduced to what the board needs
type Pattern struct {
	Stations []models.Stop
	Note     string // departure note at the home station
	Run      ptv.Run
}

// Fetcher retrieves stopping patterns relative to the home station.
// Raw responses are cached for a short time and concurrent requests for
// the same run share one upstream call.
type Fetcher struct {
	source PatternSource
	home   int
	cache  gcache.Cache
	group  singleflight.Group
}

// NewFetcher creates a pattern fetcher. A zero ttl disables caching.
func NewFetcher(source PatternSource, home, cacheSize int, ttl time.Duration) *Fetcher {
	f := &Fetcher{source: source, home: home}
	if ttl > 0 && cacheSize > 0 {
		f.cache = gcache.New(cacheSize).
			LRU().
			Expiration(ttl).
			Build()
	}
	return f
}

// Fetch returns the pattern of a run. Unless saveAll is set, the pattern
// is cut to the stops after the home station.
func (f *Fetcher) Fetch(ctx context.Context, routeType int, runRef string, saveAll bool) (*Pattern, error) {
	resp, err := f.raw(ctx, routeType, runRef)
	if err != nil {
		return nil, err
	}
	return f.reduce(resp, runRef, saveAll)
}

func (f *Fetcher) raw(ctx context.Context, routeType int, runRef string) (*ptv.PatternResponse, error) {
	key := strconv.Itoa(routeType) + "/" + runRef

	if f.cache != nil {
		if cached, err := f.cache.Get(key); err == nil {
			return cached.(*ptv.PatternResponse), nil
		}
	}

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		resp, err := f.source.Pattern(ctx, routeType, runRef)
		if err != nil {
			return nil, err
		}
		if f.cache != nil {
			_ = f.cache.Set(key, resp)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pattern for run %s: %w", runRef, err)
	}
	return v.(*ptv.PatternResponse), nil
}

// reduce walks the pattern in order. Skipped stops listed on an entry lie
// between that entry and the next served one.
func (f *Fetcher) reduce(resp *ptv.PatternResponse, runRef string, saveAll bool) (*Pattern, error) {
	run, ok := resp.Run(runRef)
	if !ok {
		return nil, fmt.Errorf("pattern for run %s has no run metadata", runRef)
	}

	p := &Pattern{Run: run, Stations: []models.Stop{}}
	saving := saveAll
	for _, entry := range resp.Departures {
		if !saving {
			if entry.StopID != f.home {
				continue
			}
			saving = true
			p.Note = entry.Note()
		} else {
			name, ok := resp.StopName(entry.StopID)
			if !ok {
				name = strconv.Itoa(entry.StopID)
			}
			p.Stations = append(p.Stations, models.Stop{ID: entry.StopID, Name: servedName(name)})
		}

		for _, skipped := range entry.SkippedStops {
			p.Stations = append(p.Stations, models.Stop{
				ID:      skipped.StopID,
				Name:    skippedName(skipped.StopName),
				Skipped: true,
			})
		}
	}
	return p, nil
}
