package board

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/network"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/ptv"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

const homeStation = 1030

func rawDep(run, platform string, at time.Time, routeID int) ptv.Departure {
	d := ptv.Departure{
		StopID:                homeStation,
		RouteID:               routeID,
		RunRef:                run,
		ScheduledDepartureUTC: at,
	}
	if platform != "" {
		p := platform
		d.PlatformNumber = &p
	}
	return d
}

func departuresResponse(deps ...ptv.Departure) *ptv.DeparturesResponse {
	resp := &ptv.DeparturesResponse{
		Departures: deps,
		Routes: map[string]ptv.Route{
			"2": {RouteType: ptv.RouteTypeTrain, RouteID: 2, RouteGTFSID: "2-BEL"},
			"6": {RouteType: ptv.RouteTypeTrain, RouteID: 6, RouteGTFSID: "2-FKN"},
		},
		Runs: map[string]ptv.Run{},
	}
	for _, d := range deps {
		resp.Runs[d.RunRef] = ptv.Run{RunRef: d.RunRef, RouteID: d.RouteID, RouteType: ptv.RouteTypeTrain}
	}
	return resp
}

type fakeUpstream struct {
	mu    sync.Mutex
	resp  *ptv.DeparturesResponse
	err   error
	calls int
}

func (f *fakeUpstream) Departures(_ context.Context, routeType, stopID int) (*ptv.DeparturesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeUpstream) set(resp *ptv.DeparturesResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resp, f.err = resp, err
}

type fakeEnricher struct {
	mu    sync.Mutex
	fail  map[string]bool
	block map[string]chan struct{}
	calls map[string]int
}

func newFakeEnricher() *fakeEnricher {
	return &fakeEnricher{fail: map[string]bool{}, block: map[string]chan struct{}{}, calls: map[string]int{}}
}

func (f *fakeEnricher) Enrich(ctx context.Context, dep models.Departure, _ network.RouteGroups) (models.Enrichment, error) {
	f.mu.Lock()
	f.calls[dep.Run]++
	gate := f.block[dep.Run]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Enrichment{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[dep.Run] {
		return models.Enrichment{}, &ptv.StatusError{StatusCode: http.StatusBadGateway, Body: "upstream down"}
	}
	return models.Enrichment{
		Dest:     "Dest " + dep.Run,
		Stations: []models.Stop{{ID: 1071, Name: "Flinders Street"}},
		Subtitle: "Stops all",
	}, nil
}

func (f *fakeEnricher) setFail(run string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[run] = fail
}

// hold makes enrichment of run wait until the returned func is called
func (f *fakeEnricher) hold(run string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.block[run] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeEnricher) callCount(run string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[run]
}

type appended struct {
	platform string
	dep      models.Departure
}

type fakeNotifier struct {
	mu        sync.Mutex
	refreshes int
	appends   []appended
}

func (f *fakeNotifier) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeNotifier) Append(platform string, dep models.Departure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, appended{platform: platform, dep: dep})
}

func (f *fakeNotifier) appendCalls() []appended {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appended(nil), f.appends...)
}

var errNoSnapshot = errors.New("no snapshot")

type fakeStore struct {
	mu    sync.Mutex
	saved []*models.BoardSnapshot
	load  *models.BoardSnapshot
}

func (f *fakeStore) SaveBoard(_ context.Context, snap *models.BoardSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, snap)
	return nil
}

func (f *fakeStore) LoadBoard(_ context.Context, station int, serviceDate string) (*models.BoardSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.load == nil || f.load.Station != station || f.load.ServiceDate != serviceDate {
		return nil, errNoSnapshot
	}
	return f.load, nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fixture struct {
	m        *Manager
	upstream *fakeUpstream
	enricher *fakeEnricher
	notifier *fakeNotifier
	store    *fakeStore
	clock    time.Time
}

func newFixture(t *testing.T, resp *ptv.DeparturesResponse) *fixture {
	t.Helper()
	f := &fixture{
		upstream: &fakeUpstream{resp: resp},
		enricher: newFakeEnricher(),
		notifier: &fakeNotifier{},
		store:    &fakeStore{},
		clock:    base,
	}
	f.m = NewManager(Config{Station: homeStation, Location: time.UTC, Concurrency: 4}, network.Default(), f.upstream, f.enricher).
		WithNotifier(f.notifier).
		WithStore(f.store)
	f.m.now = func() time.Time { return f.clock }
	return f
}

// checkInvariants asserts queue ordering, run uniqueness and atomic enrichment
func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()
	snap := m.Snapshot()
	for platform, queue := range snap.Platforms {
		seen := map[models.Key]bool{}
		for i, dep := range queue {
			if i > 0 {
				assert.False(t, dep.Time.Before(queue[i-1].Time), "platform %s out of order at %d", platform, i)
			}
			assert.False(t, seen[dep.Key()], "platform %s has run %s twice", platform, dep.Run)
			seen[dep.Key()] = true

			if dep.Enriched {
				assert.NotNil(t, dep.Stations, "run %s", dep.Run)
				assert.NotEmpty(t, dep.Subtitle, "run %s", dep.Run)
			} else {
				assert.Nil(t, dep.Stations, "run %s", dep.Run)
				assert.Empty(t, dep.Subtitle, "run %s", dep.Run)
				assert.Empty(t, dep.Dest, "run %s", dep.Run)
			}
		}
	}
}

func runs(deps []models.Departure) []string {
	out := make([]string, len(deps))
	for i, d := range deps {
		out[i] = d.Run
	}
	return out
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// queueOf builds n departures on one platform, one minute apart from start
func queueOf(platform string, prefix string, start time.Time, n int) []ptv.Departure {
	deps := make([]ptv.Departure, n)
	for i := range deps {
		deps[i] = rawDep(prefix+strconv.Itoa(i), platform, start.Add(minutes(i)), 2)
	}
	return deps
}

// tick runs one minute tick and waits for the enrichments it started
func (f *fixture) tick() {
	f.m.Tick(context.Background())
	f.m.Wait()
}

func mustRefresh(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.Refresh(context.Background()))
}
