package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/network"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/ptv"
)

const (
	// prefetchDepth is how many departures per platform a refresh enriches
	prefetchDepth = 3
	// nextSlot is the queue position enriched ahead of the head departing
	nextSlot = 3
	// windowSize is the number of departures shown per platform
	windowSize = 3
	// grace is how long a departure stays on the board after its scheduled time
	grace = time.Minute

	// UnknownPlatform buckets departures without a platform number
	UnknownPlatform = "unknown"
)

// State of the board
type State string

const (
	StateCold  State = "cold"  // no board built yet
	StateReady State = "ready" // queues live
)

// ErrNoStore is returned by Restore when no snapshot store is configured
var ErrNoStore = errors.New("no snapshot store configured")

// Upstream provides the station's departures
type Upstream interface {
	Departures(ctx context.Context, routeType, stopID int) (*ptv.DeparturesResponse, error)
}

// Enricher resolves destination, stop list and subtitle of a departure
type Enricher interface {
	Enrich(ctx context.Context, dep models.Departure, groups network.RouteGroups) (models.Enrichment, error)
}

// Notifier pushes board changes to display clients
type Notifier interface {
	// Refresh tells every client to reload the whole board
	Refresh()
	// Append sends a newly enriched departure to clients of one platform
	Append(platform string, dep models.Departure)
}

// Store persists the current board
type Store interface {
	SaveBoard(ctx context.Context, snap *models.BoardSnapshot) error
	LoadBoard(ctx context.Context, station int, serviceDate string) (*models.BoardSnapshot, error)
}

// Config holds board manager settings
type Config struct {
	Station     int
	Location    *time.Location
	Concurrency int // bound on concurrent enrichments during a refresh
}

// Status summarizes the board for health reporting
type Status struct {
	State       State     `json:"state"`
	Version     int64     `json:"version"`
	ServiceDate string    `json:"serviceDate,omitempty"`
	RefreshedAt time.Time `json:"refreshedAt"`
	Platforms   int       `json:"platforms"`
	Departures  int       `json:"departures"`
	Enriching   int       `json:"enriching"`
}

// Manager owns the per-platform departure queues. All mutations happen
// under mu; a refresh builds its board off-lock and swaps it in.
type Manager struct {
	cfg      Config
	net      *network.Network
	upstream Upstream
	enricher Enricher
	notifier Notifier
	store    Store
	now      func() time.Time

	refreshMu sync.Mutex // one refresh at a time
	tickMu    sync.Mutex // one head pass at a time
	pending   sync.WaitGroup

	persistMu    sync.Mutex
	savedVersion int64

	mu          sync.RWMutex
	state       State
	platforms   map[string][]models.Departure
	groups      network.RouteGroups
	version     int64
	serviceDate string
	refreshedAt time.Time
	inflight    map[models.Key]bool
}

// NewManager creates a cold board manager
func NewManager(cfg Config, net *network.Network, upstream Upstream, enricher Enricher) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Manager{
		cfg:       cfg,
		net:       net,
		upstream:  upstream,
		enricher:  enricher,
		notifier:  nopNotifier{},
		now:       time.Now,
		state:     StateCold,
		platforms: make(map[string][]models.Departure),
		groups:    network.RouteGroups{},
		inflight:  make(map[models.Key]bool),
	}
}

// WithNotifier attaches the push channel
func (m *Manager) WithNotifier(n Notifier) *Manager {
	if n != nil {
		m.notifier = n
	}
	return m
}

// WithStore attaches a snapshot store
func (m *Manager) WithStore(s Store) *Manager {
	m.store = s
	return m
}

// Refresh rebuilds the whole board from the station's departures, enriching
// the first departures of every platform before publishing. On failure the
// previous board stays in place.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	now := m.now()
	resp, err := m.upstream.Departures(ctx, ptv.RouteTypeTrain, m.cfg.Station)
	if err != nil {
		return fmt.Errorf("failed to fetch departures: %w", err)
	}

	groups := m.net.BuildRouteGroups(resp.Routes)
	platforms, count := bucket(resp, groups, now)
	log.Printf("Board: retrieved %d departure(s) on %d platform(s)", count, len(platforms))

	var g errgroup.Group
	g.SetLimit(m.cfg.Concurrency)
	for platform, queue := range platforms {
		platform, queue := platform, queue
		for i := 0; i < prefetchDepth && i < len(queue); i++ {
			i := i
			g.Go(func() error {
				e, err := m.enricher.Enrich(ctx, queue[i], groups)
				if err != nil {
					log.Printf("Board: failed to enrich run %s on platform %s: %v", queue[i].Run, platform, err)
					return nil
				}
				queue[i].Apply(e)
				return nil
			})
		}
	}
	_ = g.Wait()
	log.Println("Board: fetched upcoming departure details")

	m.mu.Lock()
	m.platforms = platforms
	m.groups = groups
	m.state = StateReady
	m.version++
	m.serviceDate = m.serviceDateAt(now)
	m.refreshedAt = now
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(ctx, snap)
	m.notifier.Refresh()
	return nil
}

// bucket groups upcoming departures by platform in time order, dropping
// those already past the grace period and duplicate runs
func bucket(resp *ptv.DeparturesResponse, groups network.RouteGroups, now time.Time) (map[string][]models.Departure, int) {
	platforms := make(map[string][]models.Departure)
	seen := make(map[string]map[models.Key]bool)
	count := 0

	for _, raw := range resp.Departures {
		if raw.ScheduledDepartureUTC.Sub(now) < -grace {
			continue
		}

		platform := UnknownPlatform
		if raw.PlatformNumber != nil && *raw.PlatformNumber != "" {
			platform = *raw.PlatformNumber
		}

		routeType := ptv.RouteTypeTrain
		if run, ok := resp.Runs[raw.RunRef]; ok {
			routeType = run.RouteType
		}

		dep := models.Departure{
			Type:     routeType,
			Run:      raw.RunRef,
			RouteID:  raw.RouteID,
			Platform: platform,
			Time:     raw.ScheduledDepartureUTC,
			Group:    groups.Group(raw.RouteID),
		}

		if seen[platform] == nil {
			seen[platform] = make(map[models.Key]bool)
		}
		if seen[platform][dep.Key()] {
			continue
		}
		seen[platform][dep.Key()] = true

		platforms[platform] = append(platforms[platform], dep)
		count++
	}

	for _, queue := range platforms {
		sort.SliceStable(queue, func(i, j int) bool { return queue[i].Time.Before(queue[j].Time) })
	}
	return platforms, count
}

type enrichJob struct {
	platform string
	dep      models.Departure
}

// Tick advances every platform queue by at most one step: a head more than
// a minute past is removed silently; a head due now starts enrichment of the
// next-slot departure, pushed to the platform's clients once done. Tick does
// not wait for those enrichments. A cold board retries the full refresh
// instead.
func (m *Manager) Tick(ctx context.Context) {
	if m.State() == StateCold {
		log.Println("Board: no board yet, retrying refresh")
		if err := m.Refresh(ctx); err != nil {
			log.Printf("Board: refresh failed: %v", err)
		}
		return
	}

	jobs, groups, snap := m.advance()
	if snap != nil {
		m.persist(ctx, snap)
	}

	for _, job := range jobs {
		job := job
		m.pending.Add(1)
		go func() {
			defer m.pending.Done()
			m.enrichNext(ctx, job, groups)
		}()
	}
}

// Wait blocks until enrichments started by Tick have finished
func (m *Manager) Wait() {
	m.pending.Wait()
}

// advance runs the head pass over all platforms and claims the next-slot
// departures to enrich. The returned snapshot is nil when nothing was removed.
func (m *Manager) advance() ([]enrichJob, network.RouteGroups, *models.BoardSnapshot) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	now := m.now()
	var jobs []enrichJob

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for platform, queue := range m.platforms {
		if len(queue) == 0 {
			continue
		}

		head := queue[0]
		if now.Sub(head.Time) >= grace {
			m.platforms[platform] = queue[1:]
			removed++
			continue
		}
		if head.Time.After(now) || len(queue) < 2 {
			continue
		}

		next := queue[min(len(queue)-1, nextSlot)]
		if next.Enriched || m.inflight[next.Key()] {
			continue
		}
		m.inflight[next.Key()] = true
		jobs = append(jobs, enrichJob{platform: platform, dep: next})
	}

	var snap *models.BoardSnapshot
	if removed > 0 {
		m.version++
		snap = m.snapshotLocked()
	}
	return jobs, m.groups, snap
}

func (m *Manager) enrichNext(ctx context.Context, job enrichJob, groups network.RouteGroups) {
	key := job.dep.Key()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}()

	e, err := m.enricher.Enrich(ctx, job.dep, groups)
	if err != nil {
		log.Printf("Board: failed to enrich run %s on platform %s: %v", job.dep.Run, job.platform, err)
		return
	}

	dep, snap, ok := m.apply(job.platform, key, e)
	if !ok {
		log.Printf("Board: run %s no longer pending on platform %s, result dropped", job.dep.Run, job.platform)
		return
	}

	log.Printf("Board: fetched departure details for run %s on platform %s", dep.Run, job.platform)
	m.notifier.Append(job.platform, dep)
	m.persist(ctx, snap)
}

// apply attaches an enrichment to the departure currently on the board,
// if it is still there and still unenriched. It returns the board as of
// that change.
func (m *Manager) apply(platform string, key models.Key, e models.Enrichment) (models.Departure, *models.BoardSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.platforms[platform]
	for i := range queue {
		if queue[i].Key() != key {
			continue
		}
		if queue[i].Enriched {
			return models.Departure{}, nil, false
		}
		queue[i].Apply(e)
		m.version++
		return queue[i], m.snapshotLocked(), true
	}
	return models.Departure{}, nil, false
}

// Restore loads the last persisted board of the current service day,
// dropping departures already past. Used when the startup refresh fails.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return ErrNoStore
	}

	now := m.now()
	snap, err := m.store.LoadBoard(ctx, m.cfg.Station, m.serviceDateAt(now))
	if err != nil {
		return fmt.Errorf("failed to load board snapshot: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("no board snapshot for %s", m.serviceDateAt(now))
	}

	platforms := make(map[string][]models.Departure, len(snap.Platforms))
	groups := network.RouteGroups{}
	for platform, queue := range snap.Platforms {
		kept := make([]models.Departure, 0, len(queue))
		for _, dep := range queue {
			groups[dep.RouteID] = dep.Group
			if now.Sub(dep.Time) >= grace {
				continue
			}
			kept = append(kept, dep)
		}
		platforms[platform] = kept
	}

	m.mu.Lock()
	m.platforms = platforms
	m.groups = groups
	m.state = StateReady
	m.version = snap.Version
	m.serviceDate = snap.ServiceDate
	m.refreshedAt = snap.CreatedAt
	m.mu.Unlock()

	log.Printf("Board: restored snapshot %s (version %d, %d platform(s))", snap.ID, snap.Version, len(platforms))
	return nil
}

// persist saves snap unless a board at least as recent was already saved
func (m *Manager) persist(ctx context.Context, snap *models.BoardSnapshot) {
	if m.store == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if snap.Version <= m.savedVersion {
		return
	}
	if err := m.store.SaveBoard(ctx, snap); err != nil {
		log.Printf("Board: failed to save snapshot: %v", err)
		return
	}
	m.savedVersion = snap.Version
}

func (m *Manager) serviceDateAt(t time.Time) string {
	return t.In(m.cfg.Location).Format("2006-01-02")
}

// snapshotLocked copies the board; mu must be held
func (m *Manager) snapshotLocked() *models.BoardSnapshot {
	platforms := make(map[string][]models.Departure, len(m.platforms))
	for platform, queue := range m.platforms {
		platforms[platform] = append([]models.Departure(nil), queue...)
	}
	return &models.BoardSnapshot{
		ID:          uuid.New(),
		Station:     m.cfg.Station,
		ServiceDate: m.serviceDate,
		Version:     m.version,
		CreatedAt:   m.now(),
		Platforms:   platforms,
	}
}

type nopNotifier struct{}

func (nopNotifier) Refresh() {}

func (nopNotifier) Append(string, models.Departure) {}
