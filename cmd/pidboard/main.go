package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/board"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/config"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/db"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/enrich"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/handlers"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/metrics"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/network"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/ptv"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/push"
	"github.com/this-is-a-tpyo/mel-metro-pid/internal/schedule"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("Starting departure board service...")

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	loc := cfg.Location()
	log.Printf("Config loaded: timezone=%s, refresh=%q, tick=%q", loc, cfg.RefreshSchedule, cfg.TickSchedule)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Static network data and upstream client
	// ═══════════════════════════════════════════════════════
	net, err := network.Load(cfg.NetworkFile)
	if err != nil {
		log.Fatalf("Failed to load network file: %v", err)
	}

	recorder := metrics.NewRecorder()
	client := ptv.NewClient(cfg.APIBase, cfg.APIID, cfg.APIKey, cfg.FetchTimeout).WithObserver(recorder)

	stop, err := ptv.ResolveStation(ctx, client, cfg.Station)
	if err != nil {
		log.Fatalf("Failed to resolve station: %v", err)
	}
	station := stop.StopID

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Snapshot store (optional)
	// ═══════════════════════════════════════════════════════
	var store db.Store
	if cfg.DatabaseURL != "" || cfg.DatabasePath != "" {
		store, err = db.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open snapshot store: %v", err)
		}
		defer store.Close()
	} else {
		log.Println("Snapshot store disabled")
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Board
	// ═══════════════════════════════════════════════════════
	fetcher := enrich.NewFetcher(client, station, cfg.PatternCacheSize, cfg.PatternCacheTTL)
	enricher := enrich.NewEnricher(net, fetcher, station, loc)
	hub := push.NewHub(cfg.CORSOrigins)

	manager := board.NewManager(board.Config{
		Station:     station,
		Location:    loc,
		Concurrency: cfg.EnrichConcurrency,
	}, net, client, enricher).WithNotifier(hub)
	if store != nil {
		manager = manager.WithStore(store)
	}

	log.Println("Running initial refresh...")
	if err := manager.Refresh(ctx); err != nil {
		log.Printf("Warning: initial refresh failed: %v", err)
		if err := manager.Restore(ctx); err != nil {
			log.Printf("Warning: no board to restore, starting cold: %v", err)
		}
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Wall-clock jobs
	// ═══════════════════════════════════════════════════════
	scheduler := schedule.New(ctx, loc)
	if err := scheduler.Add("refresh", cfg.RefreshSchedule, func(ctx context.Context) {
		if err := manager.Refresh(ctx); err != nil {
			log.Printf("Board: scheduled refresh failed: %v", err)
		}
		if store != nil {
			if _, err := store.Cleanup(ctx, cfg.SnapshotRetention); err != nil {
				log.Printf("Store: cleanup failed: %v", err)
			}
		}
	}); err != nil {
		log.Fatalf("Failed to schedule refresh: %v", err)
	}
	if err := scheduler.Add("tick", cfg.TickSchedule, manager.Tick); err != nil {
		log.Fatalf("Failed to schedule tick: %v", err)
	}
	scheduler.Start()

	if next, err := scheduler.Next(cfg.RefreshSchedule, time.Now()); err == nil {
		log.Printf("Next full refresh at %s", next.Format(time.RFC3339))
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 5: HTTP server
	// ═══════════════════════════════════════════════════════
	router := handlers.NewRouter(handlers.RouterConfig{
		Departures:  handlers.NewDepartureHandler(manager),
		Health:      handlers.NewHealthHandler(station, manager, hub, recorder),
		Feed:        handlers.NewFeedHandler(manager),
		Push:        hub,
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (station %d)", cfg.Port, station)
		log.Println("  GET /departures/{platform}")
		log.Println("  GET /departures/{platform}/{idx}")
		log.Println("  GET /departures/{platform}/after/{run}")
		log.Println("  GET /ws/{platform}")
		log.Println("  GET /gtfs-rt/trip-updates")
		log.Println("  GET /health")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 6: Graceful shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	scheduler.Stop(shutdownCtx)

	drained := make(chan struct{})
	go func() {
		manager.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Println("Board: gave up waiting for pending enrichments")
	}

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Goodbye!")
}
