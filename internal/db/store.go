package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

// ErrNoSnapshot is returned when no board was saved for a station and service day
var ErrNoSnapshot = errors.New("no board snapshot found")

// Store persists the current board of a station
type Store interface {
	SaveBoard(ctx context.Context, snap *models.BoardSnapshot) error
	LoadBoard(ctx context.Context, station int, serviceDate string) (*models.BoardSnapshot, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
	Close() error
}

// Open selects the snapshot store: PostgreSQL when a database URL is
// given, otherwise SQLite at path.
func Open(ctx context.Context, databaseURL, path string) (Store, error) {
	if databaseURL != "" {
		return ConnectPostgres(ctx, databaseURL)
	}
	if path == "" {
		return nil, errors.New("no database configured")
	}
	return ConnectSQLite(ctx, path)
}

// departureRow is a departure flattened for storage
type departureRow struct {
	platform string
	position int
	dep      models.Departure
	stations []byte // JSON, nil when unenriched
}

func flatten(snap *models.BoardSnapshot) ([]departureRow, error) {
	platforms := make([]string, 0, len(snap.Platforms))
	for platform := range snap.Platforms {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	var rows []departureRow
	for _, platform := range platforms {
		for i, dep := range snap.Platforms[platform] {
			row := departureRow{platform: platform, position: i, dep: dep}
			if dep.Enriched {
				data, err := json.Marshal(dep.Stations)
				if err != nil {
					return nil, fmt.Errorf("failed to encode stations of run %s: %w", dep.Run, err)
				}
				row.stations = data
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// restore rebuilds a departure read back from storage
func restore(row departureRow, dest, subtitle *string) (models.Departure, error) {
	dep := row.dep
	dep.Platform = row.platform
	if !dep.Enriched {
		return dep, nil
	}

	var stations []models.Stop
	if len(row.stations) > 0 {
		if err := json.Unmarshal(row.stations, &stations); err != nil {
			return dep, fmt.Errorf("failed to decode stations of run %s: %w", dep.Run, err)
		}
	}
	if stations == nil {
		stations = []models.Stop{}
	}
	dep.Stations = stations
	if dest != nil {
		dep.Dest = *dest
	}
	if subtitle != nil {
		dep.Subtitle = *subtitle
	}
	return dep, nil
}

func nullable(s string, enriched bool) *string {
	if !enriched {
		return nil
	}
	return &s
}
