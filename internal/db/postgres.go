package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

//go:embed schema_postgres.sql
var schemaPostgresSQL string

var departureColumns = []string{
	"snapshot_id", "platform", "position", "route_type", "run_ref", "route_id",
	"scheduled_at", "service_group", "enriched", "dest", "subtitle", "stations",
}

// Postgres stores board snapshots in PostgreSQL
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a connection pool and ensures the schema
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaPostgresSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Println("Store: connected to PostgreSQL database")
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// SaveBoard replaces the stored board of the snapshot's station
func (p *Postgres) SaveBoard(ctx context.Context, snap *models.BoardSnapshot) error {
	rows, err := flatten(snap)
	if err != nil {
		return err
	}
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM board_snapshots WHERE station_id = $1", snap.Station); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO board_snapshots (snapshot_id, station_id, service_date, version, created_at) VALUES ($1, $2, $3, $4, $5)",
		[16]byte(snap.ID), snap.Station, snap.ServiceDate, snap.Version, snap.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	copyRows := make([][]any, 0, len(rows))
	for _, row := range rows {
		var stations any
		if row.stations != nil {
			stations = json.RawMessage(row.stations)
		}
		copyRows = append(copyRows, []any{
			[16]byte(snap.ID), row.platform, row.position, row.dep.Type, row.dep.Run, row.dep.RouteID,
			row.dep.Time.UTC(), row.dep.Group, row.dep.Enriched,
			nullable(row.dep.Dest, row.dep.Enriched), nullable(row.dep.Subtitle, row.dep.Enriched), stations,
		})
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"board_departures"}, departureColumns, pgx.CopyFromRows(copyRows)); err != nil {
		return fmt.Errorf("failed to copy departures: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadBoard returns the latest board saved for the station on the service
// day, or ErrNoSnapshot.
func (p *Postgres) LoadBoard(ctx context.Context, station int, serviceDate string) (*models.BoardSnapshot, error) {
	var id string
	snap := &models.BoardSnapshot{Station: station, ServiceDate: serviceDate}

	err := p.pool.QueryRow(ctx, `
		SELECT snapshot_id::text, version, created_at
		FROM board_snapshots
		WHERE station_id = $1 AND service_date = $2
		ORDER BY created_at DESC
		LIMIT 1`, station, serviceDate).Scan(&id, &snap.Version, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	if snap.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT platform, position, route_type, run_ref, route_id, scheduled_at,
			service_group, enriched, dest, subtitle, stations::text
		FROM board_departures
		WHERE snapshot_id = $1
		ORDER BY platform, position`, [16]byte(snap.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to query departures: %w", err)
	}
	defer rows.Close()

	snap.Platforms = make(map[string][]models.Departure)
	for rows.Next() {
		var (
			row      departureRow
			dest     *string
			subtitle *string
			stations *string
		)
		if err := rows.Scan(&row.platform, &row.position, &row.dep.Type, &row.dep.Run, &row.dep.RouteID,
			&row.dep.Time, &row.dep.Group, &row.dep.Enriched, &dest, &subtitle, &stations); err != nil {
			return nil, fmt.Errorf("failed to scan departure: %w", err)
		}
		row.dep.Time = row.dep.Time.UTC()
		if stations != nil {
			row.stations = []byte(*stations)
		}

		dep, err := restore(row, dest, subtitle)
		if err != nil {
			return nil, err
		}
		snap.Platforms[row.platform] = append(snap.Platforms[row.platform], dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read departures: %w", err)
	}

	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

// Cleanup deletes snapshots older than the retention period
func (p *Postgres) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM board_snapshots WHERE created_at < $1", time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup snapshots: %w", err)
	}

	deleted := tag.RowsAffected()
	if deleted > 0 {
		log.Printf("Store: deleted %d snapshots older than %s", deleted, retention)
	}
	return deleted, nil
}
