package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so stored timestamps compare as strings
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLite stores board snapshots in a local SQLite file
type SQLite struct {
	conn    *sql.DB
	writeMu sync.Mutex // serializes writers; SQLite allows a single one
}

// ConnectSQLite opens the database in WAL mode and ensures the schema
func ConnectSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			log.Printf("Store: failed to set %s: %v", pragma, err)
		}
	}

	db := &SQLite{conn: conn}
	if err := db.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("Store: connected to SQLite database %s", path)
	return db, nil
}

// EnsureSchema creates tables if they don't exist
func (db *SQLite) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *SQLite) Close() error {
	return db.conn.Close()
}

// SaveBoard replaces the stored board of the snapshot's station
func (db *SQLite) SaveBoard(ctx context.Context, snap *models.BoardSnapshot) error {
	rows, err := flatten(snap)
	if err != nil {
		return err
	}
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM board_departures WHERE snapshot_id IN (
			SELECT snapshot_id FROM board_snapshots WHERE station_id = ?
		)`, snap.Station); err != nil {
		return fmt.Errorf("failed to clear departures: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM board_snapshots WHERE station_id = ?", snap.Station); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO board_snapshots (snapshot_id, station_id, service_date, version, created_at_utc) VALUES (?, ?, ?, ?, ?)",
		snap.ID.String(), snap.Station, snap.ServiceDate, snap.Version, snap.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO board_departures (
			snapshot_id, platform, position, route_type, run_ref, route_id,
			scheduled_utc, service_group, enriched, dest, subtitle, stations_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare departure insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		var stations *string
		if row.stations != nil {
			s := string(row.stations)
			stations = &s
		}
		_, err := stmt.ExecContext(ctx,
			snap.ID.String(), row.platform, row.position, row.dep.Type, row.dep.Run, row.dep.RouteID,
			row.dep.Time.UTC().Format(timeLayout), row.dep.Group, row.dep.Enriched,
			nullable(row.dep.Dest, row.dep.Enriched), nullable(row.dep.Subtitle, row.dep.Enriched), stations,
		)
		if err != nil {
			return fmt.Errorf("failed to insert departure %s: %w", row.dep.Run, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadBoard returns the latest board saved for the station on the service
// day, or ErrNoSnapshot.
func (db *SQLite) LoadBoard(ctx context.Context, station int, serviceDate string) (*models.BoardSnapshot, error) {
	var (
		id        string
		createdAt string
	)
	snap := &models.BoardSnapshot{Station: station, ServiceDate: serviceDate}

	err := db.conn.QueryRowContext(ctx, `
		SELECT snapshot_id, version, created_at_utc
		FROM board_snapshots
		WHERE station_id = ? AND service_date = ?
		ORDER BY created_at_utc DESC
		LIMIT 1`, station, serviceDate).Scan(&id, &snap.Version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	if snap.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}
	if snap.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid snapshot time %q: %w", createdAt, err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT platform, position, route_type, run_ref, route_id, scheduled_utc,
			service_group, enriched, dest, subtitle, stations_json
		FROM board_departures
		WHERE snapshot_id = ?
		ORDER BY platform, position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query departures: %w", err)
	}
	defer rows.Close()

	snap.Platforms = make(map[string][]models.Departure)
	for rows.Next() {
		var (
			row       departureRow
			scheduled string
			dest      sql.NullString
			subtitle  sql.NullString
			stations  sql.NullString
		)
		if err := rows.Scan(&row.platform, &row.position, &row.dep.Type, &row.dep.Run, &row.dep.RouteID,
			&scheduled, &row.dep.Group, &row.dep.Enriched, &dest, &subtitle, &stations); err != nil {
			return nil, fmt.Errorf("failed to scan departure: %w", err)
		}
		if row.dep.Time, err = time.Parse(timeLayout, scheduled); err != nil {
			return nil, fmt.Errorf("invalid departure time %q: %w", scheduled, err)
		}
		if stations.Valid {
			row.stations = []byte(stations.String)
		}

		dep, err := restore(row, nullString(dest), nullString(subtitle))
		if err != nil {
			return nil, err
		}
		snap.Platforms[row.platform] = append(snap.Platforms[row.platform], dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read departures: %w", err)
	}

	return snap, nil
}

// Cleanup deletes snapshots older than the retention period
func (db *SQLite) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(timeLayout)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM board_departures WHERE snapshot_id IN (
			SELECT snapshot_id FROM board_snapshots WHERE created_at_utc < ?
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to cleanup departures: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM board_snapshots WHERE created_at_utc < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		log.Printf("Store: deleted %d snapshots older than %s", deleted, retention)
	}
	return deleted, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
