package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

var (
	_ detection.DetectionStore = (*SQLiteStore)(nil)
	_ detection.SprayRecorder  = (*SQLiteStore)(nil)
)

// SQLiteStore keeps each record as a JSON document next to a few indexed columns.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}
	memory := strings.Contains(dbPath, ":memory:")
	if dir := filepath.Dir(dbPath); !memory && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}
	if memory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	const schema = `
    CREATE TABLE IF NOT EXISTS detections (
        id TEXT PRIMARY KEY,
        device_id TEXT NOT NULL,
        infection_level TEXT NOT NULL,
        review_required INTEGER NOT NULL DEFAULT 0,
        created_at INTEGER NOT NULL,
        doc TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_detections_device ON detections(device_id, created_at);

    CREATE TABLE IF NOT EXISTS spray_history (
        device_id TEXT PRIMARY KEY,
        last_spray_at INTEGER NOT NULL
    );
    `
	_, err := db.Exec(schema)
	return err
}

// Save is a no-op for an id that is already stored.
func (s *SQLiteStore) Save(ctx context.Context, rec entities.DetectionRecord) (string, bool, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", false, fmt.Errorf("encode record: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO detections (id, device_id, infection_level, review_required, created_at, doc)
         VALUES (?, ?, ?, ?, ?, ?)`,
		rec.DetectionID, rec.DeviceID, rec.InfectionLevel.String(), rec.ReviewRequired,
		rec.CreatedAt.UnixNano(), string(doc))
	if err != nil {
		return "", false, fmt.Errorf("insert detection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("insert detection: %w", err)
	}
	return rec.DetectionID, n == 1, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (entities.DetectionRecord, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM detections WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.DetectionRecord{}, detection.ErrNotFound
	}
	if err != nil {
		return entities.DetectionRecord{}, fmt.Errorf("query detection: %w", err)
	}
	var rec entities.DetectionRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return entities.DetectionRecord{}, fmt.Errorf("decode detection %s: %w", id, err)
	}
	return rec, nil
}

// RecordSpray never moves the last spray time backwards.
func (s *SQLiteStore) RecordSpray(ctx context.Context, deviceID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spray_history (device_id, last_spray_at) VALUES (?, ?)
         ON CONFLICT(device_id) DO UPDATE SET last_spray_at = excluded.last_spray_at
         WHERE excluded.last_spray_at > spray_history.last_spray_at`,
		deviceID, at.UnixNano())
	if err != nil {
		return fmt.Errorf("record spray: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastSpray(ctx context.Context, deviceID string) (time.Time, bool, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx, `SELECT last_spray_at FROM spray_history WHERE device_id = ?`, deviceID).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query spray history: %w", err)
	}
	return time.Unix(0, ns).UTC(), true, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
