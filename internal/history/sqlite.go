package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// schema creates the history tables if they do not exist.
// Kept inline rather than in a migration framework: the daemon owns this
// database exclusively and the schema is two append-only tables.
const schema = `
CREATE TABLE IF NOT EXISTS move_history (
	id          TEXT PRIMARY KEY,
	device_id   TEXT NOT NULL,
	target_x    REAL NOT NULL,
	target_y    REAL NOT NULL,
	target_z    REAL NOT NULL,
	speed       INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	resolved_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_move_history_device
	ON move_history (device_id, resolved_at);

CREATE TABLE IF NOT EXISTS position_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	x         REAL NOT NULL,
	y         REAL NOT NULL,
	z         REAL NOT NULL,
	seen_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_history_device
	ON position_history (device_id, seen_at);
`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository and ensures the schema exists.
//
// Parameters:
//   - ctx: Context for schema creation
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
//   - error: If schema creation fails
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// RecordMove inserts a resolved move into move_history.
func (r *SQLiteRepository) RecordMove(ctx context.Context, rec MoveRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("move id is required")
	}
	if rec.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if rec.Outcome != OutcomeSucceeded && rec.Outcome != OutcomeFailed {
		return fmt.Errorf("invalid outcome %q", rec.Outcome)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO move_history
		 (id, device_id, target_x, target_y, target_z, speed, outcome, error, started_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.DeviceID,
		rec.Target[0], rec.Target[1], rec.Target[2],
		rec.Speed,
		rec.Outcome,
		rec.Error,
		rec.StartedAt.UTC(),
		rec.ResolvedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting move history: %w", err)
	}

	return nil
}

// RecentMoves returns recent moves for a device, ordered newest first.
//
// limit defaults to 50 and is clamped to 200.
func (r *SQLiteRepository) RecentMoves(ctx context.Context, deviceID string, limit int) ([]MoveRecord, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, target_x, target_y, target_z, speed, outcome, error, started_at, resolved_at
		 FROM move_history
		 WHERE device_id = ?
		 ORDER BY resolved_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying move history: %w", err)
	}
	defer rows.Close()

	records := make([]MoveRecord, 0, limit)
	for rows.Next() {
		var rec MoveRecord
		var startedAt, resolvedAt time.Time

		if err := rows.Scan(
			&rec.ID, &rec.DeviceID,
			&rec.Target[0], &rec.Target[1], &rec.Target[2],
			&rec.Speed, &rec.Outcome, &rec.Error,
			&startedAt, &resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning move history: %w", err)
		}

		rec.StartedAt = startedAt.UTC()
		rec.ResolvedAt = resolvedAt.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating move history: %w", err)
	}

	return records, nil
}

// RecordPosition inserts an observed position change into position_history.
func (r *SQLiteRepository) RecordPosition(ctx context.Context, deviceID string, pos [3]float64) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO position_history (device_id, x, y, z, seen_at)
		 VALUES (?, ?, ?, ?, ?)`,
		deviceID,
		pos[0], pos[1], pos[2],
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting position history: %w", err)
	}

	return nil
}

// RecentPositions returns recent position changes for a device, newest first.
//
// limit defaults to 50 and is clamped to 200.
func (r *SQLiteRepository) RecentPositions(ctx context.Context, deviceID string, limit int) ([]PositionRecord, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, x, y, z, seen_at
		 FROM position_history
		 WHERE device_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying position history: %w", err)
	}
	defer rows.Close()

	records := make([]PositionRecord, 0, limit)
	for rows.Next() {
		var rec PositionRecord
		var seenAt time.Time

		if err := rows.Scan(
			&rec.ID, &rec.DeviceID,
			&rec.Position[0], &rec.Position[1], &rec.Position[2],
			&seenAt,
		); err != nil {
			return nil, fmt.Errorf("scanning position history: %w", err)
		}

		rec.SeenAt = seenAt.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating position history: %w", err)
	}

	return records, nil
}

// clampLimit applies the default and maximum result limits.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
