package history

import (
	"context"
	"time"
)

// Move outcome values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// MoveRecord represents one resolved move and its outcome.
type MoveRecord struct {
	// ID is the unique move identifier (UUID assigned at issue time).
	ID string `json:"id"`

	// DeviceID is the manipulator the move was issued to.
	DeviceID string `json:"device_id"`

	// Target is the absolute target position in metres.
	Target [3]float64 `json:"target"`

	// Speed is the requested speed in device units per second (0 = device default).
	Speed int `json:"speed"`

	// Outcome is "succeeded" or "failed".
	Outcome string `json:"outcome"`

	// Error is the failure reason, empty for successful moves.
	Error string `json:"error,omitempty"`

	// StartedAt is when the move command was acknowledged (UTC).
	StartedAt time.Time `json:"started_at"`

	// ResolvedAt is when the outcome was first observed (UTC).
	ResolvedAt time.Time `json:"resolved_at"`
}

// PositionRecord represents one observed position change.
type PositionRecord struct {
	ID       int64      `json:"id"`
	DeviceID string     `json:"device_id"`
	Position [3]float64 `json:"position"`
	SeenAt   time.Time  `json:"seen_at"`
}

// Repository stores and retrieves manipulator history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// RecordMove persists a resolved move.
	RecordMove(ctx context.Context, rec MoveRecord) error

	// RecentMoves returns recent moves for a device, newest first.
	// limit is clamped by the implementation.
	RecentMoves(ctx context.Context, deviceID string, limit int) ([]MoveRecord, error)

	// RecordPosition persists an observed position change.
	RecordPosition(ctx context.Context, deviceID string, pos [3]float64) error

	// RecentPositions returns recent position changes for a device, newest first.
	RecentPositions(ctx context.Context, deviceID string, limit int) ([]PositionRecord, error)
}
