package patchstar

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tolerance is the arrival threshold in metres. Device units resolve to
// 0.1 µm, so 1 µm absorbs the worst-case rounding across all three axes.
const tolerance = 1e-6

// Resolution messages carried by failed moves.
const (
	msgInterrupted  = "Move was interrupted before completion."
	msgDidNotFinish = "Move did not complete."
)

type moveStatus int

const (
	statusMoving moveStatus = iota
	statusSucceeded
	statusFailed
)

// Move is the handle for one commanded move.
//
// The handle starts unresolved and resolves exactly once, to succeeded or
// failed; the outcome is memoized and never re-examined afterwards. The
// device itself never reports completion, so resolution happens lazily on
// the first status query that observes the manipulator stopped.
//
// All fields are guarded by the owning Manipulator's mutex.
type Move struct {
	man *Manipulator

	id      string
	target  Position
	speed   int
	started time.Time

	// Resolution state. done latches the first resolved status; once set,
	// status and errMsg never change again.
	done       bool
	status     moveStatus
	errMsg     string
	resolvedAt time.Time
}

// newMoveLocked issues the absolute move and returns its handle.
// Caller must hold man.mu.
func newMoveLocked(man *Manipulator, target Position, speed int) (*Move, error) {
	raw := man.scale.Raw(target)
	rawPtrs := [3]*int{&raw[0], &raw[1], &raw[2]}

	if err := man.drv.MoveTo(rawPtrs, speed); err != nil {
		return nil, err
	}

	return &Move{
		man:     man,
		id:      uuid.NewString(),
		target:  target,
		speed:   speed,
		started: time.Now(),
	}, nil
}

// ID returns the move's unique identifier.
func (mv *Move) ID() string {
	return mv.id
}

// Target returns the fully-resolved absolute target in metres.
func (mv *Move) Target() Position {
	return mv.target
}

// Speed returns the speed the move was commanded with, in device units per
// second; zero means the controller's prevailing speed was kept.
func (mv *Move) Speed() int {
	return mv.speed
}

// StartedAt returns when the move command was acknowledged.
func (mv *Move) StartedAt() time.Time {
	return mv.started
}

// IsDone reports whether the move has resolved.
//
// An unresolved move costs one device round trip (a moving query, plus a
// position read the first time the manipulator is seen stopped). The error
// reports a failed device query, not a failed move; use WasInterrupted and
// ErrorMessage for the outcome.
func (mv *Move) IsDone() (bool, error) {
	mv.man.mu.Lock()
	st, err := mv.statusLocked()
	mv.man.mu.Unlock()
	mv.man.dispatch()
	if err != nil {
		return false, err
	}
	return st != statusMoving, nil
}

// WasInterrupted reports whether the move resolved as failed.
func (mv *Move) WasInterrupted() (bool, error) {
	mv.man.mu.Lock()
	st, err := mv.statusLocked()
	mv.man.mu.Unlock()
	mv.man.dispatch()
	if err != nil {
		return false, err
	}
	return st == statusFailed, nil
}

// ErrorMessage returns the failure description, or "" while the move is in
// flight or after it succeeded.
func (mv *Move) ErrorMessage() (string, error) {
	mv.man.mu.Lock()
	_, err := mv.statusLocked()
	msg := mv.errMsg
	mv.man.mu.Unlock()
	mv.man.dispatch()
	if err != nil {
		return "", err
	}
	return msg, nil
}

// Duration returns how long the move was in flight. Zero until resolved.
func (mv *Move) Duration() time.Duration {
	mv.man.mu.Lock()
	defer mv.man.mu.Unlock()
	if !mv.done {
		return 0
	}
	return mv.resolvedAt.Sub(mv.started)
}

// statusLocked returns the move's status, resolving it if the manipulator
// has stopped. Caller must hold man.mu and call man.dispatch() after
// releasing it.
func (mv *Move) statusLocked() (moveStatus, error) {
	if mv.done {
		return mv.status, nil
	}

	moving, err := mv.man.drv.IsMoving()
	if err != nil {
		return statusMoving, err
	}
	if moving {
		return statusMoving, nil
	}

	// Stopped: fresh position decides the outcome.
	pos, err := mv.man.readPositionLocked()
	if err != nil {
		return statusMoving, err
	}

	if pos.DistanceTo(mv.target) < tolerance {
		mv.resolveLocked(statusSucceeded, "")
	} else {
		mv.resolveLocked(statusFailed, msgDidNotFinish)
	}
	return mv.status, nil
}

// stoppedLocked resolves the move after a stop command was acknowledged.
//
// A move already at its target resolves succeeded; one caught mid-flight
// resolves failed with an interruption message. The device reporting motion
// after an acknowledged stop is ErrConsistency. Caller must hold man.mu and
// call man.dispatch() after releasing it.
func (mv *Move) stoppedLocked() error {
	if mv.done {
		return nil
	}

	st, err := mv.statusLocked()
	if err != nil {
		return err
	}
	if st == statusMoving {
		return fmt.Errorf("%w: still moving after stop", ErrConsistency)
	}
	if st == statusFailed {
		// Deliberate interruption, not a spontaneous stall.
		mv.errMsg = msgInterrupted
	}
	return nil
}

// resolveLocked latches the final status and queues the handle for the
// move handler. Caller must hold man.mu.
func (mv *Move) resolveLocked(st moveStatus, msg string) {
	mv.done = true
	mv.status = st
	mv.errMsg = msg
	mv.resolvedAt = time.Now()
	mv.man.pendingMoves = append(mv.man.pendingMoves, mv)
}
