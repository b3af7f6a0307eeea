package patchstar

import (
	"errors"
	"strings"
	"testing"
)

func newTestManipulator() (*Manipulator, *simController) {
	sim := newSimController()
	return New(NewDriver(sim), Config{DeviceID: "ps-1"}), sim
}

func f(v float64) *float64 { return &v }

func TestMove_CommandSequence(t *testing.T) {
	man, sim := newTestManipulator()

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-6), nil, nil}, Speed: 1000})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if mv.Speed() != 1000 {
		t.Errorf("Speed() = %d, want 1000", mv.Speed())
	}

	log := sim.commandLog()
	var gotSpeed, gotAbs string
	for _, cmd := range log {
		if strings.HasPrefix(cmd, "TOP ") {
			gotSpeed = cmd
		}
		if strings.HasPrefix(cmd, "ABS") {
			gotAbs = cmd
		}
	}
	if gotSpeed != "TOP 1000" {
		t.Errorf("speed command = %q, want TOP 1000", gotSpeed)
	}
	if gotAbs != "ABS 10 0 0" {
		t.Errorf("move command = %q, want ABS 10 0 0", gotAbs)
	}
}

func TestMove_ResolvesSucceeded(t *testing.T) {
	man, sim := newTestManipulator()

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-5), f(2e-5), nil}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	done, err := mv.IsDone()
	if err != nil {
		t.Fatalf("IsDone() error = %v", err)
	}
	if done {
		t.Fatal("move reported done while controller is moving")
	}

	sim.arrive()

	done, err = mv.IsDone()
	if err != nil {
		t.Fatalf("IsDone() error = %v", err)
	}
	if !done {
		t.Fatal("move not done after arrival")
	}

	interrupted, err := mv.WasInterrupted()
	if err != nil {
		t.Fatalf("WasInterrupted() error = %v", err)
	}
	if interrupted {
		t.Error("successful move reported interrupted")
	}

	msg, err := mv.ErrorMessage()
	if err != nil {
		t.Fatalf("ErrorMessage() error = %v", err)
	}
	if msg != "" {
		t.Errorf("ErrorMessage() = %q, want empty", msg)
	}
	if mv.Duration() <= 0 {
		t.Error("resolved move has zero duration")
	}
}

func TestMove_OutcomeMemoized(t *testing.T) {
	man, sim := newTestManipulator()

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-5), nil, nil}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	sim.arrive()
	if _, err := mv.IsDone(); err != nil {
		t.Fatalf("IsDone() error = %v", err)
	}

	before := len(sim.commandLog())
	for i := 0; i < 3; i++ {
		if _, err := mv.IsDone(); err != nil {
			t.Fatalf("IsDone() error = %v", err)
		}
	}
	if after := len(sim.commandLog()); after != before {
		t.Errorf("resolved move still queries the device: %d commands after resolution", after-before)
	}
}

func TestMove_ZeroDisplacement(t *testing.T) {
	man, sim := newTestManipulator()
	sim.setPosition([3]int{100, 200, 300})

	// Target exactly where we already are.
	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-5), f(2e-5), f(3e-5)}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	done, err := mv.IsDone()
	if err != nil {
		t.Fatalf("IsDone() error = %v", err)
	}
	if !done {
		t.Fatal("zero-displacement move not done")
	}

	interrupted, _ := mv.WasInterrupted()
	if interrupted {
		t.Error("zero-displacement move reported interrupted")
	}
}

func TestMove_StopBeforeArrival(t *testing.T) {
	man, _ := newTestManipulator()

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-4), nil, nil}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	if err := man.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	interrupted, err := mv.WasInterrupted()
	if err != nil {
		t.Fatalf("WasInterrupted() error = %v", err)
	}
	if !interrupted {
		t.Fatal("stopped move not reported interrupted")
	}

	msg, _ := mv.ErrorMessage()
	if msg != "Move was interrupted before completion." {
		t.Errorf("ErrorMessage() = %q", msg)
	}
}

func TestMove_StopAfterArrival(t *testing.T) {
	man, sim := newTestManipulator()

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-5), nil, nil}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	// The hardware finished, but nobody has polled the handle yet.
	sim.arrive()

	if err := man.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	interrupted, err := mv.WasInterrupted()
	if err != nil {
		t.Fatalf("WasInterrupted() error = %v", err)
	}
	if interrupted {
		t.Error("move that reached its target reported interrupted")
	}
}

func TestMove_StallFails(t *testing.T) {
	man, sim := newTestManipulator()

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-4), nil, nil}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	// Hardware stops well short of the target.
	sim.stall([3]int{200, 0, 0})

	done, err := mv.IsDone()
	if err != nil {
		t.Fatalf("IsDone() error = %v", err)
	}
	if !done {
		t.Fatal("stalled move not done")
	}

	interrupted, _ := mv.WasInterrupted()
	if !interrupted {
		t.Fatal("stalled move not reported interrupted")
	}

	msg, _ := mv.ErrorMessage()
	if msg != "Move did not complete." {
		t.Errorf("ErrorMessage() = %q", msg)
	}
}

func TestMove_StopConsistencyViolation(t *testing.T) {
	man, sim := newTestManipulator()

	if _, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-4), nil, nil}}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	sim.setStickyMoving(true)

	if err := man.Stop(); !errors.Is(err, ErrConsistency) {
		t.Errorf("Stop() error = %v, want ErrConsistency", err)
	}
}

func TestMove_InvalidSpeed(t *testing.T) {
	man, _ := newTestManipulator()
	if _, err := man.Move(MoveRequest{Speed: -10}); !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("Move() error = %v, want ErrInvalidSpeed", err)
	}
}

func TestMove_HandlerReceivesResolvedMove(t *testing.T) {
	man, sim := newTestManipulator()

	var resolved []*Move
	man.SetMoveHandler(func(mv *Move) {
		resolved = append(resolved, mv)
	})

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-5), nil, nil}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	sim.arrive()
	if _, err := mv.IsDone(); err != nil {
		t.Fatalf("IsDone() error = %v", err)
	}

	if len(resolved) != 1 {
		t.Fatalf("handler called %d times, want 1", len(resolved))
	}
	if resolved[0] != mv {
		t.Error("handler received a different move handle")
	}
}
