package patchstar

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNextInterval(t *testing.T) {
	const (
		floor   = 100 * time.Millisecond
		ceiling = 300 * time.Millisecond
	)

	tests := []struct {
		name    string
		cur     time.Duration
		changed bool
		want    time.Duration
	}{
		{"change resets to floor", ceiling, true, floor},
		{"change at floor stays at floor", floor, true, floor},
		{"unchanged doubles", floor, false, 200 * time.Millisecond},
		{"doubling clamps to ceiling", 200 * time.Millisecond, false, ceiling},
		{"stays at ceiling", ceiling, false, ceiling},
		{"below floor climbs back", 10 * time.Millisecond, false, floor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextInterval(tt.cur, floor, ceiling, tt.changed)
			if got != tt.want {
				t.Errorf("nextInterval(%v, changed=%v) = %v, want %v", tt.cur, tt.changed, got, tt.want)
			}
		})
	}
}

func TestMonitor_PublishesChanges(t *testing.T) {
	man, sim := newTestManipulator()
	sim.setPosition([3]int{10, 0, 0})

	var mu sync.Mutex
	var notified []Position
	man.Subscribe(func(pos Position) {
		mu.Lock()
		notified = append(notified, pos)
		mu.Unlock()
	})

	man.StartMonitor(MonitorOptions{Floor: time.Millisecond, Interval: 5 * time.Millisecond})
	defer man.StopMonitor()

	waitFor := func(n int) bool {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			got := len(notified)
			mu.Unlock()
			if got >= n {
				return true
			}
			time.Sleep(time.Millisecond)
		}
		return false
	}

	if !waitFor(1) {
		t.Fatal("monitor never published the initial position")
	}

	sim.setPosition([3]int{20, 0, 0})
	if !waitFor(2) {
		t.Fatal("monitor never published the changed position")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(notified); i++ {
		if notified[i] == notified[i-1] {
			t.Errorf("consecutive notifications carry the same value: %v", notified[i])
		}
	}
}

func TestMonitor_ResolvesCompletedMove(t *testing.T) {
	man, sim := newTestManipulator()

	var mu sync.Mutex
	var resolved []*Move
	man.SetMoveHandler(func(mv *Move) {
		mu.Lock()
		resolved = append(resolved, mv)
		mu.Unlock()
	})

	man.StartMonitor(MonitorOptions{Floor: time.Millisecond, Interval: 5 * time.Millisecond})
	defer man.StopMonitor()

	mv, err := man.Move(MoveRequest{Abs: [3]*float64{f(1e-5), nil, nil}})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	// The hardware finishes; nobody queries the handle. The background
	// poll alone must resolve it and fire the handler.
	sim.arrive()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := len(resolved)
		mu.Unlock()
		if got >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(resolved) != 1 {
		t.Fatalf("handler fired %d times without an explicit status query, want 1", len(resolved))
	}
	if resolved[0] != mv {
		t.Error("handler received a different move handle")
	}

	interrupted, err := mv.WasInterrupted()
	if err != nil {
		t.Fatalf("WasInterrupted() error = %v", err)
	}
	if interrupted {
		t.Error("completed move reported interrupted")
	}
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	man, _ := newTestManipulator()

	man.StartMonitor(MonitorOptions{Floor: time.Millisecond, Interval: 5 * time.Millisecond})
	man.StopMonitor()
	man.StopMonitor() // second stop must not panic or hang
}

func TestMonitor_SetInterval(t *testing.T) {
	mon := newMonitor(nil, MonitorOptions{Floor: 100 * time.Millisecond, Interval: 300 * time.Millisecond})

	mon.SetInterval(time.Second)
	if got := time.Duration(mon.ceiling.Load()); got != time.Second {
		t.Errorf("ceiling = %v, want 1s", got)
	}

	// Values below the floor clamp to the floor.
	mon.SetInterval(time.Millisecond)
	if got := time.Duration(mon.ceiling.Load()); got != 100*time.Millisecond {
		t.Errorf("ceiling = %v, want floor 100ms", got)
	}
}

func TestMonitor_SurvivesReadErrors(t *testing.T) {
	sim := newSimController()
	man := New(NewDriver(&flakyConn{inner: sim, failEvery: 2}), Config{})

	var mu sync.Mutex
	count := 0
	man.Subscribe(func(Position) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	man.StartMonitor(MonitorOptions{Floor: time.Millisecond, Interval: 2 * time.Millisecond})
	defer man.StopMonitor()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := count
		mu.Unlock()
		if got >= 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("monitor never recovered from read errors")
}

// flakyConn fails every Nth read to exercise monitor error recovery.
type flakyConn struct {
	mu        sync.Mutex
	inner     *simController
	failEvery int
	reads     int
}

func (c *flakyConn) WriteString(line string) error {
	return c.inner.WriteString(line)
}

func (c *flakyConn) ReadUntil(delim byte) (string, error) {
	c.mu.Lock()
	c.reads++
	fail := c.reads%c.failEvery == 0
	c.mu.Unlock()

	reply, err := c.inner.ReadUntil(delim)
	if err != nil {
		return "", err
	}
	if fail {
		return "", errReadFailed
	}
	return reply, nil
}

func (c *flakyConn) Flush() {
	c.inner.Flush()
}

var errReadFailed = errors.New("simulated read failure")
