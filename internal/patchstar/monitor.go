package patchstar

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/openrig/manipd/internal/infrastructure/logging"
)

// Default monitor intervals.
const (
	// DefaultMonitorFloor is the minimum poll interval: poll no faster
	// than this even during active motion.
	DefaultMonitorFloor = 100 * time.Millisecond

	// DefaultMonitorInterval is the idle poll ceiling.
	DefaultMonitorInterval = 300 * time.Millisecond
)

// MonitorOptions configures the background position monitor.
type MonitorOptions struct {
	// Interval is the idle poll ceiling. Zero selects DefaultMonitorInterval.
	Interval time.Duration

	// Floor is the fastest permitted poll rate. Zero selects
	// DefaultMonitorFloor.
	Floor time.Duration

	// Logger receives poll-failure warnings. Nil selects the default logger.
	Logger *logging.Logger
}

// Monitor polls the manipulator position in the background.
//
// The poll interval adapts to activity: it starts at the floor, doubles
// after every unchanged reading up to the ceiling, and snaps back to the
// floor the moment the position changes. An idle manipulator costs a few
// polls per second; a moving one is tracked at the floor rate.
//
// Change notifications ride the facade's observer path, so the monitor
// itself publishes nothing; it forces fresh reads and, when a move is in
// flight, drives its resolution so move handlers fire without anyone
// explicitly polling the handle.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Monitor struct {
	man    *Manipulator
	logger *logging.Logger

	floor   time.Duration
	ceiling atomic.Int64 // nanoseconds; adjustable while running

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// newMonitor creates a monitor for a manipulator. Call Start to begin polling.
func newMonitor(man *Manipulator, opts MonitorOptions) *Monitor {
	floor := opts.Floor
	if floor <= 0 {
		floor = DefaultMonitorFloor
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if interval < floor {
		interval = floor
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	m := &Monitor{
		man:    man,
		logger: logger.Component("monitor"),
		floor:  floor,
		done:   make(chan struct{}),
	}
	m.ceiling.Store(int64(interval))
	return m
}

// Start launches the polling goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// SetInterval adjusts the idle poll ceiling while running.
// Values below the floor are clamped to the floor.
func (m *Monitor) SetInterval(d time.Duration) {
	if d < m.floor {
		d = m.floor
	}
	m.ceiling.Store(int64(d))
}

// Stop terminates the polling goroutine and waits for it to exit.
// Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// run is the polling loop.
//
// Poll failures are logged and absorbed: the controller occasionally drops
// a reply during long moves and recovers on the next cycle. After a failure
// the loop backs off to the ceiling rather than hammering a wedged link.
func (m *Monitor) run() {
	defer m.wg.Done()

	interval := m.floor
	var last *Position

	for {
		ceiling := time.Duration(m.ceiling.Load())

		pos, err := m.man.refresh()
		if err != nil {
			m.logger.Warn("position poll failed", "error", err)
			if !m.sleep(ceiling) {
				return
			}
			continue
		}

		changed := last == nil || *last != pos
		if changed {
			current := pos
			last = &current
		}

		interval = nextInterval(interval, m.floor, ceiling, changed)
		if !m.sleep(interval) {
			return
		}
	}
}

// sleep waits for d or until the monitor is stopped, reporting whether the
// loop should continue.
func (m *Monitor) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-m.done:
		return false
	}
}

// nextInterval computes the adaptive poll interval: reset to the floor on
// change, double up to the ceiling when idle.
func nextInterval(cur, floor, ceiling time.Duration, changed bool) time.Duration {
	if changed {
		return floor
	}
	next := cur * 2
	if next > ceiling {
		next = ceiling
	}
	if next < floor {
		next = floor
	}
	return next
}
