package patchstar

import (
	"sync"
	"time"
)

// Capabilities describes per-axis device capabilities, as exposed to the
// device manager and UI layers.
type Capabilities struct {
	GetPos [3]bool
	SetPos [3]bool
	Limits [3]bool
}

// defaultCapabilities is the PatchStar default: full read and move on all
// three axes, no travel limits reported.
func defaultCapabilities() Capabilities {
	return Capabilities{
		GetPos: [3]bool{true, true, true},
		SetPos: [3]bool{true, true, true},
		Limits: [3]bool{false, false, false},
	}
}

// Config holds facade construction options.
type Config struct {
	// DeviceID identifies this manipulator in events and history.
	DeviceID string

	// Scale is the per-axis conversion in metres per raw device unit.
	// The zero value selects DefaultScale.
	Scale Scale

	// Capabilities optionally overrides the default capability descriptor.
	Capabilities *Capabilities
}

// ObserverFunc receives position-change notifications in metres.
//
// Observers are invoked outside the facade's lock and may call back into
// the Manipulator.
type ObserverFunc func(Position)

// MoveHandlerFunc receives each move handle as it resolves.
type MoveHandlerFunc func(*Move)

// MoveRequest describes one move in physical units.
//
// Exactly one of Abs or Rel is normally set. Abs axes that are nil hold the
// current position; Rel axes that are nil contribute no offset. Speed is in
// device units per second; zero keeps the controller's current speed.
type MoveRequest struct {
	Abs   [3]*float64
	Rel   [3]*float64
	Speed int

	// Linear is accepted for interface compatibility with multi-axis
	// stages; the PatchStar controller always moves axes independently.
	Linear bool
}

// Manipulator coordinates the protocol driver, the in-flight move handle,
// and the position monitor behind one exclusivity lock.
//
// The lock guards all device access (shared with the monitor's read path),
// the cached last-known position, and the current move pointer. Position
// reads observed by a UI caller and by the monitor are therefore never
// interleaved mid-parse, and change notifications fire at most once per
// changed value.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Manipulator struct {
	drv   *Driver
	cfg   Config
	scale Scale
	caps  Capabilities

	mu       sync.Mutex
	lastPos  *Position // cached last-known position, nil until first read
	lastMove *Move     // current in-flight or last-resolved move

	// pending* hold work queued under mu and delivered by dispatch()
	// after the lock is released. Observers must never run under mu:
	// they may call back into the facade.
	pendingPos   *Position
	pendingMoves []*Move

	obsMu        sync.Mutex
	observers    map[int]ObserverFunc
	nextObserver int
	moveHandler  MoveHandlerFunc

	monitor *Monitor
}

// New creates a facade over an open driver.
//
// The first position read is left to the caller (or the monitor) so that
// construction cannot fail on a cold link.
func New(drv *Driver, cfg Config) *Manipulator {
	scale := cfg.Scale
	if scale == (Scale{}) {
		scale = DefaultScale
	}

	caps := defaultCapabilities()
	if cfg.Capabilities != nil {
		caps = *cfg.Capabilities
	}

	return &Manipulator{
		drv:       drv,
		cfg:       cfg,
		scale:     scale,
		caps:      caps,
		observers: make(map[int]ObserverFunc),
	}
}

// Capabilities returns the per-axis capability descriptor.
func (m *Manipulator) Capabilities() Capabilities {
	return m.caps
}

// DeviceID returns the configured device identifier.
func (m *Manipulator) DeviceID() string {
	return m.cfg.DeviceID
}

// Scale returns the configured per-axis scale.
func (m *Manipulator) Scale() Scale {
	return m.scale
}

// Position returns the manipulator position in metres.
//
// Unless refresh is set, the cached last-known position is returned when
// available. A fresh read updates the cache and, if the value changed,
// notifies observers after the lock is released.
func (m *Manipulator) Position(refresh bool) (Position, error) {
	m.mu.Lock()
	pos, err := m.positionLocked(refresh)
	m.mu.Unlock()
	m.dispatch()
	return pos, err
}

// positionLocked returns the cached position or performs a fresh read.
// Caller must hold m.mu and call dispatch() after releasing it.
func (m *Manipulator) positionLocked(refresh bool) (Position, error) {
	if !refresh && m.lastPos != nil {
		return *m.lastPos, nil
	}
	return m.readPositionLocked()
}

// readPositionLocked performs a fresh device read, updates the cache, and
// queues a change notification when the value differs from the cache.
// Caller must hold m.mu and call dispatch() after releasing it.
func (m *Manipulator) readPositionLocked() (Position, error) {
	raw, err := m.drv.Position()
	if err != nil {
		return Position{}, err
	}

	pos := m.scale.Physical(raw)
	if m.lastPos == nil || *m.lastPos != pos {
		cached := pos
		m.lastPos = &cached
		queued := pos
		m.pendingPos = &queued
	}
	return pos, nil
}

// refresh is one monitor cycle: a fresh position read plus resolution of
// the in-flight move, under a single lock acquisition. Without this, a move
// that completes on the hardware would stay unresolved until someone
// happened to query its handle.
func (m *Manipulator) refresh() (Position, error) {
	m.mu.Lock()
	pos, err := m.readPositionLocked()
	if err == nil && m.lastMove != nil && !m.lastMove.done {
		// Status errors are transient here; the next cycle retries.
		_, _ = m.lastMove.statusLocked()
	}
	m.mu.Unlock()
	m.dispatch()
	return pos, err
}

// CachedPosition returns the last-known position without touching the
// device. ok is false until the first successful read.
func (m *Manipulator) CachedPosition() (pos Position, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastPos == nil {
		return Position{}, false
	}
	return *m.lastPos, true
}

// TargetPosition returns where the manipulator is headed: the pending
// move's target if one is in flight and unresolved, else the current
// position.
func (m *Manipulator) TargetPosition() (Position, error) {
	m.mu.Lock()
	var pos Position
	var err error
	if m.lastMove != nil {
		var st moveStatus
		st, err = m.lastMove.statusLocked()
		if err == nil {
			if st == statusMoving {
				pos = m.lastMove.target
			} else {
				pos, err = m.positionLocked(false)
			}
		}
	} else {
		pos, err = m.positionLocked(false)
	}
	m.mu.Unlock()
	m.dispatch()
	return pos, err
}

// Move issues a new move and returns its handle.
//
// If a previous move is still unresolved it is stopped first, so the stop
// command always precedes the new absolute move on the wire. The returned
// handle is recorded as current; completion is observed via Move.IsDone.
func (m *Manipulator) Move(req MoveRequest) (*Move, error) {
	if req.Speed < 0 {
		return nil, ErrInvalidSpeed
	}

	m.mu.Lock()
	mv, err := m.moveLocked(req)
	m.mu.Unlock()
	m.dispatch()
	return mv, err
}

func (m *Manipulator) moveLocked(req MoveRequest) (*Move, error) {
	// Retire an unresolved previous move before issuing a new one.
	if m.lastMove != nil {
		st, err := m.lastMove.statusLocked()
		if err != nil {
			return nil, err
		}
		if st == statusMoving {
			if err := m.stopLocked(); err != nil {
				return nil, err
			}
		} else {
			m.lastMove = nil
		}
	}

	target, err := m.absoluteTargetLocked(req)
	if err != nil {
		return nil, err
	}

	mv, err := newMoveLocked(m, target, req.Speed)
	if err != nil {
		return nil, err
	}

	m.lastMove = mv
	return mv, nil
}

// absoluteTargetLocked resolves a request to a fully-specified absolute
// target in metres, filling unset axes from the current position.
func (m *Manipulator) absoluteTargetLocked(req MoveRequest) (Position, error) {
	target, err := m.positionLocked(false)
	if err != nil {
		return Position{}, err
	}

	for i := range target {
		switch {
		case req.Abs[i] != nil:
			target[i] = *req.Abs[i]
		case req.Rel[i] != nil:
			target[i] += *req.Rel[i]
		}
	}
	return target, nil
}

// Stop halts the manipulator immediately and resolves the current move
// handle, if any.
//
// A handle that already reached its target resolves succeeded; one caught
// mid-flight resolves interrupted. If the device reports it is still moving
// after the stop was acknowledged, ErrConsistency is returned — the device
// ignored the command and there is no safe recovery.
func (m *Manipulator) Stop() error {
	m.mu.Lock()
	err := m.stopLocked()
	m.mu.Unlock()
	m.dispatch()
	return err
}

func (m *Manipulator) stopLocked() error {
	if err := m.drv.Stop(); err != nil {
		return err
	}

	if m.lastMove != nil {
		if err := m.lastMove.stoppedLocked(); err != nil {
			return err
		}
		m.lastMove = nil
	}
	return nil
}

// FirmwareVersion returns the controller firmware version.
func (m *Manipulator) FirmwareVersion() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drv.FirmwareVersion()
}

// Reset resets the controller.
func (m *Manipulator) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drv.Reset()
}

// DriverStats returns a snapshot of protocol driver counters.
func (m *Manipulator) DriverStats() Stats {
	return m.drv.Stats()
}

// Subscribe registers a position-change observer and returns its
// unsubscribe function.
//
// Observers run outside the facade lock, one notification per changed
// value; unchanged reads are silent.
func (m *Manipulator) Subscribe(fn ObserverFunc) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

// SetMoveHandler registers a callback invoked once per move as it resolves.
// Like position observers, the handler runs outside the facade lock.
func (m *Manipulator) SetMoveHandler(fn MoveHandlerFunc) {
	m.obsMu.Lock()
	m.moveHandler = fn
	m.obsMu.Unlock()
}

// dispatch delivers queued notifications outside the lock.
//
// Position notifications coalesce to the latest value: a concurrent caller
// may have delivered a newer value already, in which case there is nothing
// left to deliver here. This preserves the guarantee that consecutive
// notifications never carry the same value.
func (m *Manipulator) dispatch() {
	m.mu.Lock()
	pos := m.pendingPos
	moves := m.pendingMoves
	m.pendingPos = nil
	m.pendingMoves = nil
	m.mu.Unlock()

	if pos == nil && len(moves) == 0 {
		return
	}

	m.obsMu.Lock()
	observers := make([]ObserverFunc, 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	moveHandler := m.moveHandler
	m.obsMu.Unlock()

	if pos != nil {
		for _, fn := range observers {
			fn(*pos)
		}
	}

	if moveHandler != nil {
		for _, mv := range moves {
			moveHandler(mv)
		}
	}
}

// StartMonitor starts the background position monitor.
// No-op if the monitor is already running.
func (m *Manipulator) StartMonitor(opts MonitorOptions) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	if m.monitor != nil {
		return
	}
	m.monitor = newMonitor(m, opts)
	m.monitor.Start()
}

// SetMonitorInterval adjusts the running monitor's idle polling ceiling.
// No-op if the monitor is not running.
func (m *Manipulator) SetMonitorInterval(d time.Duration) {
	m.obsMu.Lock()
	mon := m.monitor
	m.obsMu.Unlock()

	if mon != nil {
		mon.SetInterval(d)
	}
}

// StopMonitor stops the background position monitor and waits for its
// goroutine to exit. No-op if the monitor is not running.
func (m *Manipulator) StopMonitor() {
	m.obsMu.Lock()
	mon := m.monitor
	m.monitor = nil
	m.obsMu.Unlock()

	if mon != nil {
		mon.Stop()
	}
}
