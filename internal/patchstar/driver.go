package patchstar

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// terminator ends every command and reply on the wire.
const terminator = '\r'

// Conn is the line transport the driver talks through.
// Implemented by serial.Port in production and by scripted fakes in tests.
type Conn interface {
	// WriteString sends raw text, terminator included.
	WriteString(s string) error

	// ReadUntil reads until delim and returns the text without it.
	ReadUntil(delim byte) (string, error)

	// Flush discards any partial reply buffered by a failed read.
	Flush()
}

// Stats holds driver operational counters for health reporting.
type Stats struct {
	CommandsTx   uint64
	ErrorsTotal  uint64
	LastActivity time.Time
}

// Driver translates typed operations into the PatchStar line protocol.
//
// The controller accepts one outstanding command at a time; all access is
// sequenced through one mutex. Composite operations (MoveTo reads position
// and speed before commanding the move) use unexported *Locked variants so
// the lock is taken exactly once per public call.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Driver struct {
	mu    sync.Mutex
	conn  Conn
	stats Stats
}

// NewDriver creates a driver over an open transport.
// The transport must already be connected; the driver never opens or
// reopens the link itself.
func NewDriver(conn Conn) *Driver {
	return &Driver{conn: conn}
}

// command sends one command line and returns the reply line.
// Caller must hold d.mu. Errors propagate unmodified; the driver never
// retries — retry policy belongs to callers who know the move state.
func (d *Driver) command(cmd string) (string, error) {
	d.stats.CommandsTx++
	if err := d.conn.WriteString(cmd + string(terminator)); err != nil {
		d.stats.ErrorsTotal++
		return "", fmt.Errorf("sending %q: %w", cmd, err)
	}

	reply, err := d.conn.ReadUntil(terminator)
	if err != nil {
		d.stats.ErrorsTotal++
		// A partial reply left buffered would be misattributed to the
		// next command.
		d.conn.Flush()
		return "", fmt.Errorf("reply to %q: %w", cmd, err)
	}

	d.stats.LastActivity = time.Now()
	return reply, nil
}

// FirmwareVersion returns the controller's firmware version string.
//
// The DATE reply is free text; the version token lies between the first
// space and the following tab.
func (d *Driver) FirmwareVersion() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reply, err := d.command("DATE")
	if err != nil {
		return "", err
	}

	version := ""
	if i := strings.IndexByte(reply, ' '); i >= 0 {
		version = reply[i+1:]
	}
	if j := strings.IndexByte(version, '\t'); j >= 0 {
		version = version[:j]
	}
	return version, nil
}

// Position returns the current position in device units.
func (d *Driver) Position() (RawPosition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

func (d *Driver) positionLocked() (RawPosition, error) {
	reply, err := d.command("POS")
	if err != nil {
		return RawPosition{}, err
	}

	fields := strings.Split(reply, "\t")
	if len(fields) != len(RawPosition{}) {
		return RawPosition{}, fmt.Errorf("%w: POS returned %d fields in %q", ErrProtocol, len(fields), reply)
	}

	var pos RawPosition
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return RawPosition{}, fmt.Errorf("%w: POS field %d in %q", ErrProtocol, i, reply)
		}
		pos[i] = v
	}
	return pos, nil
}

// Speed returns the controller's maximum move speed in device units per second.
func (d *Driver) Speed() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speedLocked()
}

func (d *Driver) speedLocked() (int, error) {
	reply, err := d.command("TOP")
	if err != nil {
		return 0, err
	}

	speed, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return 0, fmt.Errorf("%w: TOP returned %q", ErrProtocol, reply)
	}
	return speed, nil
}

// SetSpeed sets the maximum move speed in device units per second.
func (d *Driver) SetSpeed(speed int) error {
	if speed <= 0 {
		return ErrInvalidSpeed
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setSpeedLocked(speed)
}

func (d *Driver) setSpeedLocked(speed int) error {
	// Reply is an acknowledgment line with no payload to interpret.
	_, err := d.command(fmt.Sprintf("TOP %d", speed))
	return err
}

// MoveTo commands an absolute move in device units.
//
// target axes set to nil hold their current position; the move is always
// sent to the controller as a fully-specified absolute triple. If speed is
// positive the controller's speed is set first; if zero, the controller's
// current speed is read and kept.
//
// MoveTo returns once the command is acknowledged, not once the move
// completes. Use IsMoving and Position to observe completion. If the
// controller is already moving, the command times out and is ignored.
func (d *Driver) MoveTo(target [3]*int, speed int) error {
	if speed < 0 {
		return ErrInvalidSpeed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	current, err := d.positionLocked()
	if err != nil {
		return err
	}

	var abs RawPosition
	for i := range target {
		if target[i] != nil {
			abs[i] = *target[i]
		} else {
			abs[i] = current[i]
		}
	}

	if speed > 0 {
		if err := d.setSpeedLocked(speed); err != nil {
			return err
		}
	} else {
		// No speed requested: leave the controller's current speed as is.
		if _, err := d.speedLocked(); err != nil {
			return err
		}
	}

	_, err = d.command(fmt.Sprintf("ABS %d %d %d", abs[0], abs[1], abs[2]))
	return err
}

// Stop halts motion immediately.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.command("STOP")
	return err
}

// IsMoving reports whether the manipulator is currently moving.
//
// A reply of 0 means stopped; any other integer means moving. A reply that
// does not parse as an integer is ErrProtocol, never treated as "moving".
func (d *Driver) IsMoving() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reply, err := d.command("S")
	if err != nil {
		return false, err
	}

	status, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return false, fmt.Errorf("%w: S returned %q", ErrProtocol, reply)
	}
	return status != 0, nil
}

// Reset resets the controller.
func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.command("RESET")
	return err
}

// Stats returns a snapshot of driver operational counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
