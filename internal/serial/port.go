package serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	tarm "github.com/tarm/serial"
)

// ErrTimeout is returned when no reply terminator arrives within the
// configured read timeout. The link may be busy or disconnected.
var ErrTimeout = errors.New("serial: read timed out")

// pollTimeout is the per-read slice used to implement the overall deadline.
// 100ms matches the platform timer granularity (VTIME on POSIX) while
// keeping deadline checks responsive.
const pollTimeout = 100 * time.Millisecond

// Config holds configuration for opening a serial port.
type Config struct {
	// Port is the serial port identifier (e.g. "/dev/ttyUSB0", "COM4").
	Port string

	// Baud is the link baud rate. The PatchStar controller runs at 9600.
	Baud int

	// ReadTimeout is the overall deadline for reading one reply line.
	ReadTimeout time.Duration
}

// Port is a line-oriented serial connection to the manipulator controller.
type Port struct {
	port *tarm.Port
	cfg  Config

	// carry holds bytes read past a previous delimiter.
	carry bytes.Buffer
}

// Open opens the serial port described by cfg.
//
// Returns:
//   - *Port: Open port ready for line traffic
//   - error: If the underlying port cannot be opened
func Open(cfg Config) (*Port, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: pollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}

	return &Port{
		port: p,
		cfg:  cfg,
	}, nil
}

// WriteString sends raw text to the controller.
// The caller includes the command terminator.
func (p *Port) WriteString(s string) error {
	if _, err := p.port.Write([]byte(s)); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// ReadUntil reads until delim and returns the accumulated text without it.
//
// Bytes received after the delimiter are kept for the next call, so a
// controller that bursts two replies does not lose data.
//
// Returns:
//   - string: The reply line, delimiter stripped
//   - error: ErrTimeout if no delimiter arrives within ReadTimeout,
//     or the underlying read error
func (p *Port) ReadUntil(delim byte) (string, error) {
	// Serve from the carry buffer first.
	if line, ok := p.takeCarry(delim); ok {
		return line, nil
	}

	deadline := time.Now().Add(p.cfg.ReadTimeout)
	buf := make([]byte, 256)

	for {
		n, err := p.port.Read(buf)
		if n > 0 {
			p.carry.Write(buf[:n])
			if line, ok := p.takeCarry(delim); ok {
				return line, nil
			}
		}
		// The port is opened with a short poll timeout; a timed-out
		// read surfaces as (0, nil) or io.EOF depending on platform.
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("serial read: %w", err)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %v waiting for %q", ErrTimeout, p.cfg.ReadTimeout, string(delim))
		}
	}
}

// takeCarry extracts one delimited line from the carry buffer, if present.
func (p *Port) takeCarry(delim byte) (string, bool) {
	data := p.carry.Bytes()
	idx := bytes.IndexByte(data, delim)
	if idx < 0 {
		return "", false
	}

	line := string(data[:idx])
	rest := make([]byte, len(data)-idx-1)
	copy(rest, data[idx+1:])
	p.carry.Reset()
	p.carry.Write(rest)
	return line, true
}

// Flush discards any buffered partial reply.
// Used after a timeout to resynchronise with the controller.
func (p *Port) Flush() {
	p.carry.Reset()
}

// Close closes the serial port.
func (p *Port) Close() error {
	return p.port.Close()
}
