package patchstar

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// simController is an in-memory PatchStar controller implementing Conn.
//
// It parses command lines as they are written and queues the reply the real
// controller would send. Tests drive motion explicitly: arrive() jumps the
// position to the target and clears the moving flag, mimicking a completed
// move without real time passing.
type simController struct {
	mu sync.Mutex

	pos    [3]int
	target [3]int
	speed  int
	moving bool

	// stickyMoving makes the controller ignore STOP and keep reporting
	// motion, to provoke consistency failures.
	stickyMoving bool

	firmwareReply string
	commands      []string
	replies       []string
}

func newSimController() *simController {
	return &simController{
		speed:         4000,
		firmwareReply: "PatchStar 2.0.169\t09-2015",
	}
}

func (s *simController) WriteString(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := strings.TrimSuffix(line, "\r")
	s.commands = append(s.commands, cmd)
	s.replies = append(s.replies, s.execute(cmd))
	return nil
}

func (s *simController) ReadUntil(delim byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replies) == 0 {
		return "", fmt.Errorf("no reply queued")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *simController) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = nil
}

// execute computes the reply for one command. Caller holds s.mu.
func (s *simController) execute(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "E"
	}

	switch fields[0] {
	case "DATE":
		return s.firmwareReply
	case "POS":
		return fmt.Sprintf("%d\t%d\t%d", s.pos[0], s.pos[1], s.pos[2])
	case "TOP":
		if len(fields) == 2 {
			s.speed, _ = strconv.Atoi(fields[1])
			return "A"
		}
		return strconv.Itoa(s.speed)
	case "ABS":
		for i := 0; i < 3; i++ {
			s.target[i], _ = strconv.Atoi(fields[i+1])
		}
		// An already-satisfied target never starts motion.
		s.moving = s.target != s.pos
		return "A"
	case "STOP":
		if !s.stickyMoving {
			s.moving = false
		}
		return "R"
	case "S":
		if s.moving {
			return "1"
		}
		return "0"
	case "RESET":
		return "R"
	default:
		return "E"
	}
}

// arrive completes the in-flight move: position jumps to the target and
// motion stops.
func (s *simController) arrive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = s.target
	s.moving = false
}

// stall stops motion at the given position without reaching the target.
func (s *simController) stall(pos [3]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	s.moving = false
}

// setPosition moves the simulated hardware directly, as if nudged by the
// physical control pad.
func (s *simController) setPosition(pos [3]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
}

func (s *simController) setStickyMoving(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stickyMoving = v
}

func (s *simController) isMoving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moving
}

func (s *simController) commandLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *simController) clearCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// scriptConn is a minimal Conn that replays canned replies and records
// writes, for exercising the driver's parsing without simulator logic.
type scriptConn struct {
	writes  []string
	replies []scriptReply
	flushes int
}

type scriptReply struct {
	text string
	err  error
}

func (c *scriptConn) WriteString(line string) error {
	c.writes = append(c.writes, strings.TrimSuffix(line, "\r"))
	return nil
}

func (c *scriptConn) ReadUntil(delim byte) (string, error) {
	if len(c.replies) == 0 {
		return "", fmt.Errorf("no reply scripted")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.text, r.err
}

func (c *scriptConn) Flush() {
	c.flushes++
}

func (c *scriptConn) reply(texts ...string) {
	for _, t := range texts {
		c.replies = append(c.replies, scriptReply{text: t})
	}
}

func (c *scriptConn) replyErr(err error) {
	c.replies = append(c.replies, scriptReply{err: err})
}
