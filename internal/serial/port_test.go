package serial

import (
	"errors"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// openTestPort opens a Port against the slave side of a fresh pty pair.
// The returned master plays the role of the controller.
func openTestPort(t *testing.T, timeout time.Duration) (*Port, *ptyController) {
	t.Helper()

	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err := Open(Config{
		Port:        slave.Name(),
		Baud:        9600,
		ReadTimeout: timeout,
	})
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })

	return port, &ptyController{master: master}
}

// ptyController simulates the device end of the link.
type ptyController struct {
	master interface {
		Write([]byte) (int, error)
		Read([]byte) (int, error)
	}
}

func (c *ptyController) reply(s string) error {
	_, err := c.master.Write([]byte(s))
	return err
}

func (c *ptyController) readSome(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 128)
	n, err := c.master.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestPort_CommandReply(t *testing.T) {
	port, dev := openTestPort(t, time.Second)

	require.NoError(t, port.WriteString("POS\r"))

	// The controller sees the command
	got := dev.readSome(t)
	require.Contains(t, got, "POS")

	// And replies with a position line
	require.NoError(t, dev.reply("100\t200\t300\r"))

	line, err := port.ReadUntil('\r')
	require.NoError(t, err)
	require.Equal(t, "100\t200\t300", line)
}

func TestPort_ReadUntil_SplitAcrossWrites(t *testing.T) {
	port, dev := openTestPort(t, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		dev.reply("12")
		time.Sleep(20 * time.Millisecond)
		dev.reply("34\r")
	}()

	line, err := port.ReadUntil('\r')
	require.NoError(t, err)
	require.Equal(t, "1234", line)
	<-done
}

func TestPort_ReadUntil_KeepsTrailingBytes(t *testing.T) {
	port, dev := openTestPort(t, time.Second)

	// Two replies in one burst
	require.NoError(t, dev.reply("first\rsecond\r"))

	line, err := port.ReadUntil('\r')
	require.NoError(t, err)
	require.Equal(t, "first", line)

	line, err = port.ReadUntil('\r')
	require.NoError(t, err)
	require.Equal(t, "second", line)
}

func TestPort_ReadUntil_Timeout(t *testing.T) {
	port, _ := openTestPort(t, 150*time.Millisecond)

	start := time.Now()
	_, err := port.ReadUntil('\r')
	elapsed := time.Since(start)

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTimeout), "expected ErrTimeout, got %v", err)
	require.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestPort_Flush_DiscardsPartialReply(t *testing.T) {
	port, dev := openTestPort(t, 150*time.Millisecond)

	// Partial reply with no terminator, then a timeout
	require.NoError(t, dev.reply("garbage"))
	_, err := port.ReadUntil('\r')
	require.True(t, errors.Is(err, ErrTimeout))

	port.Flush()

	// A clean reply is read without the stale prefix
	require.NoError(t, dev.reply("0\r"))
	line, err := port.ReadUntil('\r')
	require.NoError(t, err)
	require.Equal(t, "0", line)
}

func TestOpen_InvalidPort(t *testing.T) {
	_, err := Open(Config{
		Port:        "/nonexistent/tty",
		Baud:        9600,
		ReadTimeout: time.Second,
	})
	require.Error(t, err)
}
