package serial

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openPTYPort(t *testing.T, mode Mode) (*Port, *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	drv := &LinuxDriver{Devices: map[Channel]string{UART0: slave.Name()}}
	p := NewPort(UART0, drv, WithDebugRouter(NewDebugRouter()))
	require.NoError(t, p.Begin(115200, Format8N1, mode, DefaultTxPin))
	t.Cleanup(func() { p.End() })
	return p, master
}

func waitAvailable(t *testing.T, p *Port, n int) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for p.Available() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d bytes, have %d", n, p.Available())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLinuxDriver_ChatMasterSlave(t *testing.T) {
	p, master := openPTYPort(t, ModeFull)

	fromSlave := make(chan string, 1)
	errors := make(chan error, 1)

	// Master reads what the port writes
	go func() {
		buf := make([]byte, 128)
		n, err := master.Read(buf)
		if err != nil {
			errors <- err
			return
		}
		fromSlave <- string(buf[:n])
	}()

	// 1. Master writes, port should receive
	_, err := master.Write([]byte("ping\n"))
	require.NoError(t, err)

	r := &LineReader{Port: p, Delimiter: "\n"}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	line, err := r.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "ping", line)

	// 2. Port writes, master should receive
	require.NoError(t, p.WriteLine("pong", "\n"))

	select {
	case msg := <-fromSlave:
		require.Equal(t, "pong\n", msg)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for master to receive from port")
	}
}

func TestLinuxDriver_ReadPeekAvailable(t *testing.T) {
	p, master := openPTYPort(t, ModeFull)

	require.Equal(t, -1, p.ReadChar())
	_, err := master.Write([]byte("hi"))
	require.NoError(t, err)
	waitAvailable(t, p, 2)

	require.Equal(t, int('h'), p.PeekChar())
	require.Equal(t, int('h'), p.ReadChar())
	require.Equal(t, int('i'), p.ReadChar())
	require.Equal(t, 0, p.Available())
}

func TestLinuxDriver_WriteCharAndFlush(t *testing.T) {
	p, master := openPTYPort(t, ModeFull)

	require.True(t, p.IsTxEnabled())
	require.Positive(t, p.AvailableForWrite())
	require.Equal(t, 1, p.WriteChar('Z'))
	p.Flush()

	buf := make([]byte, 1)
	n, err := master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('Z'), buf[0])
}

func TestLinuxDriver_RxBufferResize(t *testing.T) {
	p, master := openPTYPort(t, ModeFull)
	require.Equal(t, 4, p.SetRxBufferSize(4))

	_, err := master.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	waitAvailable(t, p, 4)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 4, p.Available())
}

func TestLinuxDriver_TxOnly(t *testing.T) {
	p, _ := openPTYPort(t, ModeTxOnly)
	require.False(t, p.IsRxEnabled())
	require.True(t, p.IsTxEnabled())
	require.Equal(t, 0, p.SetRxBufferSize(64))
}

func TestLinuxDriver_BaudFallback(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	drv := &LinuxDriver{Devices: map[Channel]string{UART1: slave.Name()}}
	p := NewPort(UART1, drv, WithDebugRouter(NewDebugRouter()))
	require.NoError(t, p.Begin(12345, Format7E1, ModeFull, DefaultTxPin))
	defer p.End()
	require.Equal(t, 115200, p.BaudRate())
}

func TestLinuxDriver_UnknownChannel(t *testing.T) {
	drv := &LinuxDriver{Devices: map[Channel]string{}}
	p := NewPort(UART1, drv, WithDebugRouter(NewDebugRouter()))
	require.Error(t, p.BeginDefault(115200))
	require.False(t, p.IsOpen())
}

func TestLinuxDriver_Killability(t *testing.T) {
	p, master := openPTYPort(t, ModeFull)

	_, err := master.Write([]byte("test data\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.End() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for End to stop the reader")
	}

	// Should be a no-op
	require.NoError(t, p.End())
	require.False(t, p.IsOpen())
}

func TestLinuxDriver_ErrorPropagation(t *testing.T) {
	p, master := openPTYPort(t, ModeFull)

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	deadline := time.Now().Add(500 * time.Millisecond)
	for p.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for error after device disconnect")
		}
		time.Sleep(time.Millisecond)
	}
	require.Error(t, p.Err())
}

func TestLinuxDriver_ReadLineReportsDisconnect(t *testing.T) {
	p, master := openPTYPort(t, ModeFull)
	r := &LineReader{Port: p}

	require.NoError(t, master.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := r.ReadLine(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, p.Err(), err)
}

func TestLinuxDriver_RxOverwrite(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	drv := &LinuxDriver{Devices: map[Channel]string{UART0: slave.Name()}}
	p := NewPort(UART0, drv, WithDebugRouter(NewDebugRouter()), WithRxOverwrite())
	p.SetRxBufferSize(4)
	require.NoError(t, p.BeginDefault(115200))
	t.Cleanup(func() { p.End() })

	_, err = master.Write([]byte("abcdef"))
	require.NoError(t, err)

	deadline := time.Now().Add(500 * time.Millisecond)
	for p.RxOverflow() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for overflow, have %d", p.RxOverflow())
		}
		time.Sleep(time.Millisecond)
	}
	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "cdef", string(buf[:n]))
}
