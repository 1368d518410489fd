package serial_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	serial "github.com/luhtfiimanal/go-hwserial"
	"github.com/luhtfiimanal/go-hwserial/uartsim"
)

func openSim(t *testing.T) (*serial.Port, *uartsim.UART) {
	t.Helper()
	sim := uartsim.New()
	p := serial.NewPort(serial.UART0, sim, serial.WithDebugRouter(serial.NewDebugRouter()))
	require.NoError(t, p.BeginDefault(115200))
	t.Cleanup(func() { p.End() })
	return p, sim.UART(serial.UART0)
}

func TestLineReader_ReadLine(t *testing.T) {
	p, u := openSim(t)
	r := &serial.LineReader{Port: p, Delimiter: "\n"}

	u.Inject([]byte("hello\nwor"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	line, err := r.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", line)

	go func() {
		time.Sleep(10 * time.Millisecond)
		u.Inject([]byte("ld\n"))
	}()
	line, err = r.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "world", line)
}

func TestLineReader_ReadLineHonorsContext(t *testing.T) {
	p, _ := openSim(t)
	r := &serial.LineReader{Port: p}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.ReadLine(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLineReader_LoopStopsOnClose(t *testing.T) {
	p, u := openSim(t)
	r := &serial.LineReader{Port: p}

	lines := make(chan string, 2)
	errs := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		r.ReadLinesLoop(context.Background(),
			func(line string) { lines <- line },
			func(err error) { errs <- err },
		)
		close(done)
	}()

	u.Inject([]byte("C,INFO\r\n"))
	select {
	case l := <-lines:
		require.Equal(t, "C,INFO", l)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for line")
	}

	require.NoError(t, p.End())
	select {
	case err := <-errs:
		require.ErrorIs(t, err, serial.ErrClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for loop to report close")
	}
	<-done
}

func TestLineReader_DrainsBufferBeforeDriverError(t *testing.T) {
	p, u := openSim(t)
	r := &serial.LineReader{Port: p}

	lost := errors.New("device removed")
	u.Inject([]byte("last\r\npart"))
	u.Fail(lost)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	line, err := r.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "last", line)

	_, err = r.ReadLine(ctx)
	require.ErrorIs(t, err, lost)
	require.NoError(t, ctx.Err())
}

func TestLineReader_LoopReportsDriverError(t *testing.T) {
	p, u := openSim(t)
	r := &serial.LineReader{Port: p}

	lost := errors.New("device removed")
	errs := make(chan error, 1)
	go r.ReadLinesLoop(context.Background(),
		func(string) {},
		func(err error) { errs <- err },
	)

	u.Fail(lost)
	select {
	case err := <-errs:
		require.ErrorIs(t, err, lost)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for loop to report driver error")
	}
}

func TestPort_WriteLine(t *testing.T) {
	p, u := openSim(t)
	require.NoError(t, p.WriteLine("C,START", "\r\n"))
	require.Equal(t, "C,START\r\n", string(u.Transmitted()))
}
