// Package uartsim is an in-memory serial.Driver. Each channel has a
// receive ring fed by Inject and a transmit log read by Transmitted, so
// ports can be exercised without hardware.
package uartsim

import (
	"errors"
	"fmt"
	"sync"

	serial "github.com/luhtfiimanal/go-hwserial"
	"github.com/luhtfiimanal/go-hwserial/internal/ringbuf"
)

// ErrOpenRefused is returned by Open for channels marked with FailOpen.
var ErrOpenRefused = errors.New("uartsim: open refused")

const (
	// DefaultTxCapacity is the transmit buffer size reported by TxFree.
	DefaultTxCapacity = 128
	// DefaultMaxRxBuffer caps the size ResizeRxBuffer grants.
	DefaultMaxRxBuffer = 1024
)

// Driver simulates a set of UART channels.
type Driver struct {
	mu          sync.Mutex
	TxCapacity  int
	MaxRxBuffer int
	failOpen    map[serial.Channel]bool
	nilOpen     map[serial.Channel]bool
	uarts       map[serial.Channel]*UART
	opens       map[serial.Channel]int
}

// New returns a simulator with the default capacities.
func New() *Driver {
	return &Driver{
		TxCapacity:  DefaultTxCapacity,
		MaxRxBuffer: DefaultMaxRxBuffer,
		failOpen:    make(map[serial.Channel]bool),
		nilOpen:     make(map[serial.Channel]bool),
		uarts:       make(map[serial.Channel]*UART),
		opens:       make(map[serial.Channel]int),
	}
}

// FailOpen makes subsequent opens of ch fail with ErrOpenRefused.
func (d *Driver) FailOpen(ch serial.Channel) {
	d.mu.Lock()
	d.failOpen[ch] = true
	d.mu.Unlock()
}

// NilOpen makes subsequent opens of ch return no handle and no error.
func (d *Driver) NilOpen(ch serial.Channel) {
	d.mu.Lock()
	d.nilOpen[ch] = true
	d.mu.Unlock()
}

// Open implements serial.Driver.
func (d *Driver) Open(ch serial.Channel, cfg serial.OpenConfig) (serial.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch < 0 {
		return nil, fmt.Errorf("uartsim: invalid channel %s", ch)
	}
	if d.failOpen[ch] {
		return nil, ErrOpenRefused
	}
	if d.nilOpen[ch] {
		return nil, nil
	}
	if u := d.uarts[ch]; u != nil && !u.closed {
		return nil, fmt.Errorf("uartsim: %s already open", ch)
	}
	rxSize := cfg.RxBufferSize
	if !cfg.Mode.RxEnabled() {
		rxSize = 0
	} else if rxSize > d.MaxRxBuffer {
		rxSize = d.MaxRxBuffer
	}
	u := &UART{
		ch:     ch,
		cfg:    cfg,
		maxRx:  d.MaxRxBuffer,
		txCap:  d.TxCapacity,
		rx:     ringbuf.New(rxSize, cfg.RxOverwrite),
		txPin:  cfg.TxPin,
		rxPin:  3,
		writes: make(map[byte]int),
	}
	d.uarts[ch] = u
	d.opens[ch]++
	return u, nil
}

// UART returns the most recently opened simulated channel ch, or nil.
func (d *Driver) UART(ch serial.Channel) *UART {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uarts[ch]
}

// Opens returns how many times ch has been opened.
func (d *Driver) Opens(ch serial.Channel) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[ch]
}

// UART is one simulated channel. It implements serial.Handle.
type UART struct {
	mu      sync.Mutex
	ch      serial.Channel
	cfg     serial.OpenConfig
	maxRx   int
	txCap   int
	rx      *ringbuf.Ring
	pending []byte
	wire    []byte
	writes  map[byte]int
	txPin   uint8
	rxPin   uint8
	swapped bool
	drains  int
	closed  bool

	err      error // set by Fail
	closeErr error // returned by the next Close
}

// Inject simulates bytes arriving on the RX line. Bytes that do not fit
// the receive buffer are dropped, or push out the oldest when the channel
// was opened with RxOverwrite. The count stored is returned.
func (u *UART) Inject(p []byte) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || !u.cfg.Mode.RxEnabled() {
		return 0
	}
	return u.rx.Write(p)
}

// Transmitted returns every byte that has left the transmit buffer.
func (u *UART) Transmitted() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]byte, 0, len(u.wire)+len(u.pending))
	out = append(out, u.wire...)
	return append(out, u.pending...)
}

// Pending returns the bytes still waiting in the transmit buffer.
func (u *UART) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

// WriteCount returns how many times b was handed to WriteChar.
func (u *UART) WriteCount(b byte) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.writes[b]
}

// Drains returns how many times WaitTxEmpty ran.
func (u *UART) Drains() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.drains
}

// Config returns the configuration the channel was opened with.
func (u *UART) Config() serial.OpenConfig { return u.cfg }

// Pins returns the current TX and RX pins and whether they are swapped.
func (u *UART) Pins() (tx, rx uint8, swapped bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.txPin, u.rxPin, u.swapped
}

// Fail records err as the channel's asynchronous error, the way a real
// driver reports a device that went away. Buffered bytes stay readable.
func (u *UART) Fail(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err == nil {
		u.err = err
	}
}

// Err returns the error recorded by Fail.
func (u *UART) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// SetCloseErr makes the next Close report err. The channel is closed
// regardless.
func (u *UART) SetCloseErr(err error) {
	u.mu.Lock()
	u.closeErr = err
	u.mu.Unlock()
}

// Closed reports whether Close has been called.
func (u *UART) Closed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

func (u *UART) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errors.New("uartsim: already closed")
	}
	u.closed = true
	u.wire = append(u.wire, u.pending...)
	u.pending = nil
	err := u.closeErr
	u.closeErr = nil
	return err
}

func (u *UART) TxEnabled() bool { return u.cfg.Mode.TxEnabled() }
func (u *UART) RxEnabled() bool { return u.cfg.Mode.RxEnabled() }

func (u *UART) RxAvailable() int { return u.rx.Len() }

func (u *UART) PeekChar() (byte, bool) { return u.rx.PeekByte() }

func (u *UART) ReadChar() (byte, bool) { return u.rx.Get() }

func (u *UART) ReadAvailable(p []byte) int { return u.rx.Read(p) }

// RxOverflow counts injected bytes that did not fit the receive buffer.
func (u *UART) RxOverflow() int { return u.rx.Overflow() }

func (u *UART) TxFree() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.cfg.Mode.TxEnabled() {
		return 0
	}
	if free := u.txCap - len(u.pending); free > 0 {
		return free
	}
	return 0
}

// WriteChar queues b. A full transmit buffer shifts its oldest byte out
// to the wire first, the way a real UART makes room while the caller
// waits. Without a transmit buffer b goes straight to the wire.
func (u *UART) WriteChar(b byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.cfg.Mode.TxEnabled() {
		return
	}
	u.writes[b]++
	if u.txCap <= 0 {
		u.wire = append(u.wire, b)
		return
	}
	if len(u.pending) >= u.txCap {
		u.wire = append(u.wire, u.pending[0])
		u.pending = u.pending[1:]
	}
	u.pending = append(u.pending, b)
}

func (u *UART) WaitTxEmpty() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.wire = append(u.wire, u.pending...)
	u.pending = nil
	u.drains++
}

func (u *UART) BaudRate() int { return u.cfg.BaudRate }

// ResizeRxBuffer grants min(size, MaxRxBuffer), or 0 when receive is
// disabled.
func (u *UART) ResizeRxBuffer(size int) int {
	if !u.cfg.Mode.RxEnabled() {
		return 0
	}
	if size > u.maxRx {
		size = u.maxRx
	}
	return u.rx.Resize(size)
}

func (u *UART) Swap(txPin uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.swapped = !u.swapped
	u.txPin = txPin
}

func (u *UART) SetTx(txPin uint8) {
	u.mu.Lock()
	u.txPin = txPin
	u.mu.Unlock()
}

func (u *UART) SetPins(tx, rx uint8) {
	u.mu.Lock()
	u.txPin, u.rxPin = tx, rx
	u.mu.Unlock()
}
