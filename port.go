package serial

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by the explicit-result methods of a closed port.
	ErrClosed = errors.New("serial port closed")
	// ErrNoData means the port is open but nothing has been received.
	ErrNoData = errors.New("no data available")
	// ErrTxDisabled means the port is open without its transmit direction.
	ErrTxDisabled = errors.New("transmit disabled")
	// ErrNoHandle is returned by Begin when the driver produced no handle.
	ErrNoHandle = errors.New("driver returned no handle")
)

// Port is a serial port bound to one UART channel of a Driver.
//
// A Port never faults on a closed channel: the sentinel methods
// (ReadChar, PeekChar, WriteChar, Available, ...) return their documented
// defaults, and the explicit-result methods (ReadByte, PeekByte,
// WriteByte, Read, Write) return ErrClosed. It is safe for concurrent use.
type Port struct {
	mu      sync.RWMutex
	ch      Channel
	drv     Driver
	handle  Handle
	rxSize  int
	router  *DebugRouter
	yield   func()
	delay   func(time.Duration)

	overwrite bool
	debugAt   bool
	banner    string
}

// Option configures a Port.
type Option func(*Port)

// WithDebugRouter replaces DefaultDebugRouter for this port.
func WithDebugRouter(r *DebugRouter) Option {
	return func(p *Port) { p.router = r }
}

// WithYield sets the cooperative yield Available calls when nothing is
// buffered. The default is runtime.Gosched.
func WithYield(fn func()) Option {
	return func(p *Port) { p.yield = fn }
}

// WithDelay sets the sleep Flush uses for its trailing margin. The
// default is time.Sleep.
func WithDelay(fn func(time.Duration)) Option {
	return func(p *Port) { p.delay = fn }
}

// WithDebugOnBegin makes every successful Begin route debug output to
// this port. When the port can transmit, Begin then writes a blank line
// and banner on it, so a boot log starts on a fresh line with the
// firmware identity.
func WithDebugOnBegin(banner string) Option {
	return func(p *Port) {
		p.debugAt = true
		p.banner = banner
	}
}

// WithRxOverwrite makes a full receive buffer keep the newest bytes by
// discarding the oldest. By default incoming bytes are dropped instead.
func WithRxOverwrite() Option {
	return func(p *Port) { p.overwrite = true }
}

// NewPort returns a closed port for channel ch. No hardware is touched
// until Begin.
func NewPort(ch Channel, drv Driver, opts ...Option) *Port {
	p := &Port{
		ch:     ch,
		drv:    drv,
		rxSize: DefaultRxBufferSize,
		router: DefaultDebugRouter,
		yield:  runtime.Gosched,
		delay:  time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the UART this port is bound to.
func (p *Port) Channel() Channel { return p.ch }

// Begin opens the channel at baud with the given format, direction and
// TX pin, closing any handle the port already holds. If the driver fails
// the port stays closed and the error is returned, joined with any error
// from closing the previous handle. If only that close fails, the new
// handle is kept and the close error is returned.
func (p *Port) Begin(baud int, format Format, mode Mode, txPin uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	closeErr := p.endLocked()
	if closeErr != nil {
		closeErr = fmt.Errorf("begin %s: close previous handle: %w", p.ch, closeErr)
	}
	if p.drv == nil {
		return errors.Join(fmt.Errorf("begin %s: %w", p.ch, ErrNoHandle), closeErr)
	}
	h, err := p.drv.Open(p.ch, OpenConfig{
		BaudRate:     baud,
		Format:       format,
		Mode:         mode,
		TxPin:        txPin,
		RxBufferSize: p.rxSize,
		RxOverwrite:  p.overwrite,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("begin %s: %w", p.ch, err), closeErr)
	}
	if h == nil {
		return errors.Join(fmt.Errorf("begin %s: %w", p.ch, ErrNoHandle), closeErr)
	}
	p.handle = h
	p.router.attach(p.ch, p)
	if p.debugAt {
		p.setDebugLocked(true)
		p.writeBannerLocked()
	}
	return closeErr
}

// writeBannerLocked goes straight to the handle: the router would call
// back into Write and p.mu is held exclusively here.
func (p *Port) writeBannerLocked() {
	if p.router.Get() != p.ch || !p.handle.TxEnabled() {
		return
	}
	for _, c := range []byte("\r\n" + p.banner + "\r\n") {
		p.handle.WriteChar(c)
	}
}

// BeginDefault opens the channel at baud as 8N1, full duplex, default
// TX pin.
func (p *Port) BeginDefault(baud int) error {
	return p.Begin(baud, Format8N1, ModeFull, DefaultTxPin)
}

// End releases the channel. If this channel is the debug sink, the sink
// is cleared. Calling End on a closed port only clears the sink.
func (p *Port) End() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endLocked()
}

func (p *Port) endLocked() error {
	p.router.ClearIf(p.ch)
	if p.handle == nil {
		return nil
	}
	p.router.detach(p.ch, p)
	err := p.handle.Close()
	p.handle = nil
	return err
}

// SetRxBufferSize sets the receive buffer size. On an open port the
// driver decides the size actually granted; on a closed port size is
// recorded for the next Begin. The size in effect is returned.
func (p *Port) SetRxBufferSize(size int) int {
	if size < 0 {
		size = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		p.rxSize = p.handle.ResizeRxBuffer(size)
	} else {
		p.rxSize = size
	}
	return p.rxSize
}

// RxBufferSize returns the receive buffer size currently in effect.
func (p *Port) RxBufferSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rxSize
}

// Swap moves the channel to its alternate pin mapping.
func (p *Port) Swap(txPin uint8) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return
	}
	p.handle.Swap(txPin)
}

// SetTx selects the TX pin.
func (p *Port) SetTx(txPin uint8) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return
	}
	p.handle.SetTx(txPin)
}

// Pins selects the TX and RX pins.
func (p *Port) Pins(tx, rx uint8) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return
	}
	p.handle.SetPins(tx, rx)
}

// SetDebugOutput routes debug output to this port, or stops routing it
// here. Enabling on a port without transmit clears the sink instead.
func (p *Port) SetDebugOutput(enable bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.setDebugLocked(enable)
}

func (p *Port) setDebugLocked(enable bool) {
	if p.handle == nil {
		return
	}
	if !enable {
		p.router.ClearIf(p.ch)
		return
	}
	if p.handle.TxEnabled() {
		p.router.Set(p.ch)
	} else {
		p.router.Clear()
	}
}

// IsTxEnabled reports whether the port is open with transmit enabled.
func (p *Port) IsTxEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handle != nil && p.handle.TxEnabled()
}

// IsRxEnabled reports whether the port is open with receive enabled.
func (p *Port) IsRxEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handle != nil && p.handle.RxEnabled()
}

// Available returns the number of bytes ready to read. When there are
// none it yields before returning, so polling loops let other goroutines
// run.
func (p *Port) Available() int {
	p.mu.RLock()
	n := 0
	if p.handle != nil {
		n = p.handle.RxAvailable()
	}
	p.mu.RUnlock()
	if n == 0 {
		p.yield()
	}
	return n
}

// PeekChar returns the next byte without consuming it, or -1.
func (p *Port) PeekChar() int {
	b, err := p.PeekByte()
	if err != nil {
		return -1
	}
	return int(b)
}

// ReadChar consumes and returns the next byte, or -1.
func (p *Port) ReadChar() int {
	b, err := p.ReadByte()
	if err != nil {
		return -1
	}
	return int(b)
}

// PeekByte is PeekChar with the closed and empty cases told apart.
func (p *Port) PeekByte() (byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return 0, ErrClosed
	}
	b, ok := p.handle.PeekChar()
	if !ok {
		return 0, ErrNoData
	}
	return b, nil
}

// ReadByte is ReadChar with the closed and empty cases told apart.
func (p *Port) ReadByte() (byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return 0, ErrClosed
	}
	b, ok := p.handle.ReadChar()
	if !ok {
		return 0, ErrNoData
	}
	return b, nil
}

// Read copies up to len(buf) already-received bytes into buf. It never
// waits; an open port with nothing buffered returns ErrNoData.
func (p *Port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return 0, ErrClosed
	}
	if br, ok := p.handle.(BulkReader); ok {
		if n := br.ReadAvailable(buf); n > 0 || len(buf) == 0 {
			return n, nil
		}
		return 0, ErrNoData
	}
	n := 0
	for n < len(buf) {
		b, ok := p.handle.ReadChar()
		if !ok {
			break
		}
		buf[n] = b
		n++
	}
	if n == 0 && len(buf) > 0 {
		return 0, ErrNoData
	}
	return n, nil
}

// AvailableForWrite returns the free transmit buffer space, or 0 when
// the port is closed or cannot transmit.
func (p *Port) AvailableForWrite() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil || !p.handle.TxEnabled() {
		return 0
	}
	return p.handle.TxFree()
}

// WriteChar queues b for transmission and returns 1, or 0 when the
// port is closed or cannot transmit.
func (p *Port) WriteChar(b byte) int {
	if p.WriteByte(b) != nil {
		return 0
	}
	return 1
}

// WriteByte is WriteChar with the failure cases told apart.
func (p *Port) WriteByte(b byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return ErrClosed
	}
	if !p.handle.TxEnabled() {
		return ErrTxDisabled
	}
	p.handle.WriteChar(b)
	return nil
}

// Write implements io.Writer by queueing every byte of b.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return 0, ErrClosed
	}
	if !p.handle.TxEnabled() {
		return 0, ErrTxDisabled
	}
	for _, c := range b {
		p.handle.WriteChar(c)
	}
	return len(b), nil
}

// WriteString queues s for transmission.
func (p *Port) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// Flush blocks until the transmit buffer has drained, then waits a
// further 11 bit periods for the last character to leave the shifter.
// It does nothing on a closed or receive-only port.
func (p *Port) Flush() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil || !p.handle.TxEnabled() {
		return
	}
	p.handle.WaitTxEmpty()
	if margin := FlushMargin(p.handle.BaudRate()); margin > 0 {
		p.delay(margin)
	}
}

// FlushMargin is the pause Flush adds after the driver reports the
// transmit buffer empty: 8 data bits, parity and 2 stop bits at baud,
// plus one microsecond.
func FlushMargin(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Duration(11_000_000/baud+1) * time.Microsecond
}

// BaudRate returns the baud rate the driver reports, or 0 when closed.
func (p *Port) BaudRate() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return 0
	}
	return p.handle.BaudRate()
}

// Err returns the asynchronous error the driver recorded for the open
// handle, such as a device that went away. It is nil for a closed port
// and for drivers that do not report one.
func (p *Port) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.handle.(ErrReporter); ok {
		return e.Err()
	}
	return nil
}

// RxOverflow returns how many received bytes the open handle has lost to
// a full receive buffer, or 0 for a closed port and for drivers that do
// not count them.
func (p *Port) RxOverflow() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if o, ok := p.handle.(OverflowReporter); ok {
		return o.RxOverflow()
	}
	return 0
}

// IsOpen reports whether the port holds a driver handle.
func (p *Port) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handle != nil
}
