// Package bugst is a serial.Driver backed by go.bug.st/serial, for hosts
// where the Linux termios driver is not available.
package bugst

import (
	"fmt"
	"sync"
	"time"

	gobug "go.bug.st/serial"

	serial "github.com/luhtfiimanal/go-hwserial"
	"github.com/luhtfiimanal/go-hwserial/internal/ringbuf"
)

// allow tests to override external dependencies
var (
	openPort     = func(name string, mode *gobug.Mode) (portHandle, error) { return gobug.Open(name, mode) }
	getPortsList = gobug.GetPortsList
)

// DefaultTxBufferSize is the transmit capacity reported by TxFree.
const DefaultTxBufferSize = 4096

// pollInterval bounds how long the reader sits in Read before checking
// for Close.
const pollInterval = 50 * time.Millisecond

// portHandle is the subset of gobug.Port this driver uses.
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// PortNames lists the serial ports the OS reports.
func PortNames() ([]string, error) {
	names, err := getPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return names, nil
}

// Driver maps channels to OS port names.
type Driver struct {
	Ports        map[serial.Channel]string
	TxBufferSize int
}

// Open implements serial.Driver.
func (d *Driver) Open(ch serial.Channel, cfg serial.OpenConfig) (serial.Handle, error) {
	name, ok := d.Ports[ch]
	if !ok {
		return nil, fmt.Errorf("no port for %s", ch)
	}
	mode, err := modeFor(cfg)
	if err != nil {
		return nil, err
	}
	port, err := openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input: %w", err)
	}

	txCap := d.TxBufferSize
	if txCap <= 0 {
		txCap = DefaultTxBufferSize
	}
	rxSize := cfg.RxBufferSize
	if !cfg.Mode.RxEnabled() {
		rxSize = 0
	}
	h := &handle{
		port:  port,
		cfg:   cfg,
		txCap: txCap,
		rx:    ringbuf.New(rxSize, cfg.RxOverwrite),
		done:  make(chan struct{}),
		txPin: cfg.TxPin,
	}
	if cfg.Mode.RxEnabled() {
		h.wg.Add(1)
		go h.readLoop()
	}
	return h, nil
}

func modeFor(cfg serial.OpenConfig) (*gobug.Mode, error) {
	if !cfg.Format.Valid() {
		return nil, fmt.Errorf("invalid format %s", cfg.Format)
	}
	mode := &gobug.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.Format.DataBits,
		Parity:   gobug.NoParity,
		StopBits: gobug.OneStopBit,
	}
	switch cfg.Format.Parity {
	case serial.ParityEven:
		mode.Parity = gobug.EvenParity
	case serial.ParityOdd:
		mode.Parity = gobug.OddParity
	}
	if cfg.Format.StopBits == serial.TwoStopBits {
		mode.StopBits = gobug.TwoStopBits
	}
	return mode, nil
}

type handle struct {
	port      portHandle
	cfg       serial.OpenConfig
	txCap     int
	rx        *ringbuf.Ring
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	err     error
	queued  int
	txPin   uint8
	rxPin   uint8
	swapped bool
}

func (h *handle) readLoop() {
	defer h.wg.Done()
	buf := make([]byte, 1024)
	for {
		select {
		case <-h.done:
			return
		default:
		}
		n, err := h.port.Read(buf)
		if err != nil {
			select {
			case <-h.done:
			default:
				h.fail(err)
			}
			return
		}
		if n > 0 {
			h.rx.Write(buf[:n])
		}
	}
}

func (h *handle) fail(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
}

// Err returns the error that stopped the reader or the last write error.
func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		err = h.port.Close()
		h.wg.Wait()
	})
	return err
}

func (h *handle) TxEnabled() bool { return h.cfg.Mode.TxEnabled() }
func (h *handle) RxEnabled() bool { return h.cfg.Mode.RxEnabled() }

func (h *handle) RxAvailable() int       { return h.rx.Len() }
func (h *handle) PeekChar() (byte, bool) { return h.rx.PeekByte() }
func (h *handle) ReadChar() (byte, bool) { return h.rx.Get() }

func (h *handle) ReadAvailable(p []byte) int { return h.rx.Read(p) }

// RxOverflow counts bytes the reader could not fit into the ring.
func (h *handle) RxOverflow() int { return h.rx.Overflow() }

// TxFree reports the capacity less the bytes written since the last
// drain. The OS queue depth is not visible through go.bug.st/serial.
func (h *handle) TxFree() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if free := h.txCap - h.queued; free > 0 {
		return free
	}
	return 0
}

func (h *handle) WriteChar(b byte) {
	_, err := h.port.Write([]byte{b})
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		if h.err == nil {
			h.err = err
		}
		return
	}
	h.queued++
}

func (h *handle) WaitTxEmpty() {
	err := h.port.Drain()
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		if h.err == nil {
			h.err = err
		}
		return
	}
	h.queued = 0
}

func (h *handle) BaudRate() int { return h.cfg.BaudRate }

func (h *handle) ResizeRxBuffer(size int) int {
	if !h.cfg.Mode.RxEnabled() {
		return 0
	}
	return h.rx.Resize(size)
}

func (h *handle) Swap(txPin uint8) {
	h.mu.Lock()
	h.swapped = !h.swapped
	h.txPin = txPin
	h.mu.Unlock()
}

func (h *handle) SetTx(txPin uint8) {
	h.mu.Lock()
	h.txPin = txPin
	h.mu.Unlock()
}

func (h *handle) SetPins(tx, rx uint8) {
	h.mu.Lock()
	h.txPin, h.rxPin = tx, rx
	h.mu.Unlock()
}
