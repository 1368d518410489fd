package serial

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/luhtfiimanal/go-hwserial/internal/ringbuf"
)

// DefaultTxBufferSize is the transmit capacity LinuxDriver reports when
// its TxBufferSize is zero. It matches the kernel's tty write room.
const DefaultTxBufferSize = 4096

// LinuxDriver opens channels as Linux tty devices. Each channel maps to a
// device path such as /dev/ttyUSB0. Received bytes are pulled off the tty
// by a background reader into a ring of the configured size.
type LinuxDriver struct {
	Devices      map[Channel]string
	TxBufferSize int
}

// Open implements Driver. The tty is put in raw mode with the requested
// format; an unsupported baud rate falls back to 115200, which BaudRate
// then reports.
func (d *LinuxDriver) Open(ch Channel, cfg OpenConfig) (Handle, error) {
	device, ok := d.Devices[ch]
	if !ok {
		return nil, fmt.Errorf("no device for %s", ch)
	}
	if !cfg.Format.Valid() {
		return nil, fmt.Errorf("invalid format %s", cfg.Format)
	}

	fd, err := syscall.Open(device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	baud, err := configureTTY(fd, cfg)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}

	// Turn back into blocking mode now that config is done
	syscall.SetNonblock(fd, false)

	// Create self-pipe for killability
	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	txCap := d.TxBufferSize
	if txCap <= 0 {
		txCap = DefaultTxBufferSize
	}
	rxSize := cfg.RxBufferSize
	if !cfg.Mode.RxEnabled() {
		rxSize = 0
	}

	h := &ttyHandle{
		fd:    fd,
		file:  os.NewFile(uintptr(fd), device),
		done:  make(chan struct{}),
		cfg:   cfg,
		baud:  baud,
		txCap: txCap,
		rx:    ringbuf.New(rxSize, cfg.RxOverwrite),
		pipeR: pipeFds[0],
		pipeW: pipeFds[1],
		txPin: cfg.TxPin,
	}
	if cfg.Mode.RxEnabled() {
		h.wg.Add(1)
		go h.readLoop()
	}
	return h, nil
}

func configureTTY(fd int, cfg OpenConfig) (int, error) {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return 0, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	// Frame format
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	termios.Cflag |= dataBitsToUnix(cfg.Format.DataBits) | unix.CLOCAL
	switch cfg.Format.Parity {
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	}
	if cfg.Format.StopBits == TwoStopBits {
		termios.Cflag |= unix.CSTOPB
	}
	if cfg.Mode.RxEnabled() {
		termios.Cflag |= unix.CREAD
	} else {
		termios.Cflag &^= unix.CREAD
	}

	// Baud rate
	flag, baud := baudToUnix(cfg.BaudRate)
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= flag

	// Set VMIN=1, VTIME=0 for immediate, non-blocking reads
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return 0, fmt.Errorf("set termios: %w", err)
	}
	return baud, nil
}

// ttyHandle is an open tty channel. Close is safe to call from any
// goroutine and unblocks the reader through the self-pipe.
type ttyHandle struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	cfg       OpenConfig
	baud      int
	txCap     int
	rx        *ringbuf.Ring
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd

	mu    sync.Mutex
	err   error
	txPin uint8
	rxPin uint8
	swap  bool
}

func (h *ttyHandle) readLoop() {
	defer h.wg.Done()
	buf := make([]byte, 4096)
	for {
		// Use poll to wait for data or kill signal
		pfd := []unix.PollFd{
			{Fd: int32(h.fd), Events: unix.POLLIN},
			{Fd: int32(h.pipeR), Events: unix.POLLIN},
		}
		_, err := unix.Poll(pfd, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			h.fail(err)
			return
		}
		// Check killability
		select {
		case <-h.done:
			return
		default:
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := h.file.Read(buf)
			if err != nil {
				h.fail(err)
				return
			}
			h.rx.Write(buf[:n])
		}
	}
}

func (h *ttyHandle) fail(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
}

// Err returns the error that stopped the reader, if any.
func (h *ttyHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Close stops the reader and releases the tty.
// Safe to call multiple times; subsequent calls are no-ops.
func (h *ttyHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		// Wake up poll using self-pipe
		unix.Write(h.pipeW, []byte{1})
		h.wg.Wait()
		err = h.file.Close()
		unix.Close(h.pipeR)
		unix.Close(h.pipeW)
	})
	return err
}

func (h *ttyHandle) TxEnabled() bool { return h.cfg.Mode.TxEnabled() }
func (h *ttyHandle) RxEnabled() bool { return h.cfg.Mode.RxEnabled() }

func (h *ttyHandle) RxAvailable() int       { return h.rx.Len() }
func (h *ttyHandle) PeekChar() (byte, bool) { return h.rx.PeekByte() }
func (h *ttyHandle) ReadChar() (byte, bool) { return h.rx.Get() }

// ReadAvailable drains the ring into p in one locked pass.
func (h *ttyHandle) ReadAvailable(p []byte) int { return h.rx.Read(p) }

// RxOverflow counts bytes the reader could not fit into the ring.
func (h *ttyHandle) RxOverflow() int { return h.rx.Overflow() }

// TxFree subtracts the bytes still queued in the kernel from the
// configured transmit capacity.
func (h *ttyHandle) TxFree() int {
	queued, err := unix.IoctlGetInt(h.fd, unix.TIOCOUTQ)
	if err != nil {
		return 0
	}
	if free := h.txCap - queued; free > 0 {
		return free
	}
	return 0
}

func (h *ttyHandle) WriteChar(b byte) {
	if _, err := h.file.Write([]byte{b}); err != nil {
		h.fail(err)
	}
}

// WaitTxEmpty is tcdrain(3).
func (h *ttyHandle) WaitTxEmpty() {
	if err := unix.IoctlSetInt(h.fd, unix.TCSBRK, 1); err != nil {
		h.fail(err)
	}
}

func (h *ttyHandle) BaudRate() int { return h.baud }

func (h *ttyHandle) ResizeRxBuffer(size int) int {
	if !h.cfg.Mode.RxEnabled() {
		return 0
	}
	return h.rx.Resize(size)
}

// A tty has no pin matrix; the pin calls only record what was asked for.

func (h *ttyHandle) Swap(txPin uint8) {
	h.mu.Lock()
	h.swap = !h.swap
	h.txPin = txPin
	h.mu.Unlock()
}

func (h *ttyHandle) SetTx(txPin uint8) {
	h.mu.Lock()
	h.txPin = txPin
	h.mu.Unlock()
}

func (h *ttyHandle) SetPins(tx, rx uint8) {
	h.mu.Lock()
	h.txPin, h.rxPin = tx, rx
	h.mu.Unlock()
}

func dataBitsToUnix(bits int) uint32 {
	switch bits {
	case 5:
		return unix.CS5
	case 6:
		return unix.CS6
	case 7:
		return unix.CS7
	default:
		return unix.CS8
	}
}

func baudToUnix(baud int) (uint32, int) {
	switch baud {
	case 1200:
		return unix.B1200, baud
	case 2400:
		return unix.B2400, baud
	case 4800:
		return unix.B4800, baud
	case 9600:
		return unix.B9600, baud
	case 19200:
		return unix.B19200, baud
	case 38400:
		return unix.B38400, baud
	case 57600:
		return unix.B57600, baud
	case 115200:
		return unix.B115200, baud
	case 230400:
		return unix.B230400, baud
	case 460800:
		return unix.B460800, baud
	case 921600:
		return unix.B921600, baud
	case 1000000:
		return unix.B1000000, baud
	case 2000000:
		return unix.B2000000, baud
	default:
		return unix.B115200, 115200 // fallback
	}
}
