package serial

import "fmt"

// Channel identifies one physical UART.
type Channel int

const (
	// NoUART names no channel. It is the debug sink value meaning "none".
	NoUART Channel = -1
	UART0  Channel = 0
	UART1  Channel = 1
)

func (c Channel) String() string {
	if c == NoUART {
		return "none"
	}
	return fmt.Sprintf("UART%d", int(c))
}

// Mode selects which directions of a channel are enabled.
type Mode int

const (
	ModeFull Mode = iota
	ModeRxOnly
	ModeTxOnly
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeRxOnly:
		return "rx-only"
	case ModeTxOnly:
		return "tx-only"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// TxEnabled reports whether m includes the transmit direction.
func (m Mode) TxEnabled() bool { return m != ModeRxOnly }

// RxEnabled reports whether m includes the receive direction.
func (m Mode) RxEnabled() bool { return m != ModeTxOnly }

const (
	// DefaultRxBufferSize is the receive buffer size of a new Port.
	DefaultRxBufferSize = 256
	// DefaultTxPin is the TX pin Begin uses unless overridden.
	DefaultTxPin uint8 = 1
)

// OpenConfig carries everything a driver needs to open a channel.
type OpenConfig struct {
	BaudRate     int
	Format       Format
	Mode         Mode
	TxPin        uint8
	RxBufferSize int
	// RxOverwrite makes a full receive buffer drop its oldest byte to
	// make room; otherwise the incoming byte is lost.
	RxOverwrite bool
}

// Driver opens UART channels. A nil Handle with a nil error is treated
// the same as a failed open.
type Driver interface {
	Open(ch Channel, cfg OpenConfig) (Handle, error)
}

// Handle is an open driver-managed channel. Read-side calls never block.
type Handle interface {
	Close() error

	TxEnabled() bool
	RxEnabled() bool

	// RxAvailable returns the number of buffered received bytes.
	RxAvailable() int
	PeekChar() (byte, bool)
	ReadChar() (byte, bool)

	// TxFree returns the free space in the transmit buffer.
	TxFree() int
	WriteChar(b byte)
	// WaitTxEmpty blocks until the transmit buffer has drained.
	WaitTxEmpty()

	BaudRate() int
	// ResizeRxBuffer asks for a new receive buffer size and returns the
	// size actually granted.
	ResizeRxBuffer(size int) int

	Swap(txPin uint8)
	SetTx(txPin uint8)
	SetPins(tx, rx uint8)
}

// Optional Handle capabilities, discovered by Port at run time.
type (
	// ErrReporter is implemented by handles whose background reader can
	// fail, for example when the device goes away.
	ErrReporter interface{ Err() error }
	// OverflowReporter counts received bytes lost to a full buffer.
	OverflowReporter interface{ RxOverflow() int }
	// BulkReader moves up to len(p) buffered bytes into p in one call.
	BulkReader interface{ ReadAvailable(p []byte) int }
)
