package serial

import (
	"io"
	"sync"
)

// DebugRouter names at most one channel as the destination for
// diagnostic output. Ports attach themselves while open so that writes to
// the router reach whichever of them is the current sink.
// It is safe for concurrent use.
type DebugRouter struct {
	mu    sync.Mutex
	sink  Channel
	ports map[Channel]io.Writer
}

// DefaultDebugRouter is the process-wide router ports use unless
// WithDebugRouter says otherwise.
var DefaultDebugRouter = NewDebugRouter()

// NewDebugRouter returns a router with no sink.
func NewDebugRouter() *DebugRouter {
	return &DebugRouter{sink: NoUART, ports: make(map[Channel]io.Writer)}
}

// Set makes ch the debug sink. Setting NoUART clears it.
func (r *DebugRouter) Set(ch Channel) {
	r.mu.Lock()
	r.sink = ch
	r.mu.Unlock()
}

// Get returns the current sink, or NoUART.
func (r *DebugRouter) Get() Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink
}

// Clear removes the sink.
func (r *DebugRouter) Clear() { r.Set(NoUART) }

// ClearIf removes the sink only if it is ch. It reports whether it did.
func (r *DebugRouter) ClearIf(ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink != ch {
		return false
	}
	r.sink = NoUART
	return true
}

func (r *DebugRouter) attach(ch Channel, w io.Writer) {
	r.mu.Lock()
	r.ports[ch] = w
	r.mu.Unlock()
}

func (r *DebugRouter) detach(ch Channel, w io.Writer) {
	r.mu.Lock()
	if r.ports[ch] == w {
		delete(r.ports, ch)
	}
	r.mu.Unlock()
}

// Write forwards p to the sink port. Without a sink, or when the sink is
// not attached, the bytes are discarded and reported as written.
func (r *DebugRouter) Write(p []byte) (int, error) {
	r.mu.Lock()
	w := r.ports[r.sink]
	r.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}
