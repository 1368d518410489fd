package serial

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultDelimiter terminates lines unless LineReader.Delimiter says
// otherwise.
const DefaultDelimiter = "\r\n"

// LineReader reads delimiter-terminated lines from an open Port.
// Port reads never block, so the reader polls at Interval while idle.
type LineReader struct {
	Port      *Port
	Delimiter string        // default "\r\n"
	Interval  time.Duration // default 1ms

	pending string
}

func (r *LineReader) delimiter() string {
	if r.Delimiter == "" {
		return DefaultDelimiter
	}
	return r.Delimiter
}

func (r *LineReader) interval() time.Duration {
	if r.Interval <= 0 {
		return time.Millisecond
	}
	return r.Interval
}

// ReadLine blocks until a full line has been received, the port is
// closed, the driver reports an error through Port.Err, or ctx is done.
// The delimiter is stripped.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	buf := make([]byte, 256)
	delim := r.delimiter()
	for {
		if idx := strings.Index(r.pending, delim); idx >= 0 {
			line := r.pending[:idx]
			r.pending = r.pending[idx+len(delim):]
			return line, nil
		}
		n, err := r.Port.Read(buf)
		switch {
		case err == nil:
			r.pending += string(buf[:n])
			continue
		case !errors.Is(err, ErrNoData):
			return "", err
		}
		// Nothing buffered: a dead reader will never deliver more.
		if err := r.Port.Err(); err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.interval()):
		}
	}
}

// ReadLinesLoop calls onLine for every received line until ctx is done,
// the port is closed, or the driver fails. Closed ports and driver errors
// are reported through onError; a cancelled ctx ends the loop silently.
func (r *LineReader) ReadLinesLoop(ctx context.Context, onLine func(string), onError func(error)) {
	for {
		line, err := r.ReadLine(ctx)
		if err != nil {
			if ctx.Err() == nil {
				onError(err)
			}
			return
		}
		onLine(line)
	}
}

// WriteLine writes line followed by newline to the port.
func (p *Port) WriteLine(line string, newline string) error {
	_, err := p.WriteString(line + newline)
	return err
}
