package serial

import (
	"fmt"
	"strings"
)

// Parity is the parity setting of a data format.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// StopBits is the number of stop bits of a data format.
type StopBits uint8

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// Format describes the frame layout: data bits, parity and stop bits.
// The zero value is invalid; use Format8N1 for the common case.
type Format struct {
	DataBits int
	Parity   Parity
	StopBits StopBits
}

var (
	Format5N1 = Format{5, ParityNone, OneStopBit}
	Format6N1 = Format{6, ParityNone, OneStopBit}
	Format7N1 = Format{7, ParityNone, OneStopBit}
	Format8N1 = Format{8, ParityNone, OneStopBit}
	Format5N2 = Format{5, ParityNone, TwoStopBits}
	Format6N2 = Format{6, ParityNone, TwoStopBits}
	Format7N2 = Format{7, ParityNone, TwoStopBits}
	Format8N2 = Format{8, ParityNone, TwoStopBits}
	Format5E1 = Format{5, ParityEven, OneStopBit}
	Format6E1 = Format{6, ParityEven, OneStopBit}
	Format7E1 = Format{7, ParityEven, OneStopBit}
	Format8E1 = Format{8, ParityEven, OneStopBit}
	Format5E2 = Format{5, ParityEven, TwoStopBits}
	Format6E2 = Format{6, ParityEven, TwoStopBits}
	Format7E2 = Format{7, ParityEven, TwoStopBits}
	Format8E2 = Format{8, ParityEven, TwoStopBits}
	Format5O1 = Format{5, ParityOdd, OneStopBit}
	Format6O1 = Format{6, ParityOdd, OneStopBit}
	Format7O1 = Format{7, ParityOdd, OneStopBit}
	Format8O1 = Format{8, ParityOdd, OneStopBit}
	Format5O2 = Format{5, ParityOdd, TwoStopBits}
	Format6O2 = Format{6, ParityOdd, TwoStopBits}
	Format7O2 = Format{7, ParityOdd, TwoStopBits}
	Format8O2 = Format{8, ParityOdd, TwoStopBits}
)

// Valid reports whether f is a frame layout a UART can produce.
func (f Format) Valid() bool {
	return f.DataBits >= 5 && f.DataBits <= 8 &&
		f.Parity <= ParityOdd && f.StopBits <= TwoStopBits
}

// String renders f in the conventional "8N1" notation.
func (f Format) String() string {
	p := "N"
	switch f.Parity {
	case ParityEven:
		p = "E"
	case ParityOdd:
		p = "O"
	}
	s := 1
	if f.StopBits == TwoStopBits {
		s = 2
	}
	return fmt.Sprintf("%d%s%d", f.DataBits, p, s)
}

// ParseFormat parses "8N1"-style notation, case-insensitively.
func ParseFormat(s string) (Format, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return Format{}, fmt.Errorf("invalid format %q", s)
	}
	var f Format
	if s[0] < '5' || s[0] > '8' {
		return Format{}, fmt.Errorf("invalid data bits in format %q", s)
	}
	f.DataBits = int(s[0] - '0')
	switch s[1] {
	case 'N':
		f.Parity = ParityNone
	case 'E':
		f.Parity = ParityEven
	case 'O':
		f.Parity = ParityOdd
	default:
		return Format{}, fmt.Errorf("invalid parity in format %q", s)
	}
	switch s[2] {
	case '1':
		f.StopBits = OneStopBit
	case '2':
		f.StopBits = TwoStopBits
	default:
		return Format{}, fmt.Errorf("invalid stop bits in format %q", s)
	}
	return f, nil
}
