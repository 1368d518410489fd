package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	serial "github.com/luhtfiimanal/go-hwserial"
	"github.com/luhtfiimanal/go-hwserial/uartsim"
)

const sample = `
driver: bugst
debug: 1
channels:
  - channel: 0
    device: /dev/ttyUSB0
    baud: 9600
    format: 7e1
    mode: rx-only
    rx_buffer: 512
    rx_overwrite: true
  - channel: 1
    device: /dev/ttyUSB1
    tx_pin: 2
`

func TestParse_Sample(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, DriverBugst, p.Driver)
	require.Equal(t, serial.UART1, p.DebugChannel())

	c0, ok := p.Lookup(serial.UART0)
	require.True(t, ok)
	require.Equal(t, 9600, c0.Baud)
	require.Equal(t, 512, c0.RxBuffer)
	require.True(t, c0.RxOverwrite)

	c1, ok := p.Lookup(serial.UART1)
	require.True(t, ok)
	require.Equal(t, 115200, c1.Baud)
	require.Equal(t, "8N1", c1.Format)
	require.Equal(t, "full", c1.Mode)
	require.Equal(t, serial.DefaultRxBufferSize, c1.RxBuffer)
	require.NotNil(t, c1.TxPin)
	require.Equal(t, uint8(2), *c1.TxPin)

	require.Equal(t, map[serial.Channel]string{
		serial.UART0: "/dev/ttyUSB0",
		serial.UART1: "/dev/ttyUSB1",
	}, p.Devices())
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse([]byte("channels:\n  - channel: 0\n    device: /dev/ttyS0\n"))
	require.NoError(t, err)
	require.Equal(t, DriverLinux, p.Driver)
	require.Equal(t, serial.NoUART, p.DebugChannel())
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver":  "driver: usb\nchannels: [{channel: 0, device: /dev/x}]",
		"no channels":     "driver: linux",
		"duplicate":       "channels: [{channel: 0, device: a}, {channel: 0, device: b}]",
		"missing device":  "channels: [{channel: 0}]",
		"bad format":      "channels: [{channel: 0, device: a, format: 9Q1}]",
		"bad mode":        "channels: [{channel: 0, device: a, mode: half}]",
		"debug not set":   "debug: 3\nchannels: [{channel: 0, device: a}]",
		"negative buffer": "channels: [{channel: 0, device: a, rx_buffer: -1}]",
	}
	for name, raw := range cases {
		_, err := Parse([]byte(raw))
		require.ErrorIs(t, err, ErrInvalidProfile, name)
	}

	_, err := Parse([]byte("channels: ["))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	p, err := Load(path)
	require.NoError(t, err)
	require.Len(t, p.Channels, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestChannelConfig_Begin(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)
	c0, _ := p.Lookup(serial.UART0)

	sim := uartsim.New()
	opts := append(c0.Options(), serial.WithDebugRouter(serial.NewDebugRouter()))
	port := serial.NewPort(serial.UART0, sim, opts...)
	require.NoError(t, c0.Begin(port))
	defer port.End()

	cfg := sim.UART(serial.UART0).Config()
	require.Equal(t, 9600, cfg.BaudRate)
	require.Equal(t, serial.Format7E1, cfg.Format)
	require.Equal(t, serial.ModeRxOnly, cfg.Mode)
	require.Equal(t, serial.DefaultTxPin, cfg.TxPin)
	require.Equal(t, 512, cfg.RxBufferSize)
	require.True(t, cfg.RxOverwrite)
	require.False(t, port.IsTxEnabled())
}

func TestChannelConfig_OptionsDefault(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)
	c1, _ := p.Lookup(serial.UART1)
	require.False(t, c1.RxOverwrite)
	require.Empty(t, c1.Options())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("TX")
	require.NoError(t, err)
	require.Equal(t, serial.ModeTxOnly, m)
	_, err = ParseMode("both")
	require.Error(t, err)
}
