// Package config loads port profiles: which driver to use, how each
// channel is opened, and which channel carries debug output.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	serial "github.com/luhtfiimanal/go-hwserial"
)

var ErrInvalidProfile = errors.New("invalid profile")

const (
	DriverLinux = "linux"
	DriverBugst = "bugst"
)

type Profile struct {
	Driver   string          `yaml:"driver"`
	Debug    int             `yaml:"debug"`
	Channels []ChannelConfig `yaml:"channels"`
}

type ChannelConfig struct {
	Channel     int    `yaml:"channel"`
	Device      string `yaml:"device"`
	Baud        int    `yaml:"baud"`
	Format      string `yaml:"format"`
	Mode        string `yaml:"mode"`
	RxBuffer    int    `yaml:"rx_buffer"`
	RxOverwrite bool   `yaml:"rx_overwrite"`
	TxPin       *uint8 `yaml:"tx_pin"`
}

// Load reads and validates the profile at path.
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML profile, filling defaults: linux
// driver, no debug sink, 115200 8N1 full duplex.
func Parse(raw []byte) (*Profile, error) {
	p := Profile{Driver: DriverLinux, Debug: int(serial.NoUART)}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	for i := range p.Channels {
		c := &p.Channels[i]
		if c.Baud == 0 {
			c.Baud = 115200
		}
		if c.Format == "" {
			c.Format = "8N1"
		}
		if c.Mode == "" {
			c.Mode = "full"
		}
		if c.RxBuffer == 0 {
			c.RxBuffer = serial.DefaultRxBufferSize
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the profile for values no driver can honour.
func (p *Profile) Validate() error {
	switch p.Driver {
	case DriverLinux, DriverBugst:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidProfile, p.Driver)
	}
	if len(p.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidProfile)
	}
	seen := make(map[int]bool)
	for _, c := range p.Channels {
		if c.Channel < 0 {
			return fmt.Errorf("%w: negative channel %d", ErrInvalidProfile, c.Channel)
		}
		if seen[c.Channel] {
			return fmt.Errorf("%w: channel %d listed twice", ErrInvalidProfile, c.Channel)
		}
		seen[c.Channel] = true
		if c.Device == "" {
			return fmt.Errorf("%w: channel %d has no device", ErrInvalidProfile, c.Channel)
		}
		if c.Baud < 0 {
			return fmt.Errorf("%w: channel %d baud %d", ErrInvalidProfile, c.Channel, c.Baud)
		}
		if c.RxBuffer < 0 {
			return fmt.Errorf("%w: channel %d rx_buffer %d", ErrInvalidProfile, c.Channel, c.RxBuffer)
		}
		if _, err := serial.ParseFormat(c.Format); err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrInvalidProfile, c.Channel, err)
		}
		if _, err := ParseMode(c.Mode); err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrInvalidProfile, c.Channel, err)
		}
	}
	if p.Debug != int(serial.NoUART) && !seen[p.Debug] {
		return fmt.Errorf("%w: debug channel %d not configured", ErrInvalidProfile, p.Debug)
	}
	return nil
}

// Lookup returns the configuration of channel ch.
func (p *Profile) Lookup(ch serial.Channel) (ChannelConfig, bool) {
	for _, c := range p.Channels {
		if serial.Channel(c.Channel) == ch {
			return c, true
		}
	}
	return ChannelConfig{}, false
}

// Devices maps every configured channel to its device path.
func (p *Profile) Devices() map[serial.Channel]string {
	m := make(map[serial.Channel]string, len(p.Channels))
	for _, c := range p.Channels {
		m[serial.Channel(c.Channel)] = c.Device
	}
	return m
}

// DebugChannel returns the configured debug sink, or serial.NoUART.
func (p *Profile) DebugChannel() serial.Channel { return serial.Channel(p.Debug) }

// Options returns the port options the channel asks for, to pass to
// serial.NewPort.
func (c ChannelConfig) Options() []serial.Option {
	var opts []serial.Option
	if c.RxOverwrite {
		opts = append(opts, serial.WithRxOverwrite())
	}
	return opts
}

// Begin opens port with the settings of its channel and applies the
// receive buffer size first so the driver allocates it once.
func (c ChannelConfig) Begin(port *serial.Port) error {
	format, err := serial.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return err
	}
	txPin := serial.DefaultTxPin
	if c.TxPin != nil {
		txPin = *c.TxPin
	}
	port.SetRxBufferSize(c.RxBuffer)
	return port.Begin(c.Baud, format, mode, txPin)
}

// ParseMode accepts "full", "rx-only"/"rx" and "tx-only"/"tx".
func ParseMode(s string) (serial.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return serial.ModeFull, nil
	case "rx", "rx-only", "rx_only":
		return serial.ModeRxOnly, nil
	case "tx", "tx-only", "tx_only":
		return serial.ModeTxOnly, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}
