//go:build !linux

package main

import (
	"fmt"

	serial "github.com/luhtfiimanal/go-hwserial"
	"github.com/luhtfiimanal/go-hwserial/bugst"
	"github.com/luhtfiimanal/go-hwserial/internal/config"
)

func newDriver(p *config.Profile) (serial.Driver, error) {
	if p.Driver == config.DriverLinux {
		return nil, fmt.Errorf("driver %q is only available on linux", p.Driver)
	}
	return &bugst.Driver{Ports: p.Devices()}, nil
}
