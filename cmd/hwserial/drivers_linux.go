package main

import (
	serial "github.com/luhtfiimanal/go-hwserial"
	"github.com/luhtfiimanal/go-hwserial/bugst"
	"github.com/luhtfiimanal/go-hwserial/internal/config"
)

func newDriver(p *config.Profile) (serial.Driver, error) {
	if p.Driver == config.DriverBugst {
		return &bugst.Driver{Ports: p.Devices()}, nil
	}
	return &serial.LinuxDriver{Devices: p.Devices()}, nil
}
