package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/go-hwserial"
	"github.com/luhtfiimanal/go-hwserial/bugst"
	"github.com/luhtfiimanal/go-hwserial/internal/config"
)

var (
	ioOpts = struct {
		channel   int
		delimiter string
		line      string
	}{}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the serial ports the OS reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := bugst.PortNames()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	catCmd = &cobra.Command{
		Use:   "cat",
		Short: "Print lines received on a channel until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := openChannel(serial.Channel(ioOpts.channel))
			if err != nil {
				return err
			}
			defer port.End()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			r := &serial.LineReader{Port: port, Delimiter: unescape(ioOpts.delimiter)}
			var readErr error
			r.ReadLinesLoop(ctx,
				func(line string) { fmt.Fprintln(cmd.OutOrStdout(), line) },
				func(err error) { readErr = err },
			)
			if readErr == nil {
				readErr = port.Err()
			}
			return readErr
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Write one line to a channel and wait for it to leave",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := openChannel(serial.Channel(ioOpts.channel))
			if err != nil {
				return err
			}
			defer port.End()

			if err := port.WriteLine(ioOpts.line, unescape(ioOpts.delimiter)); err != nil {
				return err
			}
			port.Flush()
			return port.Err()
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Open every channel and send a diagnostic banner to the debug sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := config.Load(profilePath)
			if err != nil {
				return err
			}
			drv, err := newDriver(profile)
			if err != nil {
				return err
			}
			var ports []*serial.Port
			defer func() {
				for _, p := range ports {
					p.End()
				}
			}()
			for _, c := range profile.Channels {
				opts := c.Options()
				if serial.Channel(c.Channel) == profile.DebugChannel() {
					opts = append(opts, serial.WithDebugOnBegin("hwserial debug"))
				}
				p := serial.NewPort(serial.Channel(c.Channel), drv, opts...)
				if err := c.Begin(p); err != nil {
					log.Printf("channel %d: %v", c.Channel, err)
					continue
				}
				ports = append(ports, p)
			}

			sink := serial.DefaultDebugRouter.Get()
			log.Printf("debug sink: %s", sink)
			diag := log.New(serial.DefaultDebugRouter, "", log.LstdFlags)
			diag.Printf("hwserial debug: %d channel(s) open, sink %s", len(ports), sink)
			for _, p := range ports {
				diag.Printf("%s: baud=%d rx=%v tx=%v rxbuf=%d overflow=%d", p.Channel(), p.BaudRate(), p.IsRxEnabled(), p.IsTxEnabled(), p.RxBufferSize(), p.RxOverflow())
				if p.Channel() == sink {
					p.Flush()
				}
			}
			return nil
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{catCmd, sendCmd} {
		c.Flags().IntVarP(&ioOpts.channel, "channel", "c", 0, "channel number in the profile")
		c.Flags().StringVarP(&ioOpts.delimiter, "delimiter", "d", `\r\n`, "line delimiter")
	}
	sendCmd.Flags().StringVarP(&ioOpts.line, "line", "l", "", "line to send")
}

func openChannel(ch serial.Channel) (*serial.Port, error) {
	profile, err := config.Load(profilePath)
	if err != nil {
		return nil, err
	}
	c, ok := profile.Lookup(ch)
	if !ok {
		return nil, fmt.Errorf("channel %d not in %s", int(ch), profilePath)
	}
	drv, err := newDriver(profile)
	if err != nil {
		return nil, err
	}
	port := serial.NewPort(ch, drv, c.Options()...)
	if err := c.Begin(port); err != nil {
		return nil, err
	}
	return port, nil
}

// unescape turns the \r, \n and \t escapes typed on a command line into
// control characters.
func unescape(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}
