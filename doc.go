// Package serial provides an Arduino-style serial port on top of a
// pluggable UART driver.
//
// A Port is bound to one Channel of a Driver. Begin opens the channel,
// End releases it, and everything in between is forwarded to the
// driver's Handle. A closed port never faults: the sentinel methods
// return -1 or 0 and the explicit-result methods return ErrClosed.
//
// Features:
//   - Sentinel API (ReadChar, PeekChar, WriteChar, Available, Flush, ...)
//     alongside io.Reader/io.Writer/io.ByteReader/io.ByteWriter
//   - Debug output routing through a DebugRouter, at most one sink channel
//   - Flush waits for the driver to drain, then for the last character
//     to leave the shifter
//   - Linux tty driver (raw termios, self-pipe killable reader)
//   - Portable driver in package bugst, in-memory driver in package uartsim
//   - Line-oriented reading with custom delimiter (default: \r\n)
//
// Example usage:
//
//	drv := &serial.LinuxDriver{Devices: map[serial.Channel]string{
//	    serial.UART0: "/dev/ttyUSB0",
//	}}
//	port := serial.NewPort(serial.UART0, drv)
//	if err := port.BeginDefault(115200); err != nil {
//	    log.Fatal(err)
//	}
//	defer port.End()
//
//	port.SetDebugOutput(true)
//	log.SetOutput(serial.DefaultDebugRouter)
//
//	r := &serial.LineReader{Port: port}
//	go r.ReadLinesLoop(ctx,
//	    func(line string) { fmt.Println("Received:", line) },
//	    func(err error) { log.Println("Read error:", err) },
//	)
//
//	if err := port.WriteLine("C,START", "\r\n"); err != nil {
//	    log.Println("Write failed:", err)
//	}
//	port.Flush()
package serial
