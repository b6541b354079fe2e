// Package serial implements a polled driver for 16550-compatible UARTs.
package serial

import (
	"io"

	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/cpu"
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
)

// COM1 is the I/O base port of the first serial port.
const COM1 = uint16(0x3f8)

// Register offsets relative to the base port. While LCR.DLAB is set, regData
// and regIER hold the low and high byte of the baud rate divisor.
const (
	regData    = 0
	regIER     = 1
	regFCR     = 2
	regLCR     = 3
	regMCR     = 4
	regLSR     = 5
	regScratch = 7
)

const (
	lcrDLAB = 0x80
	lcr8N1  = 0x03

	// enable and clear both FIFOs; 14 byte receive threshold
	fcrEnableClear14 = 0xc7

	// DTR and RTS; interrupts are not used so OUT2 stays clear
	mcrDTRRTS = 0x03

	lsrDataReady = 0x01
	lsrTHREmpty  = 0x20

	// divisor115200 selects 115200 baud (clock / 16 / 115200 = 1).
	divisor115200 = 1
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// Uart16550 drives a 16550 UART using polled I/O at 115200 baud, 8 data bits,
// no parity and 1 stop bit. Writes translate '\n' to "\r\n" so that output
// renders correctly on serial terminals.
type Uart16550 struct {
	port uint16
}

// NewUart16550 returns a driver for the UART at the supplied base port.
func NewUart16550(port uint16) *Uart16550 {
	return &Uart16550{port: port}
}

// DriverName returns the name of this driver.
func (d *Uart16550) DriverName() string {
	return "uart16550"
}

// DriverVersion returns the version of this driver.
func (d *Uart16550) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit programs the UART for 115200 8N1 with FIFOs enabled and
// interrupts disabled.
func (d *Uart16550) DriverInit(w io.Writer) *kernel.Error {
	portWriteByteFn(d.port+regIER, 0x00)

	portWriteByteFn(d.port+regLCR, lcrDLAB)
	portWriteByteFn(d.port+regData, divisor115200&0xff)
	portWriteByteFn(d.port+regIER, divisor115200>>8)

	portWriteByteFn(d.port+regLCR, lcr8N1)
	portWriteByteFn(d.port+regFCR, fcrEnableClear14)
	portWriteByteFn(d.port+regMCR, mcrDTRRTS)

	// drain stale status and data
	_ = portReadByteFn(d.port + regLSR)
	_ = portReadByteFn(d.port + regData)

	kfmt.Fprintf(w, "port 0x%x, 115200 8N1\n", d.port)
	return nil
}

// Write implements io.Writer. It blocks until every byte has been handed to
// the transmitter.
func (d *Uart16550) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			d.writeByte('\r')
		}
		d.writeByte(b)
	}

	return len(p), nil
}

// CanRead returns true if a received byte is waiting.
func (d *Uart16550) CanRead() bool {
	return portReadByteFn(d.port+regLSR)&lsrDataReady != 0
}

// ReadByte blocks until a byte is received and returns it.
func (d *Uart16550) ReadByte() (byte, error) {
	for !d.CanRead() {
	}
	return portReadByteFn(d.port + regData), nil
}

// Read implements io.Reader. It blocks until at least one byte is available
// and then returns whatever the receiver holds, up to len(p) bytes.
func (d *Uart16550) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	p[0], _ = d.ReadByte()
	n := 1
	for ; n < len(p) && d.CanRead(); n++ {
		p[n] = portReadByteFn(d.port + regData)
	}

	return n, nil
}

func (d *Uart16550) writeByte(b byte) {
	for portReadByteFn(d.port+regLSR)&lsrTHREmpty == 0 {
	}
	portWriteByteFn(d.port+regData, b)
}
