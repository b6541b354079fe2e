package serial

import (
	"bytes"
	"io"
	"testing"

	"github.com/SFYMMIK/Cygnus/device"
	"github.com/SFYMMIK/Cygnus/kernel/cpu"
)

// fakeUART records port writes and serves reads for a single UART.
type fakeUART struct {
	writes  []portWrite
	tx      []byte
	rx      []byte
	scratch uint8

	// busyPolls is the number of LSR reads that report a busy
	// transmitter before it becomes ready.
	busyPolls int
}

type portWrite struct {
	port uint16
	val  uint8
}

func (f *fakeUART) install(t *testing.T, base uint16) {
	portWriteByteFn = func(port uint16, val uint8) {
		f.writes = append(f.writes, portWrite{port, val})
		switch port - base {
		case regData:
			f.tx = append(f.tx, val)
		case regScratch:
			f.scratch = val
		}
	}

	portReadByteFn = func(port uint16) uint8 {
		switch port - base {
		case regLSR:
			var lsr uint8
			if f.busyPolls > 0 {
				f.busyPolls--
			} else {
				lsr |= lsrTHREmpty
			}
			if len(f.rx) != 0 {
				lsr |= lsrDataReady
			}
			return lsr
		case regData:
			if len(f.rx) == 0 {
				return 0
			}
			b := f.rx[0]
			f.rx = f.rx[1:]
			return b
		case regScratch:
			return f.scratch
		}
		return 0xff
	}

	t.Cleanup(func() {
		portWriteByteFn = cpu.PortWriteByte
		portReadByteFn = cpu.PortReadByte
	})
}

func TestDriverInit(t *testing.T) {
	var (
		fake fakeUART
		buf  bytes.Buffer
		drv  = NewUart16550(COM1)
	)
	fake.install(t, COM1)

	if err := drv.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	exp := []portWrite{
		{COM1 + regIER, 0x00},
		{COM1 + regLCR, 0x80},
		{COM1 + regData, 0x01},
		{COM1 + regIER, 0x00},
		{COM1 + regLCR, 0x03},
		{COM1 + regFCR, 0xc7},
		{COM1 + regMCR, 0x03},
	}

	if len(fake.writes) != len(exp) {
		t.Fatalf("expected %d port writes; got %d", len(exp), len(fake.writes))
	}

	for i, w := range exp {
		if fake.writes[i] != w {
			t.Errorf("[write %d] expected %+v; got %+v", i, w, fake.writes[i])
		}
	}

	if exp, got := "port 0x3f8, 115200 8N1\n", buf.String(); got != exp {
		t.Errorf("expected init output %q; got %q", exp, got)
	}
}

func TestDriverInfo(t *testing.T) {
	var drv device.Driver = NewUart16550(COM1)

	if exp, got := "uart16550", drv.DriverName(); got != exp {
		t.Errorf("expected driver name %q; got %q", exp, got)
	}

	if major, minor, patch := drv.DriverVersion(); major != 0 || minor != 0 || patch != 1 {
		t.Errorf("expected driver version 0.0.1; got %d.%d.%d", major, minor, patch)
	}
}

func TestWrite(t *testing.T) {
	var fake fakeUART
	fake.install(t, COM1)
	fake.busyPolls = 3

	drv := NewUart16550(COM1)

	var w io.Writer = drv
	n, err := w.Write([]byte("ok\npanic\n"))
	if err != nil {
		t.Fatal(err)
	}

	if n != 9 {
		t.Fatalf("expected Write to report 9 bytes; got %d", n)
	}

	if exp, got := "ok\r\npanic\r\n", string(fake.tx); got != exp {
		t.Fatalf("expected transmitted bytes %q; got %q", exp, got)
	}

	if fake.busyPolls != 0 {
		t.Fatal("expected Write to wait for the transmitter to become ready")
	}
}

func TestRead(t *testing.T) {
	var fake fakeUART
	fake.install(t, COM1)

	drv := NewUart16550(COM1)

	if drv.CanRead() {
		t.Fatal("expected CanRead to return false with an empty receiver")
	}

	if n, err := drv.Read(nil); n != 0 || err != nil {
		t.Fatalf("expected (0, nil) for an empty buffer; got (%d, %v)", n, err)
	}

	fake.rx = []byte("ls\r")

	b, err := drv.ReadByte()
	if err != nil || b != 'l' {
		t.Fatalf("expected ReadByte to return 'l'; got %q (%v)", b, err)
	}

	buf := make([]byte, 8)
	n, err := drv.Read(buf)
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := "s\r", string(buf[:n]); got != exp {
		t.Fatalf("expected Read to return %q; got %q", exp, got)
	}
}

func TestProbe(t *testing.T) {
	var fake fakeUART
	fake.install(t, COM1)

	if drv := ProbeCOM1(); drv == nil {
		t.Fatal("expected ProbeCOM1 to detect the UART")
	} else if drv != device.Driver(&com1) {
		t.Fatal("expected ProbeCOM1 to return the static COM1 driver")
	}

	// a missing UART floats the bus
	portReadByteFn = func(uint16) uint8 { return 0xff }
	if drv := ProbeCOM1(); drv != nil {
		t.Fatal("expected ProbeCOM1 to return nil when no UART responds")
	}
}
