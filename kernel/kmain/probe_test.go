package kmain

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/SFYMMIK/Cygnus/device"
	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
)

func TestProbeDrivers(t *testing.T) {
	defer kfmt.SetOutputSink(nil)

	t.Run("console attached", func(t *testing.T) {
		var buf bytes.Buffer
		kfmt.SetOutputSink(&buf)

		console := &fakeConsole{}
		probes := []device.ProbeFn{
			func() device.Driver { return nil },
			func() device.Driver { return &fakeDriver{name: "broken", initErr: &kernel.Error{Module: "test", Message: "no device"}} },
			func() device.Driver { return console },
		}

		probeDrivers(probes)

		exp := "[broken(1.2.3)] init failed: no device\n[console(1.2.3)] ready\n[console(1.2.3)] initialized\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
		}

		if kfmt.GetOutputSink() != io.Writer(&buf) {
			t.Fatal("expected the existing output sink to be kept")
		}
	})

	t.Run("console becomes sink", func(t *testing.T) {
		kfmt.SetOutputSink(nil)

		console := &fakeConsole{}
		probeDrivers([]device.ProbeFn{
			func() device.Driver { return console },
		})

		if kfmt.GetOutputSink() != io.Writer(console) {
			t.Fatal("expected the console driver to become the output sink")
		}

		if got := console.out.String(); !strings.HasSuffix(got, "[console(1.2.3)] ready\n[console(1.2.3)] initialized\n") {
			t.Fatalf("expected buffered driver output to be replayed to the console; got %q", got)
		}
	})
}

func TestFixedBuffer(t *testing.T) {
	var b fixedBuffer

	kfmt.Fprintf(&b, "[%s] ", "uart16550")
	if got := string(b.Bytes()); got != "[uart16550] " {
		t.Fatalf("expected buffer contents %q; got %q", "[uart16550] ", got)
	}

	b.Reset()
	long := strings.Repeat("x", len(b.data)+10)
	n, err := b.Write([]byte(long))
	if err != nil {
		t.Fatal(err)
	}
	if n != len(b.data) || len(b.Bytes()) != len(b.data) {
		t.Fatalf("expected write to be truncated to %d bytes; wrote %d", len(b.data), n)
	}
}

type fakeDriver struct {
	name    string
	initErr *kernel.Error
}

func (d *fakeDriver) DriverName() string { return d.name }

func (d *fakeDriver) DriverVersion() (uint16, uint16, uint16) { return 1, 2, 3 }

func (d *fakeDriver) DriverInit(w io.Writer) *kernel.Error {
	if d.initErr != nil {
		return d.initErr
	}
	kfmt.Fprintf(w, "ready\n")
	return nil
}

type fakeConsole struct {
	fakeDriver
	out bytes.Buffer
}

func (c *fakeConsole) DriverName() string { return "console" }

func (c *fakeConsole) Write(p []byte) (int, error) { return c.out.Write(p) }
