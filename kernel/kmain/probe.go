package kmain

import (
	"io"

	"github.com/SFYMMIK/Cygnus/device"
	"github.com/SFYMMIK/Cygnus/device/serial"
	"github.com/SFYMMIK/Cygnus/device/video/console"
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
)

var (
	// serialProbes lists the serial port drivers; they are skipped when the
	// command line contains serial=off.
	serialProbes = []device.ProbeFn{
		serial.ProbeCOM1,
	}

	// consoleProbes lists the drivers that are always probed.
	consoleProbes = []device.ProbeFn{
		console.ProbeVGA,
	}

	prefixBuf fixedBuffer
)

// probeDrivers runs the supplied probes and initializes the detected drivers.
// The first initialized driver that can output text becomes the kfmt sink; the
// output buffered so far is replayed to it.
func probeDrivers(probes []device.ProbeFn) {
	var w kfmt.PrefixWriter

	for _, probe := range probes {
		drv := probe()
		if drv == nil {
			continue
		}

		prefixBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&prefixBuf, "[%s(%d.%d.%d)] ", drv.DriverName(), major, minor, patch)
		w.Sink = kfmt.GetOutputSink()
		w.Prefix = prefixBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}
		kfmt.Fprintf(&w, "initialized\n")

		if sink, ok := drv.(io.Writer); ok && kfmt.GetOutputSink() == nil {
			kfmt.SetOutputSink(sink)
		}
	}
}

// fixedBuffer is an io.Writer backed by a fixed array. Writes that do not fit
// are truncated.
type fixedBuffer struct {
	data [64]byte
	len  int
}

func (b *fixedBuffer) Write(p []byte) (int, error) {
	n := copy(b.data[b.len:], p)
	b.len += n
	return n, nil
}

func (b *fixedBuffer) Bytes() []byte { return b.data[:b.len] }

func (b *fixedBuffer) Reset() { b.len = 0 }
