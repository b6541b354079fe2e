package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix (e.g. "[vmm] ") at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to. A nil Sink selects the early
	// output buffer.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	// midLine is set while the last byte written was not a line feed.
	midLine bool
}

// Write forwards p to the sink, emitting the prefix before the first byte of
// every line. The returned count does not include the injected prefixes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	written := 0

	for len(p) > 0 {
		if !w.midLine {
			if _, err := w.sinkWrite(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		lineLen := len(p)
		for i, b := range p {
			if b == '\n' {
				lineLen = i + 1
				w.midLine = false
				break
			}
		}

		n, err := w.sinkWrite(p[:lineLen])
		written += n
		if err != nil {
			return written, err
		}
		p = p[lineLen:]
	}

	return written, nil
}

func (w *PrefixWriter) sinkWrite(p []byte) (int, error) {
	if w.Sink == nil {
		return earlyBuffer.Write(p)
	}
	return w.Sink.Write(p)
}
