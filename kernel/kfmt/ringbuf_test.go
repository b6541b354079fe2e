package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	expStr := "the big brown fox jumped over the lazy dog"

	t.Run("read/write", func(t *testing.T) {
		var rb ringBuffer

		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}

		if n != len(expStr) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(expStr), n)
		}

		if got := drain(t, &rb); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("overflow keeps newest bytes", func(t *testing.T) {
		var rb ringBuffer

		for i := 0; i < ringBufferSize; i++ {
			_, _ = rb.Write([]byte{'x'})
		}
		_, _ = rb.Write([]byte(expStr))

		got := drain(t, &rb)
		if len(got) != ringBufferSize {
			t.Fatalf("expected to read %d bytes; got %d", ringBufferSize, len(got))
		}

		if tail := got[len(got)-len(expStr):]; tail != expStr {
			t.Fatalf("expected buffer to end with %q; got %q", expStr, tail)
		}
	})

	t.Run("read from empty buffer", func(t *testing.T) {
		var rb ringBuffer

		if _, err := rb.Read(make([]byte, 1)); err != io.EOF {
			t.Fatalf("expected io.EOF; got %v", err)
		}
	})
}

func drain(t *testing.T, rb *ringBuffer) string {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rb); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}
