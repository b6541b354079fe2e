// Package kfmt implements the kernel's allocation-free formatted output.
// Everything in this package can be used before the Go allocator has been
// initialized, which is the whole lifetime of the memory core.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is large enough for a 64-bit value in base 8 plus a sign.
const numBufSize = 24

var (
	msgMissingArg = []byte("%!(MISSING)")
	msgBadType    = []byte("%!(BADTYPE)")
	msgNoVerb     = []byte("%!(NOVERB)")
	msgExtraArg   = []byte("%!(EXTRA)")
	msgTrue       = []byte("true")
	msgFalse      = []byte("false")

	hexDigits = "0123456789abcdef"

	// numBuf is the shared scratch buffer used to render integers.
	numBuf [numBufSize]byte

	// oneByte is used for emitting single characters without converting
	// strings to byte slices (which would allocate).
	oneByte [1]byte

	// earlyBuffer captures output while no sink has been attached.
	earlyBuffer ringBuffer

	// outputSink receives Printf output. While nil, output is kept in
	// earlyBuffer.
	outputSink io.Writer
)

// SetOutputSink redirects Printf output to w and replays any output that was
// buffered while no sink was attached.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyBuffer)
	}
}

// GetOutputSink returns the currently attached output sink or nil.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf writes formatted output to the active output sink. It supports a
// small subset of the fmt verbs:
//
//	%s  string or []byte
//	%d  base 10 integer
//	%x  base 16 integer (lower-case)
//	%o  base 8 integer
//	%t  bool
//	%%  a literal percent sign
//
// A decimal width may precede the verb. Strings and base 10 integers are
// left-padded with spaces while base 8 and base 16 integers are left-padded
// with zeroes.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w. A nil w selects the early
// output buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	argIndex := 0

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		width := 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			doWrite(w, msgNoVerb)
			break
		}

		verb := format[i]
		if verb == '%' {
			writeByte(w, '%')
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, msgMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'd':
			fmtInt(w, arg, 10, width)
		case 'x':
			fmtInt(w, arg, 16, width)
		case 'o':
			fmtInt(w, arg, 8, width)
		case 's':
			fmtString(w, arg, width)
		case 't':
			fmtBool(w, arg)
		default:
			doWrite(w, msgNoVerb)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, msgExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, msgBadType)
	case b:
		doWrite(w, msgTrue)
	default:
		doWrite(w, msgFalse)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		writeRepeat(w, ' ', width-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		writeRepeat(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, msgBadType)
	}
}

// fmtInt renders v in the requested base into numBuf, filling it from the
// right so no reversal pass is needed.
func fmtInt(w io.Writer, v interface{}, base uint64, width int) {
	var (
		val      uint64
		negative bool
	)

	switch n := v.(type) {
	case uint8:
		val = uint64(n)
	case uint16:
		val = uint64(n)
	case uint32:
		val = uint64(n)
	case uint64:
		val = n
	case uint:
		val = uint64(n)
	case uintptr:
		val = uint64(n)
	case int8:
		val, negative = abs(int64(n))
	case int16:
		val, negative = abs(int64(n))
	case int32:
		val, negative = abs(int64(n))
	case int64:
		val, negative = abs(n)
	case int:
		val, negative = abs(int64(n))
	default:
		doWrite(w, msgBadType)
		return
	}

	if width > numBufSize {
		width = numBufSize
	}

	pos := numBufSize
	for {
		pos--
		numBuf[pos] = hexDigits[val%base]
		val /= base
		if val == 0 {
			break
		}
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	if negative && padCh == ' ' {
		pos--
		numBuf[pos] = '-'
	}

	for numBufSize-pos < width && pos > 0 {
		pos--
		numBuf[pos] = padCh
	}

	if negative && padCh == '0' {
		writeByte(w, '-')
	}

	doWrite(w, numBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func writeRepeat(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

func writeByte(w io.Writer, ch byte) {
	oneByte[0] = ch
	doWrite(w, oneByte[:])
}

// doWrite hides p from the compiler's escape analysis. Passing p straight to
// an io.Writer of unknown type makes the compiler move it to the heap, which
// would crash the kernel before the allocator is up.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		_, _ = w.Write(p)
		return
	}
	_, _ = earlyBuffer.Write(p)
}

// noEscape hides a pointer from escape analysis. Copied from runtime/stubs.go.
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
