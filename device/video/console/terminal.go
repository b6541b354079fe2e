package console

import (
	"io"

	"github.com/SFYMMIK/Cygnus/device"
	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
)

const (
	// The physical address of the text mode framebuffer. It lies below
	// 1M so it is covered by the kernel's identity mapping.
	vgaFramebufferAddr = uintptr(0xb8000)
	vgaWidth           = 80
	vgaHeight          = 25

	tabWidth = 4

	defaultFg = LightGrey
	defaultBg = Black
)

var (
	// vgaTerminal is allocated statically as probing runs before the Go
	// allocator is available.
	vgaTerminal Terminal

	_ device.Driver = (*Terminal)(nil)
	_ io.Writer     = (*Terminal)(nil)
)

// Terminal is a console driver that processes CR, LF, TAB and BS characters
// and scrolls the screen when the cursor moves past the last line.
type Terminal struct {
	cons Ega

	fbAddr        uintptr
	width, height uint16

	curX    uint16
	curY    uint16
	curAttr Attr
}

// NewTerminal returns a terminal for a width x height framebuffer located at
// fbAddr. The terminal is not usable until DriverInit is called.
func NewTerminal(width, height uint16, fbAddr uintptr) *Terminal {
	return &Terminal{
		fbAddr: fbAddr,
		width:  width,
		height: height,
	}
}

// DriverName returns the name of this driver.
func (t *Terminal) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (t *Terminal) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit clears the screen and homes the cursor.
func (t *Terminal) DriverInit(w io.Writer) *kernel.Error {
	t.cons.Init(t.width, t.height, t.fbAddr)
	t.curAttr = makeAttr(defaultFg, defaultBg)
	t.Clear()

	kfmt.Fprintf(w, "%dx%d text mode, framebuffer at 0x%x\n", t.width, t.height, t.fbAddr)
	return nil
}

// Clear clears the terminal and moves the cursor to the top-left corner.
func (t *Terminal) Clear() {
	t.cons.Clear(0, 0, t.width, t.height)
	t.curX, t.curY = 0, 0
}

// Position returns the current cursor position (x, y).
func (t *Terminal) Position() (uint16, uint16) {
	return t.curX, t.curY
}

// SetPosition sets the current cursor position to (x,y) clipping it to the
// terminal dimensions.
func (t *Terminal) SetPosition(x, y uint16) {
	if x >= t.width {
		x = t.width - 1
	}
	if y >= t.height {
		y = t.height - 1
	}

	t.curX, t.curY = x, y
}

// Write implements io.Writer.
func (t *Terminal) Write(data []byte) (int, error) {
	for _, b := range data {
		t.writeByte(b)
	}

	return len(data), nil
}

func (t *Terminal) writeByte(b byte) {
	switch b {
	case '\r':
		t.curX = 0
	case '\n':
		t.curX = 0
		t.lf()
	case '\b':
		if t.curX > 0 {
			t.curX--
			t.cons.WriteChar(' ', t.curAttr, t.curX, t.curY)
		}
	case '\t':
		for pad := tabWidth - t.curX%tabWidth; pad > 0; pad-- {
			t.put(' ')
		}
	default:
		t.put(b)
	}
}

// put writes a printable character and advances the cursor.
func (t *Terminal) put(b byte) {
	t.cons.WriteChar(b, t.curAttr, t.curX, t.curY)
	t.curX++
	if t.curX == t.width {
		t.curX = 0
		t.lf()
	}
}

// lf advances the cursor by one line scrolling the terminal contents if the
// end of the last line is reached.
func (t *Terminal) lf() {
	if t.curY+1 < t.height {
		t.curY++
		return
	}

	t.cons.ScrollUp(1)
	t.cons.Clear(0, t.height-1, t.width, 1)
}

// ProbeVGA returns the text console driver for the standard 80x25 VGA text
// mode framebuffer.
func ProbeVGA() device.Driver {
	vgaTerminal = Terminal{
		fbAddr: vgaFramebufferAddr,
		width:  vgaWidth,
		height: vgaHeight,
	}
	return &vgaTerminal
}
