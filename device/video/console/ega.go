// Package console provides a text console driver for the EGA/VGA compatible
// text mode framebuffer.
package console

import "unsafe"

// Attr defines a color attribute.
type Attr uint16

// The set of colors that can be combined into an attribute.
const (
	Black Attr = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	Grey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

const (
	clearColor = Black
	clearChar  = byte(' ')
)

// makeAttr combines a foreground and a background color.
func makeAttr(fg, bg Attr) Attr {
	return (bg << 4) | (fg & 0xF)
}

// Ega is an EGA-compatible text framebuffer. Each cell holds a character in
// the low byte and its attribute in the high byte.
type Ega struct {
	width  uint16
	height uint16

	fb []uint16
}

// Init sets up the framebuffer located at fbAddr.
func (cons *Ega) Init(width, height uint16, fbAddr uintptr) {
	cons.width = width
	cons.height = height
	cons.fb = unsafe.Slice((*uint16)(unsafe.Pointer(fbAddr)), int(width)*int(height))
}

// Dimensions returns the console width and height in characters.
func (cons *Ega) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Clear clears the specified rectangular region.
func (cons *Ega) Clear(x, y, width, height uint16) {
	var (
		attr                 = uint16((clearColor << 4) | clearColor)
		clr                  = attr<<8 | uint16(clearChar)
		rowOffset, colOffset uint16
	)

	// clip rectangle
	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	rowOffset = (y * cons.width) + x
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// ScrollUp moves the console contents up by the supplied number of lines.
// The lines at the bottom keep their previous contents.
func (cons *Ega) ScrollUp(lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := lines * cons.width
	copy(cons.fb, cons.fb[offset:])
}

// WriteChar writes a char to the specified location.
func (cons *Ega) WriteChar(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	cons.fb[(y*cons.width)+x] = (uint16(attr) << 8) | uint16(ch)
}

// CharAt returns the character stored at the specified location.
func (cons *Ega) CharAt(x, y uint16) byte {
	if x >= cons.width || y >= cons.height {
		return 0
	}

	return byte(cons.fb[(y*cons.width)+x])
}
