package main

import (
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/pmm"
	"github.com/fogleman/gg"
)

const (
	// framesPerRow is the number of frames drawn on each row of the
	// bitmap image.
	framesPerRow = 256

	// cellSize is the edge length of the square used for a single frame.
	cellSize = 4
)

// renderFrameMap draws the allocation state of every frame tracked by alloc
// and saves it as a PNG. Used frames are red and free frames are green.
func renderFrameMap(alloc *pmm.BitmapAllocator, pngFile string) error {
	total := int(alloc.TotalFrames())
	rows := (total + framesPerRow - 1) / framesPerRow
	if rows == 0 {
		rows = 1
	}

	dc := gg.NewContext(framesPerRow*cellSize, rows*cellSize)
	dc.SetRGB(0.15, 0.15, 0.15)
	dc.Clear()

	for frame := 0; frame < total; frame++ {
		if alloc.IsUsed(mm.Frame(frame)) {
			dc.SetRGB(0.8, 0.2, 0.2)
		} else {
			dc.SetRGB(0.2, 0.7, 0.3)
		}

		x, y := (frame%framesPerRow)*cellSize, (frame/framesPerRow)*cellSize
		dc.DrawRectangle(float64(x), float64(y), cellSize, cellSize)
		dc.Fill()
	}

	return dc.SavePNG(pngFile)
}
