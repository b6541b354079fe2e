// Package pmm implements the kernel's physical frame allocator.
package pmm

import (
	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
)

var (
	// FrameAllocator is the allocator instance that tracks the machine's
	// physical memory. It is initialized by the vmm package as part of
	// the paging setup.
	FrameAllocator BitmapAllocator
)

// AllocFrame reserves a frame from FrameAllocator.
func AllocFrame() (mm.Frame, *kernel.Error) {
	return FrameAllocator.AllocFrame()
}

// FreeFrame releases a frame back to FrameAllocator.
func FreeFrame(frame mm.Frame) {
	FrameAllocator.FreeFrame(frame)
}

// Register installs AllocFrame as the frame allocator used by mm.AllocFrame.
func Register() {
	mm.SetFrameAllocator(AllocFrame)
}
