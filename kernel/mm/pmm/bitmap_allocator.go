package pmm

import (
	"math/bits"

	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
)

const (
	// MaxPhysMemory is the largest amount of physical memory that the
	// allocator can track (4 GiB).
	MaxPhysMemory = 4 * uint64(mm.Gb)

	// MaxFrames is the number of frames required to cover MaxPhysMemory.
	MaxFrames = uint32(MaxPhysMemory >> mm.PageShift)

	// bitmapWords is the number of uint32 words needed to track MaxFrames.
	bitmapWords = (MaxFrames + 31) / 32
)

var (
	// ErrOutOfMemory is returned by AllocFrame when no free frame exists
	// at or after the allocation hint.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
)

// BitmapAllocator is a physical frame allocator that tracks the state of
// every frame below a configured ceiling with a single bit (1 = used,
// 0 = free). Its storage is statically sized so that an instance can live in
// the kernel's .bss section and be used before any other allocator exists.
//
// BitmapAllocator is not safe for concurrent use.
type BitmapAllocator struct {
	bitmap [bitmapWords]uint32

	// totalFrames is the number of frames tracked by the allocator. Bits
	// at or beyond this index are never handed out.
	totalFrames uint32

	// freeFrames tracks the number of clear bits below totalFrames.
	freeFrames uint32

	// firstUsable is the frame where AllocFrame starts its scan.
	firstUsable mm.Frame
}

// Init resets the allocator so that it tracks min(physMemTop, ceiling,
// MaxPhysMemory) bytes of physical memory. After Init returns, every frame is
// flagged as used; callers release the usable memory via MarkRegionFree.
func (alloc *BitmapAllocator) Init(physMemTop, ceiling uint64) {
	top := physMemTop
	if ceiling < top {
		top = ceiling
	}
	if top > MaxPhysMemory {
		top = MaxPhysMemory
	}

	alloc.totalFrames = uint32(top >> mm.PageShift)
	alloc.freeFrames = 0
	alloc.firstUsable = 0
	for i := range alloc.bitmap {
		alloc.bitmap[i] = ^uint32(0)
	}
}

// TotalFrames returns the number of frames tracked by the allocator.
func (alloc *BitmapAllocator) TotalFrames() uint32 {
	return alloc.totalFrames
}

// FreeFrames returns the number of frames that are currently free.
func (alloc *BitmapAllocator) FreeFrames() uint32 {
	return alloc.freeFrames
}

// FirstUsable returns the frame where allocation scans begin.
func (alloc *BitmapAllocator) FirstUsable() mm.Frame {
	return alloc.firstUsable
}

// SetFirstUsable sets the frame where allocation scans begin. Frames below
// the hint are never handed out by AllocFrame even if they are free.
func (alloc *BitmapAllocator) SetFirstUsable(frame mm.Frame) {
	alloc.firstUsable = frame
}

// IsUsed returns true if frame is reserved. Frames outside the tracked range
// are always reported as used.
func (alloc *BitmapAllocator) IsUsed(frame mm.Frame) bool {
	if uint64(frame) >= uint64(alloc.totalFrames) {
		return true
	}
	return alloc.bitmap[frame>>5]&(1<<(frame&31)) != 0
}

// AllocFrame reserves the first free frame at or after the allocation hint.
// The scan is a single forward sweep; it does not wrap around to frames below
// the hint.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	frame, found := alloc.findFree(alloc.firstUsable)
	if !found {
		return mm.InvalidFrame, ErrOutOfMemory
	}

	alloc.setUsed(frame)
	return frame, nil
}

// FreeFrame releases a frame. Frame 0 is reserved as a null sentinel and is
// never released; frames outside the tracked range are ignored.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) {
	if frame == 0 || uint64(frame) >= uint64(alloc.totalFrames) {
		return
	}
	alloc.setFree(frame)
}

// MarkRegionUsed flags every frame overlapping the physical range
// [start, end) as used.
func (alloc *BitmapAllocator) MarkRegionUsed(start, end uint64) {
	first, limit := alloc.clampRegion(start, end)
	for frame := first; frame < limit; frame++ {
		alloc.setUsed(frame)
	}
}

// MarkRegionFree flags every frame overlapping the physical range
// [start, end) as free.
func (alloc *BitmapAllocator) MarkRegionFree(start, end uint64) {
	first, limit := alloc.clampRegion(start, end)
	for frame := first; frame < limit; frame++ {
		alloc.setFree(frame)
	}
}

// clampRegion converts a byte range to a frame range and clips it to the
// tracked frames.
func (alloc *BitmapAllocator) clampRegion(start, end uint64) (mm.Frame, mm.Frame) {
	first, limit := mm.Region{Start: start, End: end}.Frames()
	if uint64(limit) > uint64(alloc.totalFrames) {
		limit = mm.Frame(alloc.totalFrames)
	}
	return first, limit
}

func (alloc *BitmapAllocator) setUsed(frame mm.Frame) {
	word, mask := frame>>5, uint32(1)<<(frame&31)
	if alloc.bitmap[word]&mask == 0 {
		alloc.bitmap[word] |= mask
		alloc.freeFrames--
	}
}

func (alloc *BitmapAllocator) setFree(frame mm.Frame) {
	word, mask := frame>>5, uint32(1)<<(frame&31)
	if alloc.bitmap[word]&mask != 0 {
		alloc.bitmap[word] &^= mask
		alloc.freeFrames++
	}
}

// findFree returns the first clear bit in [start, totalFrames).
func (alloc *BitmapAllocator) findFree(start mm.Frame) (mm.Frame, bool) {
	if uint64(start) >= uint64(alloc.totalFrames) {
		return 0, false
	}

	var (
		lastWord = (alloc.totalFrames - 1) >> 5
		word     = uint32(start >> 5)
		// treat the bits below start in the first word as used
		free = ^(alloc.bitmap[word] | (uint32(1)<<(start&31) - 1))
	)

	for {
		if free != 0 {
			frame := mm.Frame(word<<5 + uint32(bits.TrailingZeros32(free)))
			if uint64(frame) >= uint64(alloc.totalFrames) {
				return 0, false
			}
			return frame, true
		}

		if word == lastWord {
			return 0, false
		}
		word++
		free = ^alloc.bitmap[word]
	}
}
