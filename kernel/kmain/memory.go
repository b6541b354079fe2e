package kmain

import (
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/multiboot"
)

// maxMemRegions bounds the number of available regions taken from the
// bootloader's memory map. Extra regions are treated as unavailable.
const maxMemRegions = 32

// memoryLayout describes physical memory as reported by the bootloader: the
// end of the highest available region and every range below it that must
// not be handed out by the frame allocator.
type memoryLayout struct {
	available      [maxMemRegions]mm.Region
	availableCount int

	// reserved has room for one hole per available region plus the
	// extra ranges added via reserve.
	reserved      [maxMemRegions + 4]mm.Region
	reservedCount int

	top uint64
}

// scan populates the layout from the multiboot memory map.
func (l *memoryLayout) scan() {
	l.availableCount = 0
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("[kmain] [0x%10x - 0x%10x] %s\n", entry.PhysAddress, entry.PhysAddress+entry.Length, entry.Type.String())
		if entry.Type == multiboot.MemAvailable {
			l.addAvailable(mm.Region{Start: entry.PhysAddress, End: entry.PhysAddress + entry.Length})
		}
		return true
	})
	l.compute()
}

// addAvailable records an available region keeping the list sorted by start
// address.
func (l *memoryLayout) addAvailable(region mm.Region) {
	if region.End <= region.Start || l.availableCount == len(l.available) {
		return
	}

	i := l.availableCount
	for ; i > 0 && l.available[i-1].Start > region.Start; i-- {
		l.available[i] = l.available[i-1]
	}
	l.available[i] = region
	l.availableCount++
}

// compute derives the memory top and the holes between available regions.
func (l *memoryLayout) compute() {
	var cursor uint64

	l.reservedCount = 0
	for _, region := range l.available[:l.availableCount] {
		if region.Start > cursor {
			l.reserve(mm.Region{Start: cursor, End: region.Start})
		}
		if region.End > cursor {
			cursor = region.End
		}
	}

	l.top = cursor
}

// reserve adds a region that the frame allocator must treat as used.
func (l *memoryLayout) reserve(region mm.Region) {
	if l.reservedCount == len(l.reserved) {
		return
	}
	l.reserved[l.reservedCount] = region
	l.reservedCount++
}

func (l *memoryLayout) reservedRegions() []mm.Region {
	return l.reserved[:l.reservedCount]
}
