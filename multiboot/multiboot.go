// Package multiboot provides access to the multiboot2 information block that
// the bootloader passes to the kernel. None of the functions in this package
// allocate memory so they can be used before the memory core is set up.
package multiboot

import "unsafe"

var (
	infoData uintptr
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// info describes the multiboot info section header.
type info struct {
	// Total size of multiboot info section.
	totalSize uint32

	// Always set to zero; reserved for future use
	reserved uint32
}

// tagHeader describes the header the preceedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. Each tag starts at an 8-byte aligned address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// CmdLineVisitor is invoked by VisitCmdLine for each key/value pair. The
// visitor must return true to continue or false to abort the scan.
type CmdLineVisitor func(key, value string) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// InfoRegion returns the physical address and the size of the multiboot
// information block. The memory core must not hand out the frames that hold
// it while the kernel still reads from it.
func InfoRegion() (uintptr, uint32) {
	if infoData == 0 {
		return 0, 0
	}
	return infoData, (*info)(unsafe.Pointer(infoData)).totalSize
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	// curPtr points to the memory map header (2 dwords long)
	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	var entry *MemoryMapEntry
	for curPtr < endPtr {
		entry = (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// BootLoaderName returns the name of the bootloader or an empty string if
// the bootloader did not provide one. The returned string points into the
// info block.
func BootLoaderName() string {
	return cString(findTagByType(tagBootLoaderName))
}

// VisitCmdLine invokes visitor for each space-separated argument of the kernel
// command line. Arguments of the form key=value are split at the first '=';
// bare arguments are reported with the argument as both key and value. The
// strings passed to the visitor point into the info block.
func VisitCmdLine(visitor CmdLineVisitor) {
	cmdLine := cString(findTagByType(tagBootCmdLine))

	for start := 0; start < len(cmdLine); {
		if cmdLine[start] == ' ' {
			start++
			continue
		}

		end, sep := start, -1
		for ; end < len(cmdLine) && cmdLine[end] != ' '; end++ {
			if cmdLine[end] == '=' && sep == -1 {
				sep = end
			}
		}

		key, value := cmdLine[start:end], cmdLine[start:end]
		if sep != -1 {
			key, value = cmdLine[start:sep], cmdLine[sep+1:end]
		}

		if !visitor(key, value) {
			return
		}
		start = end
	}
}

// cString converts a tag payload holding a NULL-terminated string into a Go
// string without copying it.
func cString(ptr uintptr, size uint32) string {
	if size == 0 {
		return ""
	}

	var n int
	for ; n < int(size) && *(*byte)(unsafe.Pointer(ptr + uintptr(n))) != 0; n++ {
	}

	if n == 0 {
		return ""
	}
	return unsafe.String((*byte)(unsafe.Pointer(ptr)), n)
}

// findTagByType scans the multiboot info data looking for the start of of the
// specified type. It returns a pointer to the tag contents start offset and
// the content length exluding the tag header.
//
// If the tag is not present in the multiboot info, findTagSection will return
// back (0,0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	if infoData == 0 {
		return 0, 0
	}

	var ptrTagHeader *tagHeader

	curPtr := infoData + 8
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType {
			return curPtr + 8, ptrTagHeader.size - 8
		}

		// Tags are aligned at 8-byte aligned addresses
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}

	return 0, 0
}
