package kmain

import (
	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/pmm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/vmm"
	"github.com/SFYMMIK/Cygnus/multiboot"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// layout is kept in .bss; it is too large for the 4K boot stack.
	layout memoryLayout
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code passes the address of the multiboot info
// payload provided by the bootloader as well as the physical addresses for the
// kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	cfg := readBootConfig()
	if cfg.serial {
		probeDrivers(serialProbes)
	}
	probeDrivers(consoleProbes)

	kfmt.Printf("[kmain] booted by %s\n", multiboot.BootLoaderName())

	layout.scan()
	if infoAddr, infoSize := multiboot.InfoRegion(); infoSize != 0 {
		layout.reserve(mm.Region{Start: uint64(infoAddr), End: uint64(infoAddr) + uint64(infoSize)})
	}

	as := vmm.KernelAddressSpace()
	as.ApplyConfig(cfg.vmm)

	var err *kernel.Error
	if err = as.Setup(kernelStart, kernelEnd, layout.top, layout.reservedRegions()...); err != nil {
		kfmt.Panic(err)
	} else if err = as.Enable(); err != nil {
		kfmt.Panic(err)
	}
	pmm.Register()

	kfmt.Printf("[kmain] kernel image [0x%x - 0x%x), memory top 0x%x\n", kernelStart, kernelEnd, layout.top)
	kfmt.Printf("[pmm] %d/%d frames free\n", pmm.FrameAllocator.FreeFrames(), pmm.FrameAllocator.TotalFrames())

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
