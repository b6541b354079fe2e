package main

import (
	"debug/elf"
	"fmt"

	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"golang.org/x/exp/mmap"
)

// kernelBounds returns the page-aligned physical range covered by the
// loadable segments of the supplied ELF image.
func kernelBounds(imgFile string) (uintptr, uintptr, error) {
	r, err := mmap.Open(imgFile)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	f, err := elf.NewFile(r)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", imgFile, err)
	}
	defer f.Close()

	var (
		start = ^uint64(0)
		end   uint64
	)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		if prog.Paddr < start {
			start = prog.Paddr
		}
		if prog.Paddr+prog.Memsz > end {
			end = prog.Paddr + prog.Memsz
		}
	}

	switch {
	case end == 0:
		return 0, 0, fmt.Errorf("%s: no loadable segments", imgFile)
	case end > 1<<32:
		return 0, 0, fmt.Errorf("%s: image is loaded above 4G (end 0x%x)", imgFile, end)
	}

	return uintptr(mm.AlignDown(start)), uintptr(mm.AlignUp(end)), nil
}
