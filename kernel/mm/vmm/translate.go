package vmm

import (
	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address or 0 if the virtual address is not mapped. Callers that
// need to tell a mapping of physical address 0 apart from a missing mapping
// should use Lookup.
func (as *AddressSpace) Translate(virtAddr uintptr) uintptr {
	physAddr, _ := as.Lookup(virtAddr)
	return physAddr
}

// Lookup returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (as *AddressSpace) Lookup(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte := as.entry(virtAddr)
	if !pte.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + mm.PageOffset(virtAddr), nil
}
