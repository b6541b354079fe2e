package vmm

import (
	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
)

var (
	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "unrecoverable page fault"}
)

// FaultCode is the error code pushed by the CPU for a page fault (vector 14).
type FaultCode uint32

const (
	// FaultProtection is set when the fault was caused by a page-level
	// protection violation and cleared when the page was not present.
	FaultProtection FaultCode = 1 << iota

	// FaultWrite is set when the access that caused the fault was a write.
	FaultWrite

	// FaultUser is set when the access originated in user-mode.
	FaultUser

	// FaultReservedBit is set when a paging structure entry has a
	// reserved bit set.
	FaultReservedBit

	// FaultInstructionFetch is set when the fault was caused by an
	// instruction fetch.
	FaultInstructionFetch
)

// Reasons decodes the error code into one word per bit, in bit order.
func (code FaultCode) Reasons() [5]string {
	return [5]string{
		pick(code&FaultProtection != 0, "protection", "not-present"),
		pick(code&FaultWrite != 0, "write", "read"),
		pick(code&FaultUser != 0, "user", "kernel"),
		pick(code&FaultReservedBit != 0, "rsvd", "ok"),
		pick(code&FaultInstructionFetch != 0, "exec", "data"),
	}
}

func pick(cond bool, ifSet, ifClear string) string {
	if cond {
		return ifSet
	}
	return ifClear
}

// FaultAction is the outcome of classifying a page fault.
type FaultAction uint8

const (
	// FaultFatal indicates that the fault cannot be serviced.
	FaultFatal FaultAction = iota

	// FaultDemandZero indicates an access to a page reserved with
	// ReserveOnDemand that has no backing frame yet.
	FaultDemandZero

	// FaultCopyOnWrite indicates a write to a read-only page that carries
	// FlagCopyOnWrite.
	FaultCopyOnWrite
)

// String implements fmt.Stringer.
func (action FaultAction) String() string {
	switch action {
	case FaultDemandZero:
		return "demand-zero"
	case FaultCopyOnWrite:
		return "copy-on-write"
	default:
		return "fatal"
	}
}

// ClassifyFault inspects the entry for faultAddr and decides how a fault
// with the supplied error code can be serviced. It does not modify any
// state.
func (as *AddressSpace) ClassifyFault(faultAddr uintptr, code FaultCode) FaultAction {
	if code&FaultReservedBit != 0 {
		return FaultFatal
	}

	pte := as.entry(faultAddr)

	switch {
	case code&FaultProtection == 0 && !pte.HasFlags(FlagPresent) && pte.HasFlags(FlagOnDemand):
		return FaultDemandZero
	case code&(FaultProtection|FaultWrite) == FaultProtection|FaultWrite &&
		pte.HasFlags(FlagPresent|FlagCopyOnWrite) && !pte.HasFlags(FlagRW):
		return FaultCopyOnWrite
	default:
		return FaultFatal
	}
}

// HandlePageFault services a page fault at faultAddr. Faults that cannot be
// recovered under the active policy are reported and the CPU is halted.
func (as *AddressSpace) HandlePageFault(faultAddr uintptr, code FaultCode) {
	action := as.ClassifyFault(faultAddr, code)
	if action == FaultFatal || as.cfg.FaultPolicy != RecoverPolicy {
		as.nonRecoverablePageFault(faultAddr, code, errUnrecoverableFault)
		return
	}

	var err *kernel.Error
	switch action {
	case FaultDemandZero:
		err = as.fillOnDemand(faultAddr)
	case FaultCopyOnWrite:
		err = as.copyOnWrite(faultAddr)
	}

	if err != nil {
		as.nonRecoverablePageFault(faultAddr, code, err)
	}
}

// PageFaultHandler is the entry point registered by the interrupt layer for
// vector 14. It reads the faulting address from CR2 and dispatches the fault
// to the kernel address space.
func PageFaultHandler(errorCode uint32) {
	KernelAddressSpace().HandlePageFault(readCR2Fn(), FaultCode(errorCode))
}

// fillOnDemand backs the on-demand page containing faultAddr with a zeroed
// frame.
func (as *AddressSpace) fillOnDemand(faultAddr uintptr) *kernel.Error {
	var (
		page = faultAddr &^ (mm.PageSize - 1)
		pte  = as.entryPtr(page)
	)

	frame, err := as.frames.AllocFrame()
	if err != nil {
		return err
	}

	flags := pte.Flags() &^ FlagOnDemand
	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(flags | FlagPresent)
	as.machine.FlushTLBEntry(page)

	// Before paging is enabled the new frame is only reachable through its
	// physical address.
	clearAddr := page
	if !as.pagingEnabled {
		clearAddr = frame.Address()
	}
	kernel.Memset(uintptr(as.machine.Pointer(clearAddr)), 0, mm.PageSize)
	return nil
}

// copyOnWrite gives the page containing faultAddr a private RW copy of its
// contents. The original frame is left untouched as other mappings may
// still share it.
func (as *AddressSpace) copyOnWrite(faultAddr uintptr) *kernel.Error {
	page := faultAddr &^ (mm.PageSize - 1)

	copyFrame, err := as.frames.AllocFrame()
	if err != nil {
		return err
	}

	if !as.pagingEnabled {
		kernel.Memcopy(
			uintptr(as.machine.Pointer(as.entry(page).Frame().Address())),
			uintptr(as.machine.Pointer(copyFrame.Address())),
			mm.PageSize,
		)
	} else {
		tmpEntry := pageTableEntry(0)
		tmpEntry.SetFrame(copyFrame)
		tmpEntry.SetFlags(FlagPresent | FlagRW)
		if err = as.installEntry(tempMappingAddr, tmpEntry); err != nil {
			as.frames.FreeFrame(copyFrame)
			return err
		}

		kernel.Memcopy(
			uintptr(as.machine.Pointer(page)),
			uintptr(as.machine.Pointer(tempMappingAddr)),
			mm.PageSize,
		)
		as.Unmap(tempMappingAddr, false)
	}

	// Point the entry to the copy, flag it as RW and remove the CoW flag
	pte := as.entryPtr(page)
	pte.ClearFlags(FlagCopyOnWrite)
	pte.SetFlags(FlagPresent | FlagRW)
	pte.SetFrame(copyFrame)
	as.machine.FlushTLBEntry(page)
	return nil
}

func (as *AddressSpace) nonRecoverablePageFault(faultAddr uintptr, code FaultCode, err *kernel.Error) {
	reasons := code.Reasons()
	kfmt.Printf("\nPage fault while accessing address: 0x%8x\nReason: %s %s %s %s %s (error code: 0x%x)\n",
		faultAddr, reasons[0], reasons[1], reasons[2], reasons[3], reasons[4], uint32(code),
	)

	panicFn(err)
}
