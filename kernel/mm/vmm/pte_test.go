package vmm

import (
	"testing"

	"github.com/SFYMMIK/Cygnus/kernel/mm"
)

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   pageTableEntry
		flag1 = FlagOnDemand
		flag2 = FlagRW
	)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}

	pte.SetFlags(flag1 | flag2)

	if !pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return true")
	}

	if !pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return true")
	}

	pte.ClearFlags(flag1)

	if !pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return true")
	}

	if pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return false")
	}

	pte.ClearFlags(flag1 | flag2)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}
}

func TestPageTableEntryFlagBits(t *testing.T) {
	specs := []struct {
		flag PageTableEntryFlag
		bit  uint
	}{
		{FlagPresent, 0},
		{FlagRW, 1},
		{FlagUserAccessible, 2},
		{FlagWriteThroughCaching, 3},
		{FlagDoNotCache, 4},
		{FlagAccessed, 5},
		{FlagDirty, 6},
		{FlagHugePage, 7},
		{FlagGlobal, 8},
		{FlagCopyOnWrite, 9},
		{FlagOnDemand, 10},
	}

	for specIndex, spec := range specs {
		if exp := PageTableEntryFlag(1) << spec.bit; spec.flag != exp {
			t.Errorf("[spec %d] expected flag value 0x%x; got 0x%x", specIndex, exp, spec.flag)
		}
	}
}

func TestPageTableEntryFrameEncoding(t *testing.T) {
	var (
		pte       pageTableEntry
		physFrame = mm.Frame(0xfffff)
	)

	pte.SetFlags(FlagPresent | FlagRW | FlagCopyOnWrite)
	pte.SetFrame(physFrame)
	if got := pte.Frame(); got != physFrame {
		t.Fatalf("expected pte.Frame() to return %v; got %v", physFrame, got)
	}

	if exp := FlagPresent | FlagRW | FlagCopyOnWrite; pte.Flags() != exp {
		t.Fatalf("expected SetFrame to preserve flags 0x%x; got 0x%x", exp, pte.Flags())
	}

	pte.SetFrame(mm.Frame(0x123))
	if exp := pageTableEntry(0x123000 | uint32(FlagPresent|FlagRW|FlagCopyOnWrite)); pte != exp {
		t.Fatalf("expected entry 0x%x; got 0x%x", exp, pte)
	}
}

func TestTableIndices(t *testing.T) {
	specs := []struct {
		virt         uintptr
		expPD, expPT uintptr
	}{
		{0, 0, 0},
		{0x150000, 0, 0x150},
		{0xc0000010, 0x300, 0},
		{tempMappingAddr, 1022, 1023},
		{pageTablesVirtualAddr, 1023, 0},
		{pdtVirtualAddr, 1023, 1023},
	}

	for specIndex, spec := range specs {
		if got := pdIndex(spec.virt); got != spec.expPD {
			t.Errorf("[spec %d] expected directory index %d; got %d", specIndex, spec.expPD, got)
		}
		if got := ptIndex(spec.virt); got != spec.expPT {
			t.Errorf("[spec %d] expected table index %d; got %d", specIndex, spec.expPT, got)
		}
	}
}
