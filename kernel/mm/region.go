package mm

// Region describes a half-open physical memory range [Start, End). Physical
// ranges use 64-bit bounds so that a range ending at the 4 GiB boundary can be
// expressed on a 32-bit machine.
type Region struct {
	Start uint64
	End   uint64
}

// AlignDown rounds addr down to the nearest page boundary.
func AlignDown(addr uint64) uint64 {
	return addr &^ uint64(PageSize-1)
}

// AlignUp rounds addr up to the nearest page boundary.
func AlignUp(addr uint64) uint64 {
	return (addr + uint64(PageSize-1)) &^ uint64(PageSize-1)
}

// Frames returns the first frame covered by the region and the frame right
// after the last covered one. The start is rounded down and the end is rounded
// up so that a partially covered frame counts as part of the region.
func (r Region) Frames() (Frame, Frame) {
	if r.End <= r.Start {
		return 0, 0
	}
	return Frame(AlignDown(r.Start) >> PageShift), Frame(AlignUp(r.End) >> PageShift)
}
