// Command pgsim runs the kernel's frame allocator and paging code on the host
// against simulated RAM and reports the resulting address space.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/pmm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/vmm"
)

type mapping struct {
	phys uintptr
	virt uintptr
}

// mappingList collects repeated -map phys:virt flags.
type mappingList []mapping

func (l *mappingList) String() string {
	parts := make([]string, len(*l))
	for i, m := range *l {
		parts[i] = fmt.Sprintf("0x%x:0x%x", m.phys, m.virt)
	}
	return strings.Join(parts, ",")
}

func (l *mappingList) Set(value string) error {
	physStr, virtStr, found := strings.Cut(value, ":")
	if !found {
		return fmt.Errorf("expected phys:virt; got %q", value)
	}

	phys, err := parseAddr(physStr)
	if err != nil {
		return err
	}
	virt, err := parseAddr(virtStr)
	if err != nil {
		return err
	}

	*l = append(*l, mapping{phys: phys, virt: virt})
	return nil
}

func parseAddr(s string) (uintptr, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uintptr(v), nil
}

type options struct {
	memMiB      uint64
	kernelStart uintptr
	kernelEnd   uintptr
	kernelImage string
	mappings    mappingList
	demandAddr  uintptr
	policy      vmm.FaultPolicy
	pngFile     string
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[pgsim] error: %s\n", err.Error())
	os.Exit(1)
}

func parseFlags(args []string) (options, error) {
	var (
		opts                   options
		kernelStart, kernelEnd string
		demandAddr, policy     string
	)

	fs := flag.NewFlagSet("pgsim", flag.ContinueOnError)

	fs.Uint64Var(&opts.memMiB, "mem", 32, "simulated RAM size in MiB")
	fs.StringVar(&kernelStart, "kernel-start", "0x100000", "physical start address of the kernel image")
	fs.StringVar(&kernelEnd, "kernel-end", "0x180000", "physical end address of the kernel image")
	fs.StringVar(&opts.kernelImage, "kernel", "", "derive the kernel bounds from an ELF image")
	fs.Var(&opts.mappings, "map", "map a physical page to a virtual page (phys:virt); may be repeated")
	fs.StringVar(&demandAddr, "demand", "", "reserve an on-demand page at this virtual address and fault it in")
	fs.StringVar(&policy, "pagefault", "recover", "page fault policy (halt or recover)")
	fs.StringVar(&opts.pngFile, "png", "", "write the frame bitmap to this PNG file")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	var err error
	if opts.kernelStart, err = parseAddr(kernelStart); err != nil {
		return opts, err
	}
	if opts.kernelEnd, err = parseAddr(kernelEnd); err != nil {
		return opts, err
	}
	if demandAddr != "" {
		if opts.demandAddr, err = parseAddr(demandAddr); err != nil {
			return opts, err
		}
	}

	switch policy {
	case "halt":
		opts.policy = vmm.HaltPolicy
	case "recover":
		opts.policy = vmm.RecoverPolicy
	default:
		return opts, fmt.Errorf("unknown page fault policy %q", policy)
	}

	if opts.memMiB == 0 || opts.memMiB > 4096 {
		return opts, errors.New("-mem must be between 1 and 4096")
	}

	return opts, nil
}

// run builds an address space according to opts and writes a report to out.
func run(opts options, out io.Writer) error {
	if opts.kernelImage != "" {
		var err error
		if opts.kernelStart, opts.kernelEnd, err = kernelBounds(opts.kernelImage); err != nil {
			return err
		}
	}

	memSize := opts.memMiB * uint64(mm.Mb)
	m, err := newMachine(memSize)
	if err != nil {
		return err
	}
	defer m.Close()

	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: out, Prefix: []byte("[vmm] ")})
	defer kfmt.SetOutputSink(nil)

	var (
		frames  = new(pmm.BitmapAllocator)
		pdtAddr = uintptr(mm.AlignUp(uint64(opts.kernelEnd)))
		as      = vmm.NewAddressSpace(frames, pdtAddr, m)
		cfg     = vmm.DefaultConfig()
	)

	if uint64(pdtAddr)+uint64(mm.PageSize) > memSize {
		return fmt.Errorf("kernel image [0x%x - 0x%x) leaves no room for the page directory", opts.kernelStart, opts.kernelEnd)
	}

	cfg.FaultPolicy = opts.policy
	as.ApplyConfig(cfg)

	fmt.Fprintf(out, "RAM: %d MiB, kernel image: [0x%08x - 0x%08x), page directory: 0x%08x\n", opts.memMiB, opts.kernelStart, opts.kernelEnd, pdtAddr)

	if err := as.Setup(opts.kernelStart, opts.kernelEnd, memSize); err != nil {
		return kernelErr("setup", err)
	}
	fmt.Fprintf(out, "setup: %d/%d frames free\n", frames.FreeFrames(), frames.TotalFrames())

	if err := as.Enable(); err != nil {
		return kernelErr("enable", err)
	}
	fmt.Fprintf(out, "paging enabled: CR0=0x%08x CR3=0x%08x\n", m.ReadCR0(), m.cr3)

	for _, mp := range opts.mappings {
		if err := as.Map(mp.phys, mp.virt, vmm.FlagRW); err != nil {
			return kernelErr(fmt.Sprintf("map 0x%x -> 0x%x", mp.virt, mp.phys), err)
		}

		physAddr, err := as.Lookup(mp.virt)
		if err != nil {
			return kernelErr(fmt.Sprintf("lookup 0x%x", mp.virt), err)
		}
		fmt.Fprintf(out, "map: 0x%08x -> 0x%08x\n", mp.virt, physAddr)
	}

	if opts.demandAddr != 0 {
		if err := demandFault(as, opts.demandAddr, out); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "mapped: %d/%d frames free, %d TLB flushes\n", frames.FreeFrames(), frames.TotalFrames(), m.flushes)

	if opts.pngFile != "" {
		if err := renderFrameMap(frames, opts.pngFile); err != nil {
			return err
		}
		fmt.Fprintf(out, "frame bitmap written to %s\n", opts.pngFile)
	}

	for _, mp := range opts.mappings {
		as.Unmap(mp.virt, false)
		if _, err := as.Lookup(mp.virt); err == nil {
			return fmt.Errorf("unmap 0x%x: mapping still present", mp.virt)
		}
		fmt.Fprintf(out, "unmap: 0x%08x\n", mp.virt)
	}

	fmt.Fprintf(out, "unmapped: %d/%d frames free\n", frames.FreeFrames(), frames.TotalFrames())
	return nil
}

// demandFault reserves an on-demand page at virtAddr, classifies a write
// fault against it and, unless the fault is fatal, services it.
func demandFault(as *vmm.AddressSpace, virtAddr uintptr, out io.Writer) error {
	if err := as.ReserveOnDemand(virtAddr, uint64(mm.PageSize), vmm.FlagRW); err != nil {
		return kernelErr(fmt.Sprintf("reserve 0x%x", virtAddr), err)
	}

	code := vmm.FaultWrite
	action := as.ClassifyFault(virtAddr, code)
	reasons := code.Reasons()
	fmt.Fprintf(out, "fault: 0x%08x (%s) -> %s\n", virtAddr, strings.Join(reasons[:], " "), action)

	if action == vmm.FaultFatal || as.Config().FaultPolicy != vmm.RecoverPolicy {
		fmt.Fprintf(out, "fault: not serviced under the active policy\n")
		return nil
	}

	as.HandlePageFault(virtAddr, code)
	physAddr, err := as.Lookup(virtAddr)
	if err != nil {
		return kernelErr(fmt.Sprintf("lookup 0x%x", virtAddr), err)
	}
	fmt.Fprintf(out, "fault: 0x%08x backed by 0x%08x\n", virtAddr, physAddr)
	return nil
}

func kernelErr(op string, err *kernel.Error) error {
	return fmt.Errorf("%s: %w", op, err)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		exit(err)
	}

	if err = run(opts, os.Stdout); err != nil {
		exit(err)
	}
}
