package kmain

import (
	"github.com/SFYMMIK/Cygnus/kernel/kfmt"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/vmm"
	"github.com/SFYMMIK/Cygnus/multiboot"
)

// bootConfig holds the settings that can be overridden from the kernel
// command line:
//
//	mem=<MiB>                 cap the physical memory tracked by the kernel
//	pagefault=halt|recover    select the page-fault policy
//	serial=off                do not attach the serial console
type bootConfig struct {
	vmm    vmm.Config
	serial bool
}

func defaultBootConfig() bootConfig {
	return bootConfig{
		vmm:    vmm.DefaultConfig(),
		serial: true,
	}
}

// readBootConfig parses the kernel command line.
func readBootConfig() bootConfig {
	cfg := defaultBootConfig()
	multiboot.VisitCmdLine(func(key, value string) bool {
		cfg.apply(key, value)
		return true
	})
	return cfg
}

// apply updates the configuration with a single command line argument.
// Unknown keys are ignored; malformed values are reported and ignored.
func (cfg *bootConfig) apply(key, value string) {
	switch key {
	case "mem":
		mib, ok := parseUint(value)
		if !ok || mib == 0 {
			kfmt.Printf("[kmain] ignoring invalid mem value: %s\n", value)
			return
		}
		cfg.vmm.MaxPhysMemory = mib * uint64(mm.Mb)
	case "pagefault":
		switch value {
		case "halt":
			cfg.vmm.FaultPolicy = vmm.HaltPolicy
		case "recover":
			cfg.vmm.FaultPolicy = vmm.RecoverPolicy
		default:
			kfmt.Printf("[kmain] ignoring invalid pagefault policy: %s\n", value)
		}
	case "serial":
		cfg.serial = value != "off"
	}
}

// parseUint parses a base 10 unsigned integer that fits in 32 bits.
func parseUint(s string) (uint64, bool) {
	if len(s) == 0 || len(s) > 10 {
		return 0, false
	}

	var v uint64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		v = v*10 + uint64(s[i]-'0')
	}

	return v, v <= 0xffffffff
}
