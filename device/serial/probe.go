package serial

import "github.com/SFYMMIK/Cygnus/device"

var com1 = Uart16550{port: COM1}

// ProbeCOM1 checks whether a UART responds at COM1 by round-tripping a value
// through its scratch register. On success it returns the statically
// allocated COM1 driver.
func ProbeCOM1() device.Driver {
	return probe(&com1)
}

func probe(d *Uart16550) device.Driver {
	const marker = 0xae

	portWriteByteFn(d.port+regScratch, marker)
	if portReadByteFn(d.port+regScratch) != marker {
		return nil
	}

	return d
}
