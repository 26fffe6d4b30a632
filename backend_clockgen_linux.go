//go:build linux && (arm || arm64) && !headless

// backend_clockgen_linux.go - BCM283x clock-manager setup for the PSG
// master clock output, per spec.md section 4.5: "A CPU clock-generator
// peripheral produces the PSG master clock at 2.000000 MHz (integer
// divider from a 500 MHz source) or 1.996800 MHz (MASH fractional
// divider)." Drives GPCLK0 on GPIO20 (ALT5) from the 500 MHz PLLD
// channel, leaving GPIO4..16 free for the data/control/reset wiring in
// backend_gpio_linux.go.

package main

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	cmPeriOff = 0x101000
	cmSize    = 0x1000

	regCMGP0CTL = 0x70 / 4
	regCMGP0DIV = 0x74 / 4

	cmPassword = 0x5A000000

	cmSrcPLLD = 6 // 500 MHz PLLD_PER channel
	cmEnable  = 1 << 4
	cmMASH1   = 1 << 9 // 1-stage MASH, for the fractional 1.9968 MHz rate

	pllDHz = 500000000

	pinClockOut  = 20
	clockOutAlt5 = 0b010 // FSEL code for ALT5
)

type clockGenerator struct {
	mem []byte
	reg []uint32
}

// newClockGenerator maps the clock-manager register block and the
// general-purpose clock 0 (GPCLK0) divider onto the requested frequency.
// fd must be an open /dev/mem descriptor (the clock manager is not
// exposed through /dev/gpiomem).
func newClockGenerator(fd int, peripheralBase uint32, clockHz uint32) (*clockGenerator, error) {
	mem, err := unix.Mmap(fd, int64(peripheralBase+cmPeriOff), cmSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap clock manager: %w", err)
	}
	cg := &clockGenerator{
		mem: mem,
		reg: unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), cmSize/4),
	}
	if err := cg.configure(clockHz); err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	return cg, nil
}

func (cg *clockGenerator) configure(clockHz uint32) error {
	divI, divF, mash, err := clockDivider(clockHz)
	if err != nil {
		return err
	}

	// Stop the clock before reprogramming the divider (CM_GP0CTL.ENAB=0),
	// then wait for CM_GP0CTL.BUSY to clear.
	atomic.StoreUint32(&cg.reg[regCMGP0CTL], cmPassword|cmSrcPLLD)
	for atomic.LoadUint32(&cg.reg[regCMGP0CTL])&(1<<7) != 0 {
		// BUSY bit; the clock manager drops it within a few cycles.
	}

	atomic.StoreUint32(&cg.reg[regCMGP0DIV], cmPassword|(divI<<12)|divF)

	ctl := uint32(cmPassword | cmSrcPLLD | cmEnable)
	if mash {
		ctl |= cmMASH1
	}
	atomic.StoreUint32(&cg.reg[regCMGP0CTL], ctl)
	return nil
}

// clockDivider returns DIVI/DIVF/mash-enable for a requested PSG clock,
// sourced from the 500 MHz PLLD_PER channel. Only the two rates spec.md
// section 4.5 names are supported.
func clockDivider(clockHz uint32) (divI, divF uint32, mash bool, err error) {
	switch clockHz {
	case ClockHzStandard: // 2,000,000 Hz: exact integer divide, MASH off.
		return pllDHz / ClockHzStandard, 0, false, nil
	case ClockHzMASH: // 1,996,800 Hz: fractional divide needs 1-stage MASH.
		divisor := float64(pllDHz) / float64(ClockHzMASH)
		di := uint32(divisor)
		frac := divisor - float64(di)
		df := uint32(frac*4096 + 0.5)
		return di, df, true, nil
	default:
		return 0, 0, false, fmt.Errorf("unsupported PSG clock rate %d Hz", clockHz)
	}
}

func (cg *clockGenerator) close() {
	atomic.StoreUint32(&cg.reg[regCMGP0CTL], cmPassword|cmSrcPLLD) // ENAB=0
	_ = unix.Munmap(cg.mem)
}
