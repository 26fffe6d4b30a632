//go:build linux && (arm || arm64) && !headless

// backend_gpio_linux.go - real AY/YM bus backend over memory-mapped GPIO
// on a Raspberry Pi (component B), grounded on the retrieved
// tsutsui/rpi-psgplayer C driver's psg_backend_rpi_gpio.c: same fixed
// wiring (BC2 and A8/A9 tied in hardware), same GPFSEL/GPSET/GPCLR
// register offsets, same two-store write-then-barrier sequencing.

package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"periph.io/x/host/v3"
)

// BCM283x GPIO register block, word-offsets from the GPIO peripheral base.
const (
	gpioSize     = 0x1000
	regGPFSEL0   = 0x00 / 4
	regGPSET0    = 0x1c / 4
	regGPCLR0    = 0x28 / 4
	gpioPeriOff  = 0x200000 // GPIO peripheral block within the SoC's peripheral window

	// Fixed wiring (BCM GPIO numbering), matching the reference backend:
	// GPIO4..11 = D0..D7, GPIO12 = BDIR, GPIO13 = BC1, GPIO16 = RESET.
	pinD0    = 4
	pinBDIR  = 12
	pinBC1   = 13
	pinReset = 16

	maskDataBus = 0xFF << pinD0
	maskBDIR    = 1 << pinBDIR
	maskBC1     = 1 << pinBC1
	maskCtrl    = maskBDIR | maskBC1
	maskReset   = 1 << pinReset

	// Dummy-read count tuned for the AY-3-8910's worst-case 400 ns
	// address-setup/write-pulse time; each GPIO register read takes on
	// the order of ~100-150 ns on a Pi 3/4 over the peripheral bus.
	waitReads = 3
)

// GPIOBackend drives the bus over /dev/gpiomem, or over /dev/mem when
// /dev/gpiomem cannot be opened. The clock generator is programmed only
// on the /dev/mem path, since /dev/gpiomem does not expose its
// registers; on the /dev/gpiomem path the PSG master clock is not
// configured and clockHz is unused.
type GPIOBackend struct {
	backendCommon
	memFile *os.File
	gpio    []uint32 // mmap'd GPIO register window
	gpioPtr unsafe.Pointer
	clock   *clockGenerator
	clockHz uint32
}

// NewGPIOBackend constructs a backend targeting the given PSG master
// clock rate (spec.md section 4.5: 2.000000 MHz or 1.996800 MHz).
func NewGPIOBackend(clockHz uint32) *GPIOBackend {
	return &GPIOBackend{clockHz: clockHz}
}

func (b *GPIOBackend) Init() error {
	if b.state != backendCreated {
		return &StateError{Op: "Init", Want: backendCreated, Got: b.state}
	}

	if err := host.Init(); err != nil {
		return &ResourceError{Op: "host.Init", Err: err}
	}

	peri, err := detectPeripheralBase()
	if err != nil {
		return &ResourceError{Op: "detect SoC peripheral base", Err: err}
	}

	f, err := os.OpenFile("/dev/gpiomem", os.O_RDWR|os.O_SYNC, 0)
	usingDevMem := false
	if err != nil {
		// /dev/gpiomem is unavailable on some images; fall back to
		// /dev/mem, which additionally exposes the clock-manager block.
		f, err = os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
		if err != nil {
			return &ResourceError{Op: "open /dev/gpiomem or /dev/mem", Err: err}
		}
		usingDevMem = true
	}

	mapOffset := int64(0)
	if usingDevMem {
		mapOffset = int64(peri + gpioPeriOff)
	}
	mem, err := unix.Mmap(int(f.Fd()), mapOffset, gpioSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return &ResourceError{Op: "mmap GPIO", Err: err}
	}

	b.memFile = f
	b.gpioPtr = unsafe.Pointer(&mem[0])
	b.gpio = unsafe.Slice((*uint32)(b.gpioPtr), gpioSize/4)

	b.configureOutput(pinD0)
	b.configureOutput(pinD0 + 1)
	b.configureOutput(pinD0 + 2)
	b.configureOutput(pinD0 + 3)
	b.configureOutput(pinD0 + 4)
	b.configureOutput(pinD0 + 5)
	b.configureOutput(pinD0 + 6)
	b.configureOutput(pinD0 + 7)
	b.configureOutput(pinBDIR)
	b.configureOutput(pinBC1)
	b.configureOutput(pinReset)

	// Safe default: inactive bus, deasserted reset, data bus cleared.
	b.ctrlInactive()
	b.busWrite8(0)
	b.writeMasks(0, maskReset)

	if usingDevMem {
		b.configureAlt(pinClockOut, clockOutAlt5)
		cg, err := newClockGenerator(int(f.Fd()), peri, b.clockHz)
		if err != nil {
			unix.Munmap(mem)
			f.Close()
			return &ResourceError{Op: "init clock generator", Err: err}
		}
		b.clock = cg
	}

	b.state = backendInit
	return nil
}

func (b *GPIOBackend) Enable() error {
	switch b.state {
	case backendInit, backendDisabled:
	default:
		return &StateError{Op: "Enable", Want: backendInit, Got: b.state}
	}
	if b.state == backendInit {
		b.resetPulse()
	}
	b.state = backendEnabled
	return nil
}

func (b *GPIOBackend) WriteReg(reg, value uint8) error {
	if err := b.requireState("WriteReg", backendEnabled); err != nil {
		return err
	}
	b.latchAddress(reg & 0x0F)
	b.writeData(value)
	return nil
}

func (b *GPIOBackend) Disable() error {
	if err := b.requireState("Disable", backendEnabled); err != nil {
		return err
	}
	b.latchAddress(RegMixer)
	b.writeData(mixerIODirMask | MixerToneDisableA | MixerToneDisableB | MixerToneDisableC |
		MixerNoiseDisableA | MixerNoiseDisableB | MixerNoiseDisableC)
	for _, r := range [3]uint8{RegVolumeA, RegVolumeB, RegVolumeC} {
		b.latchAddress(r)
		b.writeData(0)
	}
	b.ctrlInactive()
	b.state = backendDisabled
	return nil
}

func (b *GPIOBackend) Fini() error {
	if b.state != backendDisabled && b.state != backendInit {
		return &StateError{Op: "Fini", Want: backendDisabled, Got: b.state}
	}
	b.ctrlInactive()
	b.writeMasks(0, maskReset)
	if b.clock != nil {
		b.clock.close()
	}
	if b.gpio != nil {
		_ = unix.Munmap(unsafe.Slice((*byte)(b.gpioPtr), gpioSize))
		b.gpio = nil
	}
	if b.memFile != nil {
		b.memFile.Close()
	}
	b.state = backendFini
	return nil
}

// -- low-level bus protocol, per spec.md section 4.5 --
//
// Every register access goes through sync/atomic rather than a plain
// slice load/store: on a page mapped MAP_SHARED over device memory the
// Go compiler is free to reorder or elide plain loads/stores, but an
// atomic operation is a real memory access the runtime must emit and
// order exactly as written, which is what the datasheet's setup/hold
// sequencing depends on.

func (b *GPIOBackend) configureOutput(pin int) {
	b.configureAlt(pin, 1) // FSEL code 001 = output
}

func (b *GPIOBackend) configureAlt(pin int, fsel uint32) {
	reg := pin / 10
	shift := uint(pin%10) * 3
	addr := &b.gpio[regGPFSEL0+reg]
	v := atomic.LoadUint32(addr)
	v &^= 7 << shift
	v |= (fsel & 7) << shift
	atomic.StoreUint32(addr, v)
}

// writeMasks performs exactly two MMIO stores: one GPCLR, one GPSET.
func (b *GPIOBackend) writeMasks(setMask, clrMask uint32) {
	atomic.StoreUint32(&b.gpio[regGPCLR0], clrMask)
	atomic.StoreUint32(&b.gpio[regGPSET0], setMask)
}

func (b *GPIOBackend) busWrite8(v uint8) {
	setMask := (uint32(v) << pinD0) & maskDataBus
	clrMask := maskDataBus &^ setMask
	b.writeMasks(setMask, clrMask)
}

func (b *GPIOBackend) ctrlInactive() { b.writeMasks(0, maskCtrl) }

func (b *GPIOBackend) ctrlLatchAddr() { b.writeMasks(maskCtrl, 0) } // BDIR=BC1=1 in one store group

func (b *GPIOBackend) ctrlWriteData() { b.writeMasks(maskBDIR, maskBC1) } // BC1=0 first, then BDIR=1

// wait is both a datasheet-mandated settle delay and the barrier that
// guarantees the preceding store is visible before the next phase: an
// atomic load of the just-written register forces the store to retire.
func (b *GPIOBackend) wait() {
	for i := 0; i < waitReads; i++ {
		_ = atomic.LoadUint32(&b.gpio[regGPCLR0])
		_ = atomic.LoadUint32(&b.gpio[regGPSET0])
	}
}

func (b *GPIOBackend) latchAddress(reg uint8) {
	b.busWrite8(reg)
	b.ctrlLatchAddr()
	b.wait() // address-setup time: >=400ns AY-3-8910, >=300ns YM2149F
	b.ctrlInactive()
}

func (b *GPIOBackend) writeData(value uint8) {
	b.busWrite8(value)
	b.ctrlInactive() // ensures BC1=0 before raising BDIR alone
	b.ctrlWriteData()
	b.wait() // write-pulse time: same durations as above
	b.ctrlInactive()
}

func (b *GPIOBackend) resetPulse() {
	b.writeMasks(0, maskReset)
	sleepMicros(10)
	b.writeMasks(maskReset, 0)
	sleepMicros(1000)
	b.writeMasks(0, maskReset)
	sleepMicros(1000)
}

func sleepMicros(us int) { time.Sleep(time.Duration(us) * time.Microsecond) }

func detectPeripheralBase() (uint32, error) {
	data, err := os.ReadFile("/proc/device-tree/soc/ranges")
	if err != nil || len(data) < 8 {
		// Default to the BCM2837 (Pi 2/3) base used by the reference backend.
		return 0x3F000000, nil
	}
	// ranges is a sequence of 32-bit big-endian cells; the second cell of
	// the first entry is the parent (physical) base address.
	base := uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	if base == 0 {
		return 0, fmt.Errorf("could not determine SoC peripheral base address")
	}
	return base, nil
}
