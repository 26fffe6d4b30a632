// psg_constants.go - AY-3-8910/YM2149F register layout and PSG clock options.

package main

// Chip register indices. Only R0..R10 are written by the driver;
// R11..R13 (hardware envelope period and shape) and R14/R15 (I/O ports)
// are untouched -- software EG substitutes for the hardware envelope
// generator.
const (
	RegTonePeriodAFine = 0
	RegTonePeriodACoarse = 1
	RegTonePeriodBFine = 2
	RegTonePeriodBCoarse = 3
	RegTonePeriodCFine = 4
	RegTonePeriodCCoarse = 5
	RegNoisePeriod     = 6
	RegMixer           = 7
	RegVolumeA         = 8
	RegVolumeB         = 9
	RegVolumeC         = 10
	RegEnvelopePeriodFine   = 11
	RegEnvelopePeriodCoarse = 12
	RegEnvelopeShape        = 13

	PSGRegCount = 14 // R0..R13; R14/R15 (I/O ports) are never addressed.
)

// Master clock options for the PSG, per spec.md section 4.5: either a
// divided 2.000000 MHz or a MASH-fractional-divided 1.996800 MHz, both
// produced by the Pi's clock-generator peripheral.
const (
	ClockHzStandard = 2000000
	ClockHzMASH     = 1996800
)

// Mixer (R7) bit layout: bit=1 disables tone/noise on that channel.
const (
	MixerToneDisableA  = 1 << 0
	MixerToneDisableB  = 1 << 1
	MixerToneDisableC  = 1 << 2
	MixerNoiseDisableA = 1 << 3
	MixerNoiseDisableB = 1 << 4
	MixerNoiseDisableC = 1 << 5
	// bits 6-7 are I/O port direction bits; both held as output and never
	// touched by the driver once set at init time.
	mixerIODirMask = 0xC0
)

// toneReg/volumeReg return the tone-period-low register and volume
// register for a channel index 0..2 (A..C).
func toneReg(ch int) int   { return ch * 2 }
func volumeReg(ch int) int { return RegVolumeA + ch }
