// channel.go - per-channel byte-code interpreter (component D). Decodes
// notes, rests, ties, octave/volume changes, loops, tempo, the software
// envelope (EG), vibrato (LFO) and detune, one opcode object at a time,
// emitting chip register writes through regPort and note commits through
// NoteSink. Grounded on original_source/psg_driver.c's psg_channel_tick
// and its command-byte switch, reworked from a flat C state struct plus
// goto-style continues into small per-command methods.

package main

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// maxLoopNest bounds the loop-stack depth (spec.md section 3: "Invariant:
// depth <= 4"), matching the reference driver's fixed 4-slot nest array.
const maxLoopNest = 4

// regPort is the write surface a Channel drives: a backend write plus,
// on success, the same value handed to the register sink for the
// external TUI. Owned and implemented by Driver.
type regPort interface {
	writeReg(reg, value uint8) error
}

// Channel is one of the three PSG voices (A, B, C). Every exported
// behavior flows through Tick, which Driver calls once every tempo_val
// driver ticks.
type Channel struct {
	index int // 0=A, 1=B, 2=C

	port     regPort
	noteSink NoteSink
	shared   *sharedState
	logger   *log.Logger
	strict   bool

	data   []byte
	offset int
	active bool

	waitCounter int

	lDefault     uint8
	lPlusDefault uint8
	qDefault     uint8
	qCounter     int

	volume int // 0..15
	octave int // 1..8
	detune uint8

	freqValue uint16

	rest bool
	tie  bool

	// Loop state: the reference driver keeps one flat backup slot shared
	// across nesting levels (overwritten by every "[", restored by every
	// "]") while the remaining-repeat counters are genuinely per level;
	// this mirrors that exactly rather than the more obvious per-level
	// backup a clean-room design would pick.
	loopDepth        int
	loopRemaining    [maxLoopNest]uint8
	lBackup          uint8
	lPlusBackup      uint8
	loopOctaveBackup uint8

	jReturnOffset int // 0 = no return point set
	jOctaveBackup uint8

	// Software envelope (S command).
	egWidthBase  int8
	egCountBase  uint8
	egDeltaBase  int8
	eg2WidthBase int8
	eg2CountBase uint8 // bit7 = phase-2 direction, bits0-6 = period

	egCountWork  int
	egWidthWork  int
	psgEG        bool
	volumeAdjust int

	// Vibrato / LFO (M, M% commands).
	vibOn        bool
	vibPM        bool // true = '+' direction
	vibWaitBase  uint8
	vibCountBase uint8
	vibAmpBase   uint8
	vibDeltaBase int8

	vibWaitWork  int
	vibCountWork int
	vibAmpWork   int
	vibOffset    int

	seenUnknown map[uint8]bool
}

// newChannel constructs a channel in its post-reset defaults (spec.md
// section 3 / original_source's psg_channel_reset: l_default=24,
// lplus_default=192, volume=12, octave=4).
func newChannel(index int, port regPort, noteSink NoteSink, shared *sharedState, logger *log.Logger, strict bool) *Channel {
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{
		index:        index,
		port:         port,
		noteSink:     noteSink,
		shared:       shared,
		logger:       logger.With("component", "channel", "voice", index),
		strict:       strict,
		lDefault:     24,
		lPlusDefault: 192,
		volume:       12,
		octave:       4,
		seenUnknown:  make(map[uint8]bool),
	}
}

// setData loads immutable byte code for this channel. wait_counter is
// primed to 1 so the first Tick call decodes the opening object
// immediately, matching psg_driver_set_channel_data.
func (c *Channel) setData(data []byte) {
	c.data = data
	c.offset = 0
	c.waitCounter = 1
	c.active = len(data) > 0
}

// start (re)activates a channel that has loaded data, without resetting
// its decode position -- mirrors psg_driver_start's behavior across a
// stop/start cycle.
func (c *Channel) start() {
	c.active = c.data != nil
}

// Tick advances this channel by one music tick (tempo_val 2ms steps).
func (c *Channel) Tick() error {
	if !c.active {
		return nil
	}
	if c.waitCounter > 0 {
		c.waitCounter--
	}
	if c.waitCounter > 0 {
		if c.rest {
			return nil
		}
		if c.waitCounter == c.qCounter {
			if err := c.writeVolume(0); err != nil {
				return err
			}
			c.rest = true
			return nil
		}
		if err := c.tickVibrato(); err != nil {
			return err
		}
		return c.tickEnvelope()
	}
	return c.decode()
}

// decode reads and executes command objects until a note or rest object
// commits, ending this tick, or the channel deactivates.
func (c *Channel) decode() error {
	for {
		code, ok := c.readBytes(1)
		if !ok {
			return nil
		}
		b := code[0]

		if b&0x80 == 0 {
			return c.decodeNote(b)
		}

		switch b & 0xF0 {
		case 0x80:
			c.octave = int(b & 0x0F)
			continue
		case 0x90:
			c.volume = int(b & 0x0F)
			continue
		case 0xA0:
			c.volume = clampVolume(c.volume + int(b&0x0F))
			continue
		case 0xB0:
			c.volume = clampVolume(c.volume - int(b&0x0F))
			continue
		}

		var err error
		switch b {
		case 0xEA:
			err = c.cmdEnvelopeSet()
		case 0xEB:
			err = c.cmdNoisePeriodSet()
		case 0xEC:
			err = c.cmdNoisePeriodAdjust()
		case 0xED, 0xEE, 0xEF:
			err = c.cmdMixer(b)
		case 0xF0:
			err = c.cmdLoopPush()
		case 0xF1:
			err = c.cmdLoopJump(false)
		case 0xF2:
			err = c.cmdLoopJump(true)
		case 0xF3:
			err = c.cmdLoopBreak()
		case 0xF4:
			err = c.cmdLatchI()
		case 0xF5:
			err = c.cmdVibratoSet()
		case 0xF6:
			// reserved vibrato on/off switch; no-op in the reference driver.
		case 0xF7:
			err = c.cmdLPlusDefault()
		case 0xF8:
			err = c.cmdTempo()
		case 0xF9:
			err = c.cmdLDefault()
		case 0xFA:
			err = c.cmdGateDefault()
		case 0xFB:
			err = c.cmdDetuneAbsolute()
		case 0xFC:
			err = c.cmdDetuneRelative()
		case 0xFD:
			err = c.cmdVibratoDelta()
		case 0xFE:
			c.cmdJMark()
		case 0xFF:
			if c.cmdEnd() {
				return nil
			}
			continue
		default:
			c.logUnknown(b)
		}
		if err != nil {
			return err
		}
		if !c.active {
			return nil
		}
	}
}

// decodeNote commits a note or rest object: byte layout is
// 0 T L1 L0 P3 P2 P1 P0 (bit7=0, bit6=tie, bits5-4=length mode,
// bits3-0=pitch 0..12, 0=rest).
func (c *Channel) decodeNote(code uint8) error {
	tie := code&0x40 != 0
	pitch := int(code & 0x0F)

	var length uint16
	switch (code >> 4) & 0x03 {
	case 0:
		length = uint16(c.lDefault)
	case 1:
		length = uint16(c.lPlusDefault)
	case 2:
		b, ok := c.readBytes(1)
		if !ok {
			return nil
		}
		length = uint16(b[0])
	case 3:
		b, ok := c.readBytes(2)
		if !ok {
			return nil
		}
		length = uint16(b[0]) | uint16(b[1])<<8
	}
	c.waitCounter = int(length)

	qCounter := int(c.qDefault)
	if tie {
		qCounter = 0
	}
	if length == 0 {
		qCounter = 0
	} else if qCounter >= int(length) {
		qCounter = int(length) - 1
	}
	c.qCounter = qCounter

	if pitch == 0 {
		c.rest = true
		if err := c.writeVolume(0); err != nil {
			return err
		}
		c.emitNote(0, c.volume, true, length)
	} else {
		c.rest = false
		prevTie := c.tie

		if !prevTie && c.egWidthBase != 0 {
			c.psgEG = false
			c.egCountWork = int(c.egCountBase)
			c.egWidthWork = 0
		}
		if c.vibOn && !prevTie {
			c.initVibrato()
		}

		tone := toneForNote(pitch, c.octave, c.detune)

		if !prevTie {
			if err := c.writeVolume(0); err != nil {
				return err
			}
		}
		c.freqValue = tone
		if err := c.writeTone(tone); err != nil {
			return err
		}

		vol := c.volume
		if prevTie {
			vol = clampVolume(vol + c.volumeAdjust)
		}
		if err := c.writeVolume(vol); err != nil {
			return err
		}
		c.emitNote(pitch, vol, false, length)
	}

	c.tie = tie
	return nil
}

// tickVibrato runs one LFO step: an initial per-note delay, then a
// triangle-wave period correction added on top of freq_value, with its
// own independent counter flipping direction every vib_amp_base steps.
func (c *Channel) tickVibrato() error {
	if !c.vibOn {
		return nil
	}
	if c.vibWaitWork > 0 {
		c.vibWaitWork--
		return nil
	}

	c.vibCountWork--
	if c.vibCountWork != 0 {
		return nil
	}
	c.vibCountWork = int(c.vibCountBase)
	if c.vibCountWork == 0 {
		c.vibCountWork = 1
	}

	step := int(c.vibDeltaBase) & 0x7F
	if step != 0 {
		if c.vibPM {
			c.vibOffset -= step
		} else {
			c.vibOffset += step
		}
	}
	if err := c.writeTone(clamp12(int32(c.freqValue) + int32(c.vibOffset))); err != nil {
		return err
	}

	if c.vibAmpBase != 0 {
		if c.vibAmpWork != 0 {
			c.vibAmpWork--
		}
		if c.vibAmpWork == 0 {
			c.vibAmpWork = int(c.vibAmpBase)
			c.vibPM = !c.vibPM
		}
	}
	return nil
}

// initVibrato reinitializes LFO work state at the start of a non-tied
// note. The amplitude counter starts at half its steady-state period: a
// quarter-cycle head start so the first swing after note-on only covers
// 0..90 degrees instead of a full 0..180.
func (c *Channel) initVibrato() {
	c.vibOffset = 0
	c.vibWaitWork = int(c.vibWaitBase)
	c.vibCountWork = int(c.vibCountBase)
	if c.vibCountWork == 0 {
		c.vibCountWork = 1
	}
	c.vibAmpWork = int(c.vibAmpBase) / 2
	c.vibPM = uint8(c.vibDeltaBase)&0x80 == 0
}

// tickEnvelope runs one software-EG step. Phase 1 ramps eg_width_work
// toward eg_width_base by eg_delta_base every eg_count_base ticks; on
// arrival it switches to phase 2, which reuses eg_width_work as a 0..15
// ripple (direction from eg2_count_base's top bit) added to the two
// fixed widths to form the final volume correction.
func (c *Channel) tickEnvelope() error {
	if c.egWidthBase == 0 {
		return nil
	}

	if !c.psgEG {
		c.egCountWork--
		if c.egCountWork != 0 {
			return nil
		}
		if c.egWidthWork != int(c.egWidthBase) {
			c.egCountWork = int(c.egCountBase)
			c.egWidthWork += int(c.egDeltaBase)
			c.volumeAdjust = c.egWidthWork
			return c.writeAdjustedVolume()
		}
		c.psgEG = true
		c.egWidthWork = 0
		c.egCountWork = int(c.eg2CountBase & 0x7F)
		if c.eg2WidthBase != 0 {
			c.volumeAdjust = int(c.eg2WidthBase) + int(c.egWidthBase)
			return c.writeAdjustedVolume()
		}
		return nil
	}

	if c.eg2WidthBase == 0 {
		return nil
	}
	c.egCountWork--
	if c.egCountWork != 0 {
		return nil
	}
	c.egCountWork = int(c.eg2CountBase & 0x7F)
	if c.egWidthWork < 15 {
		c.egWidthWork++
	}
	delta := c.egWidthWork
	if c.eg2CountBase&0x80 != 0 {
		delta = -delta
	}
	c.volumeAdjust = delta + int(c.egWidthBase) + int(c.eg2WidthBase)
	return c.writeAdjustedVolume()
}

func (c *Channel) writeAdjustedVolume() error {
	return c.writeVolume(c.volume + c.volumeAdjust)
}

func (c *Channel) writeVolume(v int) error {
	return c.port.writeReg(uint8(volumeReg(c.index)), uint8(clampVolume(v)))
}

func (c *Channel) writeTone(period uint16) error {
	base := uint8(toneReg(c.index))
	if err := c.port.writeReg(base, uint8(period&0xFF)); err != nil {
		return err
	}
	return c.port.writeReg(base+1, uint8((period>>8)&0x0F))
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return v
}

// -- command objects (0x80..0xFF, excluding the octave/volume ranges
// handled inline in decode) --

func (c *Channel) cmdEnvelopeSet() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.egWidthBase = int8(b[0])
	if b[0] != 0 {
		rest, ok := c.readBytes(4)
		if !ok {
			return nil
		}
		c.egCountBase = rest[0]
		c.egDeltaBase = int8(rest[1])
		c.eg2WidthBase = int8(rest[2])
		c.eg2CountBase = rest[3]
	}
	return nil
}

func (c *Channel) cmdNoisePeriodSet() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.shared.reg6Value = b[0]
	return c.port.writeReg(RegNoisePeriod, b[0])
}

// cmdNoisePeriodAdjust ("W±") adds the two's-complement operand to the
// R6 shadow and clamps the result to 0..31.
func (c *Channel) cmdNoisePeriodAdjust() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	v := int(c.shared.reg6Value) + int(int8(b[0]))
	if v < 0 {
		v = 0
	}
	if v > 31 {
		v = 31
	}
	c.shared.reg6Value = uint8(v)
	return c.port.writeReg(RegNoisePeriod, uint8(v))
}

// cmdMixer handles 0xED/0xEE/0xEF ("P1"/"P2"/"P3"), which carry their
// tone/noise-enable bits in the opcode byte itself (code & 0x03) and
// take no operand.
func (c *Channel) cmdMixer(code uint8) error {
	toneBit := uint8(1) << uint(c.index)
	noiseBit := uint8(1) << uint(c.index+3)
	reg7 := c.shared.reg7Value
	if code&0x01 != 0 {
		reg7 &^= toneBit
	} else {
		reg7 |= toneBit
	}
	if code&0x02 != 0 {
		reg7 &^= noiseBit
	} else {
		reg7 |= noiseBit
	}
	c.shared.reg7Value = reg7
	return c.port.writeReg(RegMixer, reg7)
}

func (c *Channel) cmdLoopPush() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	if c.loopDepth >= maxLoopNest {
		return nil
	}
	c.loopRemaining[c.loopDepth] = b[0]
	c.loopDepth++
	c.lBackup = c.lDefault
	c.lPlusBackup = c.lPlusDefault
	c.loopOctaveBackup = uint8(c.octave)
	return nil
}

// cmdLoopJump handles both the 1-byte ("]", sign-extended with 0xFF00)
// and 2-byte little-endian jump-offset encodings. The offset is applied
// relative to the position immediately after the whole instruction
// (opcode plus operand bytes), matching psg_driver.c's
// `ch->data_offset += offset` executed post-read.
func (c *Channel) cmdLoopJump(wide bool) error {
	var offset int16
	if wide {
		b, ok := c.readBytes(2)
		if !ok {
			return nil
		}
		offset = int16(uint16(b[0]) | uint16(b[1])<<8)
	} else {
		b, ok := c.readBytes(1)
		if !ok {
			return nil
		}
		offset = int16(uint16(b[0]) | 0xFF00)
	}
	if c.loopDepth == 0 {
		return nil
	}
	top := c.loopDepth - 1
	c.loopRemaining[top]--
	if c.loopRemaining[top] == 0 {
		c.loopDepth--
		return nil
	}
	c.offset += int(offset)
	c.lDefault = c.lBackup
	c.lPlusDefault = c.lPlusBackup
	c.octave = int(c.loopOctaveBackup)
	return nil
}

// cmdLoopBreak ("`:`"): on the final iteration of the innermost loop,
// exit early by jumping by the given offset instead of falling through
// to the loop's normal "]" close.
func (c *Channel) cmdLoopBreak() error {
	b, ok := c.readBytes(2)
	if !ok {
		return nil
	}
	if c.loopDepth == 0 {
		return nil
	}
	top := c.loopDepth - 1
	if c.loopRemaining[top] == 1 {
		c.loopRemaining[top] = 0
		c.loopDepth--
		c.offset += int(int16(uint16(b[0]) | uint16(b[1])<<8))
	}
	return nil
}

func (c *Channel) cmdLatchI() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.shared.iCommandValue = b[0]
	return nil
}

// cmdVibratoSet ("M"): sets the four LFO parameters and unconditionally
// reinitializes the LFO work state, even mid-note.
func (c *Channel) cmdVibratoSet() error {
	b, ok := c.readBytes(4)
	if !ok {
		return nil
	}
	c.vibWaitBase = b[0]
	c.vibCountBase = b[1]
	c.vibAmpBase = b[2] * 2
	c.vibDeltaBase = int8(b[3])
	c.vibOn = b[3] != 0
	c.initVibrato()
	return nil
}

func (c *Channel) cmdVibratoDelta() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.vibDeltaBase = int8(b[0])
	c.vibOn = b[0] != 0
	return nil
}

func (c *Channel) cmdLPlusDefault() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.lPlusDefault = b[0]
	return nil
}

func (c *Channel) cmdTempo() error {
	b, ok := c.readBytes(2)
	if !ok {
		return nil
	}
	c.shared.tempoVal = b[0]
	c.shared.bpmX10 = bpmX10FromTempo(b[0])
	return nil
}

func (c *Channel) cmdLDefault() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.lDefault = b[0]
	return nil
}

func (c *Channel) cmdGateDefault() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.qDefault = b[0]
	return nil
}

func (c *Channel) cmdDetuneAbsolute() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	c.detune = b[0]
	return nil
}

// cmdDetuneRelative decodes the current sign-magnitude detune to a
// signed value, adds the (two's-complement) operand, and re-encodes,
// clamping the magnitude to 127 per the section 3 invariant.
func (c *Channel) cmdDetuneRelative() error {
	b, ok := c.readBytes(1)
	if !ok {
		return nil
	}
	magnitude := int(c.detune & 0x7F)
	signed := magnitude
	if c.detune&0x80 != 0 {
		signed = -magnitude
	}
	signed += int(int8(b[0]))

	mag := signed
	sign := uint8(0)
	if mag < 0 {
		mag = -mag
		sign = 0x80
	}
	if mag > 0x7F {
		mag = 0x7F
	}
	c.detune = sign | uint8(mag)
	return nil
}

func (c *Channel) cmdJMark() {
	c.jReturnOffset = c.offset
	c.jOctaveBackup = uint8(c.octave)
}

// cmdEnd reports whether the channel should stop decoding this tick
// (true) versus loop back to its J return point and keep decoding
// (false).
func (c *Channel) cmdEnd() bool {
	if c.jReturnOffset != 0 {
		c.offset = c.jReturnOffset
		c.octave = int(c.jOctaveBackup)
		return false
	}
	c.active = false
	return true
}

func (c *Channel) emitNote(pitch, volume int, isRest bool, length uint16) {
	if c.noteSink == nil {
		return
	}
	c.noteSink.OnNoteEvent(NoteEvent{
		Channel: c.index,
		Octave:  c.octave,
		Note:    pitch,
		Volume:  volume,
		Length:  length,
		IsRest:  isRest,
		BPMx10:  c.shared.bpmX10,
	})
}

func (c *Channel) logUnknown(code uint8) {
	if c.seenUnknown[code] {
		return
	}
	c.seenUnknown[code] = true
	c.logger.Warn("unknown command byte", "opcode", fmt.Sprintf("0x%02X", code))
	if c.strict {
		c.active = false
	}
}

// readBytes reads n bytes at the current offset, advancing it. On
// overrun it deactivates the channel and logs once -- a malformed or
// truncated data stream never panics or desyncs the other channels.
func (c *Channel) readBytes(n int) ([]byte, bool) {
	if c.offset+n > len(c.data) {
		c.logger.Warn("channel object data overrun", "offset", c.offset, "need", n, "len", len(c.data))
		c.active = false
		return nil, false
	}
	b := c.data[c.offset : c.offset+n]
	c.offset += n
	return b, true
}

// bpmX10FromTempo derives a display BPM*10 from the T96 tempo value
// (spec.md section 3): tempo_val 2ms ticks per 96th note.
func bpmX10FromTempo(t96 uint8) uint16 {
	if t96 == 0 {
		return 0
	}
	return uint16((12500 + uint16(t96)/2) / uint16(t96))
}
