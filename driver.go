// driver.go - driver core (component E): owns the three channels plus
// shared main state, and dispatches one tick to each active channel at
// the tempo rate. Grounded on original_source/psg_driver.c's
// PSGMainWork/PSGDriver and psg_driver_init/_start/_stop/_tick.

package main

import "github.com/charmbracelet/log"

// sharedState is the driver-wide state multiple commands read-modify-
// write (spec.md section 3, "Main driver state"). Channels hold a
// pointer to the single instance owned by Driver.
type sharedState struct {
	tempoVal      uint8
	tempoCounter  int
	bpmX10        uint16
	reg6Value     uint8
	reg7Value     uint8
	iCommandValue uint8
}

// Driver is the component-E core: three Channel voices sharing one
// backend connection, one register sink, and one note sink.
type Driver struct {
	backend  Backend
	regSink  RegisterSink
	noteSink NoteSink
	logger   *log.Logger

	shared   sharedState
	channels [3]*Channel
}

// reg7Default enables all three tones, disables all three noise
// generators, and holds both I/O port-direction bits as output -- the
// mixer state psg_driver_init writes before any channel data loads.
const reg7Default = mixerIODirMask | MixerNoiseDisableA | MixerNoiseDisableB | MixerNoiseDisableC

// reg6Default is the noise-period reset value (0xC0 in the reference
// driver: well above any period a channel is likely to dial in, so an
// un-configured noise generator stays near-silent by default).
const reg6Default = 0xC0

// defaultTempoVal is the T96 value psg_driver_init starts with (10 2ms
// ticks per 96th note, i.e. 125 BPM).
const defaultTempoVal = 10

// NewDriver wires a backend (already Init'd and Enabled) to a driver
// core. regSink/noteSink may be nil to discard.
func NewDriver(backend Backend, regSink RegisterSink, noteSink NoteSink, logger *log.Logger) *Driver {
	if regSink == nil {
		regSink = discardRegisterSink{}
	}
	if noteSink == nil {
		noteSink = discardNoteSink{}
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &Driver{
		backend:  backend,
		regSink:  regSink,
		noteSink: noteSink,
		logger:   logger.With("component", "driver"),
	}
	d.shared.tempoVal = defaultTempoVal
	d.shared.tempoCounter = defaultTempoVal
	d.shared.bpmX10 = bpmX10FromTempo(defaultTempoVal)
	d.shared.reg6Value = reg6Default
	d.shared.reg7Value = reg7Default
	for i := range d.channels {
		d.channels[i] = newChannel(i, d, noteSink, &d.shared, logger, false)
	}
	return d
}

// SetStrict toggles strict unknown-opcode handling (SPEC_FULL.md
// section 11): deactivate the offending channel instead of logging and
// skipping past it.
func (d *Driver) SetStrict(strict bool) {
	for _, ch := range d.channels {
		ch.strict = strict
	}
}

// Init writes the driver-wide reset registers (R6, R7) to the backend,
// which must already be Init'd and Enabled.
func (d *Driver) Init() error {
	if err := d.writeReg(RegNoisePeriod, d.shared.reg6Value); err != nil {
		return err
	}
	return d.writeReg(RegMixer, d.shared.reg7Value)
}

// SetChannelData loads immutable byte code into one of the three
// channels (0=A, 1=B, 2=C).
func (d *Driver) SetChannelData(index int, data []byte) error {
	if index < 0 || index >= len(d.channels) {
		return &ConfigError{Msg: "channel index out of range"}
	}
	d.channels[index].setData(data)
	return nil
}

// Start activates every channel that has data loaded, per
// psg_driver_start.
func (d *Driver) Start() {
	d.shared.tempoCounter = int(d.shared.tempoVal)
	for _, ch := range d.channels {
		ch.start()
	}
}

// Stop deactivates all channels and silences their volumes immediately.
func (d *Driver) Stop() error {
	for i, ch := range d.channels {
		ch.active = false
		if err := d.writeReg(uint8(volumeReg(i)), 0); err != nil {
			return err
		}
	}
	return nil
}

// Tick runs one 2ms scheduler step. Channels only advance once per
// tempo_val driver ticks, matching psg_driver_tick's tempo_counter gate.
func (d *Driver) Tick() error {
	d.shared.tempoCounter--
	if d.shared.tempoCounter > 0 {
		return nil
	}
	d.shared.tempoCounter = int(d.shared.tempoVal)
	if d.shared.tempoCounter <= 0 {
		d.shared.tempoCounter = 1
	}
	for _, ch := range d.channels {
		if err := ch.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// Active reports whether any channel is still decoding.
func (d *Driver) Active() bool {
	for _, ch := range d.channels {
		if ch.active {
			return true
		}
	}
	return false
}

// BPMx10 returns the current display tempo, derived from T96.
func (d *Driver) BPMx10() uint16 { return d.shared.bpmX10 }

// writeReg implements regPort: every channel command and Driver's own
// R6/R7 resets flow through here so the backend and the register sink
// always see the same sequence.
func (d *Driver) writeReg(reg, value uint8) error {
	if err := d.backend.WriteReg(reg, value); err != nil {
		return err
	}
	d.regSink.OnRegWrite(reg, value)
	return nil
}
