// backend_mock.go - in-memory Backend for tests.
// Always compiled (no build tag) so unit tests run on any host, mirroring
// the teacher's "headless" backend stand-in for its real audio backends.

package main

// MockBackend records every register write and reset instead of driving
// real GPIO. Used by the test suite; non-Linux/non-ARM builds of the
// player get UnsupportedBackend instead.
type MockBackend struct {
	backendCommon
	Writes      []regWrite
	ResetCount  int
	shadowRegs  [PSGRegCount]uint8
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (b *MockBackend) Init() error {
	if b.state != backendCreated {
		return &StateError{Op: "Init", Want: backendCreated, Got: b.state}
	}
	b.state = backendInit
	return nil
}

func (b *MockBackend) Enable() error {
	if err := b.requireState("Enable", backendInit); err != nil {
		if b.state == backendDisabled {
			b.state = backendEnabled
			return nil
		}
		return err
	}
	b.ResetCount++
	b.state = backendEnabled
	return nil
}

func (b *MockBackend) WriteReg(reg, value uint8) error {
	if err := b.requireState("WriteReg", backendEnabled); err != nil {
		return err
	}
	b.Writes = append(b.Writes, regWrite{reg, value})
	if int(reg) < len(b.shadowRegs) {
		b.shadowRegs[reg] = value
	}
	return nil
}

func (b *MockBackend) Disable() error {
	if err := b.requireState("Disable", backendEnabled); err != nil {
		return err
	}
	// Mirror the real backend's silence-before-leaving-enabled contract.
	b.Writes = append(b.Writes,
		regWrite{RegMixer, mixerIODirMask | MixerToneDisableA | MixerToneDisableB | MixerToneDisableC |
			MixerNoiseDisableA | MixerNoiseDisableB | MixerNoiseDisableC},
		regWrite{RegVolumeA, 0}, regWrite{RegVolumeB, 0}, regWrite{RegVolumeC, 0})
	b.state = backendDisabled
	return nil
}

func (b *MockBackend) Fini() error {
	if b.state != backendDisabled && b.state != backendInit {
		return &StateError{Op: "Fini", Want: backendDisabled, Got: b.state}
	}
	b.state = backendFini
	return nil
}

// LastValue returns the most recent value written to reg, and whether
// reg was ever written.
func (b *MockBackend) LastValue(reg uint8) (uint8, bool) {
	found := false
	var v uint8
	for _, w := range b.Writes {
		if w.Reg == reg {
			v = w.Value
			found = true
		}
	}
	return v, found
}
