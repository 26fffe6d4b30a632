// driver_test.go - tests for the driver core's tempo gating and
// channel lifecycle.

package main

import "testing"

func TestNewDriverWritesDefaultsOnInit(t *testing.T) {
	backend := NewMockBackend()
	if err := backend.Init(); err != nil {
		t.Fatalf("backend Init: %v", err)
	}
	if err := backend.Enable(); err != nil {
		t.Fatalf("backend Enable: %v", err)
	}

	d := NewDriver(backend, nil, nil, nil)
	if err := d.Init(); err != nil {
		t.Fatalf("driver Init: %v", err)
	}

	if v, ok := backend.LastValue(RegNoisePeriod); !ok || v != reg6Default {
		t.Fatalf("R6 = %#x (ok=%v), want %#x", v, ok, reg6Default)
	}
	if v, ok := backend.LastValue(RegMixer); !ok || v != reg7Default {
		t.Fatalf("R7 = %#x (ok=%v), want %#x", v, ok, reg7Default)
	}
}

func TestDriverTempoGatesChannelAdvance(t *testing.T) {
	backend := NewMockBackend()
	_ = backend.Init()
	_ = backend.Enable()

	d := NewDriver(backend, nil, nil, nil)
	_ = d.Init()
	_ = d.SetChannelData(0, []byte{0x01, 0xFF}) // C at octave 4, default length
	d.shared.tempoVal = 3
	d.Start()

	writesBefore := len(backend.Writes)
	if err := d.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if err := d.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(backend.Writes) != writesBefore {
		t.Fatalf("expected no register writes before the tempo_counter reaches zero")
	}

	if err := d.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(backend.Writes) == writesBefore {
		t.Fatalf("expected channel A to decode its first note once tempo_counter reached zero")
	}
}

func TestDriverSetChannelDataRejectsBadIndex(t *testing.T) {
	d := NewDriver(NewMockBackend(), nil, nil, nil)
	if err := d.SetChannelData(3, []byte{0xFF}); err == nil {
		t.Fatalf("expected an error for an out-of-range channel index")
	}
}

func TestDriverStopSilencesAllChannels(t *testing.T) {
	backend := NewMockBackend()
	_ = backend.Init()
	_ = backend.Enable()

	d := NewDriver(backend, nil, nil, nil)
	_ = d.Init()
	for i := 0; i < 3; i++ {
		_ = d.SetChannelData(i, []byte{0x01, 0xFF})
	}
	d.Start()

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d.Active() {
		t.Fatalf("expected Active() false after Stop")
	}
	for i := 0; i < 3; i++ {
		if v, ok := backend.LastValue(uint8(volumeReg(i))); !ok || v != 0 {
			t.Fatalf("channel %d volume after Stop = %d (ok=%v), want 0", i, v, ok)
		}
	}
}

func TestDriverActiveReflectsLoadedChannels(t *testing.T) {
	backend := NewMockBackend()
	_ = backend.Init()
	_ = backend.Enable()

	d := NewDriver(backend, nil, nil, nil)
	_ = d.Init()
	if d.Active() {
		t.Fatalf("expected Active() false before any channel data is loaded")
	}

	_ = d.SetChannelData(1, []byte{0x01, 0xFF})
	d.Start()
	if !d.Active() {
		t.Fatalf("expected Active() true once a channel has data and Start was called")
	}
}
