// backend_test.go - tests for MockBackend's lifecycle state machine,
// which every real Backend implementation must honor identically.

package main

import "testing"

func TestMockBackendLifecycleOrder(t *testing.T) {
	b := NewMockBackend()
	if b.State() != backendCreated {
		t.Fatalf("initial state = %v, want created", b.State())
	}

	if err := b.WriteReg(RegVolumeA, 1); err == nil {
		t.Fatalf("expected WriteReg to fail before Init/Enable")
	}

	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.Init(); err == nil {
		t.Fatalf("expected a second Init to fail")
	}

	if err := b.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if b.ResetCount != 1 {
		t.Fatalf("ResetCount = %d, want 1 after the first Enable", b.ResetCount)
	}

	if err := b.WriteReg(RegVolumeA, 9); err != nil {
		t.Fatalf("WriteReg: %v", err)
	}
	if v, ok := b.LastValue(RegVolumeA); !ok || v != 9 {
		t.Fatalf("LastValue(RegVolumeA) = %d (ok=%v), want 9", v, ok)
	}

	if err := b.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := b.WriteReg(RegVolumeA, 1); err == nil {
		t.Fatalf("expected WriteReg to fail once disabled")
	}

	// Re-enabling after a Disable must not re-pulse reset.
	if err := b.Enable(); err != nil {
		t.Fatalf("re-Enable: %v", err)
	}
	if b.ResetCount != 1 {
		t.Fatalf("ResetCount = %d, want still 1 after re-Enable from disabled", b.ResetCount)
	}

	if err := b.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := b.Fini(); err != nil {
		t.Fatalf("Fini: %v", err)
	}
}

func TestMockBackendDisableSilencesAllVolumes(t *testing.T) {
	b := NewMockBackend()
	_ = b.Init()
	_ = b.Enable()
	_ = b.WriteReg(RegVolumeA, 15)
	_ = b.WriteReg(RegVolumeB, 15)
	_ = b.WriteReg(RegVolumeC, 15)

	if err := b.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	for _, reg := range []uint8{RegVolumeA, RegVolumeB, RegVolumeC} {
		if v, ok := b.LastValue(reg); !ok || v != 0 {
			t.Fatalf("reg %d after Disable = %d (ok=%v), want 0", reg, v, ok)
		}
	}
}
