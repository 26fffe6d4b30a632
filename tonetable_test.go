// tonetable_test.go - tests for the static tone table and detune math.

package main

import "testing"

func TestToneForNoteOctaveShift(t *testing.T) {
	base := toneTable[1] // C
	for octave := 1; octave <= 8; octave++ {
		want := clamp12(int32(base) >> uint(octave))
		got := toneForNote(1, octave, 0)
		if got != want {
			t.Fatalf("octave %d: toneForNote = %#x, want %#x", octave, got, want)
		}
	}
}

func TestToneForNoteRestIsZero(t *testing.T) {
	if got := toneForNote(0, 4, 0); got != 0 {
		t.Fatalf("toneForNote(rest) = %#x, want 0", got)
	}
	if got := toneForNote(13, 4, 0); got != 0 {
		t.Fatalf("toneForNote(out of range) = %#x, want 0", got)
	}
}

func TestApplyDetuneSignMagnitude(t *testing.T) {
	period := uint16(1000)
	if got := applyDetune(period, 0x0A); got != 990 {
		t.Fatalf("positive-sign detune: got %d, want 990", got)
	}
	if got := applyDetune(period, 0x8A); got != 1010 {
		t.Fatalf("negative-sign detune: got %d, want 1010", got)
	}
}

func TestClamp12NeverReachesZero(t *testing.T) {
	if clamp12(0) != 1 {
		t.Fatalf("clamp12(0) = %d, want 1 (never silence via a zero period)", clamp12(0))
	}
	if clamp12(-50) != 1 {
		t.Fatalf("clamp12(negative) should floor at 1")
	}
	if clamp12(0xFFFF) != 0x0FFF {
		t.Fatalf("clamp12 should ceiling at the 12-bit register range")
	}
}
