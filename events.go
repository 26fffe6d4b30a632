// events.go - callback capabilities consumed by the external TUI collaborator
// (component C). The driver and channels hold these as plain interfaces;
// no dynamic dispatch beyond the one virtual call per write/event.

package main

// RegisterSink receives every successful chip register write, in program
// order, after the backend has physically written it. reg's low nibble
// is the only significant part (spec.md section 6).
type RegisterSink interface {
	OnRegWrite(reg, value uint8)
}

// NoteEvent is emitted whenever a channel commits a note or rest.
type NoteEvent struct {
	Channel int    // 0=A, 1=B, 2=C
	Octave  int    // 1..8
	Note    int    // 0=rest, 1..12=C..B
	Volume  int    // 0..15
	Length  uint16 // ticks
	IsRest  bool
	BPMx10  uint16
}

// NoteSink receives committed note/rest events for display.
type NoteSink interface {
	OnNoteEvent(e NoteEvent)
}

// discardRegisterSink and discardNoteSink let a driver be constructed
// without an external TUI collaborator wired in (e.g. in tests).
type discardRegisterSink struct{}

func (discardRegisterSink) OnRegWrite(reg, value uint8) {}

type discardNoteSink struct{}

func (discardNoteSink) OnNoteEvent(e NoteEvent) {}

// recordingSink is a test/debug sink that keeps everything it saw, used
// by the package's own tests and available to callers that want a
// passive recorder instead of a live display.
type recordingSink struct {
	regWrites []regWrite
	notes     []NoteEvent
}

type regWrite struct {
	Reg, Value uint8
}

func (s *recordingSink) OnRegWrite(reg, value uint8) {
	s.regWrites = append(s.regWrites, regWrite{reg, value})
}

func (s *recordingSink) OnNoteEvent(e NoteEvent) {
	s.notes = append(s.notes, e)
}
