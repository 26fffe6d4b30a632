// statussink.go - minimal console NoteSink/RegisterSink (component I)
// for running without an external TUI collaborator attached. Prints one
// line per committed note/rest; register writes are only traced at
// debug level since they fire far more often than notes.

package main

import (
	"fmt"

	"github.com/charmbracelet/log"
)

var noteNames = [13]string{"--", "C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

// consoleSink implements both RegisterSink and NoteSink by writing to a
// logger, for standalone playback without a display frontend wired in.
type consoleSink struct {
	logger *log.Logger
}

func newConsoleSink(logger *log.Logger) *consoleSink {
	return &consoleSink{logger: logger.With("component", "console")}
}

func (s *consoleSink) OnRegWrite(reg, value uint8) {
	s.logger.Debug("reg write", "reg", reg, "value", value)
}

func (s *consoleSink) OnNoteEvent(e NoteEvent) {
	chanLetter := string(rune('A' + e.Channel))
	if e.IsRest {
		s.logger.Info(fmt.Sprintf("%s rest", chanLetter), "len", e.Length, "bpm", float64(e.BPMx10)/10)
		return
	}
	s.logger.Info(fmt.Sprintf("%s %s%d", chanLetter, noteNames[e.Note], e.Octave),
		"vol", e.Volume, "len", e.Length, "bpm", float64(e.BPMx10)/10)
}
