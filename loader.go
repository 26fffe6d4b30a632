// loader.go - PC-6001 PSG music file parsing (component G, spec.md
// section 4.1). Adapted from ay_parser.go's contiguous-buffer-plus-
// slice-header technique: one allocation backs all three channel
// slices instead of three independent copies.

package main

import (
	"fmt"
	"os"
)

// minChannelStart is the lowest legal offset for channel A's start
// address (spec.md section 4.1: "8 <= a_addr").
const minChannelStart = 8

// minFileSize is the smallest file that can satisfy
// 8 <= addrA < addrB < addrC <= filesize plus one 0xFF terminator per
// channel.
const minFileSize = 11

// maxFileSize matches spec.md section 4.1: offsets are 16-bit, so a
// channel's final byte can never sit past 0xFFFF.
const maxFileSize = 0x10000

// Song holds the three immutable channel byte-code slices extracted
// from a loaded file, ready to hand to Driver.SetChannelData.
type Song struct {
	Channels [3][]byte
}

// LoadSongFile reads and parses a PC-6001 PSG music file from disk.
func LoadSongFile(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}
	return ParseSong(data)
}

// ParseSong validates and slices a raw file buffer into three channel
// streams. All three returned slices alias one contiguous backing array
// and are never written to afterward.
func ParseSong(data []byte) (*Song, error) {
	if len(data) < minFileSize {
		return nil, &ConfigError{Msg: fmt.Sprintf("file too small: %d bytes, need at least %d", len(data), minFileSize)}
	}
	if len(data) >= maxFileSize {
		return nil, &ConfigError{Msg: fmt.Sprintf("file too large: %d bytes, must be < %d", len(data), maxFileSize)}
	}

	addrA := le16(data[0:2])
	addrB := le16(data[2:4])
	addrC := le16(data[4:6])

	if !(minChannelStart <= addrA && addrA < addrB && addrB < addrC && int(addrC) <= len(data)) {
		return nil, &ConfigError{Msg: fmt.Sprintf(
			"invalid channel offsets: A=%d B=%d C=%d filesize=%d", addrA, addrB, addrC, len(data))}
	}

	// One allocation backs all three channel slices; each is bounded by
	// a three-index slice expression so appends elsewhere can never
	// corrupt a neighboring channel's tail.
	buf := make([]byte, len(data))
	copy(buf, data)

	bounds := [3][2]int{
		{int(addrA), int(addrB)},
		{int(addrB), int(addrC)},
		{int(addrC), len(buf)},
	}

	var song Song
	for i, b := range bounds {
		start, end := b[0], b[1]
		if end-start < 1 {
			return nil, &ConfigError{Msg: fmt.Sprintf("channel %d is empty", i)}
		}
		if buf[end-1] != 0xFF {
			return nil, &ConfigError{Msg: fmt.Sprintf("channel %d does not end with 0xFF", i)}
		}
		song.Channels[i] = buf[start:end:end]
	}
	return &song, nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
