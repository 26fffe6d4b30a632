// loader_test.go - tests for PC-6001 PSG music file parsing.

package main

import "testing"

// buildSong assembles a minimal valid file: a 6-byte offset header
// padded out to minChannelStart, followed by three channel streams,
// each of which must end in 0xFF.
func buildSong(a, b, c []byte) []byte {
	addrA := uint16(minChannelStart)
	addrB := addrA + uint16(len(a))
	addrC := addrB + uint16(len(b))

	buf := make([]byte, 0, int(addrC)+len(c))
	buf = append(buf, byte(addrA), byte(addrA>>8))
	buf = append(buf, byte(addrB), byte(addrB>>8))
	buf = append(buf, byte(addrC), byte(addrC>>8))
	buf = append(buf, make([]byte, minChannelStart-6)...)
	buf = append(buf, a...)
	buf = append(buf, b...)
	buf = append(buf, c...)
	return buf
}

func TestParseSongSplitsThreeChannels(t *testing.T) {
	data := buildSong([]byte{0x01, 0xFF}, []byte{0x02, 0xFF}, []byte{0x03, 0xFF})

	song, err := ParseSong(data)
	if err != nil {
		t.Fatalf("ParseSong: %v", err)
	}
	want := [3][]byte{{0x01, 0xFF}, {0x02, 0xFF}, {0x03, 0xFF}}
	for i, ch := range song.Channels {
		if string(ch) != string(want[i]) {
			t.Fatalf("channel %d = % X, want % X", i, ch, want[i])
		}
	}
}

func TestParseSongChannelsAreIndependentSlices(t *testing.T) {
	data := buildSong([]byte{0x01, 0xFF}, []byte{0x02, 0xFF}, []byte{0x03, 0xFF})
	song, err := ParseSong(data)
	if err != nil {
		t.Fatalf("ParseSong: %v", err)
	}
	song.Channels[0][0] = 0xAA
	if song.Channels[1][0] == 0xAA {
		t.Fatalf("mutating channel 0 affected channel 1's backing data")
	}
}

func TestParseSongRejectsTooSmall(t *testing.T) {
	if _, err := ParseSong([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error for a file below the minimum size")
	}
}

func TestParseSongRejectsBadOffsetOrdering(t *testing.T) {
	data := buildSong([]byte{0x01, 0xFF}, []byte{0x02, 0xFF}, []byte{0x03, 0xFF})
	// Swap A and B offsets so B < A, violating strict ordering.
	data[0], data[2] = data[2], data[0]
	data[1], data[3] = data[3], data[1]

	if _, err := ParseSong(data); err == nil {
		t.Fatalf("expected an error for non-increasing channel offsets")
	}
}

func TestParseSongRejectsStartBelowMinimum(t *testing.T) {
	data := buildSong([]byte{0x01, 0xFF}, []byte{0x02, 0xFF}, []byte{0x03, 0xFF})
	data[0], data[1] = 2, 0 // addrA = 2, below minChannelStart (8)

	if _, err := ParseSong(data); err == nil {
		t.Fatalf("expected an error for addrA below minChannelStart")
	}
}

func TestParseSongRejectsMissingTerminator(t *testing.T) {
	data := buildSong([]byte{0x01, 0x02}, []byte{0x02, 0xFF}, []byte{0x03, 0xFF})
	if _, err := ParseSong(data); err == nil {
		t.Fatalf("expected an error when a channel does not end with 0xFF")
	}
}

func TestParseSongRejectsEmptyChannel(t *testing.T) {
	data := buildSong(nil, []byte{0x02, 0xFF}, []byte{0x03, 0xFF})
	if _, err := ParseSong(data); err == nil {
		t.Fatalf("expected an error for an empty channel region")
	}
}

func TestParseSongRejectsTooLarge(t *testing.T) {
	data := make([]byte, maxFileSize)
	if _, err := ParseSong(data); err == nil {
		t.Fatalf("expected an error for a file at or above maxFileSize")
	}
}
