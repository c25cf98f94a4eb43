package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the canonical RIFF/WAVE PCM header
const HeaderSize = 44

// ErrInvalidWAV is returned when a buffer is not a canonical PCM WAV file
var ErrInvalidWAV = errors.New("invalid wav data")

// Container is an immutable WAV rendering of one turn's audio
type Container struct {
	format Format
	data   []byte
}

// Format returns the encoding declared in the header
func (c *Container) Format() Format {
	return c.format
}

// Bytes returns header and payload. The slice is shared; callers must not modify it.
func (c *Container) Bytes() []byte {
	return c.data
}

// PayloadLen is the number of PCM bytes after the header
func (c *Container) PayloadLen() int {
	return len(c.data) - HeaderSize
}

// Len is the full container size
func (c *Container) Len() int {
	return len(c.data)
}

// EncodeWAV concatenates PCM fragments in order behind a 44-byte header
func EncodeWAV(fragments [][]byte, format Format) []byte {
	payloadLen := 0
	for _, fragment := range fragments {
		payloadLen += len(fragment)
	}

	wav := make([]byte, HeaderSize, HeaderSize+payloadLen)
	writeHeader(wav, payloadLen, format)
	for _, fragment := range fragments {
		wav = append(wav, fragment...)
	}
	return wav
}

func writeHeader(b []byte, payloadLen int, format Format) {
	le := binary.LittleEndian

	copy(b[0:4], "RIFF")
	le.PutUint32(b[4:8], uint32(36+payloadLen))
	copy(b[8:12], "WAVE")

	copy(b[12:16], "fmt ")
	le.PutUint32(b[16:20], 16)
	le.PutUint16(b[20:22], 1) // PCM
	le.PutUint16(b[22:24], uint16(format.Channels))
	le.PutUint32(b[24:28], uint32(format.SampleRate))
	le.PutUint32(b[28:32], uint32(format.ByteRate()))
	le.PutUint16(b[32:34], uint16(format.BlockAlign()))
	le.PutUint16(b[34:36], uint16(format.BitsPerSample))

	copy(b[36:40], "data")
	le.PutUint32(b[40:44], uint32(payloadLen))
}

// DecodeWAV parses a canonical 44-byte-header PCM WAV and returns its format
// and payload. The payload aliases wav.
func DecodeWAV(wav []byte) (Format, []byte, error) {
	if len(wav) < HeaderSize {
		return Format{}, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidWAV, len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Format{}, nil, fmt.Errorf("%w: missing RIFF/WAVE markers", ErrInvalidWAV)
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		return Format{}, nil, fmt.Errorf("%w: unexpected chunk layout", ErrInvalidWAV)
	}

	le := binary.LittleEndian
	if tag := le.Uint16(wav[20:22]); tag != 1 {
		return Format{}, nil, fmt.Errorf("%w: format tag %d is not PCM", ErrInvalidWAV, tag)
	}

	format := Format{
		Channels:      int(le.Uint16(wav[22:24])),
		SampleRate:    int(le.Uint32(wav[24:28])),
		BitsPerSample: int(le.Uint16(wav[34:36])),
	}

	dataLen := int(le.Uint32(wav[40:44]))
	if dataLen > len(wav)-HeaderSize {
		return Format{}, nil, fmt.Errorf("%w: header declares %d data bytes, %d present",
			ErrInvalidWAV, dataLen, len(wav)-HeaderSize)
	}

	return format, wav[HeaderSize : HeaderSize+dataLen], nil
}

// IsWAV reports whether b starts with a RIFF/WAVE signature
func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}
