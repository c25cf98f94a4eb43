// Package audio turns the base64 PCM fragments streamed by the live model into
// a self-contained WAV container.
package audio

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultSampleRate    = 24000
	DefaultChannels      = 1
	DefaultBitsPerSample = 16
)

// Format describes uncompressed PCM audio
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is what the live model emits when the descriptor says nothing else
func DefaultFormat() Format {
	return Format{
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		BitsPerSample: DefaultBitsPerSample,
	}
}

// ByteRate is the number of payload bytes per second
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// BlockAlign is the size of one sample frame across all channels
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// MIMEType renders the format as a descriptor the live API accepts
func (f Format) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// ParseMIMEType reads sample rate, channel count and bit depth from a
// descriptor such as "audio/pcm;rate=24000". Missing or malformed parameters
// keep their defaults.
func ParseMIMEType(mimeType string) Format {
	format := DefaultFormat()

	params := strings.Split(mimeType, ";")
	for _, param := range params[1:] {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "rate":
			format.SampleRate = n
		case "channels":
			format.Channels = n
		case "bits":
			if n%8 == 0 {
				format.BitsPerSample = n
			}
		}
	}

	return format
}
