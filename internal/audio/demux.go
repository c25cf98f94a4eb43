package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrFormatMismatch is returned when fragments of one turn disagree on encoding
	ErrFormatMismatch = errors.New("audio fragment format mismatch")
	// ErrInvalidFragment is returned for fragments that are not valid base64
	ErrInvalidFragment = errors.New("invalid audio fragment")
)

// Demuxer collects the audio fragments of one turn in arrival order.
// It is not safe for concurrent use; the turn assembler owns it.
type Demuxer struct {
	mimeType  string
	format    Format
	fragments [][]byte
	total     int
}

// NewDemuxer creates an empty demuxer
func NewDemuxer() *Demuxer {
	return &Demuxer{}
}

// Add decodes one base64 fragment. The first fragment fixes the turn's format.
func (d *Demuxer) Add(data, mimeType string) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFragment, err)
	}

	format := ParseMIMEType(mimeType)
	if len(d.fragments) == 0 {
		d.mimeType = mimeType
		d.format = format
	} else if format != d.format {
		return fmt.Errorf("%w: turn is %s, fragment is %s", ErrFormatMismatch, d.format, format)
	}

	d.fragments = append(d.fragments, raw)
	d.total += len(raw)
	return nil
}

// Len is the number of fragments collected
func (d *Demuxer) Len() int {
	return len(d.fragments)
}

// PayloadLen is the number of decoded PCM bytes collected
func (d *Demuxer) PayloadLen() int {
	return d.total
}

// Format is the turn's encoding, valid once a fragment has been added
func (d *Demuxer) Format() Format {
	return d.format
}

// MIMEType is the descriptor of the first fragment
func (d *Demuxer) MIMEType() string {
	return d.mimeType
}

// Encode renders the collected fragments as WAV. It returns nil when the turn
// carried no audio.
func (d *Demuxer) Encode() *Container {
	if len(d.fragments) == 0 {
		return nil
	}
	return &Container{
		format: d.format,
		data:   EncodeWAV(d.fragments, d.format),
	}
}

// Reset drops all fragments
func (d *Demuxer) Reset() {
	d.mimeType = ""
	d.format = Format{}
	d.fragments = nil
	d.total = 0
}
