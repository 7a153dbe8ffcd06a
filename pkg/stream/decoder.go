package stream

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Decoder reassembles frames from byte spans that arrive with no alignment
// to frame boundaries. An unterminated trailing line stays buffered until
// its newline arrives, so the frames produced do not depend on how the
// bytes were split.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p and returns every frame completed by it. Lines that fail
// to decode are reported in errs and skipped.
func (d *Decoder) Feed(p []byte) (frames []Frame, errs []error) {
	d.buf = append(d.buf, p...)

	end := bytes.LastIndexByte(d.buf, '\n')
	if end < 0 {
		return nil, nil
	}

	complete := d.buf[:end]
	rest := d.buf[end+1:]

	for _, line := range bytes.Split(complete, []byte{'\n'}) {
		frame, ok, err := decodeLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			frames = append(frames, frame)
		}
	}

	d.buf = append(d.buf[:0:0], rest...)
	return frames, errs
}

// Close decodes whatever is left in the buffer. A stream that ends without
// a trailing newline still yields its last frame.
func (d *Decoder) Close() (frames []Frame, errs []error) {
	if len(d.buf) == 0 {
		return nil, nil
	}
	line := d.buf
	d.buf = nil

	frame, ok, err := decodeLine(line)
	if err != nil {
		return nil, []error{err}
	}
	if ok {
		return []Frame{frame}, nil
	}
	return nil, nil
}

// Buffered returns the number of bytes waiting for a newline.
func (d *Decoder) Buffered() int { return len(d.buf) }

func decodeLine(raw []byte) (Frame, bool, error) {
	raw = bytes.TrimRight(raw, "\r")
	if len(bytes.TrimSpace(raw)) == 0 {
		return Frame{}, false, nil
	}
	if !utf8.Valid(raw) {
		return Frame{}, false, &DecodeError{Line: string(raw), Err: ErrInvalidText}
	}
	frame, err := ParseLine(string(raw))
	if err != nil {
		return Frame{}, false, err
	}
	return frame, true, nil
}

// ParseLine decodes a single "data: <json>" line.
func ParseLine(line string) (Frame, error) {
	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return Frame{}, &DecodeError{Line: line, Err: ErrMissingPrefix}
	}

	var frame Frame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return Frame{}, &DecodeError{Line: line, Err: err}
	}
	if !frame.Type.valid() {
		return Frame{}, &DecodeError{Line: line, Err: ErrUnknownFrameType}
	}
	return frame, nil
}
