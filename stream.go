package synchrophasor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
)

// EndOfStream is returned by Decoder.Next once the underlying reader is
// exhausted with no partial frame pending.
var EndOfStream = errors.New("synchrophasor: end of stream")

const maxFrameSize = 65535

// Decoder reads a byte stream carrying a sequence of C37.118 frames and
// decodes them one at a time, resynchronizing automatically on corruption
// instead of failing the whole stream (spec §4.2, §7 "drop and resync").
type Decoder struct {
	r       io.Reader
	buf     []byte
	start   int
	end     int
	configs map[uint16]*ConfigFrame
	eof     bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		buf:     make([]byte, maxFrameSize*2),
		configs: make(map[uint16]*ConfigFrame),
	}
}

// fill reads more bytes into the internal buffer, compacting first if
// needed. Returns io.EOF once the underlying reader is drained.
func (d *Decoder) fill() error {
	if d.start > 0 {
		copy(d.buf, d.buf[d.start:d.end])
		d.end -= d.start
		d.start = 0
	}
	if d.end == len(d.buf) {
		grown := make([]byte, len(d.buf)*2)
		copy(grown, d.buf[:d.end])
		d.buf = grown
	}
	n, err := d.r.Read(d.buf[d.end:])
	d.end += n
	if err != nil {
		if err == io.EOF {
			d.eof = true
		}
		return err
	}
	return nil
}

// available is the number of unconsumed bytes currently buffered.
func (d *Decoder) available() int {
	return d.end - d.start
}

// Next decodes and returns the next frame on the stream. cfg, if non-nil,
// is used as the configuration context for a Data frame; otherwise the
// Decoder's own tracking (most recently seen ConfigFrame per pmu_id) is
// used. Recoverable decode errors (CRC mismatch, unknown frame type) are
// returned alongside automatic resynchronization: the caller may keep
// calling Next to continue consuming the stream. EndOfStream is returned
// once the reader is exhausted with no partial frame pending.
func (d *Decoder) Next(ctx context.Context, cfg *ConfigFrame) (interface{}, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Need at least the sync+framesize header to know how much to
		// read next.
		for d.available() < 4 && !d.eof {
			if err := d.fill(); err != nil && !d.eof {
				return nil, err
			}
		}

		if d.available() < 2 {
			return nil, EndOfStream
		}

		if d.buf[d.start] != SyncAA {
			// Resync: advance one byte and look again.
			d.start++
			continue
		}

		if d.available() < 4 {
			return nil, EndOfStream
		}

		frameSize := binary.BigEndian.Uint16(d.buf[d.start+2 : d.start+4])
		if frameSize < 2 || int(frameSize) > maxFrameSize {
			d.start++
			continue
		}

		for d.available() < int(frameSize) && !d.eof {
			if err := d.fill(); err != nil && !d.eof {
				return nil, err
			}
		}

		if d.available() < int(frameSize) {
			// Truncated trailing frame at EOF: nothing usable remains.
			return nil, EndOfStream
		}

		frameData := d.buf[d.start : d.start+int(frameSize)]

		useCfg := cfg
		if useCfg == nil {
			idCode := binary.BigEndian.Uint16(frameData[4:6])
			useCfg = d.configs[idCode]
		}

		frame, err := UnpackFrame(frameData, useCfg)

		// Drop-and-resync: whether decode succeeded or failed, advance
		// exactly frame_size bytes so the next call resumes past this
		// frame rather than re-reading the same corrupt bytes forever.
		d.start += int(frameSize)

		if err != nil {
			return nil, err
		}

		if c, ok := frame.(*ConfigFrame); ok {
			d.configs[c.IDCode] = c
		}
		if c1, ok := frame.(*Config1Frame); ok {
			d.configs[c1.IDCode] = &c1.ConfigFrame
		}

		return frame, nil
	}
}
