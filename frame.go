// Package synchrophasor implements IEEE C37.118-2011 protocol for synchrophasor data transfer
package synchrophasor

// Frame type constants
const (
	FrameTypeData   = 0
	FrameTypeHeader = 1
	FrameTypeCfg1   = 2
	FrameTypeCfg2   = 3
	FrameTypeCmd    = 4
	FrameTypeCfg3   = 5
)

// Sync byte constants
const (
	SyncAA   = 0xAA
	SyncData = 0x01
	SyncHdr  = 0x11
	SyncCfg1 = 0x21
	SyncCfg2 = 0x31
	SyncCmd  = 0x41
	SyncCfg3 = 0x51
)

// Command codes
const (
	CmdStop   = 0x01
	CmdStart  = 0x02
	CmdHeader = 0x03
	CmdCfg1   = 0x04
	CmdCfg2   = 0x05
	CmdCfg3   = 0x06
	CmdExt    = 0x08
)

// Nominal frequency constants
const (
	FreqNom60Hz = 0
	FreqNom50Hz = 1
)

// Phasor unit types
const (
	PhunitVoltage = 0
	PhunitCurrent = 1
)

// Analog unit types
const (
	AnunitPow  = 0
	AnunitRMS  = 1
	AnunitPeak = 2
)

// Frame is the common interface implemented by every decodable frame type.
type Frame interface {
	Pack() ([]byte, error)
}

// HeaderFrame represents a header frame
type HeaderFrame struct {
	C37118
	Data string
}

// NewHeaderFrame creates a new header frame
func NewHeaderFrame(idCode uint16, info string) *HeaderFrame {
	h := &HeaderFrame{
		Data: info,
	}
	h.Sync = (SyncAA << 8) | SyncHdr
	h.FrameSize = 16
	h.IDCode = idCode
	return h
}

// Pack converts header frame to bytes. The payload is an arbitrary
// human-readable string, not a fixed-width field, so it's appended raw
// rather than through the 16-byte field helper.
func (h *HeaderFrame) Pack() ([]byte, error) {
	h.FrameSize = uint16(16 + len(h.Data))

	w := newWireBuf(int(h.FrameSize))
	w.u16(h.Sync)
	w.u16(h.FrameSize)
	w.u16(h.IDCode)
	w.u32(h.SOC)
	w.u32(h.FracSec)
	w.raw([]byte(h.Data))

	h.CHK = CalcCRC(w.bytes())
	w.u16(h.CHK)
	return w.bytes(), nil
}

// Unpack parses data into the header frame.
func (h *HeaderFrame) Unpack(data []byte) error {
	if len(data) < 16 {
		return ErrShortFrame
	}

	c := newCursor(data)
	h.Sync = c.u16()
	h.FrameSize = c.u16()
	if c.err == nil {
		if int(h.FrameSize) > len(data) {
			return ErrShortFrame
		}
		if h.FrameSize < 16 {
			return ErrInvalidSize
		}
	}
	h.IDCode = c.u16()
	h.SOC = c.u32()
	h.FracSec = c.u32()

	payloadLen := int(h.FrameSize) - 16
	if c.err == nil && payloadLen > 0 && payloadLen < 65000 {
		h.Data = string(c.bytesN(payloadLen))
	}
	if c.err != nil {
		return c.err
	}

	c.seek(int(h.FrameSize) - 2)
	h.CHK = c.u16()
	if c.err != nil {
		return c.err
	}

	if CalcCRC(data[:h.FrameSize-2]) != h.CHK {
		return ErrCrcMismatch
	}
	return nil
}

// FrameType represents the type of frame
type FrameType int

// GetFrameType extracts the frame type encoded in a frame's sync word
// without decoding the rest of the frame.
func GetFrameType(data []byte) (FrameType, error) {
	if len(data) < 2 {
		return -1, ErrShortFrame
	}

	if data[0] != SyncAA {
		return -1, ErrUnknownFrame
	}

	frameType := (data[1] >> 4) & 0x07
	return FrameType(frameType), nil
}

// UnpackFrame decodes one complete frame from data, dispatching by sync
// type. cfg is the configuration context required to decode a Data frame
// (spec §4.2); it is ignored for every other frame type.
func UnpackFrame(data []byte, cfg *ConfigFrame) (interface{}, error) {
	frameType, err := GetFrameType(data)
	if err != nil {
		return nil, err
	}

	switch frameType {
	case FrameTypeData:
		if cfg == nil {
			return nil, ErrMissingConfiguration
		}
		df := NewDataFrame(cfg)
		err := df.Unpack(data)
		return df, err

	case FrameTypeHeader:
		hf := &HeaderFrame{}
		err := hf.Unpack(data)
		return hf, err

	case FrameTypeCfg1:
		cf := NewConfig1Frame()
		err := cf.Unpack(data)
		return cf, err

	case FrameTypeCfg2:
		cf := NewConfigFrame()
		err := cf.Unpack(data)
		return cf, err

	case FrameTypeCfg3:
		// Configuration frame 3 is a standard-defined frame type with no
		// decoder in this implementation (explicit Non-goal).
		return nil, ErrNotImplemented

	case FrameTypeCmd:
		cmd := NewCommandFrame()
		err := cmd.Unpack(data)
		return cmd, err

	default:
		return nil, ErrUnknownFrame
	}
}
