package synchrophasor

// CommandFrame carries a PDC-to-PMU request: start/stop streaming, send
// header/config, or an extended command with an implementation-defined
// payload in ExtraFrame.
type CommandFrame struct {
	C37118
	CMD        uint16
	ExtraFrame []byte
}

// NewCommandFrame creates an empty command frame (no ExtraFrame).
func NewCommandFrame() *CommandFrame {
	cmd := &CommandFrame{}
	cmd.Sync = (SyncAA << 8) | SyncCmd
	cmd.FrameSize = 18
	return cmd
}

// Pack encodes the command frame.
func (c *CommandFrame) Pack() ([]byte, error) {
	w := newWireBuf(int(c.FrameSize))
	w.u16(c.Sync)
	w.u16(c.FrameSize)
	w.u16(c.IDCode)
	w.u32(c.SOC)
	w.u32(c.FracSec)
	w.u16(c.CMD)
	w.raw(c.ExtraFrame)

	c.CHK = CalcCRC(w.bytes())
	w.u16(c.CHK)
	return w.bytes(), nil
}

// Unpack decodes data into the command frame.
func (c *CommandFrame) Unpack(data []byte) error {
	if len(data) < 18 {
		return ErrShortFrame
	}

	cur := newCursor(data)
	c.Sync = cur.u16()
	c.FrameSize = cur.u16()
	if cur.err == nil {
		if int(c.FrameSize) > len(data) {
			return ErrShortFrame
		}
		if c.FrameSize < 18 {
			return ErrInvalidSize
		}
	}
	c.IDCode = cur.u16()
	c.SOC = cur.u32()
	c.FracSec = cur.u32()
	c.CMD = cur.u16()
	if cur.err != nil {
		return cur.err
	}

	extraLen := int(c.FrameSize) - 18
	if extraLen > 0 && extraLen < 65518 {
		extra := cur.bytesN(extraLen)
		if cur.err != nil {
			return cur.err
		}
		c.ExtraFrame = append([]byte(nil), extra...)
	}

	c.CHK = cur.u16()
	if cur.err != nil {
		return cur.err
	}

	if CalcCRC(data[:c.FrameSize-2]) != c.CHK {
		return ErrCrcMismatch
	}
	return nil
}

// NegativeAck codes, carried in ExtraFrame of a negative-acknowledgement
// CommandFrame sent in reply to a command the PMU will not honor (e.g. a
// CFG-3 request, which this implementation does not support).
const (
	NakUnsupportedCommand = 1
	NakUnsupportedFrame   = 2
)

// NegativeAck builds a CommandFrame that tells a PDC its request will not
// be honored, carrying a one-byte reason code in ExtraFrame. Used in place
// of silently dropping or closing the connection on an unsupported command
// such as CFG-3 (CmdCfg3).
func NegativeAck(idCode uint16, reason uint8) *CommandFrame {
	cmd := NewCommandFrame()
	cmd.IDCode = idCode
	cmd.CMD = CmdExt
	cmd.ExtraFrame = []byte{reason}
	cmd.FrameSize = uint16(18 + len(cmd.ExtraFrame))
	return cmd
}
