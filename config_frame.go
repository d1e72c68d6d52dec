package synchrophasor

// ConfigFrame represents a configuration frame (CFG-2). Config1Frame below
// reuses the same layout for CFG-1.
type ConfigFrame struct {
	C37118
	TimeBase       uint32
	NumPMU         uint16
	DataRate       int16
	PMUStationList []*PMUStation
}

// NewConfigFrame creates an empty CFG-2 frame.
func NewConfigFrame() *ConfigFrame {
	cfg := &ConfigFrame{PMUStationList: make([]*PMUStation, 0)}
	cfg.Sync = (SyncAA << 8) | SyncCfg2
	return cfg
}

// AddPMUStation appends a station and keeps NumPMU in step.
func (c *ConfigFrame) AddPMUStation(pmu *PMUStation) {
	c.PMUStationList = append(c.PMUStationList, pmu)
	c.NumPMU = uint16(len(c.PMUStationList))
}

// GetPMUStationByIDCode returns the station with the given ID code, or nil.
func (c *ConfigFrame) GetPMUStationByIDCode(idCode uint16) *PMUStation {
	for _, pmu := range c.PMUStationList {
		if pmu.IDCode == idCode {
			return pmu
		}
	}
	return nil
}

// stationLayoutOK reports whether a single station's name and unit slices
// agree in length with each other, independent of any separately tracked
// count. The per-channel value slices are not checked.
func stationLayoutOK(pmu *PMUStation) bool {
	if len(pmu.PhasorNames) != len(pmu.PhasorUnits) {
		return false
	}
	if len(pmu.AnalogNames) != len(pmu.AnalogUnits) {
		return false
	}
	if len(pmu.DigitalNames) != len(pmu.DigitalUnits)*16 {
		return false
	}
	return true
}

// validateLayout checks that every station's name/unit lists agree with
// each other, that frac_sec stays below time_base, and that time_base is
// not zero.
func (c *ConfigFrame) validateLayout() error {
	if c.TimeBase != 0 && c.FracSec&0x00FFFFFF >= c.TimeBase {
		return ErrFieldRange
	}
	for _, pmu := range c.PMUStationList {
		if !stationLayoutOK(pmu) {
			return ErrInvalidLayout
		}
	}
	if c.TimeBase == 0 {
		return ErrFieldRange
	}
	return nil
}

// stationWireSize returns the byte length one station occupies on the
// wire: its fixed 30-byte header plus 16 bytes per channel name plus 4
// bytes per unit word.
func stationWireSize(pmu *PMUStation) uint16 {
	channels := pmu.PhasorCount() + pmu.AnalogCount() + 16*pmu.DigitalCount()
	units := pmu.PhasorCount() + pmu.AnalogCount() + pmu.DigitalCount()
	return 30 + 16*channels + 4*units
}

// packStation appends one station's configuration block to w: name,
// header fields, channel names, unit words, then FNOM/CFGCNT — the
// standard's layout groups all names before all units, so encoding needs
// no lookahead the way decoding does.
func packStation(w *wireBuf, pmu *PMUStation) {
	w.field(pmu.StationName)
	w.u16(pmu.IDCode)
	w.u16(pmu.Format)
	w.u16(pmu.PhasorCount())
	w.u16(pmu.AnalogCount())
	w.u16(pmu.DigitalCount())

	for _, name := range pmu.PhasorNames {
		w.field(name)
	}
	for _, name := range pmu.AnalogNames {
		w.field(name)
	}
	for _, name := range pmu.DigitalNames {
		w.field(name)
	}

	for _, u := range pmu.PhasorUnits {
		w.u32(u)
	}
	for _, u := range pmu.AnalogUnits {
		w.u32(u)
	}
	for _, u := range pmu.DigitalUnits {
		w.u32(u)
	}

	w.u16(pmu.NominalFreqCode)
	w.u16(pmu.ConfigCount)
}

// unpackStation reads one station's configuration block starting at c's
// current position. Because the wire groups all channel names ahead of
// all unit words, and the channel counts needed to size both groups are
// read from the header in between, this walks the block in two passes:
// the header and unit words first (computing where the name block starts
// and ends along the way), then a second pass back over that span to
// split it into per-kind name lists.
func unpackStation(c *cursor) (*PMUStation, error) {
	pmu := &PMUStation{}
	pmu.StationName = c.field()
	pmu.IDCode = c.u16()
	pmu.Format = c.u16()

	phasorN, analogN, digitalN := c.u16(), c.u16(), c.u16()
	if c.err != nil {
		return nil, c.err
	}
	if phasorN > 1000 || analogN > 1000 || digitalN > 100 {
		return nil, ErrInvalidLayout
	}

	namesStart := c.pos
	namesLen := 16 * (int(phasorN) + int(analogN) + 16*int(digitalN))
	c.skip(namesLen)

	pmu.PhasorUnits = readUnits(c, int(phasorN))
	pmu.AnalogUnits = readUnits(c, int(analogN))
	pmu.DigitalUnits = readUnits(c, int(digitalN))

	pmu.NominalFreqCode = c.u16()
	pmu.ConfigCount = c.u16()
	if c.err != nil {
		return nil, c.err
	}

	resumeAt := c.pos
	c.seek(namesStart)
	pmu.PhasorNames = readFields(c, int(phasorN))
	pmu.AnalogNames = readFields(c, int(analogN))
	pmu.DigitalNames = readFields(c, 16*int(digitalN))
	c.seek(resumeAt)
	if c.err != nil {
		return nil, c.err
	}

	pmu.Phasors = make([]complex128, phasorN)
	pmu.Analogs = make([]float32, analogN)
	pmu.Digitals = make([][]bool, digitalN)
	for j := range pmu.Digitals {
		pmu.Digitals[j] = make([]bool, 16)
	}

	return pmu, nil
}

func readUnits(c *cursor, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = c.u32()
	}
	return out
}

func readFields(c *cursor, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = c.field()
	}
	return out
}

// Pack encodes the configuration frame.
func (c *ConfigFrame) Pack() ([]byte, error) {
	if err := c.validateLayout(); err != nil {
		return nil, err
	}

	size := uint16(24)
	for _, pmu := range c.PMUStationList {
		size += stationWireSize(pmu)
	}
	c.FrameSize = size

	w := newWireBuf(int(size))
	w.u16(c.Sync)
	w.u16(c.FrameSize)
	w.u16(c.IDCode)
	w.u32(c.SOC)
	w.u32(c.FracSec)
	w.u32(c.TimeBase)
	w.u16(c.NumPMU)

	for _, pmu := range c.PMUStationList {
		packStation(w, pmu)
	}
	w.i16(c.DataRate)

	c.CHK = CalcCRC(w.bytes())
	w.u16(c.CHK)
	return w.bytes(), nil
}

// Unpack decodes data into the configuration frame.
func (c *ConfigFrame) Unpack(data []byte) error {
	if len(data) < 24 {
		return ErrShortFrame
	}

	cur := newCursor(data)
	c.Sync = cur.u16()
	c.FrameSize = cur.u16()
	if cur.err == nil {
		if int(c.FrameSize) > len(data) {
			return ErrShortFrame
		}
		if c.FrameSize < 24 {
			return ErrInvalidSize
		}
	}
	c.IDCode = cur.u16()
	c.SOC = cur.u32()
	c.FracSec = cur.u32()
	c.TimeBase = cur.u32()
	numPMU := cur.u16()
	if cur.err != nil {
		return cur.err
	}
	if numPMU > 1000 {
		return ErrInvalidLayout
	}

	c.PMUStationList = make([]*PMUStation, 0, numPMU)
	for i := 0; i < int(numPMU); i++ {
		pmu, err := unpackStation(cur)
		if err != nil {
			return err
		}
		c.AddPMUStation(pmu)
	}

	c.DataRate = cur.i16()
	if cur.err != nil {
		return cur.err
	}

	cur.seek(int(c.FrameSize) - 2)
	c.CHK = cur.u16()
	if cur.err != nil {
		return cur.err
	}

	if CalcCRC(data[:c.FrameSize-2]) != c.CHK {
		return ErrCrcMismatch
	}
	return c.validateLayout()
}

// Config1Frame is a configuration frame version 1: same wire layout as
// ConfigFrame (a CFG-1 carries a PMU's capability configuration rather
// than its currently transmitted one), differing only in sync word.
type Config1Frame struct {
	ConfigFrame
}

// NewConfig1Frame creates an empty CFG-1 frame.
func NewConfig1Frame() *Config1Frame {
	cfg := &Config1Frame{}
	cfg.Sync = (SyncAA << 8) | SyncCfg1
	cfg.PMUStationList = make([]*PMUStation, 0)
	return cfg
}
