package synchrophasor

// PMUStation holds one PMU's configuration block: its channel layout
// (names, conversion units) plus the live measurement values Pack/Unpack
// read and write for a single data-frame cycle. Channel counts are not
// stored separately; they are derived from the layout slices themselves
// so the two can never drift apart.
type PMUStation struct {
	C37118
	StationName string
	Format      uint16

	PhasorNames []string
	PhasorUnits []uint32
	Phasors     []complex128

	AnalogNames []string
	AnalogUnits []uint32
	Analogs     []float32

	DigitalNames []string
	DigitalUnits []uint32
	Digitals     [][]bool

	NominalFreqCode uint16
	ConfigCount     uint16
	StatusWord      uint16
	Frequency       float32
	ROCOF           float32
}

// PhasorCount reports how many phasor channels are configured.
func (p *PMUStation) PhasorCount() uint16 { return uint16(len(p.PhasorUnits)) }

// AnalogCount reports how many analog channels are configured.
func (p *PMUStation) AnalogCount() uint16 { return uint16(len(p.AnalogUnits)) }

// DigitalCount reports how many 16-bit digital status words are configured.
func (p *PMUStation) DigitalCount() uint16 { return uint16(len(p.DigitalUnits)) }

// NewPMUStation creates a PMU station with an empty channel layout.
func NewPMUStation(name string, idCode uint16, freqType, analogType, phasorType, coordType bool) *PMUStation {
	pmu := &PMUStation{
		StationName:  name,
		PhasorNames:  make([]string, 0),
		PhasorUnits:  make([]uint32, 0),
		Phasors:      make([]complex128, 0),
		AnalogNames:  make([]string, 0),
		AnalogUnits:  make([]uint32, 0),
		Analogs:      make([]float32, 0),
		DigitalNames: make([]string, 0),
		DigitalUnits: make([]uint32, 0),
		Digitals:     make([][]bool, 0),
	}
	pmu.IDCode = idCode
	pmu.SetFormat(freqType, analogType, phasorType, coordType)
	return pmu
}

// format word bit positions as the standard numbers them, bit 0 being the
// least significant.
const (
	fmtCoordBit  = 1 << 0
	fmtPhasorBit = 1 << 1
	fmtAnalogBit = 1 << 2
	fmtFreqBit   = 1 << 3
)

// SetFormat rebuilds the FORMAT word from its four independent flags.
func (p *PMUStation) SetFormat(freqType, analogType, phasorType, coordType bool) {
	var f uint16
	for bit, on := range map[uint16]bool{
		fmtCoordBit:  coordType,
		fmtPhasorBit: phasorType,
		fmtAnalogBit: analogType,
		fmtFreqBit:   freqType,
	} {
		if on {
			f |= bit
		}
	}
	p.Format = f
}

// FormatCoord reports whether phasors are carried polar rather than rectangular.
func (p *PMUStation) FormatCoord() bool { return p.Format&fmtCoordBit != 0 }

// FormatPhasorType reports whether phasor components are float rather than fixed.
func (p *PMUStation) FormatPhasorType() bool { return p.Format&fmtPhasorBit != 0 }

// FormatAnalogType reports whether analog values are float rather than fixed.
func (p *PMUStation) FormatAnalogType() bool { return p.Format&fmtAnalogBit != 0 }

// FormatFreqType reports whether freq/dfreq are float rather than fixed.
func (p *PMUStation) FormatFreqType() bool { return p.Format&fmtFreqBit != 0 }

// unitWord packs a PHUNIT/ANUNIT word: the channel-kind byte in the top
// 8 bits, the conversion scale in the low 24.
func unitWord(kind uint8, scale uint32) uint32 {
	return uint32(kind)<<24 | (scale & 0x00FFFFFF)
}

// AddPhasor appends a phasor channel with the given conversion scale and
// PHUNIT kind (PhunitVoltage/PhunitCurrent).
func (p *PMUStation) AddPhasor(name string, scale uint32, kind uint8) {
	p.PhasorNames = append(p.PhasorNames, trimField([]byte(fitField(name))))
	p.PhasorUnits = append(p.PhasorUnits, unitWord(kind, scale))
	p.Phasors = append(p.Phasors, 0)
}

// AddAnalog appends an analog channel with the given conversion scale and
// ANUNIT kind (AnunitPow/AnunitRMS/AnunitPeak).
func (p *PMUStation) AddAnalog(name string, scale uint32, kind uint8) {
	p.AnalogNames = append(p.AnalogNames, trimField([]byte(fitField(name))))
	p.AnalogUnits = append(p.AnalogUnits, unitWord(kind, scale))
	p.Analogs = append(p.Analogs, 0)
}

// AddDigital appends one 16-bit digital status word, with up to 16 bit names.
func (p *PMUStation) AddDigital(names []string, normal, valid uint16) {
	for _, name := range names {
		p.DigitalNames = append(p.DigitalNames, trimField([]byte(fitField(name))))
	}
	p.DigitalUnits = append(p.DigitalUnits, uint32(normal)<<16|uint32(valid))
	p.Digitals = append(p.Digitals, make([]bool, 16))
}

// scaleOf extracts the low-24-bit conversion scale from a PHUNIT/ANUNIT
// word list, defaulting to 1 for an out-of-range index so a caller never
// divides by a zero scale.
func scaleOf(units []uint32, index int) uint32 {
	if index < 0 || index >= len(units) {
		return 1
	}
	scale := units[index] & 0x00FFFFFF
	if scale == 0 {
		return 1
	}
	return scale
}

// GetPhasorFactor returns the conversion scale for phasor channel index.
func (p *PMUStation) GetPhasorFactor(index int) uint32 {
	return scaleOf(p.PhasorUnits, index)
}

// GetAnalogFactor returns the conversion scale for analog channel index.
func (p *PMUStation) GetAnalogFactor(index int) uint32 {
	return scaleOf(p.AnalogUnits, index)
}

// GetNominalFrequency returns 50 or 60 depending on NominalFreqCode.
func (p *PMUStation) GetNominalFrequency() float32 {
	if p.NominalFreqCode == FreqNom50Hz {
		return 50.0
	}
	return 60.0
}

// PhasorIsCurrent reports whether phasor channel index is a current
// measurement (the PHUNIT kind byte), as opposed to a voltage measurement.
func (p *PMUStation) PhasorIsCurrent(index int) bool {
	if index < 0 || index >= len(p.PhasorUnits) {
		return false
	}
	return (p.PhasorUnits[index]>>24)&0xFF != 0
}

// Measurement status codes for the STAT word's top two bits, grounded on
// the original implementation's DataFrame.MEASUREMENT_STATUS.
const (
	MeasurementOK     = 0
	MeasurementError  = 1
	MeasurementTest   = 2
	MeasurementVError = 3
)

// Unlocked-time codes for STAT bits 5-4.
const (
	UnlockedLT10   = 0
	UnlockedLT100  = 1
	UnlockedLT1000 = 2
	UnlockedGT1000 = 3
)

// STAT word bit layout (MSB to LSB):
//
//	15-14 measurement status (2 bits)
//	13    time sync (1 = not in sync)
//	12    data sorting (1 = by arrival)
//	11    pmu trigger detected
//	10    config change pending
//	9     data modified
//	8-6   time quality (3 bits)
//	5-4   unlocked time (2 bits)
//	3-0   trigger reason code (4 bits)
const (
	statMeasurementShift = 14
	statSyncBit          = 1 << 13
	statSortingBit       = 1 << 12
	statTriggerBit       = 1 << 11
	statCfgChangeBit     = 1 << 10
	statModifiedBit      = 1 << 9
	statTimeQualityShift = 6
	statTimeQualityMask  = 0x7
	statUnlockedShift    = 4
	statUnlockedMask     = 0x3
	statTriggerReasonBit = 0xF
)

// MeasurementStatus returns the STAT word's measurement-status code (one of
// MeasurementOK/Error/Test/VError).
func (p *PMUStation) MeasurementStatus() uint16 {
	return (p.StatusWord >> statMeasurementShift) & 0x3
}

// DataValid reports whether the measurement status indicates good data.
func (p *PMUStation) DataValid() bool {
	return p.MeasurementStatus() == MeasurementOK
}

// TimeSync reports whether the PMU clock is locked to a time source.
func (p *PMUStation) TimeSync() bool {
	return p.StatusWord&statSyncBit == 0
}

// DataSortedByArrival reports whether measurements are sorted by arrival
// time rather than by timestamp.
func (p *PMUStation) DataSortedByArrival() bool {
	return p.StatusWord&statSortingBit != 0
}

// TriggerDetected reports whether the PMU's trigger condition fired.
func (p *PMUStation) TriggerDetected() bool {
	return p.StatusWord&statTriggerBit != 0
}

// ConfigChangePending reports whether a configuration change will occur
// within the next minute.
func (p *PMUStation) ConfigChangePending() bool {
	return p.StatusWord&statCfgChangeBit != 0
}

// DataModified reports whether the data has been post-processed (e.g. by a
// PDC) since it left the originating PMU.
func (p *PMUStation) DataModified() bool {
	return p.StatusWord&statModifiedBit != 0
}

// TimeQualityCode returns the worst-case clock-accuracy code (0-7).
func (p *PMUStation) TimeQualityCode() uint16 {
	return (p.StatusWord >> statTimeQualityShift) & statTimeQualityMask
}

// UnlockedTimeCode returns one of Unlocked{LT10,LT100,LT1000,GT1000}.
func (p *PMUStation) UnlockedTimeCode() uint16 {
	return (p.StatusWord >> statUnlockedShift) & statUnlockedMask
}

// TriggerReason returns the implementation-defined 4-bit trigger reason.
func (p *PMUStation) TriggerReason() uint16 {
	return p.StatusWord & statTriggerReasonBit
}

// StatOptions groups the named meanings packed into the STAT word, for use
// with EncodeStat.
type StatOptions struct {
	MeasurementStatus uint16 // MeasurementOK / Error / Test / VError
	InSync            bool
	SortedByArrival   bool
	TriggerDetected   bool
	ConfigChange      bool
	DataModified      bool
	TimeQuality       uint16 // 0-7
	UnlockedTime      uint16 // Unlocked{LT10,LT100,LT1000,GT1000}
	TriggerReason     uint16 // 0-15
}

// EncodeStat packs StatOptions into a STAT word using the bit layout
// documented above.
func EncodeStat(o StatOptions) uint16 {
	stat := (o.MeasurementStatus & 0x3) << statMeasurementShift
	if !o.InSync {
		stat |= statSyncBit
	}
	if o.SortedByArrival {
		stat |= statSortingBit
	}
	if o.TriggerDetected {
		stat |= statTriggerBit
	}
	if o.ConfigChange {
		stat |= statCfgChangeBit
	}
	if o.DataModified {
		stat |= statModifiedBit
	}
	stat |= (o.TimeQuality & statTimeQualityMask) << statTimeQualityShift
	stat |= (o.UnlockedTime & statUnlockedMask) << statUnlockedShift
	stat |= o.TriggerReason & statTriggerReasonBit
	return stat
}
