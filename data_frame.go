package synchrophasor

import (
	"math"
	"math/cmplx"
)

// DataFrame carries the periodic measurement set for every station named
// by its AssociatedConfig, in the same station order the configuration
// declares them.
type DataFrame struct {
	C37118
	AssociatedConfig *ConfigFrame
}

// NewDataFrame creates a data frame bound to cfg; cfg supplies the channel
// layout (counts, formats, scale factors) Pack/Unpack need to walk the
// per-station measurement block.
func NewDataFrame(cfg *ConfigFrame) *DataFrame {
	df := &DataFrame{AssociatedConfig: cfg}
	df.Sync = (SyncAA << 8) | SyncData
	return df
}

// dataBlockSize returns the byte length of one station's measurement
// block: STAT + phasors + freq/dfreq + analogs + digitals, given its
// current format flags and channel counts.
func dataBlockSize(pmu *PMUStation) uint16 {
	size := uint16(2) // STAT
	if pmu.FormatPhasorType() {
		size += 8 * pmu.PhasorCount()
	} else {
		size += 4 * pmu.PhasorCount()
	}
	if pmu.FormatFreqType() {
		size += 8
	} else {
		size += 4
	}
	if pmu.FormatAnalogType() {
		size += 4 * pmu.AnalogCount()
	} else {
		size += 2 * pmu.AnalogCount()
	}
	size += 2 * pmu.DigitalCount()
	return size
}

// packPhasor appends one station's phasor channels to w in whichever of
// the four representations (float/fixed x polar/rectangular) its format
// word selects.
func packPhasor(w *wireBuf, pmu *PMUStation) {
	for j, v := range pmu.Phasors {
		switch {
		case pmu.FormatPhasorType() && pmu.FormatCoord():
			w.f32(float32(cmplx.Abs(v)))
			w.f32(float32(cmplx.Phase(v)))
		case pmu.FormatPhasorType():
			w.f32(float32(real(v)))
			w.f32(float32(imag(v)))
		case pmu.FormatCoord():
			scale := float64(pmu.GetPhasorFactor(j))
			w.u16(uint16(math.Round(cmplx.Abs(v) * 1e5 / scale)))
			w.i16(int16(math.Round(cmplx.Phase(v) * 1e4)))
		default:
			scale := float64(pmu.GetPhasorFactor(j))
			w.i16(int16(math.Round(real(v) * 1e5 / scale)))
			w.i16(int16(math.Round(imag(v) * 1e5 / scale)))
		}
	}
}

// unpackPhasor is packPhasor's inverse, reading pmu.PhasorCount() channels
// from c into pmu.Phasors.
func unpackPhasor(c *cursor, pmu *PMUStation) {
	for j := range pmu.Phasors {
		switch {
		case pmu.FormatPhasorType() && pmu.FormatCoord():
			mag, ang := c.f32(), c.f32()
			pmu.Phasors[j] = cmplx.Rect(float64(mag), float64(ang))
		case pmu.FormatPhasorType():
			re, im := c.f32(), c.f32()
			pmu.Phasors[j] = complex(float64(re), float64(im))
		case pmu.FormatCoord():
			mag, ang := c.u16(), c.i16()
			scale := float64(pmu.GetPhasorFactor(j))
			pmu.Phasors[j] = cmplx.Rect(float64(mag)*scale/1e5, float64(ang)/1e4)
		default:
			re, im := c.i16(), c.i16()
			scale := float64(pmu.GetPhasorFactor(j))
			pmu.Phasors[j] = complex(float64(re)*scale/1e5, float64(im)*scale/1e5)
		}
	}
}

// packFrequency appends the freq/dfreq pair for one station.
func packFrequency(w *wireBuf, pmu *PMUStation) {
	if pmu.FormatFreqType() {
		w.f32(pmu.Frequency)
		w.f32(pmu.ROCOF)
		return
	}
	w.i16(int16((pmu.Frequency - pmu.GetNominalFrequency()) * 1000))
	w.i16(int16(pmu.ROCOF * 100))
}

// unpackFrequency is packFrequency's inverse.
func unpackFrequency(c *cursor, pmu *PMUStation) {
	if pmu.FormatFreqType() {
		pmu.Frequency = c.f32()
		pmu.ROCOF = c.f32()
		return
	}
	freqInt, dfreqInt := c.i16(), c.i16()
	pmu.Frequency = pmu.GetNominalFrequency() + float32(freqInt)/1000.0
	pmu.ROCOF = float32(dfreqInt) / 100.0
}

// packAnalog appends one station's analog channels. In fixed-point form
// each value is divided by the channel's ANUNIT scale directly (there is
// no 1e-5 unit factor as on the phasor path) and the quotient is truncated
// toward zero.
func packAnalog(w *wireBuf, pmu *PMUStation) {
	for j, v := range pmu.Analogs {
		if pmu.FormatAnalogType() {
			w.f32(v)
			continue
		}
		w.i16(int16(v / float32(pmu.GetAnalogFactor(j))))
	}
}

// unpackAnalog is packAnalog's inverse.
func unpackAnalog(c *cursor, pmu *PMUStation) {
	for j := range pmu.Analogs {
		if pmu.FormatAnalogType() {
			pmu.Analogs[j] = c.f32()
			continue
		}
		pmu.Analogs[j] = float32(c.i16()) * float32(pmu.GetAnalogFactor(j))
	}
}

// packDigital appends one station's digital status words, packing each
// channel's 16 booleans into a single big-endian word.
func packDigital(w *wireBuf, pmu *PMUStation) {
	for _, word := range pmu.Digitals {
		var v uint16
		for bit, on := range word {
			if on {
				v |= 1 << uint(bit)
			}
		}
		w.u16(v)
	}
}

// unpackDigital is packDigital's inverse.
func unpackDigital(c *cursor, pmu *PMUStation) {
	for i := range pmu.Digitals {
		v := c.u16()
		for bit := 0; bit < 16; bit++ {
			pmu.Digitals[i][bit] = v&(1<<uint(bit)) != 0
		}
	}
}

// Pack encodes the data frame against AssociatedConfig's channel layout.
func (d *DataFrame) Pack() ([]byte, error) {
	if d.AssociatedConfig == nil {
		return nil, ErrMissingConfiguration
	}
	if d.AssociatedConfig.TimeBase == 0 || d.FracSec&0x00FFFFFF >= d.AssociatedConfig.TimeBase {
		return nil, ErrFieldRange
	}

	size := uint16(14)
	for _, pmu := range d.AssociatedConfig.PMUStationList {
		size += dataBlockSize(pmu)
	}
	size += 2 // CRC
	d.FrameSize = size

	w := newWireBuf(int(size))
	w.u16(d.Sync)
	w.u16(d.FrameSize)
	w.u16(d.IDCode)
	w.u32(d.SOC)
	w.u32(d.FracSec)

	for _, pmu := range d.AssociatedConfig.PMUStationList {
		w.u16(pmu.StatusWord)
		packPhasor(w, pmu)
		packFrequency(w, pmu)
		packAnalog(w, pmu)
		packDigital(w, pmu)
	}

	d.CHK = CalcCRC(w.bytes())
	w.u16(d.CHK)
	return w.bytes(), nil
}

// Unpack decodes data into the data frame, walking AssociatedConfig's
// station list in order to know each station's channel counts and
// formats.
func (d *DataFrame) Unpack(data []byte) error {
	if d.AssociatedConfig == nil {
		return ErrMissingConfiguration
	}
	if len(data) < 16 {
		return ErrShortFrame
	}

	c := newCursor(data)
	d.Sync = c.u16()
	d.FrameSize = c.u16()
	if c.err == nil {
		if int(d.FrameSize) > len(data) {
			return ErrShortFrame
		}
		if d.FrameSize < 16 {
			return ErrInvalidSize
		}
	}
	d.IDCode = c.u16()
	d.SOC = c.u32()
	d.FracSec = c.u32()

	for _, pmu := range d.AssociatedConfig.PMUStationList {
		pmu.StatusWord = c.u16()
		unpackPhasor(c, pmu)
		unpackFrequency(c, pmu)
		unpackAnalog(c, pmu)
		unpackDigital(c, pmu)
	}
	if c.err != nil {
		return c.err
	}

	c.seek(int(d.FrameSize) - 2)
	d.CHK = c.u16()
	if c.err != nil {
		return c.err
	}

	if CalcCRC(data[:d.FrameSize-2]) != d.CHK {
		return ErrCrcMismatch
	}
	if d.AssociatedConfig.TimeBase != 0 && d.FracSec&0x00FFFFFF >= d.AssociatedConfig.TimeBase {
		return ErrFieldRange
	}
	return nil
}

// GetMeasurements returns the decoded measurements in a structured,
// JSON-friendly form, one entry per station.
func (d *DataFrame) GetMeasurements() map[string]interface{} {
	measurements := make([]map[string]interface{}, 0, len(d.AssociatedConfig.PMUStationList))
	for _, pmu := range d.AssociatedConfig.PMUStationList {
		measurements = append(measurements, map[string]interface{}{
			"stream_id": pmu.IDCode,
			"stat":      pmu.StatusWord,
			"phasors":   pmu.Phasors,
			"analog":    pmu.Analogs,
			"digital":   pmu.Digitals,
			"frequency": pmu.Frequency,
			"rocof":     pmu.ROCOF,
		})
	}

	timestamp := float64(d.SOC) + float64(d.FracSec&0x00FFFFFF)/float64(d.AssociatedConfig.TimeBase)
	return map[string]interface{}{
		"pmu_id":       d.IDCode,
		"time":         timestamp,
		"measurements": measurements,
	}
}
