package synchrophasor

import "time"

// C37118 is the base structure for all frame types: the SYNC, FRAMESIZE,
// IDCODE, SOC, FRASEC and CHK words common to every frame in the standard.
type C37118 struct {
	Sync      uint16
	FrameSize uint16
	IDCode    uint16
	SOC       uint32
	FracSec   uint32
	CHK       uint16
}

// defaultTimeBase is the time base assumed by SetTime, matching the
// microsecond resolution the teacher implementation hardcoded.
const defaultTimeBase = 1000000

// SetTime sets SOC and FracSec for the current instant, assuming a time
// base of one million (microsecond resolution). Use SetTimeForBase when the
// frame's configuration uses a different time base.
func (c *C37118) SetTime(soc *uint32, fracSec *uint32) {
	now := time.Now()

	if soc != nil {
		c.SOC = *soc
	} else {
		c.SOC = uint32(now.Unix())
	}

	if fracSec != nil {
		c.FracSec = *fracSec
		return
	}

	c.FracSec = encodeFracSec(now, defaultTimeBase, 0)
}

// SetTimeForBase sets SOC and FracSec for t, computing the fractional part
// as round(fraction * timeBase) per the standard's time encoding (§4.2 of
// the expanded spec). timeBase of zero is a fatal configuration error.
func (c *C37118) SetTimeForBase(t time.Time, timeBase uint32) error {
	if timeBase == 0 {
		return ErrFieldRange
	}
	c.SOC = uint32(t.Unix())
	c.FracSec = encodeFracSec(t, timeBase, 0)
	return nil
}

// encodeFracSec computes the 24-bit fraction-of-second field for t against
// timeBase, leaving the top 8 bits (leap-second flags + time quality) at
// the supplied qualityByte value.
func encodeFracSec(t time.Time, timeBase uint32, qualityByte uint32) uint32 {
	if timeBase == 0 {
		timeBase = defaultTimeBase
	}
	fraction := float64(t.Nanosecond()) / 1e9
	frac := uint32(fraction*float64(timeBase) + 0.5)
	if frac >= timeBase {
		frac = timeBase - 1
	}
	return (qualityByte << 24) | (frac & 0x00FFFFFF)
}

// SetTimeWithQuality sets SOC and FracSec with explicit leap-second and
// time-quality bits, matching the wire layout used by SetTime/Time.
func (c *C37118) SetTimeWithQuality(
	soc uint32, frSeconds uint32, leapDir string, leapOcc bool, leapPen bool, timeQuality uint8) {
	c.SOC = soc

	var quality uint32
	if leapDir == "-" {
		quality |= 1
	}
	quality <<= 1

	if leapOcc {
		quality |= 1
	}
	quality <<= 1

	if leapPen {
		quality |= 1
	}
	quality <<= 4

	quality |= uint32(timeQuality & 0x0F)

	c.FracSec = (quality << 24) | (frSeconds & 0x00FFFFFF)
}

// Time reconstructs the UTC instant encoded by SOC/FracSec for the given
// time base: t = soc + frac_sec/time_base.
func (c *C37118) Time(timeBase uint32) time.Time {
	if timeBase == 0 {
		timeBase = defaultTimeBase
	}
	frac := c.FracSec & 0x00FFFFFF
	nanos := int64(float64(frac) / float64(timeBase) * 1e9)
	return time.Unix(int64(c.SOC), nanos).UTC()
}

// TimeQuality returns the message time-quality code carried in the low
// nibble of FracSec's high byte.
func (c *C37118) TimeQuality() uint8 {
	return uint8((c.FracSec >> 24) & 0x0F)
}
