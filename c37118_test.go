package synchrophasor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTimeForBaseZeroTimeBase(t *testing.T) {
	var c C37118
	err := c.SetTimeForBase(time.Now(), 0)
	assert.ErrorIs(t, err, ErrFieldRange)
}

func TestSetTimeForBaseRoundTrip(t *testing.T) {
	var c C37118
	ts := time.Date(2026, 3, 5, 12, 0, 0, 500_000_000, time.UTC)
	require.NoError(t, c.SetTimeForBase(ts, 1000000))

	assert.Equal(t, uint32(ts.Unix()), c.SOC)
	assert.Less(t, c.FracSec&0x00FFFFFF, uint32(1000000))

	got := c.Time(1000000)
	assert.Equal(t, ts.Unix(), got.Unix())
	assert.InDelta(t, ts.Nanosecond(), got.Nanosecond(), 1e6)
}

func TestEncodeFracSecClampsAtTimeBase(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 999_999_999, time.UTC)
	frac := encodeFracSec(ts, 100, 0)
	assert.Less(t, frac&0x00FFFFFF, uint32(100))
}

func TestTimeQuality(t *testing.T) {
	var c C37118
	c.SetTimeWithQuality(0, 0, "+", false, false, 0x0B)
	assert.Equal(t, uint8(0x0B), c.TimeQuality())
}
