package synchrophasor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFramePackUnpackRoundTrip(t *testing.T) {
	cfg := NewDefaultConfigFrame(DefaultIDCode)
	cfg.SetTime(nil, nil)

	data, err := cfg.Pack()
	require.NoError(t, err)

	got := NewConfigFrame()
	require.NoError(t, got.Unpack(data))

	assert.Equal(t, cfg.IDCode, got.IDCode)
	assert.Equal(t, cfg.TimeBase, got.TimeBase)
	assert.Equal(t, cfg.DataRate, got.DataRate)
	require.Len(t, got.PMUStationList, 1)

	wantStation := cfg.PMUStationList[0]
	gotStation := got.PMUStationList[0]
	assert.Equal(t, wantStation.StationName, gotStation.StationName)
	assert.Equal(t, wantStation.PhasorCount(), gotStation.PhasorCount())
	assert.Equal(t, wantStation.AnalogCount(), gotStation.AnalogCount())
	assert.Equal(t, wantStation.DigitalCount(), gotStation.DigitalCount())
	assert.Equal(t, wantStation.PhasorNames, gotStation.PhasorNames)
	assert.Equal(t, wantStation.PhasorUnits, gotStation.PhasorUnits)
}

func TestConfigFrameUnpackBadCRC(t *testing.T) {
	cfg := NewDefaultConfigFrame(1)
	data, err := cfg.Pack()
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF

	got := NewConfigFrame()
	assert.ErrorIs(t, got.Unpack(data), ErrCrcMismatch)
}

func TestConfigFrameUnpackShort(t *testing.T) {
	got := NewConfigFrame()
	assert.ErrorIs(t, got.Unpack(make([]byte, 10)), ErrShortFrame)
}

func TestConfigFrameGetPMUStationByIDCode(t *testing.T) {
	cfg := NewConfigFrame()
	cfg.AddPMUStation(NewPMUStation("A", 1, false, false, false, true))
	cfg.AddPMUStation(NewPMUStation("B", 2, false, false, false, true))

	st := cfg.GetPMUStationByIDCode(2)
	require.NotNil(t, st)
	assert.Equal(t, "B", st.StationName)

	assert.Nil(t, cfg.GetPMUStationByIDCode(99))
}

func TestConfigFrameValidateLayoutChannelCountMismatch(t *testing.T) {
	cfg := NewConfigFrame()
	st := NewPMUStation("A", 1, false, false, false, true)
	st.AddPhasor("VA", 1, PhunitVoltage)
	st.PhasorUnits = append(st.PhasorUnits, 0) // unit added without a matching name, now inconsistent
	cfg.AddPMUStation(st)

	_, err := cfg.Pack()
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestConfigFrameValidateLayoutFracSecRange(t *testing.T) {
	cfg := NewDefaultConfigFrame(1)
	cfg.TimeBase = 1000000
	cfg.FracSec = 1000000 // equal to time_base, out of range

	_, err := cfg.Pack()
	assert.ErrorIs(t, err, ErrFieldRange)
}

func TestConfig1FrameUsesCfg1Sync(t *testing.T) {
	c1 := NewConfig1Frame()
	assert.Equal(t, uint16((SyncAA<<8)|SyncCfg1), c1.Sync)
}
