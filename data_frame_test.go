package synchrophasor

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestConfig(polar, floatPhasor, floatAnalog, floatFreq bool) *ConfigFrame {
	cfg := NewConfigFrame()
	cfg.IDCode = 42
	cfg.TimeBase = 1000000
	cfg.DataRate = 30

	st := NewPMUStation("TEST STATION", 42, floatFreq, floatAnalog, floatPhasor, polar)
	st.AddPhasor("VA", 915527, PhunitVoltage)
	st.AddPhasor("I1", 45776, PhunitCurrent)
	st.AddAnalog("PWR", 100, AnunitPow)
	st.AddDigital(make([]string, 16), 0, 0xFFFF)
	st.NominalFreqCode = FreqNom60Hz
	cfg.AddPMUStation(st)
	return cfg
}

func TestDataFramePackUnpackFloatPolar(t *testing.T) {
	cfg := buildTestConfig(true, true, true, true)
	df := NewDataFrame(cfg)
	df.IDCode = cfg.IDCode
	df.SOC = 1700000000
	df.FracSec = 500000

	st := cfg.PMUStationList[0]
	st.Phasors[0] = cmplx.Rect(120.5, 0.1)
	st.Phasors[1] = cmplx.Rect(5.2, -0.3)
	st.Frequency = 60.01
	st.ROCOF = 0.01
	st.Analogs[0] = 3.5
	st.Digitals[0][0] = true

	data, err := df.Pack()
	require.NoError(t, err)

	got := NewDataFrame(cfg)
	require.NoError(t, got.Unpack(data))

	gotSt := cfg.PMUStationList[0]
	assert.InDelta(t, 120.5, cmplx.Abs(gotSt.Phasors[0]), 1e-2)
	assert.InDelta(t, 60.01, gotSt.Frequency, 1e-2)
	assert.True(t, gotSt.Digitals[0][0])
}

func TestDataFramePackUnpackIntegerRectangular(t *testing.T) {
	cfg := buildTestConfig(false, false, false, false)
	df := NewDataFrame(cfg)
	df.IDCode = cfg.IDCode

	st := cfg.PMUStationList[0]
	st.Phasors[0] = complex(100, 50)
	st.Frequency = 60.1
	st.ROCOF = 0.02
	st.Analogs[0] = 12

	data, err := df.Pack()
	require.NoError(t, err)

	got := NewDataFrame(cfg)
	require.NoError(t, got.Unpack(data))

	gotSt := cfg.PMUStationList[0]
	assert.InDelta(t, 100, real(gotSt.Phasors[0]), 1)
	assert.InDelta(t, 60.1, gotSt.Frequency, 0.01)
}

func TestDataFramePackUnpackAnalogScaleApplied(t *testing.T) {
	cfg := buildTestConfig(false, false, false, false)
	df := NewDataFrame(cfg)
	df.IDCode = cfg.IDCode

	st := cfg.PMUStationList[0]
	st.Analogs[0] = 1200 // must survive the channel's scale factor of 100

	data, err := df.Pack()
	require.NoError(t, err)

	got := NewDataFrame(cfg)
	require.NoError(t, got.Unpack(data))

	gotSt := cfg.PMUStationList[0]
	assert.InDelta(t, 1200, gotSt.Analogs[0], 100) // one fixed-point count of slack
}

func TestDataFramePackRequiresConfig(t *testing.T) {
	df := NewDataFrame(nil)
	_, err := df.Pack()
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestDataFramePackFracSecOutOfRange(t *testing.T) {
	cfg := buildTestConfig(true, true, true, true)
	df := NewDataFrame(cfg)
	df.FracSec = cfg.TimeBase // == time_base, invalid

	_, err := df.Pack()
	assert.ErrorIs(t, err, ErrFieldRange)
}

func TestDataFrameUnpackRequiresConfig(t *testing.T) {
	df := NewDataFrame(nil)
	err := df.Unpack(make([]byte, 20))
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestDataFrameUnpackBadCRC(t *testing.T) {
	cfg := buildTestConfig(true, true, true, true)
	df := NewDataFrame(cfg)
	data, err := df.Pack()
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF

	got := NewDataFrame(cfg)
	assert.ErrorIs(t, got.Unpack(data), ErrCrcMismatch)
}

func TestDataFrameGetMeasurements(t *testing.T) {
	cfg := buildTestConfig(true, true, true, true)
	st := cfg.PMUStationList[0]
	st.Frequency = 60.0
	st.ROCOF = 0

	df := NewDataFrame(cfg)
	df.IDCode = cfg.IDCode
	df.SOC = 100
	df.FracSec = 0

	meas := df.GetMeasurements()
	assert.Equal(t, cfg.IDCode, meas["pmu_id"])
	list, ok := meas["measurements"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, float32(60.0), list[0]["frequency"])
}
