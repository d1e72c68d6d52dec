package synchrophasor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationStoreDefaultsWhenNil(t *testing.T) {
	store := NewConfigurationStore(nil)
	snap := store.Snapshot()
	require.Len(t, snap.PMUStationList, 1)
	assert.Equal(t, DefaultIDCode, snap.IDCode)
}

func TestConfigurationStoreCfgCntBumpOnlyAfterTransmission(t *testing.T) {
	store := NewConfigurationStore(NewDefaultConfigFrame(1))
	before := store.Snapshot().PMUStationList[0].ConfigCount

	store.SetStationName("RENAMED")
	afterFirstChange := store.Snapshot().PMUStationList[0].ConfigCount
	assert.Equal(t, before, afterFirstChange, "no bump before first transmission")

	store.MarkTransmitted()
	store.SetStationName("RENAMED AGAIN")
	afterSecondChange := store.Snapshot().PMUStationList[0].ConfigCount
	assert.Equal(t, before+1, afterSecondChange, "bump once transmitted")
}

func TestConfigurationStoreSetPhasorChannelsResetsLists(t *testing.T) {
	store := NewConfigurationStore(NewDefaultConfigFrame(1))

	store.SetPhasorChannels([]PhasorChannelSpec{
		{Name: "VA", ScaleFactor: 1000, IsCurrent: false},
		{Name: "I1", ScaleFactor: 500, IsCurrent: true},
	})

	snap := store.Snapshot()
	st := snap.PMUStationList[0]
	assert.Equal(t, uint16(2), st.PhasorCount())
	assert.Len(t, st.PhasorNames, 2)
	assert.Len(t, st.Phasors, 2)
	assert.True(t, st.PhasorIsCurrent(1))
	assert.False(t, st.PhasorIsCurrent(0))
}

func TestConfigurationStoreSnapshotIsIndependent(t *testing.T) {
	store := NewConfigurationStore(NewDefaultConfigFrame(1))
	snap1 := store.Snapshot()
	snap1.PMUStationList[0].StationName = "MUTATED LOCALLY"

	snap2 := store.Snapshot()
	assert.NotEqual(t, "MUTATED LOCALLY", snap2.PMUStationList[0].StationName)
}

func TestConfigurationStoreSetDigitalChannels(t *testing.T) {
	store := NewConfigurationStore(NewDefaultConfigFrame(1))
	var names [16]string
	names[0] = "BREAKER 1"
	store.SetDigitalChannels([]DigitalChannelSpec{{Names: names, Normal: 0, Valid: 0xFFFF}})

	snap := store.Snapshot()
	st := snap.PMUStationList[0]
	assert.Equal(t, uint16(1), st.DigitalCount())
	assert.Len(t, st.DigitalNames, 16)
	assert.Len(t, st.Digitals, 1)
}
