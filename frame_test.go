package synchrophasor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderFramePackUnpack(t *testing.T) {
	h := NewHeaderFrame(7734, "Station A, model X")
	h.SetTime(nil, nil)

	data, err := h.Pack()
	require.NoError(t, err)

	got := &HeaderFrame{}
	require.NoError(t, got.Unpack(data))
	assert.Equal(t, h.IDCode, got.IDCode)
	assert.Equal(t, "Station A, model X", got.Data)
}

func TestHeaderFrameUnpackShort(t *testing.T) {
	err := (&HeaderFrame{}).Unpack(make([]byte, 4))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestHeaderFrameUnpackBadCRC(t *testing.T) {
	h := NewHeaderFrame(1, "x")
	data, err := h.Pack()
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF

	got := &HeaderFrame{}
	assert.ErrorIs(t, got.Unpack(data), ErrCrcMismatch)
}

func TestGetFrameType(t *testing.T) {
	tests := []struct {
		name string
		sync uint16
		want FrameType
	}{
		{"data", (SyncAA << 8) | SyncData, FrameTypeData},
		{"header", (SyncAA << 8) | SyncHdr, FrameTypeHeader},
		{"cfg1", (SyncAA << 8) | SyncCfg1, FrameTypeCfg1},
		{"cfg2", (SyncAA << 8) | SyncCfg2, FrameTypeCfg2},
		{"cmd", (SyncAA << 8) | SyncCmd, FrameTypeCmd},
		{"cfg3", (SyncAA << 8) | SyncCfg3, FrameTypeCfg3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte{byte(tt.sync >> 8), byte(tt.sync)}
			got, err := GetFrameType(data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetFrameTypeShort(t *testing.T) {
	_, err := GetFrameType([]byte{0xAA})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestGetFrameTypeBadSync(t *testing.T) {
	_, err := GetFrameType([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrUnknownFrame)
}

func TestUnpackFrameDataRequiresConfig(t *testing.T) {
	data := []byte{0xAA, 0x01, 0x00, 0x10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err := UnpackFrame(data, nil)
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestUnpackFrameCfg3NotImplemented(t *testing.T) {
	data := []byte{byte(SyncAA), byte(SyncCfg3), 0, 0}
	_, err := UnpackFrame(data, nil)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestUnpackFrameDispatchesCommand(t *testing.T) {
	cmd := NewCommandFrame()
	cmd.IDCode = 1
	cmd.CMD = CmdStart
	data, err := cmd.Pack()
	require.NoError(t, err)

	frame, err := UnpackFrame(data, nil)
	require.NoError(t, err)
	got, ok := frame.(*CommandFrame)
	require.True(t, ok)
	assert.Equal(t, uint16(CmdStart), got.CMD)
}
