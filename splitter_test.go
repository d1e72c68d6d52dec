package synchrophasor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterRelaysConfigAndData(t *testing.T) {
	source := NewPMU(7734, "127.0.0.1", 0, "SOURCE STATION", 30)
	source.SetHeader("source header")
	require.NoError(t, source.Run())
	defer source.Stop()
	sourcePort := source.LocalAddr().(*net.TCPAddr).Port

	splitter := NewSplitter("127.0.0.1", sourcePort, "127.0.0.1", 0, 7734)
	require.NoError(t, splitter.Run())
	defer splitter.Stop()

	require.Eventually(t, func() bool {
		return splitter.downstream.LocalAddr() != nil
	}, time.Second, 10*time.Millisecond)
	splitterPort := splitter.downstream.LocalAddr().(*net.TCPAddr).Port

	pdc := NewPDC(2, "127.0.0.1", splitterPort)
	require.NoError(t, pdc.Run())
	defer pdc.Quit()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	cfg, err := pdc.GetConfig(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "SOURCE STATION", cfg.PMUStationList[0].StationName)

	require.NoError(t, pdc.Start())

	require.Eventually(t, func() bool {
		return len(source.Clients()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	df := NewDataFrame(cfg)
	df.IDCode = cfg.IDCode
	wantBytes, err := df.Pack()
	require.NoError(t, err)

	receivedRaw := make(chan []byte, 1)
	go func() {
		if _, raw, ok := pdc.GetRaw(); ok {
			receivedRaw <- raw
		}
	}()

	require.Eventually(t, func() bool {
		source.Send(df)
		return len(receivedRaw) > 0
	}, 3*time.Second, 50*time.Millisecond)

	gotRaw := <-receivedRaw
	// The splitter must relay the upstream frame verbatim: the bytes a
	// downstream client receives are exactly the bytes the source PMU put
	// on the wire, not a re-encoded copy.
	assert.Equal(t, wantBytes, gotRaw)

	decoded, err := UnpackFrame(gotRaw, cfg)
	require.NoError(t, err)
	dataFrame, ok := decoded.(*DataFrame)
	require.True(t, ok)
	assert.Equal(t, cfg.IDCode, dataFrame.IDCode)
}

func TestSplitterDropsDataWithNoDownstreamClients(t *testing.T) {
	source := NewPMU(7734, "127.0.0.1", 0, "SOURCE STATION", 30)
	require.NoError(t, source.Run())
	defer source.Stop()
	sourcePort := source.LocalAddr().(*net.TCPAddr).Port

	splitter := NewSplitter("127.0.0.1", sourcePort, "127.0.0.1", 0, 7734)
	require.NoError(t, splitter.Run())
	defer splitter.Stop()

	require.Eventually(t, func() bool {
		return len(source.Clients()) == 1 // the splitter itself connected upstream
	}, 3*time.Second, 20*time.Millisecond)

	// With zero downstream clients attached, the splitter never issues
	// START upstream, so source never puts the splitter's connection into
	// ClientStreaming and Send has nothing to deliver to.
	sourceClients := source.Clients()
	require.Len(t, sourceClients, 1)
	assert.Equal(t, ClientConnected, sourceClients[0].State)

	cfg := NewDefaultConfigFrame(7734)
	df := NewDataFrame(cfg)
	df.IDCode = cfg.IDCode
	source.Send(df)

	assert.Empty(t, splitter.downstream.Clients())
}

func TestSplitterStartsAndStopsUpstreamWithDownstreamAttachment(t *testing.T) {
	source := NewPMU(7734, "127.0.0.1", 0, "SOURCE STATION", 30)
	require.NoError(t, source.Run())
	defer source.Stop()
	sourcePort := source.LocalAddr().(*net.TCPAddr).Port

	splitter := NewSplitter("127.0.0.1", sourcePort, "127.0.0.1", 0, 7734)
	require.NoError(t, splitter.Run())
	defer splitter.Stop()

	require.Eventually(t, func() bool {
		return len(source.Clients()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	upstreamState := func() ClientState {
		clients := source.Clients()
		require.Len(t, clients, 1)
		return clients[0].State
	}
	assert.Equal(t, ClientConnected, upstreamState())

	require.Eventually(t, func() bool {
		return splitter.downstream.LocalAddr() != nil
	}, time.Second, 10*time.Millisecond)
	splitterPort := splitter.downstream.LocalAddr().(*net.TCPAddr).Port

	pdc := NewPDC(2, "127.0.0.1", splitterPort)
	require.NoError(t, pdc.Run())

	require.Eventually(t, func() bool {
		return upstreamState() == ClientStreaming
	}, 3*time.Second, 20*time.Millisecond)

	pdc.Quit()

	require.Eventually(t, func() bool {
		return upstreamState() == ClientConnected
	}, 3*time.Second, 20*time.Millisecond)
}
