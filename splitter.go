package synchrophasor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// splitterBackoffMin and splitterBackoffMax bound the exponential backoff
// used to reconnect to a lost upstream source, grounded on the original
// implementation's StreamSplitter reconnect loop.
const (
	splitterBackoffMin = time.Second
	splitterBackoffMax = 30 * time.Second
)

// Splitter is a one-upstream, many-downstream relay: it connects to a
// single upstream PMU (or another Splitter) as a PDC, and re-serves the
// header/configuration/data it receives to any number of downstream PDC
// clients as a PMU. Header and configuration fetched at connect time are
// cached on the downstream PMU endpoint and sent to a downstream client
// when it requests them; they are not pushed to a client when it
// connects, and a configuration that changes upstream after the fetch is
// not forwarded. Data is forwarded only to
// downstream clients that have sent START. Upstream stays in the
// streaming state continuously as long as at least one downstream client
// is attached, regardless of which of them are actually streaming.
type Splitter struct {
	upstream   *PDC
	downstream *PMU
	pmuID      uint16

	mu         sync.Mutex
	cachedHdr  *HeaderFrame
	cachedCfg  *ConfigFrame
	gotReplies bool

	stateMu    sync.Mutex
	attached   int
	upstreamOK bool
	streaming  bool

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger  *log.Logger
	metrics SplitterMetricsRecorder
}

// NewSplitter creates a Splitter that will pull from sourceIP:sourcePort
// and serve downstream PDCs on listenIP:listenPort, identifying itself to
// upstream (as a PDC) and to downstream clients (as a PMU) with pmuID.
func NewSplitter(sourceIP string, sourcePort int, listenIP string, listenPort int, pmuID uint16) *Splitter {
	s := &Splitter{
		upstream:   NewPDC(pmuID, sourceIP, sourcePort),
		downstream: NewPMU(pmuID, listenIP, listenPort, "SPLITTER", DefaultDataRate),
		pmuID:      pmuID,
		stopCh:     make(chan struct{}),
	}
	s.downstream.SetClientCountChanged(s.onDownstreamCountChanged)
	return s
}

// SetLogger sets the logger used for this endpoint and propagates it to
// the embedded PDC/PMU endpoints.
func (s *Splitter) SetLogger(logger *log.Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
	s.upstream.SetLogger(logger)
	s.downstream.SetLogger(logger)
}

// SetMetrics sets the metrics recorder used for this endpoint.
func (s *Splitter) SetMetrics(m SplitterMetricsRecorder) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

func (s *Splitter) log() *log.Logger {
	s.mu.Lock()
	l := s.logger
	s.mu.Unlock()
	if l == nil {
		return log.StandardLogger()
	}
	return l
}

func (s *Splitter) recorder() SplitterMetricsRecorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Run starts the downstream listener and the upstream connect/relay loop.
func (s *Splitter) Run() error {
	if err := s.downstream.Run(); err != nil {
		return err
	}
	s.running.Store(true)
	s.wg.Add(1)
	go s.relayLoop()
	return nil
}

// relayLoop owns the upstream connection lifecycle: connect, fetch and
// cache header/config, forward data while at least one downstream client
// is attached, and reconnect with exponential backoff on upstream loss.
func (s *Splitter) relayLoop() {
	defer s.wg.Done()

	backoff := splitterBackoffMin
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connectUpstream(); err != nil {
			s.log().WithError(err).WithField("backoff", backoff).Warn("upstream connect failed, retrying")
			if m := s.recorder(); m != nil {
				m.RecordUpstreamReconnect(backoff.Seconds())
			}
			select {
			case <-time.After(backoff):
			case <-s.stopCh:
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = splitterBackoffMin
		s.forward() // returns when upstream connection is lost or stop requested
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := d * 2
	if next > splitterBackoffMax {
		return splitterBackoffMax
	}
	return next
}

func (s *Splitter) connectUpstream() error {
	if err := s.upstream.Run(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hdr, err := s.upstream.GetHeader(ctx)
	if err == nil {
		s.mu.Lock()
		s.cachedHdr = hdr
		s.gotReplies = true
		s.mu.Unlock()
		s.downstream.SetHeader(hdr.Data)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()

	cfg, err := s.upstream.GetConfig(ctx2, 2)
	if err != nil {
		s.upstream.Quit()
		return err
	}

	s.mu.Lock()
	s.cachedCfg = cfg
	s.mu.Unlock()
	s.downstream.SetConfiguration(cfg)

	s.setUpstreamConnected(true)
	s.log().Info("splitter connected to upstream")
	return nil
}

// onDownstreamCountChanged is the callback registered on the downstream PMU
// endpoint; it runs on every client attach/detach and keeps the upstream
// streaming state in step with whether anybody is listening.
func (s *Splitter) onDownstreamCountChanged(count int) {
	s.stateMu.Lock()
	prev := s.attached
	s.attached = count
	want, was := s.wantStreamingLocked()
	s.stateMu.Unlock()

	if m := s.recorder(); m != nil {
		if count > prev {
			m.RecordDownstreamClientConnected()
		} else if count < prev {
			m.RecordDownstreamClientDisconnected()
		}
	}
	s.applyStreamingWant(want, was)
}

func (s *Splitter) setUpstreamConnected(ok bool) {
	s.stateMu.Lock()
	s.upstreamOK = ok
	want, was := s.wantStreamingLocked()
	s.stateMu.Unlock()
	s.applyStreamingWant(want, was)
}

// wantStreamingLocked must be called with stateMu held. It computes whether
// upstream should be streaming given the current attached-client count and
// connection state, records that as the new streaming state, and returns
// both the new and previous value so the caller can act outside the lock.
func (s *Splitter) wantStreamingLocked() (want, was bool) {
	want = s.upstreamOK && s.attached > 0
	was = s.streaming
	s.streaming = want
	return want, was
}

func (s *Splitter) applyStreamingWant(want, was bool) {
	if want == was {
		return
	}
	if want {
		if err := s.upstream.Start(); err != nil {
			s.log().WithError(err).Warn("failed to start upstream stream")
			return
		}
		s.log().Info("downstream client attached, started upstream stream")
		return
	}
	if err := s.upstream.Stop(); err != nil {
		s.log().WithError(err).Warn("failed to stop upstream stream")
		return
	}
	s.log().Info("no downstream clients attached, stopped upstream stream")
}

// forward relays Data frames from upstream to downstream clients until the
// upstream connection is lost or Stop is called. Upstream is started when
// the first downstream client attaches and stopped when the last one
// detaches (see onDownstreamCountChanged); a frame that still arrives
// during that transition is dropped rather than queued.
//
// Frames are relayed by forwarding the exact bytes GetRaw returns, not by
// re-encoding the decoded Frame: a PMU's own Pack is not guaranteed to
// reproduce the bytes it was unpacked from, and spec conformance requires
// what downstream sees to be a byte-for-byte subsequence of what upstream
// sent.
func (s *Splitter) forward() {
	defer s.setUpstreamConnected(false)

	for {
		select {
		case <-s.stopCh:
			s.upstream.Quit()
			return
		default:
		}

		_, raw, ok := s.upstream.GetRaw()
		if !ok {
			return
		}
		if len(s.downstream.Clients()) == 0 {
			continue
		}
		_, dropped := s.downstream.SendRaw(raw)
		if dropped > 0 {
			if m := s.recorder(); m != nil {
				for i := 0; i < dropped; i++ {
					m.RecordDownstreamQueueDrop()
				}
			}
		}
	}
}

// Stop tears down both the upstream connection and the downstream
// listener/clients.
func (s *Splitter) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.upstream.Quit()
	s.downstream.Stop()
}

// Join blocks until the splitter's background goroutines have exited.
func (s *Splitter) Join() {
	s.wg.Wait()
	s.downstream.Join()
}
