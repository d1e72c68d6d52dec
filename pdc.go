package synchrophasor

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// dataQueueSize bounds the channel Get reads from. When a consumer falls
// behind the PMU's data rate and the channel fills, the read loop blocks
// until Get drains it rather than exhausting memory; it never silently
// drops Data frames (unlike the PMU's broadcast
// path, whose consumers are arbitrary third parties, a PDC's own Get
// caller is assumed to be the one consumer that matters).
const dataQueueSize = 256

// PDC is a client endpoint that connects to one PMU (or PDC/splitter
// acting as one), requests its header/configuration, and streams Data
// frames. A single goroutine owns the socket read loop; GetHeader and
// GetConfig hand their replies back through single-slot channels so
// concurrent callers never race on the connection.
type PDC struct {
	pdcID uint16
	ip    string
	port  int

	mu            sync.RWMutex
	conn          net.Conn
	cfg           *ConfigFrame
	running       atomic.Bool
	connectedOnce atomic.Bool
	stopCh        chan struct{}
	wg            sync.WaitGroup

	dataCh   chan rawDataFrame
	headerCh chan *HeaderFrame
	cfgCh    chan *ConfigFrame

	logger  *log.Logger
	metrics PDCMetricsRecorder
}

// rawDataFrame pairs a decoded Data frame with the exact bytes it was
// unpacked from, so a caller that must relay the original wire bytes (the
// Splitter) doesn't have to re-encode them and risk a byte-for-byte
// mismatch with what arrived.
type rawDataFrame struct {
	frame *DataFrame
	raw   []byte
}

// NewPDC creates a PDC endpoint for pdcID that will connect to the PMU at
// pmuIP:pmuPort once Run is called.
func NewPDC(pdcID uint16, pmuIP string, pmuPort int) *PDC {
	return &PDC{
		pdcID:    pdcID,
		ip:       pmuIP,
		port:     pmuPort,
		stopCh:   make(chan struct{}),
		dataCh:   make(chan rawDataFrame, dataQueueSize),
		headerCh: make(chan *HeaderFrame, 1),
		cfgCh:    make(chan *ConfigFrame, 1),
	}
}

// SetLogger sets the logger used for this endpoint.
func (p *PDC) SetLogger(logger *log.Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// SetMetrics sets the metrics recorder used for this endpoint.
func (p *PDC) SetMetrics(m PDCMetricsRecorder) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

func (p *PDC) log() *log.Logger {
	p.mu.RLock()
	l := p.logger
	p.mu.RUnlock()
	if l == nil {
		return log.StandardLogger()
	}
	return l
}

func (p *PDC) recorder() PDCMetricsRecorder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Run connects to the PMU and starts the read loop goroutine.
func (p *PDC) Run() error {
	addr := net.JoinHostPort(p.ip, strconv.Itoa(p.port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	p.running.Store(true)

	if p.connectedOnce.Swap(true) {
		if m := p.recorder(); m != nil {
			m.RecordReconnect()
		}
	}

	p.log().WithField("address", addr).Info("PDC connected to PMU")

	p.wg.Add(1)
	go p.readLoop()

	return nil
}

func (p *PDC) getConn() net.Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *PDC) readLoop() {
	defer p.wg.Done()
	conn := p.getConn()
	buffer := make([]byte, 65536)
	held := 0

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return
		}

		n, err := conn.Read(buffer[held:])
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			p.log().WithError(err).Warn("PDC read loop exiting")
			return
		}
		held += n

		if m := p.recorder(); m != nil {
			m.RecordBytesReceived(n)
		}

		for held >= 4 {
			frameSize := int(binary.BigEndian.Uint16(buffer[2:4]))
			if frameSize < 4 || held < frameSize {
				break
			}

			p.mu.RLock()
			cfg := p.cfg
			p.mu.RUnlock()

			raw := make([]byte, frameSize)
			copy(raw, buffer[:frameSize])

			frame, err := UnpackFrame(raw, cfg)
			copy(buffer, buffer[frameSize:held])
			held -= frameSize

			if err != nil {
				p.log().WithError(err).Debug("frame decode error")
				if m := p.recorder(); m != nil {
					m.RecordFrameError("unpack_error")
				}
				continue
			}

			p.dispatch(frame, raw)
		}
	}
}

func (p *PDC) dispatch(frame interface{}, raw []byte) {
	switch f := frame.(type) {
	case *DataFrame:
		select {
		case p.dataCh <- rawDataFrame{frame: f, raw: raw}:
		case <-p.stopCh:
		}
	case *HeaderFrame:
		select {
		case p.headerCh <- f:
		default:
			<-p.headerCh
			p.headerCh <- f
		}
	case *ConfigFrame:
		p.mu.Lock()
		p.cfg = f
		p.mu.Unlock()
		select {
		case p.cfgCh <- f:
		default:
			<-p.cfgCh
			p.cfgCh <- f
		}
	case *Config1Frame:
		cfg := f.ConfigFrame
		select {
		case p.cfgCh <- &cfg:
		default:
			<-p.cfgCh
			p.cfgCh <- &cfg
		}
	}
}

func (p *PDC) sendCommand(cmdCode uint16) error {
	cmd := NewCommandFrame()
	cmd.IDCode = p.pdcID
	cmd.CMD = cmdCode
	cmd.SetTime(nil, nil)

	data, err := cmd.Pack()
	if err != nil {
		return err
	}

	conn := p.getConn()
	if conn == nil {
		return ErrNotReady
	}
	_, err = conn.Write(data)
	return err
}

// GetHeader requests a header frame and waits (bounded by ctx) for the
// answer to arrive on the read loop.
func (p *PDC) GetHeader(ctx context.Context) (*HeaderFrame, error) {
	if err := p.sendCommand(CmdHeader); err != nil {
		return nil, err
	}
	select {
	case h := <-p.headerCh:
		return h, nil
	case <-ctx.Done():
		if m := p.recorder(); m != nil {
			m.RecordGetTimeout("header")
		}
		return nil, ErrTimeout
	case <-p.stopCh:
		return nil, ErrConnectionLost
	}
}

// GetConfig requests a configuration frame (version 1 or 2; 3 is a
// standard-defined frame type this implementation doesn't decode) and
// waits (bounded by ctx) for the answer.
func (p *PDC) GetConfig(ctx context.Context, version int) (*ConfigFrame, error) {
	var cmdCode uint16
	switch version {
	case 1:
		cmdCode = CmdCfg1
	case 2:
		cmdCode = CmdCfg2
	case 3:
		return nil, ErrNotImplemented
	default:
		return nil, ErrInvalidParameter
	}

	if err := p.sendCommand(cmdCode); err != nil {
		return nil, err
	}
	select {
	case cfg := <-p.cfgCh:
		return cfg, nil
	case <-ctx.Done():
		if m := p.recorder(); m != nil {
			m.RecordGetTimeout("config")
		}
		return nil, ErrTimeout
	case <-p.stopCh:
		return nil, ErrConnectionLost
	}
}

// Start requests the PMU begin streaming Data frames.
func (p *PDC) Start() error {
	return p.sendCommand(CmdStart)
}

// Stop requests the PMU stop streaming Data frames. The connection itself
// stays open; call Quit to tear down the endpoint.
func (p *PDC) Stop() error {
	return p.sendCommand(CmdStop)
}

// Get returns the next Data frame, blocking until one arrives or the
// endpoint is torn down (Quit), in which case ok is false.
func (p *PDC) Get() (Frame, bool) {
	select {
	case rf := <-p.dataCh:
		return rf.frame, true
	case <-p.stopCh:
		return nil, false
	}
}

// GetRaw returns the next Data frame together with the exact bytes it was
// decoded from. Callers that must relay the original frame verbatim (the
// Splitter) use this instead of Get/Pack so the bytes sent downstream are a
// byte-for-byte subsequence of what arrived upstream.
func (p *PDC) GetRaw() (*DataFrame, []byte, bool) {
	select {
	case rf := <-p.dataCh:
		return rf.frame, rf.raw, true
	case <-p.stopCh:
		return nil, nil, false
	}
}

// Quit closes the connection and stops the read loop.
func (p *PDC) Quit() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	conn := p.getConn()
	if conn != nil {
		_ = conn.Close()
	}
	p.wg.Wait()
	p.log().Info("PDC endpoint stopped")
}
