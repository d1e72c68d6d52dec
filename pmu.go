package synchrophasor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// ClientState is the state of one PDC connection to a PMU endpoint.
type ClientState int

const (
	// ClientConnected is a PDC that is connected but not streaming: it has
	// not sent START yet, or has sent STOP since.
	ClientConnected ClientState = iota
	// ClientStreaming is a PDC that has sent START and is receiving data.
	ClientStreaming
	// ClientDisconnecting is a client being torn down; no further sends
	// are attempted.
	ClientDisconnecting
)

func (s ClientState) String() string {
	switch s {
	case ClientConnected:
		return "connected"
	case ClientStreaming:
		return "streaming"
	case ClientDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// outboundQueueSize bounds each client's pending-send queue. A client that
// cannot keep up has its queue fill and is dropped rather than let the
// broadcaster block or spawn unbounded goroutines (spec §5 "slow
// consumers are dropped").
const outboundQueueSize = 64

// Client is one connected PDC as seen by a PMU endpoint.
type Client struct {
	id         string
	conn       net.Conn
	remoteAddr string

	mu    sync.Mutex
	state ClientState

	outbound chan []byte
	done     chan struct{}
	closed   atomic.Bool
}

// ClientInfo is a point-in-time, copy-safe snapshot of one Client.
type ClientInfo struct {
	ID         string
	RemoteAddr string
	State      ClientState
}

func (c *Client) info() ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientInfo{ID: c.id, RemoteAddr: c.remoteAddr, State: c.state}
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) getState() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// enqueue attempts a non-blocking send of data to the client's outbound
// queue, returning false if the queue is full (the caller should drop the
// client) or it is already shutting down.
func (c *Client) enqueue(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	if c.closed.CompareAndSwap(false, true) {
		c.setState(ClientDisconnecting)
		close(c.done)
		_ = c.conn.Close()
	}
}

// PMU is a PMU server endpoint: it accepts PDC connections, answers
// HEADER/CFG-1/CFG-2 requests and START/STOP commands, and streams Data
// frames to whichever clients are in ClientStreaming state.
type PMU struct {
	idCode uint16
	ip     string
	port   int

	mu          sync.RWMutex
	configStore *ConfigurationStore
	config1     *Config1Frame
	header      *HeaderFrame

	listener net.Listener
	running  atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	clientsMu sync.RWMutex
	clients   map[string]*Client
	nextID    atomic.Uint64

	logger  *log.Logger
	metrics MetricsRecorder

	onClientCountChanged func(count int)
}

// NewPMU creates a PMU endpoint that will listen on ip:port, announcing
// idCode and a single station named stationName transmitting at dataRate
// frames/second, using the Annex D sample channel layout until
// SetConfiguration overrides it.
func NewPMU(idCode uint16, ip string, port int, stationName string, dataRate int16) *PMU {
	cfg := NewDefaultConfigFrame(idCode)
	cfg.DataRate = dataRate
	if len(cfg.PMUStationList) > 0 {
		cfg.PMUStationList[0].StationName = stationName
	}

	p := &PMU{
		idCode:      idCode,
		ip:          ip,
		port:        port,
		configStore: NewConfigurationStore(cfg),
		clients:     make(map[string]*Client),
		stopCh:      make(chan struct{}),
	}
	p.rebuildConfig1(cfg)
	p.header = NewHeaderFrame(idCode, "")
	return p
}

func (p *PMU) rebuildConfig1(cfg *ConfigFrame) {
	c1 := &Config1Frame{ConfigFrame: *cfg}
	c1.Sync = (SyncAA << 8) | SyncCfg1
	p.mu.Lock()
	p.config1 = c1
	p.mu.Unlock()
}

// SetConfiguration replaces the PMU's configuration wholesale.
func (p *PMU) SetConfiguration(cfg *ConfigFrame) {
	p.mu.Lock()
	p.configStore = NewConfigurationStore(cfg)
	p.mu.Unlock()
	p.rebuildConfig1(cfg)
}

// SetHeader sets the text returned for a HEADER command.
func (p *PMU) SetHeader(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header = NewHeaderFrame(p.idCode, text)
}

// SetDataRate changes the reporting rate advertised in configuration
// frames. It does not itself change how often the caller calls Send.
func (p *PMU) SetDataRate(rate int16) {
	p.mu.RLock()
	store := p.configStore
	p.mu.RUnlock()
	store.SetDataRate(rate)
	p.rebuildConfig1(store.Snapshot())
}

// SetIEEESample resets the station layout to the Annex D Table D.2 sample
// configuration (defaults.go), keeping the current idCode and data rate.
func (p *PMU) SetIEEESample() {
	p.mu.RLock()
	rate := p.configStore.Snapshot().DataRate
	p.mu.RUnlock()

	cfg := NewDefaultConfigFrame(p.idCode)
	cfg.DataRate = rate
	p.SetConfiguration(cfg)
}

// SetLogger sets the logger used for this endpoint.
func (p *PMU) SetLogger(logger *log.Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// SetMetrics sets the metrics recorder used for this endpoint.
func (p *PMU) SetMetrics(m MetricsRecorder) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

func (p *PMU) log() *log.Logger {
	p.mu.RLock()
	l := p.logger
	p.mu.RUnlock()
	if l == nil {
		return log.StandardLogger()
	}
	return l
}

func (p *PMU) recorder() MetricsRecorder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Run starts listening and accepting PDC connections. It returns once the
// listener is established; accept/read handling continues in background
// goroutines until Stop is called.
func (p *PMU) Run() error {
	addr := net.JoinHostPort(p.ip, strconv.Itoa(p.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	p.listener = listener
	p.running.Store(true)

	p.log().WithField("address", addr).Info("PMU endpoint listening")

	p.wg.Add(1)
	go p.acceptLoop()

	return nil
}

// LocalAddr returns the endpoint's bound listen address. Useful when Run
// was called with port 0 to pick an ephemeral port.
func (p *PMU) LocalAddr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

func (p *PMU) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if !p.running.Load() {
				return
			}
			p.log().WithError(err).Error("accept error")
			continue
		}
		p.addClient(conn)
	}
}

func (p *PMU) addClient(conn net.Conn) {
	id := fmt.Sprintf("pdc-%d", p.nextID.Add(1))
	c := &Client{
		id:         id,
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		state:      ClientConnected,
		outbound:   make(chan []byte, outboundQueueSize),
		done:       make(chan struct{}),
	}

	p.clientsMu.Lock()
	p.clients[id] = c
	count := len(p.clients)
	p.clientsMu.Unlock()

	if m := p.recorder(); m != nil {
		m.RecordClientConnected()
	}
	p.log().WithFields(log.Fields{"client": id, "remote": c.remoteAddr}).Info("PDC connected")
	p.notifyClientCountChanged(count)

	p.wg.Add(2)
	go p.clientWriter(c)
	go p.clientReader(c)
}

func (p *PMU) removeClient(c *Client) {
	c.close()
	p.clientsMu.Lock()
	delete(p.clients, c.id)
	count := len(p.clients)
	p.clientsMu.Unlock()

	if m := p.recorder(); m != nil {
		m.RecordClientDisconnected()
	}
	p.log().WithField("client", c.id).Info("PDC disconnected")
	p.notifyClientCountChanged(count)
}

// SetClientCountChanged registers a callback invoked after every downstream
// client attach/detach with the resulting client count. Used by Splitter to
// drive its upstream connection's Start/Stop lifecycle.
func (p *PMU) SetClientCountChanged(fn func(count int)) {
	p.mu.Lock()
	p.onClientCountChanged = fn
	p.mu.Unlock()
}

func (p *PMU) notifyClientCountChanged(count int) {
	p.mu.RLock()
	fn := p.onClientCountChanged
	p.mu.RUnlock()
	if fn != nil {
		fn(count)
	}
}

func (p *PMU) clientWriter(c *Client) {
	defer p.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbound:
			if err := c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second)); err != nil {
				p.removeClient(c)
				return
			}
			if _, err := c.conn.Write(data); err != nil {
				p.log().WithFields(log.Fields{"client": c.id, "error": err}).Debug("write failed")
				p.removeClient(c)
				return
			}
		}
	}
}

func (p *PMU) clientReader(c *Client) {
	defer p.wg.Done()
	defer p.removeClient(c)

	buffer := make([]byte, 65536)
	held := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return
		}

		n, err := c.conn.Read(buffer[held:])
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
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

			frame, err := UnpackFrame(buffer[:frameSize], nil)
			copy(buffer, buffer[frameSize:held])
			held -= frameSize

			if err != nil {
				p.log().WithFields(log.Fields{"client": c.id, "error": err}).Debug("unpack error")
				if m := p.recorder(); m != nil {
					m.RecordFrameError("unpack_error")
				}
				continue
			}

			cmd, ok := frame.(*CommandFrame)
			if !ok {
				continue
			}
			p.handleCommand(c, cmd)
		}
	}
}

func (p *PMU) handleCommand(c *Client, cmd *CommandFrame) {
	var response Frame
	var cmdName string

	switch cmd.CMD {
	case CmdStart:
		cmdName = "START"
		c.setState(ClientStreaming)

	case CmdStop:
		cmdName = "STOP"
		c.setState(ClientConnected)

	case CmdHeader:
		cmdName = "HEADER"
		p.mu.RLock()
		h := *p.header
		p.mu.RUnlock()
		h.SetTime(nil, nil)
		response = &h

	case CmdCfg1:
		cmdName = "CONFIG1"
		p.mu.RLock()
		c1 := *p.config1
		p.mu.RUnlock()
		c1.SetTime(nil, nil)
		response = &c1

	case CmdCfg2:
		cmdName = "CONFIG2"
		p.mu.RLock()
		cfg := p.configStore.Snapshot()
		p.mu.RUnlock()
		cfg.SetTime(nil, nil)
		response = cfg
		p.configStore.MarkTransmitted()

	case CmdCfg3:
		cmdName = "CONFIG3"
		response = NegativeAck(p.idCode, NakUnsupportedFrame)

	default:
		cmdName = fmt.Sprintf("UNKNOWN(0x%04X)", cmd.CMD)
		response = NegativeAck(p.idCode, NakUnsupportedCommand)
	}

	if m := p.recorder(); m != nil {
		m.RecordCommand(cmdName)
	}
	p.log().WithFields(log.Fields{"client": c.id, "command": cmdName}).Debug("received command")

	if response == nil {
		return
	}
	data, err := response.Pack()
	if err != nil {
		p.log().WithFields(log.Fields{"client": c.id, "command": cmdName, "error": err}).Error("pack failed")
		if m := p.recorder(); m != nil {
			m.RecordFrameError("pack_error")
		}
		return
	}
	if !c.enqueue(data) {
		p.log().WithField("client", c.id).Warn("outbound queue full, dropping client")
		p.removeClient(c)
		return
	}

	if m := p.recorder(); m != nil {
		switch cmdName {
		case "HEADER":
			m.RecordHeaderFrameSent(len(data))
		case "CONFIG1", "CONFIG2":
			m.RecordConfigFrameSent(len(data))
		}
	}
}

// broadcastRaw sends data to every client currently in ClientStreaming
// state, dropping (and removing) any client whose outbound queue is
// already full. It returns how many clients received it and how many were
// dropped.
func (p *PMU) broadcastRaw(data []byte) (sent, dropped int) {
	p.clientsMu.RLock()
	targets := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		if c.getState() == ClientStreaming {
			targets = append(targets, c)
		}
	}
	p.clientsMu.RUnlock()

	for _, c := range targets {
		if c.enqueue(data) {
			sent++
		} else {
			p.log().WithField("client", c.id).Warn("outbound queue full, dropping client")
			p.removeClient(c)
			dropped++
		}
	}
	return sent, dropped
}

// Send broadcasts f to every client currently in ClientStreaming state. A
// client whose outbound queue is already full is dropped.
func (p *PMU) Send(f Frame) {
	data, err := f.Pack()
	if err != nil {
		p.log().WithError(err).Error("pack failed for broadcast")
		if m := p.recorder(); m != nil {
			m.RecordFrameError("data_pack_error")
		}
		return
	}

	sent, _ := p.broadcastRaw(data)
	if m := p.recorder(); m != nil && sent > 0 {
		m.RecordDataFrameSent(len(data))
	}
}

// SendRaw broadcasts already-encoded bytes to every client currently in
// ClientStreaming state, without re-encoding them through a Frame's Pack.
// The Splitter uses this to relay upstream Data frames verbatim: the bytes
// it hands here are exactly the bytes it read from upstream, and skipping
// Pack avoids a re-encode ever changing them on the wire.
func (p *PMU) SendRaw(data []byte) (sent, dropped int) {
	sent, dropped = p.broadcastRaw(data)
	if m := p.recorder(); m != nil && sent > 0 {
		m.RecordDataFrameSent(len(data))
	}
	return sent, dropped
}

// SendTo sends f to a single client by ID, regardless of streaming state.
func (p *PMU) SendTo(clientID string, f Frame) error {
	p.clientsMu.RLock()
	c, ok := p.clients[clientID]
	p.clientsMu.RUnlock()
	if !ok {
		return ErrNotReady
	}

	data, err := f.Pack()
	if err != nil {
		return err
	}
	if !c.enqueue(data) {
		return ErrConnectionLost
	}
	return nil
}

// Clients returns a snapshot of currently connected clients.
func (p *PMU) Clients() []ClientInfo {
	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	out := make([]ClientInfo, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c.info())
	}
	return out
}

// Stop closes the listener and all client connections.
func (p *PMU) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	if p.listener != nil {
		_ = p.listener.Close()
	}

	p.clientsMu.RLock()
	clients := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.clientsMu.RUnlock()

	for _, c := range clients {
		p.removeClient(c)
	}

	p.log().Info("PMU endpoint stopped")
}

// Join blocks until all of the endpoint's background goroutines have
// exited (i.e. after Stop).
func (p *PMU) Join() {
	p.wg.Wait()
}

// LogConfiguration logs the complete PMU configuration at Info/Debug
// level, the way the original simulator's startup logging did.
func (p *PMU) LogConfiguration() {
	p.mu.RLock()
	cfg := p.configStore.Snapshot()
	header := p.header
	p.mu.RUnlock()

	p.log().WithFields(log.Fields{
		"id_code":   cfg.IDCode,
		"time_base": cfg.TimeBase,
		"data_rate": cfg.DataRate,
		"num_pmu":   cfg.NumPMU,
	}).Info("PMU configuration")

	for i, station := range cfg.PMUStationList {
		stationLog := p.log().WithFields(log.Fields{
			"index":             i,
			"station_name":      station.StationName,
			"station_id":        station.IDCode,
			"nominal_frequency": station.GetNominalFrequency(),
			"config_count":      station.ConfigCount,
		})

		stationLog = stationLog.WithFields(log.Fields{
			"format": map[string]bool{
				"coord_polar":  station.FormatCoord(),
				"phasor_float": station.FormatPhasorType(),
				"analog_float": station.FormatAnalogType(),
				"freq_float":   station.FormatFreqType(),
			},
		})

		stationLog = stationLog.WithFields(log.Fields{
			"channels": map[string]int{
				"phasor":  int(station.PhasorCount()),
				"analog":  int(station.AnalogCount()),
				"digital": int(station.DigitalCount()),
			},
		})

		stationLog.Info("PMU station configuration")

		for j, name := range station.PhasorNames {
			phUnit := station.PhasorUnits[j]
			p.log().WithFields(log.Fields{
				"station":      station.StationName,
				"channel_type": "phasor",
				"index":        j,
				"name":         strings.TrimSpace(name),
				"is_current":   station.PhasorIsCurrent(j),
				"scale_factor": phUnit & 0x0FFFFFF,
			}).Debug("phasor channel configuration")
		}
	}

	if header != nil && header.Data != "" {
		p.log().WithField("header", header.Data).Info("PMU header")
	}
}
