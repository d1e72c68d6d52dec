package synchrophasor

import "sync"

// PhasorChannelSpec describes one phasor channel for SetPhasorChannels.
type PhasorChannelSpec struct {
	Name        string
	ScaleFactor uint32
	IsCurrent   bool
}

// AnalogChannelSpec describes one analog channel for SetAnalogChannels.
type AnalogChannelSpec struct {
	Name   string
	Factor uint32
	Type   uint8 // AnunitPow/AnunitRMS/AnunitPeak
}

// DigitalChannelSpec describes one digital word for SetDigitalChannels.
type DigitalChannelSpec struct {
	Names  [16]string
	Normal uint16
	Valid  uint16
}

// ConfigurationStore wraps a *ConfigFrame for a single PMU station and
// tracks whether it has been transmitted yet, implementing the cfg_count
// bump-on-change-after-first-send semantics (spec invariant I5) and the
// channel-count-change-resets-lists semantics (spec §4.3).
type ConfigurationStore struct {
	mu          sync.Mutex
	cfg         *ConfigFrame
	transmitted bool
}

// NewConfigurationStore creates a store. If cfg is nil, it is seeded with
// the Annex D Table D.2 sample configuration (the teacher's
// ieee_cfg2_sample shape, see defaults.go).
func NewConfigurationStore(cfg *ConfigFrame) *ConfigurationStore {
	if cfg == nil {
		cfg = NewDefaultConfigFrame(DefaultIDCode)
	}
	return &ConfigurationStore{cfg: cfg}
}

// station returns the store's single station, creating one if the frame is
// empty. The store always manages exactly one PMU station per spec §4.3's
// scope (a single PMU's own configuration, not a concentrator's summary).
func (s *ConfigurationStore) station() *PMUStation {
	if len(s.cfg.PMUStationList) == 0 {
		s.cfg.AddPMUStation(NewPMUStation("", s.cfg.IDCode, false, false, false, true))
	}
	return s.cfg.PMUStationList[0]
}

// bumpIfTransmitted increments ConfigCount on the managed station if this
// configuration has already been sent at least once (spec invariant I5:
// cfg_count increases monotonically across a configuration change once the
// old configuration has been observed on the wire).
func (s *ConfigurationStore) bumpIfTransmitted(st *PMUStation) {
	if s.transmitted {
		st.ConfigCount++
	}
}

// MarkTransmitted records that the current configuration has been sent at
// least once. The PMU endpoint calls it each time it answers a CFG-2
// request from this store.
func (s *ConfigurationStore) MarkTransmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transmitted = true
}

// SetStationName sets the station name.
func (s *ConfigurationStore) SetStationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.station()
	st.StationName = name
	s.bumpIfTransmitted(st)
}

// SetIDCode sets both the frame and station ID codes.
func (s *ConfigurationStore) SetIDCode(idCode uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.IDCode = idCode
	st := s.station()
	st.IDCode = idCode
	s.bumpIfTransmitted(st)
}

// SetFormat sets the FORMAT word flags.
func (s *ConfigurationStore) SetFormat(freqType, analogType, phasorType, coordType bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.station()
	st.SetFormat(freqType, analogType, phasorType, coordType)
	s.bumpIfTransmitted(st)
}

// SetPhasorChannels replaces the phasor channel list, resetting the
// per-channel value slice to one zero value per new channel.
func (s *ConfigurationStore) SetPhasorChannels(specs []PhasorChannelSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.station()
	st.PhasorNames = make([]string, 0, len(specs))
	st.PhasorUnits = make([]uint32, 0, len(specs))
	st.Phasors = make([]complex128, 0, len(specs))
	for _, spec := range specs {
		phType := uint8(PhunitVoltage)
		if spec.IsCurrent {
			phType = PhunitCurrent
		}
		st.AddPhasor(spec.Name, spec.ScaleFactor, phType)
	}
	s.bumpIfTransmitted(st)
}

// SetAnalogChannels replaces the analog channel list, resetting the
// per-channel value slice to one zero value per new channel.
func (s *ConfigurationStore) SetAnalogChannels(specs []AnalogChannelSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.station()
	st.AnalogNames = make([]string, 0, len(specs))
	st.AnalogUnits = make([]uint32, 0, len(specs))
	st.Analogs = make([]float32, 0, len(specs))
	for _, spec := range specs {
		st.AddAnalog(spec.Name, spec.Factor, spec.Type)
	}
	s.bumpIfTransmitted(st)
}

// SetDigitalChannels replaces the digital word list, resetting the
// per-word value slice to one all-false word per new digital word.
func (s *ConfigurationStore) SetDigitalChannels(specs []DigitalChannelSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.station()
	st.DigitalNames = make([]string, 0, len(specs)*16)
	st.DigitalUnits = make([]uint32, 0, len(specs))
	st.Digitals = make([][]bool, 0, len(specs))
	for _, spec := range specs {
		st.AddDigital(spec.Names[:], spec.Normal, spec.Valid)
	}
	s.bumpIfTransmitted(st)
}

// SetNominalFrequency sets NominalFreqCode (FreqNom60Hz or FreqNom50Hz).
func (s *ConfigurationStore) SetNominalFrequency(fnom uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.station()
	st.NominalFreqCode = fnom
	s.bumpIfTransmitted(st)
}

// SetDataRate sets the frame's DataRate.
func (s *ConfigurationStore) SetDataRate(rate int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.DataRate = rate
	s.bumpIfTransmitted(s.station())
}

// Snapshot returns an independent deep-enough copy of the managed
// ConfigFrame, safe to hand to an encoder/decoder concurrently with further
// mutation of the store.
func (s *ConfigurationStore) Snapshot() *ConfigFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := &ConfigFrame{
		C37118:         s.cfg.C37118,
		TimeBase:       s.cfg.TimeBase,
		NumPMU:         s.cfg.NumPMU,
		DataRate:       s.cfg.DataRate,
		PMUStationList: make([]*PMUStation, len(s.cfg.PMUStationList)),
	}
	for i, st := range s.cfg.PMUStationList {
		copied := *st
		copied.PhasorNames = append([]string(nil), st.PhasorNames...)
		copied.AnalogNames = append([]string(nil), st.AnalogNames...)
		copied.DigitalNames = append([]string(nil), st.DigitalNames...)
		copied.PhasorUnits = append([]uint32(nil), st.PhasorUnits...)
		copied.AnalogUnits = append([]uint32(nil), st.AnalogUnits...)
		copied.DigitalUnits = append([]uint32(nil), st.DigitalUnits...)
		copied.Phasors = append([]complex128(nil), st.Phasors...)
		copied.Analogs = append([]float32(nil), st.Analogs...)
		copied.Digitals = make([][]bool, len(st.Digitals))
		for j, word := range st.Digitals {
			copied.Digitals[j] = append([]bool(nil), word...)
		}
		cfg.PMUStationList[i] = &copied
	}
	return cfg
}
