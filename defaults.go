package synchrophasor

// Default configuration values, grounded on the IEEE Annex D Table D.2
// sample PMU configuration as carried by the reference Python
// implementation's Pmu.__init__ sample station. Exposed as plain
// constructor functions rather than mutable package state (spec §9
// "Global state").

// DefaultTimeBase is the Annex D sample's time base (microsecond
// resolution).
const DefaultTimeBase uint32 = 1000000

// DefaultDataRate is the Annex D sample's reporting rate in frames/second.
const DefaultDataRate int16 = 30

// DefaultStationName is the Annex D sample's station name.
const DefaultStationName = "Station A"

// DefaultIDCode is the Annex D sample's data stream ID.
const DefaultIDCode uint16 = 7734

// NewDefaultStation returns a PMUStation matching the Annex D Table D.2
// sample: 4 phasors (3 voltage + 1 current), 3 analog channels (power, RMS,
// peak), 1 digital word of 16 breaker-status channels, polar fixed-point
// phasors, fixed-point frequency and analog values, 60 Hz nominal.
func NewDefaultStation(idCode uint16) *PMUStation {
	s := NewPMUStation(DefaultStationName, idCode, false, false, false, true)

	s.AddPhasor("VA", 915527, 0)
	s.AddPhasor("VB", 915527, 0)
	s.AddPhasor("VC", 915527, 0)
	s.AddPhasor("I1", 45776, 1)

	s.AddAnalog("ANALOG1", 1, 0)
	s.AddAnalog("ANALOG2", 1, 1)
	s.AddAnalog("ANALOG3", 1, 2)

	breakerNames := []string{
		"BREAKER 1 STATUS", "BREAKER 2 STATUS", "BREAKER 3 STATUS", "BREAKER 4 STATUS",
		"BREAKER 5 STATUS", "BREAKER 6 STATUS", "BREAKER 7 STATUS", "BREAKER 8 STATUS",
		"BREAKER 9 STATUS", "BREAKER A STATUS", "BREAKER B STATUS", "BREAKER C STATUS",
		"BREAKER D STATUS", "BREAKER E STATUS", "BREAKER F STATUS", "BREAKER G STATUS",
	}
	s.AddDigital(breakerNames, 0x0000, 0xFFFF)

	s.NominalFreqCode = FreqNom60Hz
	s.ConfigCount = 1

	return s
}

// NewDefaultConfigFrame returns a ConfigFrame (sync'd for CFG-2) wrapping a
// single NewDefaultStation, matching the teacher's ieee_cfg2_sample.
func NewDefaultConfigFrame(idCode uint16) *ConfigFrame {
	cfg := NewConfigFrame()
	cfg.IDCode = idCode
	cfg.TimeBase = DefaultTimeBase
	cfg.DataRate = DefaultDataRate
	cfg.AddPMUStation(NewDefaultStation(idCode))
	return cfg
}
