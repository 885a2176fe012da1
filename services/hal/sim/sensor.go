package sim

import (
	"errors"
	"sync"
)

// Sensor identity reported in the sensor bank.
const (
	SensorPID = 0x26
	SensorVER = 0x42
)

const (
	sensorAddr = 0x30
	regBank    = 0xFF
	regCOM7    = 0x12
	com7Reset  = 0x80
	regPID     = 0x0A
	regVER     = 0x0B
)

var (
	ErrNACK      = errors.New("sim: no acknowledge")
	ErrNoClock   = errors.New("sim: sensor clock stopped")
	ErrShortRead = errors.New("sim: unsupported transfer shape")
)

// Sensor emulates the register file behind the SCCB bus. It implements
// drivers.I2C. Two banks are selected through register 0xFF.
type Sensor struct {
	mu     sync.Mutex
	clock  func() bool
	bank   byte
	regs   [2][256]byte
	writes int

	// Fault, when set, fails any write it returns true for.
	Fault func(bank, reg, val byte) bool
}

// NewSensor returns a sensor that only answers while clock reports true.
// A nil clock means always clocked.
func NewSensor(clock func() bool) *Sensor {
	s := &Sensor{clock: clock}
	s.defaults()
	return s
}

func (s *Sensor) defaults() {
	s.regs = [2][256]byte{}
	s.regs[1][regPID] = SensorPID
	s.regs[1][regVER] = SensorVER
}

func (s *Sensor) Tx(addr uint16, w, r []byte) error {
	if addr != sensorAddr {
		return ErrNACK
	}
	if s.clock != nil && !s.clock() {
		return ErrNoClock
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(w) == 2 && len(r) == 0:
		reg, val := w[0], w[1]
		if s.Fault != nil && s.Fault(s.bank, reg, val) {
			return ErrNACK
		}
		s.writes++
		if reg == regBank {
			s.bank = val & 1
			return nil
		}
		if s.bank == 1 && reg == regCOM7 && val&com7Reset != 0 {
			s.defaults()
			s.bank = 1
			return nil
		}
		if s.bank == 1 && (reg == regPID || reg == regVER) {
			return nil // read-only
		}
		s.regs[s.bank][reg] = val
		return nil
	case len(w) == 1 && len(r) == 1:
		r[0] = s.regs[s.bank][w[0]]
		return nil
	}
	return ErrShortRead
}

// Reg returns a register value without touching the bank selection.
func (s *Sensor) Reg(bank, reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[bank&1][reg]
}

// Writes counts accepted register writes.
func (s *Sensor) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
