//go:build tinygo

package main

import (
	"errors"
	"machine"
	"time"
)

// MAX30102 registers.
const (
	regIntStatus1 = 0x00
	regIntEnable1 = 0x02
	regFifoWrPtr  = 0x04
	regOvfCounter = 0x05
	regFifoRdPtr  = 0x06
	regFifoData   = 0x07
	regFifoCfg    = 0x08
	regModeCfg    = 0x09
	regSpO2Cfg    = 0x0A
	regLed1PA     = 0x0C // red
	regLed2PA     = 0x0D // ir
	regPartID     = 0xFF

	partID  = 0x15
	address = 0x57
)

const (
	modeHR   = 0x02
	modeSpO2 = 0x03
	modeRST  = 0x40
	modeSHDN = 0x80

	fifoRollover = 0x10
	fifoDepth    = 32
)

// Sample rate field of the SpO2 configuration.
const (
	sr50 = iota
	sr100
	sr200
	sr400
	sr800
	sr1000
	sr1600
	sr3200
)

// Pulse width field of the SpO2 configuration; sets the ADC resolution.
const (
	pw69  = iota // 15 bit
	pw118        // 16 bit
	pw215        // 17 bit
	pw411        // 18 bit
)

// ADC full scale field of the SpO2 configuration, in nA.
const (
	adcRange2048 = iota << 5
	adcRange4096
	adcRange8192
	adcRange16384
)

var errPartID = errors.New("max30102: unexpected part id")

// sensor talks to a MAX30102 over I2C in SpO2 mode.
type sensor struct {
	bus *machine.I2C
	buf [6]byte
}

func (s *sensor) configure() error {
	id, err := s.read(regPartID)
	if err != nil {
		return err
	}
	if id != partID {
		return errPartID
	}

	if err := s.write(regModeCfg, modeRST); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)

	for _, rv := range [][2]byte{
		{regIntEnable1, 0},
		{regFifoWrPtr, 0},
		{regOvfCounter, 0},
		{regFifoRdPtr, 0},
		{regFifoCfg, fifoRollover}, // no averaging, overwrite when full
		{regSpO2Cfg, SENSOR_ADC_RANGE | SENSOR_RATE<<2 | SENSOR_PULSE_WIDTH},
		{regLed1PA, SENSOR_LED_CURRENT},
		{regLed2PA, SENSOR_LED_CURRENT},
		{regModeCfg, modeSpO2},
	} {
		if err := s.write(rv[0], rv[1]); err != nil {
			return err
		}
	}
	return nil
}

// latest drains the FIFO and returns the newest red/ir pair. ok is false when
// the FIFO was empty.
func (s *sensor) latest() (red, ir uint32, ok bool, err error) {
	wr, err := s.read(regFifoWrPtr)
	if err != nil {
		return 0, 0, false, err
	}
	rd, err := s.read(regFifoRdPtr)
	if err != nil {
		return 0, 0, false, err
	}

	n := (int(wr) - int(rd) + fifoDepth) % fifoDepth
	for ; n > 0; n-- {
		if err := s.bus.ReadRegister(address, regFifoData, s.buf[:]); err != nil {
			return 0, 0, false, err
		}
		red = sample18(s.buf[0:3])
		ir = sample18(s.buf[3:6])
		ok = true
	}
	return red, ir, ok, nil
}

func (s *sensor) shutdown() error {
	return s.write(regModeCfg, modeSHDN)
}

func (s *sensor) read(reg uint8) (byte, error) {
	var b [1]byte
	err := s.bus.ReadRegister(address, reg, b[:])
	return b[0], err
}

func (s *sensor) write(reg uint8, v byte) error {
	return s.bus.WriteRegister(address, reg, []byte{v})
}

func sample18(b []byte) uint32 {
	return (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])) & 0x3FFFF
}
