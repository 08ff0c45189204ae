// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import "time"

// SPI is the bus transport used to reach a radio's register file. Every Tx call is one
// chip-select-asserted transaction: the first written byte frames the register address
// (high bit set for writes per the Semtech protocol) and the remaining bytes clock data
// in or out. Implementations must make each Tx atomic with respect to concurrent callers.
type SPI interface {
	Tx(w, r []byte) error
	Speed(hz int64) error
	Configure(mode int, bits int) error
	Close() error
}

const (
	SPIMode0 = 0x0 // CPOL=0, CPHA=0
	SPIMode1 = 0x1 // CPOL=0, CPHA=1
	SPIMode2 = 0x2 // CPOL=1, CPHA=0
	SPIMode3 = 0x3 // CPOL=1, CPHA=1
)

// GPIO is a single digital pin. Interrupt lines are consumed by configuring a rising
// edge and blocking in WaitForEdge, which returns false on timeout.
type GPIO interface {
	In(edge int) error
	Read() int
	WaitForEdge(timeout time.Duration) bool
	Out(level int)
	Number() int
}

const (
	GpioLow        = 0
	GpioHigh       = 1
	GpioNoEdge     = 0
	GpioRisingEdge = 1
)

// Timer is a single-shot cancellable deadline registration. Arm always replaces a
// pending registration, Cancel is a no-op if none is pending. The callback runs in
// its own goroutine and must not block for long.
type Timer interface {
	Arm(d time.Duration, f func())
	Cancel()
}

// AntennaSwitch drives a board-specific RF switch. Drivers call SetLowPower(true) when
// the radio enters sleep and SetDirection on every transition into transmit or receive.
// Boards without a switch can use NoAntennaSwitch.
type AntennaSwitch interface {
	SetLowPower(on bool)
	SetDirection(tx bool)
}

// NoAntennaSwitch is an AntennaSwitch for boards where the antenna is wired directly.
var NoAntennaSwitch AntennaSwitch = noAnt{}

type noAnt struct{}

func (noAnt) SetLowPower(bool)  {}
func (noAnt) SetDirection(bool) {}
