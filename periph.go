// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

//===== SPI backed by periph.io

// NewSPI wraps a periph.io SPI port. The connection to the device is established on the
// first Configure call using the speed set beforehand (4Mhz if none was set).
func NewSPI(port spi.PortCloser) SPI {
	return &periphSPI{port: port, hz: 4 * 1000 * 1000}
}

type periphSPI struct {
	port spi.PortCloser
	conn spi.Conn
	hz   int64
}

func (s *periphSPI) Speed(hz int64) error {
	if s.conn != nil {
		return fmt.Errorf("spi: cannot change speed after Configure")
	}
	s.hz = hz
	return nil
}

func (s *periphSPI) Configure(mode int, bits int) error {
	m := [...]spi.Mode{spi.Mode0, spi.Mode1, spi.Mode2, spi.Mode3}[mode&3]
	conn, err := s.port.Connect(physic.Frequency(s.hz)*physic.Hertz, m, bits)
	if err != nil {
		return fmt.Errorf("spi: cannot connect: %v", err)
	}
	s.conn = conn
	return nil
}

func (s *periphSPI) Tx(w, r []byte) error {
	if s.conn == nil {
		if err := s.Configure(SPIMode0, 8); err != nil {
			return err
		}
	}
	return s.conn.Tx(w, r)
}

func (s *periphSPI) Close() error { return s.port.Close() }

//===== GPIO backed by periph.io

// NewGPIO wraps a periph.io pin.
func NewGPIO(pin gpio.PinIO) GPIO { return &periphGPIO{pin} }

type periphGPIO struct {
	pin gpio.PinIO
}

func (g *periphGPIO) In(edge int) error {
	e := gpio.NoEdge
	if edge == GpioRisingEdge {
		e = gpio.RisingEdge
	}
	return g.pin.In(gpio.PullDown, e)
}

func (g *periphGPIO) Read() int {
	if g.pin.Read() == gpio.High {
		return GpioHigh
	}
	return GpioLow
}

func (g *periphGPIO) WaitForEdge(timeout time.Duration) bool {
	return g.pin.WaitForEdge(timeout)
}

func (g *periphGPIO) Out(level int) {
	l := gpio.Low
	if level == GpioHigh {
		l = gpio.High
	}
	g.pin.Out(l)
}

func (g *periphGPIO) Number() int { return g.pin.Number() }
