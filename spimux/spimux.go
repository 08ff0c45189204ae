// Copyright 2017 by Thorsten von Eicken, see LICENSE file

// Package spimux allows two radios to share an SPI bus that only has a single chip
// select line. This is accomplished by placing a demux on the CS line such that an
// extra gpio pin directs the chip select to either of the two devices: the Tx function
// sets the demux select for the appropriate device and then performs a std transaction.
//
// A sample circuit is to use an 74LVC1G19 demux with the SPI CS connected to E, the
// gpio select pin connected to A, and the CS inputs of the two devices attached to
// Y0 and Y1 respectively. A pull-down resistor on the A input of the demux is
// recommended to ensure both CS remain inactive when the SPI CS is not driven.
//
// A limitation of the current implementation is that the speed setting and the
// configuration (SPI mode and number of bits) is shared between the two devices,
// i.e., it is not possible to use different settings.
package spimux

import (
	"sync"

	"github.com/tve/radio"
)

// Conn is one of the two demuxed devices on the shared bus. It implements radio.SPI.
type Conn struct {
	mu     *sync.Mutex // prevent concurrent access to shared SPI bus
	dev    radio.SPI   // the underlying SPI device with shared chip select
	selPin radio.GPIO  // pin to select between two devices
	sel    int         // select value for this device
}

// New returns two connections for the provided SPI device, the first one using Low for
// the select pin, and the second using High.
func New(dev radio.SPI, selPin radio.GPIO) (*Conn, *Conn) {
	mu := &sync.Mutex{}
	return &Conn{mu, dev, selPin, radio.GpioLow}, &Conn{mu, dev, selPin, radio.GpioHigh}
}

// Tx sets the select pin to the correct value and calls the underlying Tx.
func (c *Conn) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selPin.Out(c.sel)
	return c.dev.Tx(w, r)
}

// Speed sets the bus speed, shared between the two devices.
func (c *Conn) Speed(hz int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.Speed(hz)
}

// Configure sets the bus mode and word size, shared between the two devices.
func (c *Conn) Configure(mode int, bits int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.Configure(mode, bits)
}

// Close is a no-op. TODO: close once both spimux are closed.
func (c *Conn) Close() error { return nil }
