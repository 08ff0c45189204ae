// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// The SX1276 package interfaces with a Semtech SX1276 LoRa radio, as found on HopeRF
// RFM95/96/97/98 and Dorji DRF1278 modules, connected to an SPI bus. The SX1276, SX1277,
// SX1278, and SX1279 all function identically and only differ in which RF bands they
// support.
//
// The driver is fully interrupt driven and requires that the radio's DIO0 pin be connected
// to an interrupt capable GPIO pin; DIO1..DIO3 are optional and enable receive timeout,
// frequency hopping, and channel activity detection notifications. Each DIO line is watched
// by a tiny goroutine that does nothing but push a line token into a bounded queue; a single
// worker goroutine owns all register interpretation and converts tokens into semantic
// events (packet received, transmit done, timeout, CRC error, channel hop, activity
// detected) delivered on the Events channel.
//
// The methods on the Radio object are concurrency safe: a device mutex serializes
// configuration calls against in-flight interrupt resolution, and every SPI transaction
// is atomic with respect to the rest of the driver. The watcher goroutines never touch
// the bus.
//
// Limitations
//
// This driver uses the SX1276 in LoRa mode. The FSK modem is only touched where the
// LoRa feature set requires it (image calibration and the temperature sensor live on
// the FSK register page); FSK packet operation is not implemented.
package sx1276

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tve/radio"
)

const tokenQueueCap = 10 // line tokens buffered between the DIO watchers and the worker
const eventChanCap = 4   // events buffered towards the application before dropping

// Fixed delays mandated by the chip: wake-up from sleep before the FIFO is usable,
// settle time after a real operating mode change, and the reset pulse timing.
const (
	wakeupDelay     = 1 * time.Millisecond
	modeSettleDelay = 5 * time.Millisecond
	resetPulse      = 1 * time.Millisecond
	resetSettle     = 10 * time.Millisecond
)

var (
	// ErrInvalidConfiguration is returned when a configuration call asks for something
	// the LoRa modem cannot do, such as a bandwidth other than 125/250/500 kHz.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrPayloadTooLong is returned by Send for payloads that do not fit the 255 byte FIFO.
	ErrPayloadTooLong = errors.New("payload too long")
	// ErrVersionMismatch is returned when the chip identity register reads back wrong.
	ErrVersionMismatch = errors.New("chip version mismatch")
	// ErrCRC is the reason attached to a receive-error event for a failed payload CRC.
	ErrCRC = errors.New("payload CRC error")
)

// Modem selects between the two mutually exclusive modem configurations of the chip.
type Modem byte

const (
	ModemLoRa Modem = iota
	ModemFSK
)

// Status is the driver's logical view of what the radio is doing. It is distinct from
// the hardware operating mode register: the chip never changes its own mode, the driver
// moves Status back to idle when an interrupt resolves.
type Status byte

const (
	StatusIdle Status = iota
	StatusTransmitting
	StatusReceiving
	StatusCAD
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusTransmitting:
		return "transmitting"
	case StatusReceiving:
		return "receiving"
	case StatusCAD:
		return "cad"
	}
	return "unknown"
}

// Bandwidth is one of the three channel bandwidths the LoRa modem supports.
type Bandwidth byte

const (
	Bandwidth125k Bandwidth = iota
	Bandwidth250k
	Bandwidth500k
)

// Hz returns the bandwidth in Hertz.
func (b Bandwidth) Hz() uint32 {
	switch b {
	case Bandwidth125k:
		return 125000
	case Bandwidth250k:
		return 250000
	case Bandwidth500k:
		return 500000
	}
	return 0
}

// regCode returns the 4-bit field value for ModemConfig1; codes 0..6 are the narrow
// bandwidths this driver does not expose.
func (b Bandwidth) regCode() byte { return byte(b) + 7 }

// loraSettings mirrors the chip's LoRa configuration as last programmed.
// lowDatarateOptimize is derived on every rx/tx configuration call, never set directly.
type loraSettings struct {
	bandwidth           Bandwidth
	datarate            byte // spreading factor 6..12
	coderate            byte // 1..4 for 4/5..4/8
	preambleLen         uint16
	implicitHeader      bool
	payloadLen          byte // fixed length, implicit header mode only
	crcOn               bool
	freqHopOn           bool
	hopPeriod           byte
	iqInverted          bool
	lowDatarateOptimize bool
	rxContinuous        bool
	txTimeout           time.Duration
}

// settings is the driver's view of the whole chip configuration.
type settings struct {
	modem   Modem
	state   Status
	channel uint32 // center frequency in Hz
	lora    loraSettings
}

// RxPacket is a received packet with signal stats.
type RxPacket struct {
	Payload []byte // payload, excluding length & crc
	Snr     int    // signal-to-noise in dB for packet
	Rssi    int    // rssi in dBm for packet, SNR-corrected
}

// Pins collects the GPIO lines wired to the radio. Reset and DIO0 are required, DIO1
// through DIO5 optional (DIO4/DIO5 are accepted for completeness but carry no events).
type Pins struct {
	Reset radio.GPIO
	DIO   [6]radio.GPIO
}

// RadioOpts contains options used when initializing a Radio.
type RadioOpts struct {
	Freq    uint32              // center frequency in Hz, 0 selects 868Mhz
	Ant     radio.AntennaSwitch // board antenna switch, nil for none
	TxTimer radio.Timer         // transmit deadline timer, nil for a time.AfterFunc one
	RxTimer radio.Timer         // receive deadline timer, nil for a time.AfterFunc one
	Logger  LogPrintf           // function to use for logging
}

// Radio represents a Semtech SX1276 radio.
type Radio struct {
	Events <-chan Event // semantic events from the dispatch worker
	// configuration
	spi     radio.SPI           // SPI device to access the radio
	rst     radio.GPIO          // reset line
	dio     [6]radio.GPIO       // interrupt lines
	ant     radio.AntennaSwitch // board antenna switch
	txTimer radio.Timer         // transmit timeout deadline
	rxTimer radio.Timer         // receive timeout deadline
	log     LogPrintf           // function to use for logging
	// state
	sync.Mutex          // serializes configuration calls and event resolution
	busMu    sync.Mutex // makes each register burst atomic, guards err
	err      error      // persistent bus error
	settings settings
	degraded bool       // no event delivery, configuration only
	tokens   chan token
	events   chan Event
	drops    uint32 // tokens dropped on queue overflow
	stop     chan struct{}
	closing  sync.Once
}

// LogPrintf is a function used by the driver to print logging info.
type LogPrintf func(format string, v ...interface{})

// New initializes an SX1276 Radio given an SPI device and its GPIO lines: it pulses
// reset, verifies the chip identity, runs the receiver chain calibration, selects the
// LoRa modem and the requested channel, and starts the event dispatch worker. The radio
// is left in sleep mode; use SetRxConfig/SetTxConfig and then SetRx or Send.
//
// If none of the DIO lines can be armed for interrupts the radio comes up degraded:
// still usable for configuration and register access but emitting no events.
func New(dev radio.SPI, pins Pins, opts RadioOpts) (*Radio, error) {
	r := &Radio{
		spi: dev,
		rst: pins.Reset,
		dio: pins.DIO,
		ant: opts.Ant,
		log: func(format string, v ...interface{}) {},
	}
	if opts.Logger != nil {
		r.log = func(format string, v ...interface{}) {
			opts.Logger("sx1276: "+format, v...)
		}
	}
	if r.ant == nil {
		r.ant = radio.NoAntennaSwitch
	}
	r.txTimer = opts.TxTimer
	if r.txTimer == nil {
		r.txTimer = radio.NewTimer()
	}
	r.rxTimer = opts.RxTimer
	if r.rxTimer == nil {
		r.rxTimer = radio.NewTimer()
	}
	if opts.Freq == 0 {
		opts.Freq = 868000000
	}

	// Set SPI parameters.
	if err := dev.Speed(4 * 1000 * 1000); err != nil {
		return nil, fmt.Errorf("sx1276: cannot set speed, %v", err)
	}
	if err := dev.Configure(radio.SPIMode0, 8); err != nil {
		return nil, fmt.Errorf("sx1276: cannot set mode, %v", err)
	}

	r.reset()

	if err := r.Test(); err != nil {
		return nil, err
	}

	// The calibration depends on the post-reset register defaults, so it runs before
	// any configuration touches the chip.
	r.calibrateRxChain()

	// Datasheet default for RegOpMode; the actual power-on value is 0x09.
	r.writeReg(REG_OPMODE, 0x00)
	r.setModem(ModemLoRa)
	r.setChannel(opts.Freq)

	r.tokens = make(chan token, tokenQueueCap)
	r.events = make(chan Event, eventChanCap)
	r.stop = make(chan struct{})
	r.Events = r.events
	r.settings.state = StatusIdle

	// Arm the DIO edge watchers. A line that cannot be armed is logged and skipped;
	// with no lines at all the driver degrades to configuration-only operation.
	armed := 0
	for i, pin := range r.dio {
		if pin == nil {
			continue
		}
		if err := pin.In(radio.GpioRisingEdge); err != nil {
			r.log("cannot arm DIO%d interrupt: %s", i, err)
			continue
		}
		go r.watch(i, pin)
		armed++
	}
	if armed == 0 {
		r.degraded = true
		r.log("no DIO line available, event delivery disabled")
	} else {
		go r.worker()
	}

	return r, nil
}

// reset pulses the chip's reset line per the datasheet: at least 100us low, release,
// then wait for the chip to come out of reset.
func (r *Radio) reset() {
	r.rst.Out(radio.GpioLow)
	time.Sleep(resetPulse)
	r.rst.Out(radio.GpioHigh)
	time.Sleep(resetSettle)
}

// Test reads the chip identity register and verifies the silicon revision. It is run
// during New and may be called again at any time as a self-test.
func (r *Radio) Test() error {
	v := r.readReg(REG_VERSION)
	if v != CHIP_VERSION {
		return fmt.Errorf("sx1276: %w: got %#x want %#x", ErrVersionMismatch, v, CHIP_VERSION)
	}
	return nil
}

// Status returns the driver's logical operating state.
func (r *Radio) Status() Status {
	r.Lock()
	defer r.Unlock()
	return r.settings.state
}

// Degraded reports whether the radio came up without event delivery.
func (r *Radio) Degraded() bool { return r.degraded }

// Error returns the first SPI transfer error encountered, if any. Register access
// does not report errors per call; a broken bus sticks and is inspected here.
func (r *Radio) Error() error {
	r.busMu.Lock()
	defer r.busMu.Unlock()
	return r.err
}

// Drops returns the number of interrupt tokens dropped due to queue overflow.
func (r *Radio) Drops() uint32 { return atomic.LoadUint32(&r.drops) }

// SetLogger sets a logging function, nil may be used to disable logging, which is
// the default.
func (r *Radio) SetLogger(l LogPrintf) {
	if l != nil {
		r.log = l
	} else {
		r.log = func(format string, v ...interface{}) {}
	}
}

// Close stops the dispatch worker and the DIO watchers and puts the radio to sleep.
func (r *Radio) Close() {
	r.closing.Do(func() {
		close(r.stop)
		r.SetSleep()
	})
}

//===== state machine

// SetSleep cancels both deadline timers and puts the chip into sleep mode. Idempotent.
func (r *Radio) SetSleep() {
	r.Lock()
	defer r.Unlock()
	r.setSleep()
}

func (r *Radio) setSleep() {
	r.txTimer.Cancel()
	r.rxTimer.Cancel()
	r.setOpMode(MODE_SLEEP)
	r.settings.state = StatusIdle
}

// SetStandby cancels both deadline timers and puts the chip into standby. Idempotent.
func (r *Radio) SetStandby() {
	r.Lock()
	defer r.Unlock()
	r.setStandby()
}

func (r *Radio) setStandby() {
	r.txTimer.Cancel()
	r.rxTimer.Cancel()
	r.setOpMode(MODE_STANDBY)
	r.settings.state = StatusIdle
}

// Send writes the payload into the FIFO and starts the transmitter. The transmit-done
// interrupt is routed to DIO0 and the transmit deadline configured via SetTxConfig is
// armed. Completion, or the lack of it, is reported on the Events channel.
func (r *Radio) Send(payload []byte) error {
	if len(payload) > 255 {
		return fmt.Errorf("sx1276: %w: %d bytes", ErrPayloadTooLong, len(payload))
	}
	r.Lock()
	defer r.Unlock()

	r.writeReg(REG_INVERTIQ, txInvertIQ(r.readReg(REG_INVERTIQ), r.settings.lora.iqInverted))
	if r.settings.lora.iqInverted {
		r.writeReg(REG_INVERTIQ2, INVERTIQ2_ON)
	} else {
		r.writeReg(REG_INVERTIQ2, INVERTIQ2_OFF)
	}

	r.writeReg(REG_PAYLENGTH, byte(len(payload)))

	// Use the upper half of the FIFO for TX.
	r.writeReg(REG_FIFOTXBASE, 0x80)
	r.writeReg(REG_FIFOPTR, 0x80)

	// FIFO access is undefined during sleep, wake the chip up first.
	if r.readReg(REG_OPMODE)&^OPMODE_MASK == MODE_SLEEP {
		r.setStandby()
		time.Sleep(wakeupDelay)
	}
	r.writeFIFO(payload)

	// Unmask only the transmit-done interrupt and route it to DIO0.
	r.writeReg(REG_IRQMASK, IRQ_ALL&^IRQ_TXDONE)
	r.writeReg(REG_DIOMAPPING1, r.readReg(REG_DIOMAPPING1)&DIO0_MASK|DIO0_01)

	if t := r.settings.lora.txTimeout; t > 0 {
		r.txTimer.Arm(t, func() { r.enqueue(tokTxTimeout) })
	}

	r.settings.state = StatusTransmitting
	r.setOpMode(MODE_TX)
	return nil
}

// SetRx puts the radio into receive mode. A zero timeout waits forever; a nonzero
// timeout arms the receive deadline timer. Whether the receiver stays on after one
// packet follows the RxContinuous flag from SetRxConfig.
func (r *Radio) SetRx(timeout time.Duration) {
	r.Lock()
	defer r.Unlock()

	r.writeReg(REG_INVERTIQ, rxInvertIQ(r.readReg(REG_INVERTIQ), r.settings.lora.iqInverted))
	if r.settings.lora.iqInverted {
		r.writeReg(REG_INVERTIQ2, INVERTIQ2_ON)
	} else {
		r.writeReg(REG_INVERTIQ2, INVERTIQ2_OFF)
	}

	// ERRATA 2.3 - receiver spurious reception of a LoRa signal.
	bw := r.settings.lora.bandwidth.regCode()
	if bw < 9 {
		r.writeReg(REG_DETECTOPT, r.readReg(REG_DETECTOPT)&0x7F)
		r.writeReg(REG_TEST30, 0x00)
		val, nudge := spuriousRxTweak(bw)
		r.writeReg(REG_TEST2F, val)
		if nudge != 0 {
			r.setChannel(r.settings.channel + nudge)
		}
	} else {
		r.writeReg(REG_DETECTOPT, r.readReg(REG_DETECTOPT)|0x80)
	}

	// With frequency hopping the hop-change interrupt shares DIO2, so it stays
	// unmasked and routed alongside the receive signals.
	if r.settings.lora.freqHopOn {
		r.writeReg(REG_IRQMASK, IRQ_VALIDHDR|IRQ_TXDONE|IRQ_CADDONE|IRQ_CADDETECT)
		r.writeReg(REG_DIOMAPPING1,
			r.readReg(REG_DIOMAPPING1)&DIO0_MASK&DIO2_MASK|DIO0_00|DIO2_00)
	} else {
		r.writeReg(REG_IRQMASK, IRQ_VALIDHDR|IRQ_TXDONE|IRQ_CADDONE|IRQ_FHSCHG|IRQ_CADDETECT)
		r.writeReg(REG_DIOMAPPING1, r.readReg(REG_DIOMAPPING1)&DIO0_MASK|DIO0_00)
	}

	r.writeReg(REG_FIFORXBASE, 0)
	r.writeReg(REG_FIFOPTR, 0)

	r.settings.state = StatusReceiving
	if timeout > 0 {
		r.rxTimer.Arm(timeout, func() { r.enqueue(tokRxTimeout) })
	}

	if r.settings.lora.rxContinuous {
		r.setOpMode(MODE_RX_CONT)
	} else {
		r.setOpMode(MODE_RX_SINGLE)
	}
}

// StartCAD starts a channel activity detection cycle. The result arrives as a CadDone
// event on the Events channel.
func (r *Radio) StartCAD() {
	r.Lock()
	defer r.Unlock()

	r.writeReg(REG_IRQMASK, IRQ_RXTIMEOUT|IRQ_RXDONE|IRQ_CRCERR|IRQ_VALIDHDR|
		IRQ_TXDONE|IRQ_FHSCHG)
	r.writeReg(REG_DIOMAPPING1, r.readReg(REG_DIOMAPPING1)&DIO3_MASK|DIO3_00)

	r.settings.state = StatusCAD
	r.setOpMode(MODE_CAD)
}

// SetModem selects the LoRa or FSK modem. The long-range-mode bit can only be flipped
// in sleep, so the chip passes through sleep mode. FSK packet parameters are not
// configured by this driver; the selection exists for the calibration and temperature
// sequences and for completeness.
func (r *Radio) SetModem(m Modem) {
	r.Lock()
	defer r.Unlock()
	r.setModem(m)
}

func (r *Radio) setModem(m Modem) {
	r.settings.modem = m
	switch m {
	case ModemLoRa:
		r.setOpMode(MODE_SLEEP)
		r.writeReg(REG_OPMODE, r.readReg(REG_OPMODE)&OPMODE_LORA_MASK|OPMODE_LORA_ON)
		r.writeReg(REG_DIOMAPPING1, 0x00)
		r.writeReg(REG_DIOMAPPING2, 0x10) // DIO5=ClkOut
	case ModemFSK:
		r.setOpMode(MODE_SLEEP)
		r.writeReg(REG_OPMODE, r.readReg(REG_OPMODE)&OPMODE_LORA_MASK)
		r.writeReg(REG_DIOMAPPING1, 0x00)
	}
}

// setOpMode writes a new operating mode into the chip. It is a no-op when the register
// already holds the requested mode; a real change drives the antenna switch and is
// followed by the fixed settle delay.
func (r *Radio) setOpMode(mode byte) {
	prev := r.readReg(REG_OPMODE)
	if prev&^OPMODE_MASK == mode {
		return
	}

	if mode == MODE_SLEEP {
		r.ant.SetLowPower(true)
	} else {
		r.ant.SetLowPower(false)
		r.ant.SetDirection(mode == MODE_TX)
	}

	r.writeReg(REG_OPMODE, prev&OPMODE_MASK|mode)
	time.Sleep(modeSettleDelay)
}

//===== register access

// writeReg writes one or multiple registers starting at addr, the sx1276 auto-increments
// (except for the FIFO register where that wouldn't be desirable). The bus mutex is held
// for the whole chip-select window so a transaction can never be interleaved.
func (r *Radio) writeReg(addr byte, data ...byte) {
	wBuf := make([]byte, len(data)+1)
	rBuf := make([]byte, len(data)+1)
	wBuf[0] = addr | 0x80
	copy(wBuf[1:], data)
	r.busMu.Lock()
	defer r.busMu.Unlock()
	r.busErr(r.spi.Tx(wBuf, rBuf))
}

// readReg reads one register and returns its value.
func (r *Radio) readReg(addr byte) byte {
	var buf [2]byte
	r.busMu.Lock()
	defer r.busMu.Unlock()
	r.busErr(r.spi.Tx([]byte{addr & 0x7f, 0}, buf[:]))
	return buf[1]
}

// readReg16 reads one 16-bit register and returns its value.
func (r *Radio) readReg16(addr byte) uint16 {
	var buf [3]byte
	r.busMu.Lock()
	defer r.busMu.Unlock()
	r.busErr(r.spi.Tx([]byte{addr & 0x7f, 0, 0}, buf[:]))
	return uint16(buf[1])<<8 | uint16(buf[2])
}

// readReg24 reads one 24-bit register and returns its value.
func (r *Radio) readReg24(addr byte) uint32 {
	var buf [4]byte
	r.busMu.Lock()
	defer r.busMu.Unlock()
	r.busErr(r.spi.Tx([]byte{addr & 0x7f, 0, 0, 0}, buf[:]))
	return uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
}

// busErr records the first transfer error, caller must hold busMu.
func (r *Radio) busErr(err error) {
	if err != nil && r.err == nil {
		r.err = err
		r.log("spi transfer failed: %s", err)
	}
}

// writeFIFO pushes the payload into the chip FIFO at the current FIFO pointer.
func (r *Radio) writeFIFO(data []byte) {
	r.writeReg(REG_FIFO, data...)
}

// readFIFO pulls count bytes out of the chip FIFO at the current FIFO pointer.
func (r *Radio) readFIFO(count byte) []byte {
	wBuf := make([]byte, int(count)+1)
	rBuf := make([]byte, int(count)+1)
	wBuf[0] = REG_FIFO
	r.busMu.Lock()
	r.busErr(r.spi.Tx(wBuf, rBuf))
	r.busMu.Unlock()
	return rBuf[1:]
}
