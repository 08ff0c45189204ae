// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"sync/atomic"
	"time"

	"github.com/tve/radio"
)

// token identifies what woke the dispatch worker: a DIO line edge or the expiry of
// one of the deadline timers.
type token byte

const (
	tokDIO0 token = iota
	tokDIO1
	tokDIO2
	tokDIO3
	tokDIO4
	tokDIO5
	tokTxTimeout
	tokRxTimeout
)

// EventKind discriminates the events delivered on the Events channel.
type EventKind byte

const (
	EventRxDone EventKind = iota
	EventRxTimeout
	EventRxError
	EventTxDone
	EventTxTimeout
	EventFhssChangeChannel
	EventCadDone
)

func (k EventKind) String() string {
	switch k {
	case EventRxDone:
		return "rx done"
	case EventRxTimeout:
		return "rx timeout"
	case EventRxError:
		return "rx error"
	case EventTxDone:
		return "tx done"
	case EventTxTimeout:
		return "tx timeout"
	case EventFhssChangeChannel:
		return "fhss change channel"
	case EventCadDone:
		return "cad done"
	}
	return "unknown"
}

// Event is one semantic radio event. Packet is set for EventRxDone, Err for
// EventRxError, Channel for EventFhssChangeChannel, and Detected for EventCadDone.
type Event struct {
	Kind     EventKind
	Packet   *RxPacket
	Err      error
	Channel  byte
	Detected bool
}

// enqueue pushes a token towards the worker without ever blocking; timer callbacks and
// watcher goroutines must not stall behind a slow worker. Overflow is counted, not
// fatal: the worker reads the IRQ flags register and recovers the state regardless.
func (r *Radio) enqueue(t token) {
	select {
	case r.tokens <- t:
	default:
		atomic.AddUint32(&r.drops, 1)
	}
}

// watch runs as a goroutine per armed DIO line. It pushes a token on each rising edge
// and, after each timeout, checks the level to catch an edge that fired before the
// wait was (re)established.
func (r *Radio) watch(line int, pin radio.GPIO) {
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		if !pin.WaitForEdge(time.Second) {
			if pin.Read() != radio.GpioHigh {
				continue
			}
		}
		r.enqueue(token(line))
	}
}

// worker is the single goroutine that owns interrupt resolution. It converts line and
// timer tokens into events; all register reads happen here, never in the watchers.
func (r *Radio) worker() {
	defer close(r.events)
	for {
		select {
		case <-r.stop:
			return
		case t := <-r.tokens:
			r.dispatch(t)
		}
	}
}

func (r *Radio) dispatch(t token) {
	r.Lock()
	defer r.Unlock()
	switch t {
	case tokDIO0:
		r.onDIO0()
	case tokDIO1:
		r.onDIO1()
	case tokDIO2:
		r.onDIO2()
	case tokDIO3:
		r.onDIO3()
	case tokTxTimeout:
		if r.settings.state != StatusTransmitting {
			return
		}
		r.settings.state = StatusIdle
		r.setOpMode(MODE_STANDBY)
		r.emit(Event{Kind: EventTxTimeout})
	case tokRxTimeout:
		if r.settings.state != StatusReceiving {
			return
		}
		if !r.settings.lora.rxContinuous {
			r.settings.state = StatusIdle
		}
		r.emit(Event{Kind: EventRxTimeout})
	}
}

// onDIO0 resolves the main interrupt line: receive-done while receiving, transmit-done
// while transmitting.
func (r *Radio) onDIO0() {
	switch r.settings.state {
	case StatusReceiving:
		if r.readReg(REG_IRQFLAGS)&IRQ_CRCERR != 0 {
			r.writeReg(REG_IRQFLAGS, IRQ_CRCERR|IRQ_RXDONE)
			if !r.settings.lora.rxContinuous {
				r.settings.state = StatusIdle
			}
			r.rxTimer.Cancel()
			r.emit(Event{Kind: EventRxError, Err: ErrCRC})
			return
		}
		r.writeReg(REG_IRQFLAGS, IRQ_RXDONE)

		snr := int(int8(r.readReg(REG_PKTSNR))) / 4
		rssi := rssiPacket(int(r.readReg(REG_PKTRSSI)), snr, r.settings.channel)

		size := r.readReg(REG_RXBYTES)
		r.writeReg(REG_FIFOPTR, r.readReg(REG_FIFORXCURR))
		payload := r.readFIFO(size)

		if !r.settings.lora.rxContinuous {
			r.settings.state = StatusIdle
		}
		r.rxTimer.Cancel()
		r.emit(Event{Kind: EventRxDone, Packet: &RxPacket{
			Payload: payload, Snr: snr, Rssi: rssi,
		}})

	case StatusTransmitting:
		r.writeReg(REG_IRQFLAGS, IRQ_TXDONE)
		r.txTimer.Cancel()
		r.settings.state = StatusIdle
		r.emit(Event{Kind: EventTxDone})
	}
}

// onDIO1 is the receive timeout signaled by the chip in RX-single mode.
func (r *Radio) onDIO1() {
	if r.settings.state != StatusReceiving {
		return
	}
	r.writeReg(REG_IRQFLAGS, IRQ_RXTIMEOUT)
	r.rxTimer.Cancel()
	r.settings.state = StatusIdle
	r.emit(Event{Kind: EventRxTimeout})
}

// onDIO2 is the frequency hop request; the event carries the next channel index so
// the application can retune.
func (r *Radio) onDIO2() {
	if !r.settings.lora.freqHopOn {
		return
	}
	if r.settings.state != StatusReceiving && r.settings.state != StatusTransmitting {
		return
	}
	r.writeReg(REG_IRQFLAGS, IRQ_FHSCHG)
	r.emit(Event{
		Kind:    EventFhssChangeChannel,
		Channel: r.readReg(REG_HOPCHAN) & HOPCHAN_MASK,
	})
}

// onDIO3 is CAD completion; the detected flag mirrors the CadDetected IRQ bit.
func (r *Radio) onDIO3() {
	if r.settings.state != StatusCAD {
		return
	}
	detected := r.readReg(REG_IRQFLAGS)&IRQ_CADDETECT != 0
	if detected {
		r.writeReg(REG_IRQFLAGS, IRQ_CADDONE|IRQ_CADDETECT)
	} else {
		r.writeReg(REG_IRQFLAGS, IRQ_CADDONE)
	}
	r.settings.state = StatusIdle
	r.emit(Event{Kind: EventCadDone, Detected: detected})
}

// emit hands an event to the application without blocking the worker; if the channel
// is full the event is dropped with a log line, matching the queue policy upstream.
func (r *Radio) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.log("events channel full, dropping %s", ev.Kind)
	}
}

// rssiPacket converts the raw packet strength register into dBm: the band offset plus
// a 1/16 nonlinearity correction, degraded further by a negative SNR.
func rssiPacket(raw, snr int, channel uint32) int {
	offset := RSSI_OFFSET_HF
	if channel < RF_MID_BAND_THRESH {
		offset = RSSI_OFFSET_LF
	}
	rssi := offset + raw + raw>>4
	if snr < 0 {
		rssi += snr
	}
	return rssi
}
