// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"math"
	"time"
)

// TimeOnAir computes the on-air duration of a packet with pktLen payload bytes under
// the current configuration. Useful for duty-cycle accounting and for choosing transmit
// and receive deadlines.
func (r *Radio) TimeOnAir(pktLen int) time.Duration {
	r.Lock()
	l := r.settings.lora
	r.Unlock()
	return timeOnAir(l, pktLen)
}

func timeOnAir(l loraSettings, pktLen int) time.Duration {
	bw := float64(l.bandwidth.Hz())
	// symbol rate and symbol time
	rs := bw / float64(uint32(1)<<l.datarate)
	ts := 1 / rs
	tPreamble := (float64(l.preambleLen) + 4.25) * ts

	crc := 0.0
	if l.crcOn {
		crc = 1
	}
	implicit := 0.0
	if l.implicitHeader {
		implicit = 1
	}
	ldro := 0.0
	if l.lowDatarateOptimize {
		ldro = 1
	}
	num := 8*float64(pktLen) - 4*float64(l.datarate) + 28 + 16*crc - 20*implicit
	den := 4 * (float64(l.datarate) - 2*ldro)
	nPayload := 8.0
	if num > 0 {
		nPayload += math.Ceil(num/den) * float64(l.coderate+4)
	}
	tPayload := nPayload * ts

	return time.Duration((tPreamble + tPayload) * float64(time.Second))
}

// ReadRSSI returns the instantaneous signal strength in dBm at the antenna.
func (r *Radio) ReadRSSI() int {
	r.Lock()
	defer r.Unlock()
	if r.settings.modem == ModemFSK {
		return -int(r.readReg(REG_FSK_RSSI)) / 2
	}
	offset := RSSI_OFFSET_HF
	if r.settings.channel < RF_MID_BAND_THRESH {
		offset = RSSI_OFFSET_LF
	}
	return offset + int(r.readReg(REG_CURRSSI))
}

// IsChannelFree tunes to freq, listens briefly, and reports whether the measured
// signal strength stays below rssiThresh dBm. The radio ends up in sleep.
func (r *Radio) IsChannelFree(freq uint32, rssiThresh int) bool {
	r.Lock()
	defer r.Unlock()
	r.setChannel(freq)
	r.setOpMode(MODE_RX_CONT)
	time.Sleep(time.Millisecond)
	offset := RSSI_OFFSET_HF
	if freq < RF_MID_BAND_THRESH {
		offset = RSSI_OFFSET_LF
	}
	rssi := offset + int(r.readReg(REG_CURRSSI))
	r.setSleep()
	return rssi <= rssiThresh
}

// Random produces 32 bits of entropy from wideband RSSI noise, one LSB per millisecond
// of listening. All interrupts are masked during sampling and the radio ends up in
// sleep, so any receive or transmit configuration must be reissued afterwards.
func (r *Radio) Random() uint32 {
	r.Lock()
	defer r.Unlock()

	r.setModem(ModemLoRa)
	r.writeReg(REG_IRQMASK, IRQ_ALL)
	r.setOpMode(MODE_RX_CONT)

	var rnd uint32
	for i := uint(0); i < 32; i++ {
		time.Sleep(time.Millisecond)
		rnd |= uint32(r.readReg(REG_RSSIWIDEBAND)&0x01) << i
	}

	r.setSleep()
	return rnd
}

// ReadTemperature returns the die temperature in degrees Celsius, uncalibrated to
// within a few degrees. The sensor lives on the FSK page and only runs while the
// synthesizer is active, so the chip briefly passes through FSK RX-synth mode; the
// previous modem selection and operating mode are restored afterwards.
func (r *Radio) ReadTemperature() int {
	r.Lock()
	defer r.Unlock()

	prevModem := r.settings.modem
	prevMode := r.readReg(REG_OPMODE) &^ OPMODE_MASK
	if prevModem != ModemFSK {
		r.setModem(ModemFSK)
	}

	r.setOpMode(MODE_FS_RX)
	r.writeReg(REG_FSK_IMAGECAL,
		r.readReg(REG_FSK_IMAGECAL)&TEMPMONITOR_MASK|TEMPMONITOR_ON)
	time.Sleep(time.Millisecond)
	r.writeReg(REG_FSK_IMAGECAL,
		r.readReg(REG_FSK_IMAGECAL)&TEMPMONITOR_MASK|TEMPMONITOR_OFF)
	r.setOpMode(MODE_SLEEP)

	raw := r.readReg(REG_FSK_TEMP)
	if prevModem != ModemFSK {
		r.setModem(prevModem)
	}
	r.setOpMode(prevMode)

	// The register is sign-magnitude: high bit negative, low 7 bits degrees.
	temp := int(raw & 0x7F)
	if raw&0x80 != 0 {
		temp = -temp
	}
	return temp
}
