// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"fmt"
	"time"
)

// The crystal runs at 32Mhz and the frequency synthesizer divides it by 2^19, giving
// the step size of the 24-bit Frf register.
const (
	fxosc   = 32000000
	frfBits = 19
)

// RxConfig holds the receiver parameters for SetRxConfig.
type RxConfig struct {
	Bandwidth      Bandwidth
	Datarate       byte   // spreading factor, clamped to 6..12
	Coderate       byte   // 1..4 for 4/5..4/8
	PreambleLen    uint16 // preamble length in symbols
	SymbTimeout    uint16 // RX-single timeout in symbols, 10 bits
	ImplicitHeader bool
	PayloadLen     byte // fixed payload length, implicit header mode only
	CrcOn          bool
	FreqHopOn      bool
	HopPeriod      byte // symbols between hops
	IqInverted     bool
	RxContinuous   bool
}

// TxConfig holds the transmitter parameters for SetTxConfig.
type TxConfig struct {
	Power          int // output power in dBm, clamped to the selected PA's range
	Bandwidth      Bandwidth
	Datarate       byte
	Coderate       byte
	PreambleLen    uint16
	ImplicitHeader bool
	CrcOn          bool
	FreqHopOn      bool
	HopPeriod      byte
	IqInverted     bool
	Timeout        time.Duration // transmit deadline armed by Send
}

//===== channel & calibration

// SetChannel tunes the synthesizer to freq Hz.
func (r *Radio) SetChannel(freq uint32) {
	r.Lock()
	defer r.Unlock()
	r.setChannel(freq)
}

func (r *Radio) setChannel(freq uint32) {
	r.settings.channel = freq
	frf := (uint64(freq) << frfBits) / fxosc
	r.writeReg(REG_FRFMSB, byte(frf>>16), byte(frf>>8), byte(frf))
}

// Channel returns the currently tuned center frequency in Hz.
func (r *Radio) Channel() uint32 {
	r.Lock()
	defer r.Unlock()
	return r.settings.channel
}

// calibrateRxChain runs the receiver image and RSSI calibration, once at the current
// (post-reset LF) frequency and once in the HF band. It must run on the FSK page with
// the PA off, and restores the PA and frequency afterwards.
func (r *Radio) calibrateRxChain() {
	paConfig := r.readReg(REG_PACONFIG)
	frf := r.readReg24(REG_FRFMSB)
	initialFreq := uint32((uint64(frf) * fxosc) >> frfBits)

	r.writeReg(REG_PACONFIG, 0x00)

	r.writeReg(REG_FSK_IMAGECAL, r.readReg(REG_FSK_IMAGECAL)&IMAGECAL_MASK|IMAGECAL_START)
	for r.readReg(REG_FSK_IMAGECAL)&IMAGECAL_RUNNING != 0 {
	}

	r.setChannel(CHANNEL_HF)

	r.writeReg(REG_FSK_IMAGECAL, r.readReg(REG_FSK_IMAGECAL)&IMAGECAL_MASK|IMAGECAL_START)
	for r.readReg(REG_FSK_IMAGECAL)&IMAGECAL_RUNNING != 0 {
	}

	r.writeReg(REG_PACONFIG, paConfig)
	r.setChannel(initialFreq)
}

//===== rx/tx configuration

// SetRxConfig programs the receiver parameters. The only invalid input is a bandwidth
// outside 125/250/500 kHz, which returns ErrInvalidConfiguration without touching the
// chip; everything else is clamped or masked into range.
func (r *Radio) SetRxConfig(cfg RxConfig) error {
	if cfg.Bandwidth > Bandwidth500k {
		return fmt.Errorf("sx1276: %w: bandwidth code %d", ErrInvalidConfiguration,
			cfg.Bandwidth)
	}
	r.Lock()
	defer r.Unlock()

	cfg.Datarate = clampDatarate(cfg.Datarate)
	l := &r.settings.lora
	l.bandwidth = cfg.Bandwidth
	l.datarate = cfg.Datarate
	l.coderate = cfg.Coderate
	l.preambleLen = cfg.PreambleLen
	l.implicitHeader = cfg.ImplicitHeader
	l.payloadLen = cfg.PayloadLen
	l.crcOn = cfg.CrcOn
	l.freqHopOn = cfg.FreqHopOn
	l.hopPeriod = cfg.HopPeriod
	l.iqInverted = cfg.IqInverted
	l.rxContinuous = cfg.RxContinuous
	l.lowDatarateOptimize = lowDatarateOptimize(cfg.Bandwidth, cfg.Datarate)

	r.writeReg(REG_MODEMCONF1, modemConfig1(r.readReg(REG_MODEMCONF1),
		cfg.Bandwidth, cfg.Coderate, cfg.ImplicitHeader))
	r.writeReg(REG_MODEMCONF2, modemConfig2(r.readReg(REG_MODEMCONF2),
		cfg.Datarate, cfg.CrcOn, cfg.SymbTimeout))
	r.writeReg(REG_MODEMCONF3, modemConfig3(r.readReg(REG_MODEMCONF3),
		l.lowDatarateOptimize))

	r.writeReg(REG_SYMBTIMEOUT, byte(cfg.SymbTimeout))
	r.writeReg(REG_PREAMBLEMSB, byte(cfg.PreambleLen>>8), byte(cfg.PreambleLen))

	if cfg.ImplicitHeader {
		r.writeReg(REG_PAYLENGTH, cfg.PayloadLen)
	}

	if cfg.FreqHopOn {
		r.writeReg(REG_PLLHOP, r.readReg(REG_PLLHOP)&PLLHOP_FASTHOP_MASK|PLLHOP_FASTHOP_ON)
		r.writeReg(REG_HOPPERIOD, cfg.HopPeriod)
	}

	// ERRATA 2.1 - sensitivity optimization with 500 kHz bandwidth.
	if cfg.Bandwidth == Bandwidth500k {
		if r.settings.channel > RF_MID_BAND_THRESH {
			r.writeReg(REG_TEST36, 0x02)
			r.writeReg(REG_TEST3A, 0x64)
		} else {
			r.writeReg(REG_TEST36, 0x02)
			r.writeReg(REG_TEST3A, 0x7F)
		}
	} else {
		r.writeReg(REG_TEST36, 0x03)
	}

	if cfg.Datarate == 6 {
		r.writeReg(REG_DETECTOPT, r.readReg(REG_DETECTOPT)&DETECTOPT_MASK|DETECTOPT_SF6)
		r.writeReg(REG_DETECTTHR, DETECTTHR_SF6)
	} else {
		r.writeReg(REG_DETECTOPT, r.readReg(REG_DETECTOPT)&DETECTOPT_MASK|DETECTOPT_SF7_12)
		r.writeReg(REG_DETECTTHR, DETECTTHR_SF7_12)
	}
	return nil
}

// SetTxConfig programs the transmitter parameters, including the power amplifier
// selection and the 20dBm boost extension. Invalid bandwidths are rejected like in
// SetRxConfig.
func (r *Radio) SetTxConfig(cfg TxConfig) error {
	if cfg.Bandwidth > Bandwidth500k {
		return fmt.Errorf("sx1276: %w: bandwidth code %d", ErrInvalidConfiguration,
			cfg.Bandwidth)
	}
	r.Lock()
	defer r.Unlock()

	cfg.Datarate = clampDatarate(cfg.Datarate)
	l := &r.settings.lora
	l.bandwidth = cfg.Bandwidth
	l.datarate = cfg.Datarate
	l.coderate = cfg.Coderate
	l.preambleLen = cfg.PreambleLen
	l.implicitHeader = cfg.ImplicitHeader
	l.crcOn = cfg.CrcOn
	l.freqHopOn = cfg.FreqHopOn
	l.hopPeriod = cfg.HopPeriod
	l.iqInverted = cfg.IqInverted
	l.txTimeout = cfg.Timeout
	l.lowDatarateOptimize = lowDatarateOptimize(cfg.Bandwidth, cfg.Datarate)

	paConfig, paDac := paConfigFor(r.readReg(REG_PACONFIG), r.readReg(REG_PADAC),
		r.settings.channel, cfg.Power)
	r.writeReg(REG_PACONFIG, paConfig)
	r.writeReg(REG_PADAC, paDac)
	r.writeReg(REG_PARAMP, r.readReg(REG_PARAMP)&0xF0|PARAMP_50US)

	r.writeReg(REG_MODEMCONF1, modemConfig1(r.readReg(REG_MODEMCONF1),
		cfg.Bandwidth, cfg.Coderate, cfg.ImplicitHeader))
	r.writeReg(REG_MODEMCONF2, modemConfig2Tx(r.readReg(REG_MODEMCONF2),
		cfg.Datarate, cfg.CrcOn))
	r.writeReg(REG_MODEMCONF3, modemConfig3(r.readReg(REG_MODEMCONF3),
		l.lowDatarateOptimize))

	r.writeReg(REG_PREAMBLEMSB, byte(cfg.PreambleLen>>8), byte(cfg.PreambleLen))

	if cfg.FreqHopOn {
		r.writeReg(REG_PLLHOP, r.readReg(REG_PLLHOP)&PLLHOP_FASTHOP_MASK|PLLHOP_FASTHOP_ON)
		r.writeReg(REG_HOPPERIOD, cfg.HopPeriod)
	}

	// ERRATA 2.1 - sensitivity optimization with 500 kHz bandwidth.
	if cfg.Bandwidth == Bandwidth500k {
		if r.settings.channel > RF_MID_BAND_THRESH {
			r.writeReg(REG_TEST36, 0x02)
			r.writeReg(REG_TEST3A, 0x64)
		} else {
			r.writeReg(REG_TEST36, 0x02)
			r.writeReg(REG_TEST3A, 0x7F)
		}
	} else {
		r.writeReg(REG_TEST36, 0x03)
	}

	if cfg.Datarate == 6 {
		r.writeReg(REG_DETECTOPT, r.readReg(REG_DETECTOPT)&DETECTOPT_MASK|DETECTOPT_SF6)
		r.writeReg(REG_DETECTTHR, DETECTTHR_SF6)
	} else {
		r.writeReg(REG_DETECTOPT, r.readReg(REG_DETECTOPT)&DETECTOPT_MASK|DETECTOPT_SF7_12)
		r.writeReg(REG_DETECTTHR, DETECTTHR_SF7_12)
	}
	return nil
}

// SetMaxPayloadLength caps the length the receiver accepts in explicit header mode.
func (r *Radio) SetMaxPayloadLength(max byte) {
	r.Lock()
	defer r.Unlock()
	r.writeReg(REG_PAYMAX, max)
}

//===== pure register field computations

func clampDatarate(dr byte) byte {
	if dr < 6 {
		return 6
	}
	if dr > 12 {
		return 12
	}
	return dr
}

// lowDatarateOptimize must be on when the symbol time exceeds 16ms: SF11/12 at 125 kHz
// and SF12 at 250 kHz.
func lowDatarateOptimize(bw Bandwidth, dr byte) bool {
	return (bw == Bandwidth125k && dr >= 11) || (bw == Bandwidth250k && dr == 12)
}

func modemConfig1(reg byte, bw Bandwidth, cr byte, implicit bool) byte {
	v := reg & CONF1_BW_MASK & CONF1_CODERATE_MASK & CONF1_IMPLICIT_MASK
	v |= bw.regCode() << 4
	v |= cr << 1
	if implicit {
		v |= 0x01
	}
	return v
}

func modemConfig2(reg byte, dr byte, crcOn bool, symbTimeout uint16) byte {
	v := reg & CONF2_SF_MASK & CONF2_CRC_MASK & CONF2_SYMBTMO_MASK
	v |= dr << 4
	if crcOn {
		v |= 0x04
	}
	v |= byte(symbTimeout>>8) & 0x03
	return v
}

func modemConfig2Tx(reg byte, dr byte, crcOn bool) byte {
	v := reg & CONF2_SF_MASK & CONF2_CRC_MASK
	v |= dr << 4
	if crcOn {
		v |= 0x04
	}
	return v
}

func modemConfig3(reg byte, ldro bool) byte {
	v := reg & CONF3_LDRO_MASK
	if ldro {
		v |= CONF3_LDRO_ON
	}
	return v
}

// rxInvertIQ and txInvertIQ compute the InvertIQ register for the two directions; the
// RX and TX inversion bits live in the same register and only one applies at a time.
func rxInvertIQ(reg byte, inverted bool) byte {
	v := reg & INVERTIQ_RX_MASK & INVERTIQ_TX_MASK
	if inverted {
		return v | INVERTIQ_RX_ON | INVERTIQ_TX_OFF
	}
	return v | INVERTIQ_RX_OFF | INVERTIQ_TX_OFF
}

func txInvertIQ(reg byte, inverted bool) byte {
	v := reg & INVERTIQ_RX_MASK & INVERTIQ_TX_MASK
	if inverted {
		return v | INVERTIQ_RX_OFF | INVERTIQ_TX_ON
	}
	return v | INVERTIQ_RX_OFF | INVERTIQ_TX_OFF
}

// paConfigFor maps a dBm power request onto the PA registers. Channels below the
// mid-band threshold use the PA_BOOST pin, above it the RFO pin. On the boost pin
// requests over 17dBm engage the PaDac 20dBm extension; each path clamps the request
// into its reachable range.
func paConfigFor(paConfig, paDac byte, channel uint32, power int) (byte, byte) {
	paConfig &= PACONFIG_PASELECT_MASK
	if channel < RF_MID_BAND_THRESH {
		paConfig |= PACONFIG_PABOOST
	}
	paConfig = paConfig&PACONFIG_MAXPOWER_MASK | 0x70

	if paConfig&PACONFIG_PABOOST != 0 {
		if power > 17 {
			// 20dBm extension: output = 5 + register, range 5..20dBm
			paDac = paDac&PADAC_20DBM_MASK | PADAC_20DBM_ON
			if power > 20 {
				power = 20
			}
			paConfig = paConfig&PACONFIG_OUTPOWER_MASK | byte(power-5)
		} else {
			// boost: output = 2 + register, range 2..17dBm
			paDac = paDac&PADAC_20DBM_MASK | PADAC_20DBM_OFF
			if power < 2 {
				power = 2
			}
			paConfig = paConfig&PACONFIG_OUTPOWER_MASK | byte(power-2)
		}
	} else {
		// RFO: output = -1 + register, range -1..14dBm
		if power < -1 {
			power = -1
		}
		if power > 14 {
			power = 14
		}
		paConfig = paConfig&PACONFIG_OUTPOWER_MASK | byte(power+1)
	}
	return paConfig, paDac
}

// spuriousRxTweak returns the TEST2F value and channel nudge in Hz applied before
// entering receive mode with a bandwidth below 500 kHz (ERRATA 2.3). Bandwidth codes
// below 125 kHz are listed for completeness even though the driver never programs them.
func spuriousRxTweak(bwCode byte) (val byte, nudge uint32) {
	switch bwCode {
	case 0: // 7.8 kHz
		return 0x48, 7810
	case 1: // 10.4 kHz
		return 0x44, 10420
	case 2: // 15.6 kHz
		return 0x44, 15620
	case 3: // 20.8 kHz
		return 0x44, 20830
	case 4: // 31.2 kHz
		return 0x44, 31250
	case 5: // 41.4 kHz
		return 0x44, 41670
	default: // 62.5, 125, 250 kHz
		return 0x40, 0
	}
}
