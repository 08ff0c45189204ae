// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

// Common and LoRa-page register addresses. The FSK page shares the addresses up to 0x3F
// but assigns different meanings; the few FSK registers the driver touches (image
// calibration, temperature) are listed at the end.
const (
	REG_FIFO         = 0x00
	REG_OPMODE       = 0x01
	REG_FRFMSB       = 0x06
	REG_FRFMID       = 0x07
	REG_FRFLSB       = 0x08
	REG_PACONFIG     = 0x09
	REG_PARAMP       = 0x0A
	REG_OCP          = 0x0B
	REG_LNA          = 0x0C
	REG_FIFOPTR      = 0x0D
	REG_FIFOTXBASE   = 0x0E
	REG_FIFORXBASE   = 0x0F
	REG_FIFORXCURR   = 0x10
	REG_IRQMASK      = 0x11
	REG_IRQFLAGS     = 0x12
	REG_RXBYTES      = 0x13
	REG_MODEMSTAT    = 0x18
	REG_PKTSNR       = 0x19
	REG_PKTRSSI      = 0x1A
	REG_CURRSSI      = 0x1B
	REG_HOPCHAN      = 0x1C
	REG_MODEMCONF1   = 0x1D
	REG_MODEMCONF2   = 0x1E
	REG_SYMBTIMEOUT  = 0x1F
	REG_PREAMBLEMSB  = 0x20
	REG_PREAMBLELSB  = 0x21
	REG_PAYLENGTH    = 0x22
	REG_PAYMAX       = 0x23
	REG_HOPPERIOD    = 0x24
	REG_FIFORXLAST   = 0x25
	REG_MODEMCONF3   = 0x26
	REG_PPMCORR      = 0x27
	REG_FEI          = 0x28
	REG_RSSIWIDEBAND = 0x2C
	REG_TEST2F       = 0x2F
	REG_TEST30       = 0x30
	REG_DETECTOPT    = 0x31
	REG_INVERTIQ     = 0x33
	REG_TEST36       = 0x36
	REG_DETECTTHR    = 0x37
	REG_SYNC         = 0x39
	REG_TEST3A       = 0x3A
	REG_INVERTIQ2    = 0x3B
	REG_DIOMAPPING1  = 0x40
	REG_DIOMAPPING2  = 0x41
	REG_VERSION      = 0x42
	REG_PLLHOP       = 0x44
	REG_TCXO         = 0x4B
	REG_PADAC        = 0x4D
	REG_FORMERTEMP   = 0x5B

	// FSK page registers used by calibration and the temperature sequence.
	REG_FSK_RSSI     = 0x11
	REG_FSK_IMAGECAL = 0x3B
	REG_FSK_TEMP     = 0x3C
)

// Operating modes, low three bits of REG_OPMODE.
const (
	MODE_SLEEP = iota
	MODE_STANDBY
	MODE_FS_TX     // frequency synthesis TX
	MODE_TX        // TX
	MODE_FS_RX     // frequency synthesis RX
	MODE_RX_CONT   // RX continuous
	MODE_RX_SINGLE // RX single
	MODE_CAD       // channel activity detection
)

const (
	OPMODE_MASK      = 0xF8 // keeps everything but the mode bits
	OPMODE_LORA_ON   = 0x80 // long range mode, writable in sleep only
	OPMODE_LORA_MASK = 0x7F
)

// IRQ mask and flags registers (LoRa page). Writing a 1 to a flag bit clears it.
const (
	IRQ_RXTIMEOUT = 1 << 7
	IRQ_RXDONE    = 1 << 6
	IRQ_CRCERR    = 1 << 5
	IRQ_VALIDHDR  = 1 << 4
	IRQ_TXDONE    = 1 << 3
	IRQ_CADDONE   = 1 << 2
	IRQ_FHSCHG    = 1 << 1
	IRQ_CADDETECT = 1 << 0
	IRQ_ALL       = 0xFF
)

// DIO mapping fields in REG_DIOMAPPING1, two bits per line.
const (
	DIO0_MASK = 0x3F
	DIO0_00   = 0x00 // RxDone
	DIO0_01   = 0x40 // TxDone
	DIO0_11   = 0xC0 // no interrupt
	DIO1_MASK = 0xCF
	DIO1_00   = 0x00 // RxTimeout
	DIO2_MASK = 0xF3
	DIO2_00   = 0x00 // FhssChangeChannel
	DIO3_MASK = 0xFC
	DIO3_00   = 0x00 // CadDone
)

// ModemConfig1 fields: bandwidth[7:4], coding rate[3:1], implicit header[0].
const (
	CONF1_BW_MASK       = 0x0F
	CONF1_CODERATE_MASK = 0xF1
	CONF1_IMPLICIT_MASK = 0xFE
)

// ModemConfig2 fields: spreading factor[7:4], TX continuous[3], CRC[2], SymbTimeout MSB[1:0].
const (
	CONF2_SF_MASK      = 0x0F
	CONF2_CRC_MASK     = 0xFB
	CONF2_SYMBTMO_MASK = 0xFC
)

// ModemConfig3 fields: low datarate optimize[3], AGC auto[2].
const (
	CONF3_LDRO_MASK = 0xF7
	CONF3_LDRO_ON   = 0x08
)

// Detection optimize and threshold values, SF6 needs its own pair.
const (
	DETECTOPT_MASK   = 0xF8
	DETECTOPT_SF6    = 0x05
	DETECTOPT_SF7_12 = 0x03
	DETECTTHR_SF6    = 0x0C
	DETECTTHR_SF7_12 = 0x0A
)

// PaConfig fields: PA select[7], max power[6:4], output power[3:0]; PaDac 20dBm extension.
const (
	PACONFIG_PASELECT_MASK = 0x7F
	PACONFIG_PABOOST       = 0x80
	PACONFIG_MAXPOWER_MASK = 0x8F
	PACONFIG_OUTPOWER_MASK = 0xF0
	PADAC_20DBM_MASK       = 0xF8
	PADAC_20DBM_ON         = 0x07
	PADAC_20DBM_OFF        = 0x04
	PARAMP_50US            = 0x08
)

// PllHop fast-hop enable.
const (
	PLLHOP_FASTHOP_MASK = 0x7F
	PLLHOP_FASTHOP_ON   = 0x80
)

// InvertIQ register fields. The separate InvertIQ2 register needs a magic value for RX.
const (
	INVERTIQ_RX_MASK = 0xBF
	INVERTIQ_RX_ON   = 0x40
	INVERTIQ_RX_OFF  = 0x00
	INVERTIQ_TX_MASK = 0xFE
	INVERTIQ_TX_ON   = 0x00
	INVERTIQ_TX_OFF  = 0x01
	INVERTIQ2_ON     = 0x19
	INVERTIQ2_OFF    = 0x1D
)

// Hop channel register: current channel in the low 6 bits.
const HOPCHAN_MASK = 0x3F

// Image calibration register (FSK page, reachable in any mode).
const (
	IMAGECAL_MASK    = 0xBF
	IMAGECAL_START   = 0x40
	IMAGECAL_RUNNING = 0x20
	TEMPMONITOR_MASK = 0xFE
	TEMPMONITOR_ON   = 0x00
	TEMPMONITOR_OFF  = 0x01
)

// Chip identity. Clone parts reading 0x1C fail the version check.
const CHIP_VERSION = 0x12

// The RF front-end splits at this frequency: below it the LF port and LF RSSI offset
// apply, above it the HF port. The PA boost path is chosen for LF channels.
const RF_MID_BAND_THRESH = 525000000

// RSSI offsets to convert the raw packet-strength register into dBm, per band.
const (
	RSSI_OFFSET_LF = -164
	RSSI_OFFSET_HF = -157
)

// HF calibration point for the second image calibration run.
const CHANNEL_HF = 868000000
