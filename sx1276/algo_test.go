// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import "testing"

func TestReadRSSI(t *testing.T) {
	rig := newTestRig(t)
	rig.spi.set(REG_CURRSSI, 60)
	if got := rig.r.ReadRSSI(); got != -97 {
		t.Errorf("rssi at 868Mhz: got %d want -97", got)
	}
	rig.r.SetChannel(434000000)
	if got := rig.r.ReadRSSI(); got != -104 {
		t.Errorf("rssi at 434Mhz: got %d want -104", got)
	}
}

func TestRssiPacketSnrCorrection(t *testing.T) {
	// negative SNR degrades the reported strength, positive does not
	if got := rssiPacket(40, -6, 868000000); got != -121 {
		t.Errorf("got %d want -121", got)
	}
	if got := rssiPacket(40, 5, 868000000); got != -115 {
		t.Errorf("got %d want -115", got)
	}
	if got := rssiPacket(40, 0, 434000000); got != -122 {
		t.Errorf("got %d want -122", got)
	}
}

func TestIsChannelFree(t *testing.T) {
	rig := newTestRig(t)
	rig.spi.set(REG_CURRSSI, 60) // -97dBm at 868Mhz
	if rig.r.IsChannelFree(868000000, -100) {
		t.Errorf("busy channel reported free")
	}
	if !rig.r.IsChannelFree(868000000, -90) {
		t.Errorf("free channel reported busy")
	}
	// ends up asleep
	if got := rig.spi.get(REG_OPMODE) &^ OPMODE_MASK; got != MODE_SLEEP {
		t.Errorf("op mode: got %d want sleep", got)
	}
}

func TestRandom(t *testing.T) {
	rig := newTestRig(t)
	rig.spi.set(REG_RSSIWIDEBAND, 0x55) // LSB always 1
	if got := rig.r.Random(); got != 0xFFFFFFFF {
		t.Errorf("random: got %#x", got)
	}
	if got := rig.spi.get(REG_OPMODE) &^ OPMODE_MASK; got != MODE_SLEEP {
		t.Errorf("op mode: got %d want sleep", got)
	}
}

func TestReadTemperature(t *testing.T) {
	rig := newTestRig(t)
	// sign-magnitude register: high bit flips the sign of the low 7 bits
	rig.spi.set(REG_FSK_TEMP, 0x19)
	if got := rig.r.ReadTemperature(); got != 25 {
		t.Errorf("temperature: got %d want 25", got)
	}
	rig.spi.set(REG_FSK_TEMP, 0x99)
	if got := rig.r.ReadTemperature(); got != -25 {
		t.Errorf("temperature: got %d want -25", got)
	}
	rig.spi.set(REG_FSK_TEMP, 0xE6)
	if got := rig.r.ReadTemperature(); got != -102 {
		t.Errorf("temperature: got %d want -102", got)
	}
	// the modem selection was restored
	if got := rig.spi.get(REG_OPMODE) & OPMODE_LORA_ON; got == 0 {
		t.Errorf("lora mode not restored")
	}
}

func TestReadTemperatureRestoresMode(t *testing.T) {
	rig := newTestRig(t)
	rig.r.SetStandby()
	rig.spi.set(REG_FSK_TEMP, 0x19)
	rig.r.ReadTemperature()
	if got := rig.spi.get(REG_OPMODE) &^ OPMODE_MASK; got != MODE_STANDBY {
		t.Errorf("op mode: got %d want standby", got)
	}
	if got := rig.spi.get(REG_OPMODE) & OPMODE_LORA_ON; got == 0 {
		t.Errorf("lora mode not restored")
	}
}
