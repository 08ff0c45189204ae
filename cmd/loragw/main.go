// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Command loragw is a small LoRa to MQTT gateway: packets received by an sx1276 are
// published as JSON to <prefix>/rx and messages arriving on <prefix>/tx are
// transmitted. Two radios can share one SPI chip select through a demux pin.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/tve/radio"
	"github.com/tve/radio/spimux"
	"github.com/tve/radio/sx1276"
)

type LogPrintf func(format string, v ...interface{})

func pin(name string) (radio.GPIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("cannot open pin %s", name)
	}
	return radio.NewGPIO(p), nil
}

// run massages the options, instantiates the radio object, and hooks it up to the
// broker connection.
func run(dev radio.SPI, mq *mq, prefix string, resetName, dio0Name, dio1Name string,
	freq uint, power, sf, bw, cr int, debug LogPrintf,
) error {
	resetPin, err := pin(resetName)
	if err != nil {
		return err
	}
	pins := sx1276.Pins{Reset: resetPin}
	if pins.DIO[0], err = pin(dio0Name); err != nil {
		return err
	}
	if pins.DIO[1], err = pin(dio1Name); err != nil {
		return err
	}

	log.Printf("Initializing LoRa radio at %dHz, bw=%d sf=%d cr=%d", freq, bw, sf, cr)
	r, err := sx1276.New(dev, pins, sx1276.RadioOpts{
		Freq:   uint32(freq),
		Logger: sx1276.LogPrintf(debug),
	})
	if err != nil {
		return err
	}
	if r.Degraded() {
		return fmt.Errorf("radio has no working interrupt line")
	}

	err = r.SetRxConfig(sx1276.RxConfig{
		Bandwidth:    sx1276.Bandwidth(bw),
		Datarate:     byte(sf),
		Coderate:     byte(cr),
		PreambleLen:  8,
		SymbTimeout:  0x3FF,
		CrcOn:        true,
		RxContinuous: true,
	})
	if err != nil {
		return err
	}
	err = r.SetTxConfig(sx1276.TxConfig{
		Power:       power,
		Bandwidth:   sx1276.Bandwidth(bw),
		Datarate:    byte(sf),
		Coderate:    byte(cr),
		PreambleLen: 8,
		CrcOn:       true,
		Timeout:     3 * time.Second,
	})
	if err != nil {
		return err
	}
	log.Printf("LoRa radio ready")

	return loraGW(r, mq, prefix, debug)
}

func main() {
	spiName := flag.String("spi", "", "SPI port name, empty for the first port")
	muxPin := flag.String("muxpin", "", "chip select mux pin name, empty for none")
	debug := flag.Bool("debug", false, "enable debug output")

	mqttHost := flag.String("mqtt", "localhost:1883", "host:port of MQTT broker")
	mqttUser := flag.String("user", "", "MQTT username")
	mqttPass := flag.String("pass", "", "MQTT password")

	reset0 := flag.String("reset0", "GPIO25", "reset pin name for radio 0")
	dio00 := flag.String("dio00", "GPIO24", "DIO0 interrupt pin name for radio 0")
	dio01 := flag.String("dio01", "", "DIO1 interrupt pin name for radio 0")
	freq0 := flag.Uint("freq0", 915750000, "center frequency in Hz for radio 0")
	power0 := flag.Int("power0", 17, "output power in dBm for radio 0")
	sf0 := flag.Int("sf0", 7, "spreading factor for radio 0")
	bw0 := flag.Int("bw0", 0, "bandwidth code for radio 0: 0=125kHz 1=250kHz 2=500kHz")
	cr0 := flag.Int("cr0", 1, "coding rate for radio 0: 1=4/5 .. 4=4/8")
	pref0 := flag.String("pref0", "radio/0", "MQTT topic prefix for radio 0")

	reset1 := flag.String("reset1", "", "reset pin name for radio 1, empty to disable")
	dio10 := flag.String("dio10", "", "DIO0 interrupt pin name for radio 1")
	dio11 := flag.String("dio11", "", "DIO1 interrupt pin name for radio 1")
	freq1 := flag.Uint("freq1", 432600000, "center frequency in Hz for radio 1")
	power1 := flag.Int("power1", 17, "output power in dBm for radio 1")
	sf1 := flag.Int("sf1", 7, "spreading factor for radio 1")
	bw1 := flag.Int("bw1", 0, "bandwidth code for radio 1: 0=125kHz 1=250kHz 2=500kHz")
	cr1 := flag.Int("cr1", 1, "coding rate for radio 1: 1=4/5 .. 4=4/8")
	pref1 := flag.String("pref1", "radio/1", "MQTT topic prefix for radio 1")
	flag.Parse()

	var logger LogPrintf
	if *debug {
		logger = log.Printf
	}

	mq, err := newMQ(*mqttHost, *mqttUser, *mqttPass, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to MQTT broker: %s\n", err)
		os.Exit(2)
	}

	log.Printf("Opening radio")
	if _, err = host.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init periph: %s\n", err)
		os.Exit(2)
	}

	spiPort, err := spireg.Open(*spiName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open SPI: %s\n", err)
		os.Exit(2)
	}

	dev0 := radio.SPI(radio.NewSPI(spiPort))
	var dev1 radio.SPI
	if *muxPin != "" {
		selPin, err := pin(*muxPin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(2)
		}
		dev0, dev1 = spimux.New(dev0, selPin)
	}

	err = run(dev0, mq, *pref0, *reset0, *dio00, *dio01,
		*freq0, *power0, *sf0, *bw0, *cr0, logger)
	if err == nil && dev1 != nil && *reset1 != "" {
		err = run(dev1, mq, *pref1, *reset1, *dio10, *dio11,
			*freq1, *power1, *sf1, *bw1, *cr1, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Exiting due to error: %s\n", err)
		os.Exit(2)
	}
	log.Printf("Gateway is ready")
	select {}
}
