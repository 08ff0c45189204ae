// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Command sx1276-test exercises an sx1276 radio: it sends a couple of packets when
// invoked with "tx", listens and prints packets with "rx", runs a channel activity
// scan with "cad", sweeps the band for occupancy with "scan", and prints the die
// temperature and a random word with "info".
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

func panicIf(err error) {
	if err != nil {
		panic(err)
	}
}

func pin(name string) radio.GPIO {
	if name == "" {
		return nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		panic("cannot open pin " + name)
	}
	return radio.NewGPIO(p)
}

func main() {
	spiName := flag.String("spi", "", "SPI port name, empty for the first port")
	muxPin := flag.String("muxpin", "", "chip select mux pin name, empty for none")
	muxSel := flag.Int("muxsel", 1, "chip select mux position for the radio, 0 or 1")
	resetName := flag.String("reset", "GPIO25", "reset pin name")
	dio0Name := flag.String("dio0", "GPIO24", "DIO0 interrupt pin name")
	dio1Name := flag.String("dio1", "", "DIO1 interrupt pin name, empty for none")
	dio3Name := flag.String("dio3", "", "DIO3 interrupt pin name, empty for none")
	freq := flag.Uint("freq", 434000000, "center frequency in Hz")
	power := flag.Int("power", 14, "output power in dBm")
	sf := flag.Uint("sf", 7, "spreading factor, 6..12")
	bw := flag.Uint("bw", 2, "bandwidth code: 0=125kHz 1=250kHz 2=500kHz")
	cr := flag.Uint("cr", 1, "coding rate: 1=4/5 .. 4=4/8")
	debug := flag.Bool("debug", false, "enable debug output")
	flag.Parse()

	_, err := host.Init()
	panicIf(err)

	spiPort, err := spireg.Open(*spiName)
	panicIf(err)
	dev := radio.SPI(radio.NewSPI(spiPort))
	if *muxPin != "" {
		lo, hi := spimux.New(dev, pin(*muxPin))
		if *muxSel == 0 {
			dev = lo
		} else {
			dev = hi
		}
	}

	var logger sx1276.LogPrintf
	if *debug {
		logger = log.Printf
	}

	log.Printf("Initializing LoRa radio...")
	t0 := time.Now()
	pins := sx1276.Pins{Reset: pin(*resetName)}
	pins.DIO[0] = pin(*dio0Name)
	pins.DIO[1] = pin(*dio1Name)
	pins.DIO[3] = pin(*dio3Name)
	r, err := sx1276.New(dev, pins, sx1276.RadioOpts{
		Freq:   uint32(*freq),
		Logger: logger,
	})
	panicIf(err)
	log.Printf("Ready (%.1fms)", time.Since(t0).Seconds()*1000)
	if r.Degraded() {
		log.Printf("Warning: no interrupt line, events are disabled")
	}

	rxCfg := sx1276.RxConfig{
		Bandwidth:    sx1276.Bandwidth(*bw),
		Datarate:     byte(*sf),
		Coderate:     byte(*cr),
		PreambleLen:  8,
		SymbTimeout:  0x3FF,
		CrcOn:        true,
		RxContinuous: true,
	}
	txCfg := sx1276.TxConfig{
		Power:       *power,
		Bandwidth:   sx1276.Bandwidth(*bw),
		Datarate:    byte(*sf),
		Coderate:    byte(*cr),
		PreambleLen: 8,
		CrcOn:       true,
		Timeout:     3 * time.Second,
	}

	switch flag.Arg(0) {
	case "tx":
		panicIf(r.SetTxConfig(txCfg))
		for i := 1; i <= 2; i++ {
			msg := fmt.Sprintf("\x01Hello %03d", i)
			log.Printf("Sending packet %d (%s on air) ...", i, r.TimeOnAir(len(msg)))
			t0 = time.Now()
			panicIf(r.Send([]byte(msg)))
			ev := <-r.Events
			log.Printf("%s in %.1fms", ev.Kind, time.Since(t0).Seconds()*1000)
		}
		log.Printf("Bye...")

	case "cad":
		panicIf(r.SetRxConfig(rxCfg))
		for i := 0; i < 10; i++ {
			r.StartCAD()
			if ev := <-r.Events; ev.Detected {
				log.Printf("Channel activity detected")
			} else {
				log.Printf("Channel clear")
			}
			time.Sleep(time.Second)
		}

	case "scan":
		// step across 2MHz around the center frequency and report occupancy
		for f := uint32(*freq) - 1000000; f <= uint32(*freq)+1000000; f += 100000 {
			free := r.IsChannelFree(f, -90)
			log.Printf("%9.3fMHz: free=%v", float64(f)/1e6, free)
		}

	case "info":
		log.Printf("Temperature: %d°C", r.ReadTemperature())
		log.Printf("Noise RSSI : %ddBm", r.ReadRSSI())
		log.Printf("Random     : %#08x", r.Random())

	case "rx", "":
		panicIf(r.SetRxConfig(rxCfg))
		r.SetRx(0)
		log.Printf("Receiving packets ...")
		for ev := range r.Events {
			switch ev.Kind {
			case sx1276.EventRxDone:
				pkt := ev.Packet
				log.Printf("Got len=%d snr=%ddB rssi=%ddBm %q",
					len(pkt.Payload), pkt.Snr, pkt.Rssi, string(pkt.Payload))
			case sx1276.EventRxError:
				log.Printf("Receive error: %s", ev.Err)
			default:
				log.Printf("Event: %s", ev.Kind)
			}
		}

	default:
		fmt.Fprintf(os.Stderr, "usage: %s [flags] tx|rx|cad|scan|info\n", os.Args[0])
		os.Exit(1)
	}
}
