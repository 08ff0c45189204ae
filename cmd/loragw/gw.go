// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/tve/radio/sx1276"
	"github.com/tve/radio/thread"
)

// rxMessage is what gets published for each received packet. Payload is base64 per
// encoding/json convention.
type rxMessage struct {
	At      time.Time `json:"at"`
	Snr     int       `json:"snr"`
	Rssi    int       `json:"rssi"`
	Payload []byte    `json:"payload"`
}

// txMessage is what the gateway expects on the tx topic.
type txMessage struct {
	Payload []byte `json:"payload"`
}

// loraGW shuffles packets between the radio and the broker: received packets get
// published to <prefix>/rx, messages arriving on <prefix>/tx get transmitted. The
// radio returns to receive mode after each transmission.
func loraGW(r *sx1276.Radio, mq *mq, prefix string, debug LogPrintf) error {
	txChan := make(chan []byte, 4)
	err := mq.Subscribe(prefix+"/tx", func(topic string, payload []byte) {
		var m txMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			log.Printf("cannot json decode for %s: %s", topic, err)
			return
		}
		select {
		case txChan <- m.Payload:
		default:
			log.Printf("tx queue full, dropping %d byte packet", len(m.Payload))
		}
	})
	if err != nil {
		return err
	}

	r.SetRx(0)
	go func() {
		if err := thread.Realtime(); err != nil {
			log.Printf("cannot set realtime priority: %s", err)
		}
		for {
			select {
			case pkt := <-txChan:
				if err := r.Send(pkt); err != nil {
					log.Printf("cannot send: %s", err)
					continue
				}
				// wait for the transmission to resolve before re-arming RX
				for ev := range r.Events {
					if ev.Kind == sx1276.EventTxDone || ev.Kind == sx1276.EventTxTimeout {
						if ev.Kind == sx1276.EventTxTimeout {
							log.Printf("transmit timed out")
						}
						break
					}
					gwEvent(mq, prefix, ev)
				}
				r.SetRx(0)
			case ev, ok := <-r.Events:
				if !ok {
					return
				}
				gwEvent(mq, prefix, ev)
			}
		}
	}()
	return nil
}

func gwEvent(mq *mq, prefix string, ev sx1276.Event) {
	switch ev.Kind {
	case sx1276.EventRxDone:
		mq.Publish(prefix+"/rx", rxMessage{
			At:      time.Now(),
			Snr:     ev.Packet.Snr,
			Rssi:    ev.Packet.Rssi,
			Payload: ev.Packet.Payload,
		})
	case sx1276.EventRxError:
		log.Printf("receive error: %s", ev.Err)
	default:
		log.Printf("event: %s", ev.Kind)
	}
}
