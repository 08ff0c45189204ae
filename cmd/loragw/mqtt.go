// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mq is a handle onto a MQTT broker connection. It isolates the gateway code from the
// crazyness of the paho mqtt client.
type mq struct {
	conn  mqtt.Client
	debug LogPrintf
}

// newMQ connects to a broker and returns a new mq object. The connection is persistent,
// i.e., re-establishes itself if there is a disconnect, and subscriptions get renewed
// after a reconnect.
func newMQ(broker, user, pass string, debug LogPrintf) (*mq, error) {
	hostname, _ := os.Hostname()
	id := "loragw-" + hostname
	if debug != nil {
		debug("Configuring MQTT with client id %s for %s", id, broker)
	}
	mqtt.ERROR = log.New(os.Stderr, "", 0)
	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + broker).
		SetClientID(id).
		SetUsername(user).
		SetPassword(pass).
		SetAutoReconnect(true).
		SetResumeSubs(true)

	conn := mqtt.NewClient(opts)
	if token := conn.Connect(); !token.WaitTimeout(10 * time.Second) || token.Error() != nil {
		return nil, token.Error()
	}

	log.Printf("MQTT connected")
	return &mq{conn: conn, debug: debug}, nil
}

// Publish JSON encodes the payload and publishes it at QoS 1.
func (mq *mq) Publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("cannot json encode for %s: %s", topic, err)
		return
	}
	if mq.debug != nil {
		mq.debug("PUB %s %s", topic, data)
	}
	mq.conn.Publish(topic, 1, false, data)
}

// Subscribe registers a handler for a topic at QoS 1. The raw payload is handed to the
// handler, which runs on a paho goroutine and must not block for long.
func (mq *mq) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	h := func(c mqtt.Client, m mqtt.Message) {
		if mq.debug != nil {
			mq.debug("SUB %s %s", m.Topic(), m.Payload())
		}
		handler(m.Topic(), m.Payload())
	}
	if token := mq.conn.Subscribe(topic, 1, h); !token.WaitTimeout(2*time.Second) ||
		token.Error() != nil {
		return token.Error()
	}
	return nil
}
