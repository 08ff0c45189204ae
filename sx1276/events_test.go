// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func rxConfig(cont bool) RxConfig {
	return RxConfig{
		Bandwidth:    Bandwidth125k,
		Datarate:     7,
		Coderate:     1,
		PreambleLen:  8,
		SymbTimeout:  0x3FF,
		CrcOn:        true,
		RxContinuous: cont,
	}
}

func TestReceivePacket(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.SetRxConfig(rxConfig(true)); err != nil {
		t.Fatalf("SetRxConfig: %s", err)
	}
	rig.r.SetRx(0)
	if got := rig.r.Status(); got != StatusReceiving {
		t.Fatalf("status: got %s want receiving", got)
	}

	payload := []byte("hello")
	rig.spi.setFIFO(0, payload)
	rig.spi.set(REG_RXBYTES, byte(len(payload)))
	rig.spi.set(REG_FIFORXCURR, 0)
	rig.spi.set(REG_PKTSNR, 20)  // 5dB
	rig.spi.set(REG_PKTRSSI, 40) // -115dBm at 868Mhz
	rig.spi.set(REG_IRQFLAGS, IRQ_RXDONE)
	rig.dio[0].fire()

	ev := rig.waitEvent(t)
	if ev.Kind != EventRxDone {
		t.Fatalf("got %s want rx done", ev.Kind)
	}
	if !bytes.Equal(ev.Packet.Payload, payload) {
		t.Errorf("payload: got %q want %q", ev.Packet.Payload, payload)
	}
	if ev.Packet.Snr != 5 {
		t.Errorf("snr: got %d want 5", ev.Packet.Snr)
	}
	if ev.Packet.Rssi != -115 {
		t.Errorf("rssi: got %d want -115", ev.Packet.Rssi)
	}
	// continuous mode keeps receiving
	if got := rig.r.Status(); got != StatusReceiving {
		t.Errorf("status: got %s want receiving", got)
	}
	// the done flag was acknowledged
	if got := rig.spi.get(REG_IRQFLAGS) & IRQ_RXDONE; got != 0 {
		t.Errorf("rx done flag not cleared")
	}
}

func TestReceiveCrcError(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.SetRxConfig(rxConfig(false)); err != nil {
		t.Fatalf("SetRxConfig: %s", err)
	}
	rig.r.SetRx(0)

	rig.spi.set(REG_IRQFLAGS, IRQ_RXDONE|IRQ_CRCERR)
	rig.dio[0].fire()

	ev := rig.waitEvent(t)
	if ev.Kind != EventRxError {
		t.Fatalf("got %s want rx error", ev.Kind)
	}
	if !errors.Is(ev.Err, ErrCRC) {
		t.Errorf("reason: got %v want ErrCRC", ev.Err)
	}
	// single mode drops back to idle
	if got := rig.r.Status(); got != StatusIdle {
		t.Errorf("status: got %s want idle", got)
	}
	if got := rig.spi.get(REG_IRQFLAGS) & (IRQ_RXDONE | IRQ_CRCERR); got != 0 {
		t.Errorf("irq flags not cleared: %#x", got)
	}
}

func TestRxTimeoutTimer(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.SetRxConfig(rxConfig(false)); err != nil {
		t.Fatalf("SetRxConfig: %s", err)
	}
	rig.r.SetRx(50 * time.Millisecond)
	if !rig.rxT.isArmed() {
		t.Fatalf("rx timer not armed")
	}
	rig.rxT.fire()

	ev := rig.waitEvent(t)
	if ev.Kind != EventRxTimeout {
		t.Fatalf("got %s want rx timeout", ev.Kind)
	}
	if got := rig.r.Status(); got != StatusIdle {
		t.Errorf("status: got %s want idle", got)
	}
}

func TestRxTimeoutLine(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.SetRxConfig(rxConfig(false)); err != nil {
		t.Fatalf("SetRxConfig: %s", err)
	}
	rig.r.SetRx(0)

	rig.spi.set(REG_IRQFLAGS, IRQ_RXTIMEOUT)
	rig.dio[1].fire()

	if ev := rig.waitEvent(t); ev.Kind != EventRxTimeout {
		t.Fatalf("got %s want rx timeout", ev.Kind)
	}
	if got := rig.r.Status(); got != StatusIdle {
		t.Errorf("status: got %s want idle", got)
	}
}

func TestSendAndTxDone(t *testing.T) {
	rig := newTestRig(t)
	err := rig.r.SetTxConfig(TxConfig{
		Power:     14,
		Bandwidth: Bandwidth125k,
		Datarate:  7,
		Coderate:  1,
		CrcOn:     true,
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("SetTxConfig: %s", err)
	}

	payload := []byte("ping-1234")
	if err := rig.r.Send(payload); err != nil {
		t.Fatalf("Send: %s", err)
	}
	if got := rig.r.Status(); got != StatusTransmitting {
		t.Fatalf("status: got %s want transmitting", got)
	}
	if !rig.txT.isArmed() {
		t.Errorf("tx timer not armed")
	}
	// the payload landed in the upper FIFO half
	if got := rig.spi.getFIFO(0x80, len(payload)); !bytes.Equal(got, payload) {
		t.Errorf("fifo: got %q want %q", got, payload)
	}
	if got := rig.spi.get(REG_PAYLENGTH); got != byte(len(payload)) {
		t.Errorf("payload length: got %d want %d", got, len(payload))
	}
	// transmit mode is set
	if got := rig.spi.get(REG_OPMODE) &^ OPMODE_MASK; got != MODE_TX {
		t.Errorf("op mode: got %d want tx", got)
	}

	rig.spi.set(REG_IRQFLAGS, IRQ_TXDONE)
	rig.dio[0].fire()

	if ev := rig.waitEvent(t); ev.Kind != EventTxDone {
		t.Fatalf("got %s want tx done", ev.Kind)
	}
	if got := rig.r.Status(); got != StatusIdle {
		t.Errorf("status: got %s want idle", got)
	}
	if rig.txT.isArmed() {
		t.Errorf("tx timer still armed")
	}
}

func TestSendTooLong(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.Send(make([]byte, 300)); !errors.Is(err, ErrPayloadTooLong) {
		t.Fatalf("got %v want ErrPayloadTooLong", err)
	}
}

func TestTxTimeout(t *testing.T) {
	rig := newTestRig(t)
	err := rig.r.SetTxConfig(TxConfig{
		Power: 14, Bandwidth: Bandwidth125k, Datarate: 7, Coderate: 1,
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("SetTxConfig: %s", err)
	}
	if err := rig.r.Send([]byte("x")); err != nil {
		t.Fatalf("Send: %s", err)
	}
	rig.txT.fire()

	if ev := rig.waitEvent(t); ev.Kind != EventTxTimeout {
		t.Fatalf("got %s want tx timeout", ev.Kind)
	}
	if got := rig.r.Status(); got != StatusIdle {
		t.Errorf("status: got %s want idle", got)
	}
	// the chip was forced back to standby
	if got := rig.spi.get(REG_OPMODE) &^ OPMODE_MASK; got != MODE_STANDBY {
		t.Errorf("op mode: got %d want standby", got)
	}
}

func TestCadDone(t *testing.T) {
	rig := newTestRig(t)
	rig.r.StartCAD()
	if got := rig.r.Status(); got != StatusCAD {
		t.Fatalf("status: got %s want cad", got)
	}

	rig.spi.set(REG_IRQFLAGS, IRQ_CADDONE|IRQ_CADDETECT)
	rig.dio[3].fire()

	ev := rig.waitEvent(t)
	if ev.Kind != EventCadDone {
		t.Fatalf("got %s want cad done", ev.Kind)
	}
	if !ev.Detected {
		t.Errorf("activity not detected")
	}
	if got := rig.r.Status(); got != StatusIdle {
		t.Errorf("status: got %s want idle", got)
	}
}

func TestFhssChangeChannel(t *testing.T) {
	rig := newTestRig(t)
	cfg := rxConfig(true)
	cfg.FreqHopOn = true
	cfg.HopPeriod = 4
	if err := rig.r.SetRxConfig(cfg); err != nil {
		t.Fatalf("SetRxConfig: %s", err)
	}
	rig.r.SetRx(0)

	rig.spi.set(REG_HOPCHAN, 0x85) // channel 5 plus a status bit
	rig.spi.set(REG_IRQFLAGS, IRQ_FHSCHG)
	rig.dio[2].fire()

	ev := rig.waitEvent(t)
	if ev.Kind != EventFhssChangeChannel {
		t.Fatalf("got %s want fhss change channel", ev.Kind)
	}
	if ev.Channel != 5 {
		t.Errorf("channel: got %d want 5", ev.Channel)
	}
}

func TestStaleTokenIgnored(t *testing.T) {
	rig := newTestRig(t)
	// a timer expiry arriving while idle must not produce an event
	rig.r.enqueue(tokTxTimeout)
	rig.r.enqueue(tokRxTimeout)
	select {
	case ev := <-rig.r.Events:
		t.Fatalf("unexpected event %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEnqueueOverflow(t *testing.T) {
	r := &Radio{tokens: make(chan token, 2)}
	for i := 0; i < 5; i++ {
		r.enqueue(tokDIO0)
	}
	if got := r.Drops(); got != 3 {
		t.Errorf("drops: got %d want 3", got)
	}
}

func TestQueueSaturationRecovers(t *testing.T) {
	rig := newTestRig(t)

	// Stall the worker by holding the device lock, then flood the queue well past
	// its capacity with tokens from a reserved line. The overflow must be dropped,
	// not block the producer.
	rig.r.Lock()
	for i := 0; i < tokenQueueCap+5; i++ {
		rig.r.enqueue(tokDIO4)
	}
	rig.r.Unlock()
	if rig.r.Drops() == 0 {
		t.Fatalf("no tokens dropped")
	}

	// The stale tokens resolve to nothing while idle. A real packet afterwards
	// must still come through.
	if err := rig.r.SetRxConfig(rxConfig(true)); err != nil {
		t.Fatalf("SetRxConfig: %s", err)
	}
	rig.r.SetRx(0)
	payload := []byte("after")
	rig.spi.setFIFO(0, payload)
	rig.spi.set(REG_RXBYTES, byte(len(payload)))
	rig.spi.set(REG_FIFORXCURR, 0)
	rig.spi.set(REG_IRQFLAGS, IRQ_RXDONE)
	rig.dio[0].fire()

	ev := rig.waitEvent(t)
	if ev.Kind != EventRxDone {
		t.Fatalf("got %s want rx done", ev.Kind)
	}
	if !bytes.Equal(ev.Packet.Payload, payload) {
		t.Errorf("payload: got %q want %q", ev.Packet.Payload, payload)
	}
}

func TestDegradedWithoutInterrupts(t *testing.T) {
	spi := newFakeSPI()
	r, err := New(spi, Pins{Reset: newFakeGPIO()}, RadioOpts{Freq: 868000000})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	defer r.Close()
	if !r.Degraded() {
		t.Errorf("radio with no DIO lines should be degraded")
	}
	// configuration still works
	if err := r.SetRxConfig(rxConfig(true)); err != nil {
		t.Errorf("SetRxConfig: %s", err)
	}
}

func TestVersionMismatch(t *testing.T) {
	spi := newFakeSPI()
	spi.set(REG_VERSION, 0x1C)
	_, err := New(spi, Pins{Reset: newFakeGPIO()}, RadioOpts{})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("got %v want ErrVersionMismatch", err)
	}
}
