// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"sync"
	"testing"
	"time"

	"github.com/tve/radio"
)

// fakeSPI emulates the chip's register file well enough for the driver: burst
// auto-increment, write-1-to-clear on the IRQ flags register, and a FIFO addressed
// through the FIFO pointer register.
type fakeSPI struct {
	mu   sync.Mutex
	regs [0x80]byte
	fifo [256]byte
	txs  int // completed transactions
}

func newFakeSPI() *fakeSPI {
	f := &fakeSPI{}
	f.regs[REG_VERSION] = CHIP_VERSION
	return f
}

func (f *fakeSPI) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	addr := w[0] & 0x7F
	write := w[0]&0x80 != 0
	for i := 1; i < len(w); i++ {
		target := addr + byte(i-1)
		if addr == REG_FIFO {
			target = REG_FIFO
		}
		if write {
			f.store(target, w[i])
		} else if len(r) > i {
			r[i] = f.load(target)
		}
	}
	return nil
}

func (f *fakeSPI) store(addr, val byte) {
	switch addr {
	case REG_FIFO:
		p := f.regs[REG_FIFOPTR]
		f.fifo[p] = val
		f.regs[REG_FIFOPTR] = p + 1
	case REG_IRQFLAGS:
		f.regs[addr] &^= val
	default:
		f.regs[addr] = val
	}
}

func (f *fakeSPI) load(addr byte) byte {
	if addr == REG_FIFO {
		p := f.regs[REG_FIFOPTR]
		f.regs[REG_FIFOPTR] = p + 1
		return f.fifo[p]
	}
	return f.regs[addr]
}

func (f *fakeSPI) Speed(hz int64) error             { return nil }
func (f *fakeSPI) Configure(mode int, bits int) error { return nil }
func (f *fakeSPI) Close() error                     { return nil }

// get reads a register without going through the bus.
func (f *fakeSPI) get(addr byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[addr]
}

// set writes a register directly, bypassing the write-1-to-clear handling.
func (f *fakeSPI) set(addr, val byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = val
}

func (f *fakeSPI) setFIFO(offset byte, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.fifo[offset:], data)
}

func (f *fakeSPI) getFIFO(offset byte, count int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, count)
	copy(out, f.fifo[offset:])
	return out
}

func (f *fakeSPI) txCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs
}

// fakeGPIO delivers edges on demand via fire.
type fakeGPIO struct {
	edges chan struct{}
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{edges: make(chan struct{}, 8)} }

func (g *fakeGPIO) In(edge int) error { return nil }
func (g *fakeGPIO) Read() int         { return radio.GpioLow }
func (g *fakeGPIO) Out(level int)     {}
func (g *fakeGPIO) Number() int       { return 0 }

func (g *fakeGPIO) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-g.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (g *fakeGPIO) fire() { g.edges <- struct{}{} }

// fakeTimer records registrations and fires only when told to.
type fakeTimer struct {
	mu      sync.Mutex
	armed   bool
	d       time.Duration
	f       func()
	cancels int
}

func (t *fakeTimer) Arm(d time.Duration, f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed, t.d, t.f = true, d, f
}

func (t *fakeTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
	t.cancels++
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	armed, f := t.armed, t.f
	t.armed = false
	t.mu.Unlock()
	if armed && f != nil {
		f()
	}
}

func (t *fakeTimer) isArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

type testRig struct {
	r   *Radio
	spi *fakeSPI
	dio [6]*fakeGPIO
	txT *fakeTimer
	rxT *fakeTimer
}

func newTestRig(t testing.TB) *testRig {
	rig := &testRig{spi: newFakeSPI(), txT: &fakeTimer{}, rxT: &fakeTimer{}}
	pins := Pins{Reset: newFakeGPIO()}
	for i := 0; i < 4; i++ {
		rig.dio[i] = newFakeGPIO()
		pins.DIO[i] = rig.dio[i]
	}
	r, err := New(rig.spi, pins, RadioOpts{
		Freq:    868000000,
		TxTimer: rig.txT,
		RxTimer: rig.rxT,
		Logger:  t.Logf,
	})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	rig.r = r
	t.Cleanup(r.Close)
	return rig
}

// waitEvent pulls the next event off the radio or fails the test.
func (rig *testRig) waitEvent(t testing.TB) Event {
	t.Helper()
	select {
	case ev, ok := <-rig.r.Events:
		if !ok {
			t.Fatalf("events channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event")
	}
	return Event{}
}
