// Copyright 2017 by Thorsten von Eicken, see LICENSE file

package spimux

import (
	"testing"
	"time"

	"github.com/tve/radio"
)

type recordSPI struct {
	txs int
}

func (s *recordSPI) Tx(w, r []byte) error             { s.txs++; return nil }
func (s *recordSPI) Speed(hz int64) error             { return nil }
func (s *recordSPI) Configure(mode, bits int) error   { return nil }
func (s *recordSPI) Close() error                     { return nil }

type recordPin struct {
	level int
	outs  int
}

func (p *recordPin) In(edge int) error                         { return nil }
func (p *recordPin) Read() int                                 { return p.level }
func (p *recordPin) WaitForEdge(timeout time.Duration) bool    { return false }
func (p *recordPin) Out(level int)                             { p.level = level; p.outs++ }
func (p *recordPin) Number() int                               { return 0 }

func TestSelectPerDevice(t *testing.T) {
	dev := &recordSPI{}
	pin := &recordPin{level: -1}
	lo, hi := New(dev, pin)

	if err := lo.Tx([]byte{0}, []byte{0}); err != nil {
		t.Fatalf("Tx: %s", err)
	}
	if pin.level != radio.GpioLow {
		t.Errorf("select: got %d want low", pin.level)
	}
	if err := hi.Tx([]byte{0}, []byte{0}); err != nil {
		t.Fatalf("Tx: %s", err)
	}
	if pin.level != radio.GpioHigh {
		t.Errorf("select: got %d want high", pin.level)
	}
	if dev.txs != 2 || pin.outs != 2 {
		t.Errorf("txs=%d outs=%d want 2 2", dev.txs, pin.outs)
	}
}
