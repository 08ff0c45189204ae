// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import (
	"sync"
	"time"
)

// NewTimer returns a Timer backed by time.AfterFunc.
func NewTimer() Timer { return &afterFuncTimer{} }

type afterFuncTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

// Arm stops any pending registration and schedules f after d.
func (a *afterFuncTimer) Arm(d time.Duration, f func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
	}
	a.t = time.AfterFunc(d, f)
}

func (a *afterFuncTimer) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
}
