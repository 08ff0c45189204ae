// Package thread elevates the scheduling priority of individual goroutines. Radio
// event dispatch is latency sensitive and on a busy board the default scheduler can
// delay it past a packet turnaround window.
package thread

import (
	"runtime"
	"syscall"
	"unsafe"
)

const FIFO = 1 // fifo scheduling policy
const RR = 2   // round-robin scheduling policy

type schedParam struct {
	Priority int
}

// Realtime locks the calling goroutine to its own kernel thread and elevates that
// thread's priority to realtime. It sets the round-robin scheduling policy and uses
// priority level 10 (somewhere in the lower middle of the range).
func Realtime() error {
	return setScheduler(RR, 10)
}

// setScheduler pins the calling goroutine to a kernel thread and applies the given
// scheduling policy and priority to that thread.
func setScheduler(policy, priority int) error {
	runtime.LockOSThread()
	tid := syscall.Gettid()
	param := schedParam{priority}
	res, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETSCHEDULER, uintptr(tid),
		uintptr(policy), uintptr(unsafe.Pointer(&param)))
	if res == 0 {
		return nil
	}
	return err
}
