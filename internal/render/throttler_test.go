package render

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleCoalescesBurst(t *testing.T) {
	th := NewThrottler(20 * time.Millisecond)

	var fired atomic.Int32
	for i := 0; i < 50; i++ {
		th.Schedule(func() { fired.Add(1) })
	}

	if !th.Pending() {
		t.Fatal("expected a pending render after scheduling")
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly 1 render, got %d", got)
	}
	if th.Pending() {
		t.Error("expected no pending render after firing")
	}
}

func TestFlushRunsSynchronouslyAndCancelsPending(t *testing.T) {
	th := NewThrottler(time.Hour)

	var throttled atomic.Int32
	th.Schedule(func() { throttled.Add(1) })

	ran := false
	th.Flush(func() { ran = true })

	if !ran {
		t.Fatal("expected flush callback to run synchronously")
	}
	if th.Pending() {
		t.Error("expected pending render to be cancelled by flush")
	}

	time.Sleep(50 * time.Millisecond)
	if throttled.Load() != 0 {
		t.Error("cancelled render must not fire")
	}
}

func TestDiscardDropsPending(t *testing.T) {
	th := NewThrottler(10 * time.Millisecond)

	var fired atomic.Int32
	th.Schedule(func() { fired.Add(1) })
	th.Discard()

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("discarded render must not fire")
	}
	if th.Pending() {
		t.Error("expected no pending render after discard")
	}
}

func TestScheduleAfterDiscard(t *testing.T) {
	th := NewThrottler(10 * time.Millisecond)

	th.Discard()

	done := make(chan struct{})
	th.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("render scheduled after discard never fired")
	}
}
