package sync

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorEmitsEdgesOnly(t *testing.T) {
	type errBox struct{ err error }
	var probeErr atomic.Value
	probeErr.Store(errBox{})
	probe := func() error {
		return probeErr.Load().(errBox).err
	}

	m := NewMonitor(probe, time.Minute)
	var transitions []bool
	m.OnChange(func(online bool) {
		transitions = append(transitions, online)
	})

	if !m.CheckNow() {
		t.Fatal("probe should succeed")
	}
	m.CheckNow() // same polarity, coalesced
	probeErr.Store(errBox{errors.New("down")})
	m.CheckNow()
	m.CheckNow() // still down, coalesced
	probeErr.Store(errBox{})
	m.CheckNow()

	want := []bool{true, false, true}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], transitions[i])
		}
	}
}

func TestMonitorManualOverride(t *testing.T) {
	m := NewMonitor(func() error { return errors.New("always down") }, time.Minute)

	var count atomic.Int32
	m.OnChange(func(bool) { count.Add(1) })

	m.SetOnline(true)
	if !m.IsOnline() {
		t.Error("override should flip online")
	}
	m.SetOnline(true) // no edge
	m.SetOnline(false)
	if got := count.Load(); got != 2 {
		t.Errorf("expected 2 transitions, got %d", got)
	}
}

func TestMonitorStatus(t *testing.T) {
	m := NewMonitor(func() error { return nil }, time.Minute)

	s := m.Status()
	if s.IsOnline || !s.LastSuccessfulAt.IsZero() {
		t.Errorf("fresh monitor should be offline with no success: %+v", s)
	}

	m.CheckNow()
	s = m.Status()
	if !s.IsOnline || s.LastSuccessfulAt.IsZero() {
		t.Errorf("status after successful probe wrong: %+v", s)
	}
	if s.TimeSinceLastSuccess < 0 || s.TimeSinceLastSuccess > time.Minute {
		t.Errorf("implausible time since last success: %v", s.TimeSinceLastSuccess)
	}

	// A manual override does not fake a probe success.
	m2 := NewMonitor(func() error { return errors.New("down") }, time.Minute)
	m2.SetOnline(true)
	if got := m2.Status(); !got.LastSuccessfulAt.IsZero() {
		t.Error("override must not stamp a probe success")
	}
}

func TestMonitorStartStop(t *testing.T) {
	var probes atomic.Int32
	m := NewMonitor(func() error { probes.Add(1); return nil }, 10*time.Millisecond)

	m.Start()
	deadline := time.After(2 * time.Second)
	for probes.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("probe loop did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	m.Stop()

	settled := probes.Load()
	time.Sleep(50 * time.Millisecond)
	if probes.Load() != settled {
		t.Error("probes continued after Stop")
	}
}
