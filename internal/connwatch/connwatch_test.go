package connwatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastSchedule() Schedule {
	return Schedule{
		FirstDelay: time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
		Interval:   5 * time.Millisecond,
		Attempts:   3,
		Timeout:    50 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDefaultScheduleFill(t *testing.T) {
	var s Schedule
	s.fill()
	if s != DefaultSchedule() {
		t.Errorf("filled schedule = %+v, want defaults", s)
	}

	s = Schedule{Interval: time.Second}
	s.fill()
	if s.Interval != time.Second || s.Attempts != DefaultSchedule().Attempts {
		t.Errorf("partial fill = %+v", s)
	}
}

func TestMonitorReadyOnFirstProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMonitor(nil)
	m.Watch(ctx, "ollama", func(context.Context) error { return nil }, fastSchedule())

	waitFor(t, m.Healthy)
	st := m.Status()
	if len(st) != 1 || st[0].Name != "ollama" || !st[0].Ready || st[0].LastCheck.IsZero() {
		t.Errorf("status = %+v", st)
	}

	cancel()
	m.Wait()
}

func TestMonitorRetriesUntilReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	m := NewMonitor(nil)
	m.Watch(ctx, "anthropic", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, fastSchedule())

	waitFor(t, m.Healthy)
	if n := calls.Load(); n < 3 {
		t.Errorf("probes = %d, want at least 3", n)
	}
	cancel()
	m.Wait()
}

func TestMonitorTracksTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var down atomic.Bool
	m := NewMonitor(nil)
	m.Watch(ctx, "taskstore", func(context.Context) error {
		if down.Load() {
			return errors.New("database is locked")
		}
		return nil
	}, fastSchedule())
	m.Watch(ctx, "openai", func(context.Context) error { return nil }, fastSchedule())

	waitFor(t, m.Healthy)

	down.Store(true)
	waitFor(t, func() bool { return !m.Healthy() })
	st := m.Status()
	if st[0].Name != "openai" || st[1].Name != "taskstore" {
		t.Fatalf("status not sorted: %+v", st)
	}
	if st[1].LastError != "database is locked" {
		t.Errorf("last error = %q", st[1].LastError)
	}

	down.Store(false)
	waitFor(t, m.Healthy)

	cancel()
	m.Wait()
}

func TestMonitorGivesUpStartupThenPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	m := NewMonitor(nil)
	m.Watch(ctx, "ollama", func(context.Context) error {
		calls.Add(1)
		return errors.New("no route to host")
	}, fastSchedule())

	waitFor(t, func() bool { return calls.Load() > int32(fastSchedule().Attempts)+1 })
	if m.Healthy() {
		t.Error("monitor healthy with a failing dependency")
	}

	cancel()
	m.Wait()
}

func TestMonitorProbeTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sched := fastSchedule()
	sched.Timeout = 5 * time.Millisecond

	m := NewMonitor(nil)
	m.Watch(ctx, "slow", func(pctx context.Context) error {
		<-pctx.Done()
		return pctx.Err()
	}, sched)

	waitFor(t, func() bool {
		st := m.Status()
		return len(st) == 1 && st[0].LastError != ""
	})
	cancel()
	m.Wait()
}
