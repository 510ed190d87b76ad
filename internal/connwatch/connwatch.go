// Package connwatch tracks whether the services a turn depends on (model
// providers, the task store) are reachable, so /health can say why
// replies are falling back before users notice.
//
// A dependency is probed quickly with growing delays until it first
// answers, then at a steady interval. Transitions are logged once.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency. nil means reachable.
type Probe func(ctx context.Context) error

// Schedule controls how often a dependency is probed.
type Schedule struct {
	FirstDelay time.Duration // wait after the first failed probe
	MaxDelay   time.Duration // cap for the growing startup delay
	Interval   time.Duration // steady polling once connected or given up
	Attempts   int           // startup probes before settling into Interval
	Timeout    time.Duration // per probe
}

// DefaultSchedule starts at 2s, doubles to a 60s cap over 10 attempts,
// then polls every minute.
func DefaultSchedule() Schedule {
	return Schedule{
		FirstDelay: 2 * time.Second,
		MaxDelay:   time.Minute,
		Interval:   time.Minute,
		Attempts:   10,
		Timeout:    10 * time.Second,
	}
}

func (s *Schedule) fill() {
	d := DefaultSchedule()
	if s.FirstDelay <= 0 {
		s.FirstDelay = d.FirstDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.Interval <= 0 {
		s.Interval = d.Interval
	}
	if s.Attempts <= 0 {
		s.Attempts = d.Attempts
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
}

// Status is one dependency's last known state.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

type dependency struct {
	name  string
	probe Probe
	sched Schedule

	mu     sync.Mutex
	status Status
}

// check runs the probe and reports whether readiness changed.
func (d *dependency) check(ctx context.Context) (changed bool, err error) {
	pctx, cancel := context.WithTimeout(ctx, d.sched.Timeout)
	err = d.probe(pctx)
	cancel()

	d.mu.Lock()
	defer d.mu.Unlock()
	was := d.status.Ready
	d.status.Ready = err == nil
	d.status.LastCheck = time.Now()
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
	}
	return was != d.status.Ready, err
}

func (d *dependency) snapshot() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Monitor watches a set of dependencies.
type Monitor struct {
	logger *slog.Logger

	mu   sync.RWMutex
	deps map[string]*dependency
	wg   sync.WaitGroup
}

// NewMonitor returns an empty monitor.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger: logger.With("component", "connwatch"),
		deps:   make(map[string]*dependency),
	}
}

// Watch starts probing name in the background until ctx is done. A
// second Watch for the same name replaces the first one's status entry.
func (m *Monitor) Watch(ctx context.Context, name string, probe Probe, sched Schedule) {
	sched.fill()
	d := &dependency{name: name, probe: probe, sched: sched, status: Status{Name: name}}

	m.mu.Lock()
	m.deps[name] = d
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, d)
	}()
}

func (m *Monitor) run(ctx context.Context, d *dependency) {
	log := m.logger.With("service", d.name)

	delay := d.sched.FirstDelay
	for attempt := 1; ; attempt++ {
		_, err := d.check(ctx)
		if err == nil {
			log.Info("service reachable", "attempts", attempt)
			break
		}
		if attempt >= d.sched.Attempts {
			log.Warn("service unreachable, polling in background", "attempts", attempt, "error", err)
			break
		}
		log.Debug("service probe failed", "attempt", attempt, "retry_in", delay, "error", err)
		if !sleep(ctx, delay) {
			return
		}
		delay = min(delay*2, d.sched.MaxDelay)
	}

	ticker := time.NewTicker(d.sched.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := d.check(ctx)
			switch {
			case changed && err != nil:
				log.Warn("service became unreachable", "error", err)
			case changed:
				log.Info("service recovered")
			}
		}
	}
}

// Status returns every watched dependency, sorted by name.
func (m *Monitor) Status() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.deps))
	for _, d := range m.deps {
		out = append(out, d.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every watched dependency is ready.
func (m *Monitor) Healthy() bool {
	for _, s := range m.Status() {
		if !s.Ready {
			return false
		}
	}
	return true
}

// Wait blocks until every watcher has stopped. Cancel the context passed
// to Watch first.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
