package sync

import (
	gosync "sync"
	"time"

	"taskbridge/internal/utils"
)

const defaultProbeInterval = 30 * time.Second

// MonitorStatus is a point-in-time connectivity snapshot.
type MonitorStatus struct {
	IsOnline             bool
	LastSuccessfulAt     time.Time
	TimeSinceLastSuccess time.Duration
}

// Monitor probes a caller-supplied liveness check on an interval and
// notifies subscribers on online/offline transitions only; successive
// probes of the same polarity are coalesced.
type Monitor struct {
	probe    func() error
	interval time.Duration

	mu            gosync.Mutex
	online        bool
	lastSuccessAt time.Time
	handlers      []func(online bool)

	stop    chan struct{}
	stopped gosync.WaitGroup
	running bool
}

// NewMonitor creates a monitor around the probe. The monitor starts in
// the offline state; the first successful probe flips it online.
func NewMonitor(probe func() error, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &Monitor{probe: probe, interval: interval}
}

// OnChange registers a transition handler. Handlers run synchronously on
// the probing goroutine (or the caller of SetOnline) and must not block.
func (m *Monitor) OnChange(h func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Start launches the periodic probe. An immediate probe runs first so
// callers learn the initial polarity without waiting a full interval.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.mu.Unlock()

	m.stopped.Add(1)
	go func() {
		defer m.stopped.Done()
		m.CheckNow()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckNow()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()
	m.stopped.Wait()
}

// CheckNow runs one probe synchronously and returns the resulting
// polarity.
func (m *Monitor) CheckNow() bool {
	err := m.probe()
	m.setOnline(err == nil, true)
	if err != nil {
		utils.Debugf("connectivity probe failed: %v", err)
	}
	return err == nil
}

// SetOnline overrides the polarity without probing. The engine uses it to
// force-offline on unrecoverable transport failures; tests use it to
// steer scenarios.
func (m *Monitor) SetOnline(online bool) {
	m.setOnline(online, false)
}

func (m *Monitor) setOnline(online, fromProbe bool) {
	m.mu.Lock()
	if online && fromProbe {
		m.lastSuccessAt = time.Now().UTC()
	}
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	handlers := make([]func(bool), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	if online {
		utils.Infof("connectivity restored")
	} else {
		utils.Warnf("connectivity lost")
	}
	for _, h := range handlers {
		h(online)
	}
}

// IsOnline reports the current polarity.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Status returns the connectivity snapshot.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MonitorStatus{IsOnline: m.online, LastSuccessfulAt: m.lastSuccessAt}
	if !m.lastSuccessAt.IsZero() {
		s.TimeSinceLastSuccess = time.Since(m.lastSuccessAt)
	}
	return s
}
