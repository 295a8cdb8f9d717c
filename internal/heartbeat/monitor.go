// Package heartbeat decides when a connection has gone quiet for too long.
//
// A Monitor wakes up every interval, compares the time of the last liveness
// signal with a timeout, and either probes the peer or declares the
// connection dead. The last-seen time lives in a Liveness cell because the
// read loop and the monitor both touch it.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultInterval is how often the peer is probed.
	DefaultInterval = 5 * time.Second
	// DefaultTimeout is how long a peer may stay silent before it is dropped.
	DefaultTimeout = 10 * time.Second
)

// Liveness records the last time a liveness signal was seen.
type Liveness struct {
	last atomic.Int64
}

// NewLiveness returns a cell initialised to now.
func NewLiveness(now time.Time) *Liveness {
	l := &Liveness{}
	l.Touch(now)
	return l
}

// Touch records a liveness signal at t.
func (l *Liveness) Touch(t time.Time) {
	l.last.Store(t.UnixNano())
}

// Last returns the time of the most recent signal.
func (l *Liveness) Last() time.Time {
	return time.Unix(0, l.last.Load())
}

// State is the monitor's position in its two-state machine.
type State int32

const (
	Alive State = iota
	TimedOut
)

func (s State) String() string {
	if s == TimedOut {
		return "timed out"
	}
	return "alive"
}

// Config tunes a Monitor. Zero values fall back to the defaults.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Now      func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * c.Interval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Monitor watches one connection.
type Monitor struct {
	cfg    Config
	live   *Liveness
	probe  func() error
	expire func()

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New builds a monitor. probe sends a liveness frame to the peer; expire
// tears the connection down so the owner's read loop unwinds. Both are
// called from the monitor goroutine only.
func New(cfg Config, live *Liveness, probe func() error, expire func()) *Monitor {
	return &Monitor{
		cfg:    cfg.withDefaults(),
		live:   live,
		probe:  probe,
		expire: expire,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run blocks until the peer times out or Stop is called.
func (m *Monitor) Run() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if !m.check() {
				return
			}
		}
	}
}

// check runs one cycle and reports whether the peer is still alive.
func (m *Monitor) check() bool {
	if m.cfg.Now().Sub(m.live.Last()) > m.cfg.Timeout {
		m.timeout()
		return false
	}
	if m.probe != nil {
		if err := m.probe(); err != nil {
			m.timeout()
			return false
		}
	}
	return true
}

func (m *Monitor) timeout() {
	m.state.Store(int32(TimedOut))
	if m.expire != nil {
		m.expire()
	}
}

// Stop ends the monitor without declaring a timeout. It is safe to call more
// than once and after Run has returned.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when Run returns.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// State reports whether the monitor has declared a timeout.
func (m *Monitor) State() State {
	return State(m.state.Load())
}
