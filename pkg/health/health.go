// Package health serves the /livez and /readyz probes of the catalog API.
//
// Checks run in the background; a probe reports the cached result so that a
// slow dependency never blocks the probe handler. A check flips to failing
// only after FailureThreshold consecutive errors and back to passing after
// SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Probe selects which endpoint a check contributes to.
type Probe int

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Probe = iota
	// Readiness checks decide whether the process should receive traffic.
	Readiness
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes a registered check.
type Check struct {
	Name             string
	Probe            Probe
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	Func             CheckFunc
}

func (c *Check) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
}

// state is written by a single check goroutine and read by probe handlers.
type state struct {
	Check

	passing atomic.Bool
	lastErr atomic.Pointer[string]

	fails int
	oks   int
}

func (s *state) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if err := s.Func(ctx); err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		s.oks = 0
		if s.fails++; s.fails >= s.FailureThreshold {
			s.passing.Store(false)
		}
		return
	}
	s.lastErr.Store(nil)
	s.fails = 0
	if s.oks++; s.oks >= s.SuccessThreshold {
		s.passing.Store(true)
	}
}

func (s *state) failure() (string, bool) {
	if s.passing.Load() {
		return "", false
	}
	if msg := s.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is failing", true
}

// Health tracks probe state. The zero value is not usable; call New.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*state
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start passing and are evaluated once Start is
// called.
func (h *Health) Register(c Check) {
	c.setDefaults()
	s := &state{Check: c}
	s.passing.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

// Start evaluates every check immediately and then every interval until ctx
// is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, s := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				s.observe(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts background evaluation. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady toggles the manual readiness gate, e.g. off during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the readiness gate is open and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(p Probe) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, s := range h.checks {
		if s.Probe != p {
			continue
		}
		if msg, failed := s.failure(); failed {
			out[s.Name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus writes {"status":"ok"} or 503 with {"status":"unhealthy",
// "checks":{name: error}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
