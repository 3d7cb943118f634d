// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check flips to unhealthy after FailureThreshold consecutive failures and
// back after SuccessThreshold consecutive passes, so a single slow query does
// not take the pod out of rotation.
package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes one probe.
type Check struct {
	Name    string
	Timeout time.Duration
	Func    CheckFunc
	// Thresholds default to 3 failures and 1 success.
	FailureThreshold int
	SuccessThreshold int
}

// probe is the runtime state of a Check. Counters are touched only by the
// goroutine running the probe; healthy and lastErr are read by handlers.
type probe struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	fails  int
	passes int
}

func newProbe(c Check) *probe {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	p := &probe{Check: c}
	p.healthy.Store(true)
	return p
}

// run executes the check once and reports whether health flipped.
func (p *probe) run(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	was := p.healthy.Load()
	if err := p.Func(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.passes = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
	} else {
		p.lastErr.Store(nil)
		p.fails = 0
		p.passes++
		if p.passes >= p.SuccessThreshold {
			p.healthy.Store(true)
		}
	}
	return was != p.healthy.Load()
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is unhealthy", true
}

// Service holds the registered probes and the manual readiness flag.
type Service struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Service that is not ready until SetReady(true).
func New(lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{lg: lg}
}

// AddLiveness registers a check reported by /livez.
func (s *Service) AddLiveness(c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, newProbe(c))
}

// AddReadiness registers a check reported by /readyz.
func (s *Service) AddReadiness(c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, newProbe(c))
}

// Start runs every probe now and then every interval until Stop or ctx ends.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	probes := slices.Concat(s.liveness, s.readiness)
	s.mu.Unlock()

	for _, p := range probes {
		go s.loop(ctx, p, interval)
	}
}

func (s *Service) loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if p.run(ctx) {
			if msg, failing := p.failure(); failing {
				s.lg.Warn("Health check failing", zap.String("check", p.Name), zap.String("error", msg))
			} else {
				s.lg.Info("Health check recovered", zap.String("check", p.Name))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the background probes. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady sets the manual readiness flag, cleared during shutdown.
func (s *Service) SetReady(ready bool) { s.ready.Store(ready) }

// Ready reports the manual flag and all readiness probes combined.
func (s *Service) Ready() bool {
	return s.ready.Load() && len(failures(s.snapshot(&s.readiness))) == 0
}

func (s *Service) snapshot(probes *[]*probe) []*probe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(*probes)
}

// LiveEndpoint serves /livez.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(s.snapshot(&s.liveness)))
}

// ReadyEndpoint serves /readyz.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(s.snapshot(&s.readiness))
	if !s.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

func failures(probes []*probe) map[string]string {
	failed := make(map[string]string)
	for _, p := range probes {
		if msg, ok := p.failure(); ok {
			failed[p.Name] = msg
		}
	}
	return failed
}

// writeStatus writes {"status":"ok"} or 503 with the failing checks.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if len(failed) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range slices.Sorted(maps.Keys(failed)) {
					e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
