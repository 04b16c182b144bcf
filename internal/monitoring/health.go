// Package monitoring evaluates readiness probes for the server's dependencies.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDegraded ProbeStatus = "degraded"
	StatusDown     ProbeStatus = "down"
)

// severity orders statuses; unknown values rank as down.
func (s ProbeStatus) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results. Status is the most severe probe
// status and Success holds only when every probe is up.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck constructs a check. A nil probe always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "no probe"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager runs the registered readiness probes.
type HealthManager struct {
	mu      sync.RWMutex
	checks  []Check
	timeout time.Duration
}

// NewHealthManager constructs a manager. Each evaluation is bounded by
// timeout, five seconds when zero.
func NewHealthManager(timeout time.Duration) *HealthManager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthManager{timeout: timeout}
}

// Register adds probes. Checks without a name are skipped.
func (m *HealthManager) Register(checks ...Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range checks {
		if c.Name != "" {
			m.checks = append(m.checks, c)
		}
	}
}

// Evaluate runs every probe concurrently. Results keep registration order.
func (m *HealthManager) Evaluate(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = probe(ctx, c)
		}()
	}
	wg.Wait()

	status := StatusUp
	for _, r := range results {
		if r.Status.severity() > status.severity() {
			status = r.Status
		}
	}
	return HealthReport{Success: status == StatusUp, Status: status, Checks: results}
}

func probe(ctx context.Context, c Check) (result ProbeResult) {
	began := time.Now()
	defer func() {
		if v := recover(); v != nil {
			result = ProbeResult{Status: StatusDown, Details: panicDetails(v)}
		}
		result.Component = c.Name
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(began)
		}
	}()
	return c.Run(ctx)
}

func panicDetails(v any) string {
	switch v := v.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprintf("panic: %v", v)
	}
}

// ResultFromError converts err into a result. A probe that ran out of time
// or was cancelled is degraded rather than down.
func ResultFromError(err error, took time.Duration) ProbeResult {
	switch {
	case err == nil:
		return ProbeResult{Status: StatusUp, Duration: took}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ProbeResult{Status: StatusDegraded, Details: err.Error(), Duration: took}
	default:
		return ProbeResult{Status: StatusDown, Details: err.Error(), Duration: took}
	}
}
