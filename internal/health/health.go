// Package health reports whether a foreground timer process is working:
// its session store answers and its polling loop is alive. The report is
// served as JSON next to the metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status is the health of a component or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 2 * time.Second

// Result is the outcome of one check.
type Result struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Checked  time.Time     `json:"checked"`
	Duration time.Duration `json:"duration_ns"`
}

// Check inspects one component.
type Check func(ctx context.Context) Result

// Component is a named check. A failing critical component makes the
// whole process unhealthy; any other failure only degrades it.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker runs the registered components.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	started    time.Time
	now        func() time.Time
}

// NewChecker creates a Checker with no components.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		started:    time.Now(),
		now:        time.Now,
	}
}

// Register adds or replaces a component.
func (c *Checker) Register(comp *Component) {
	if comp.Timeout <= 0 {
		comp.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	c.components[comp.Name] = comp
	c.mu.Unlock()
}

// RegisterFunc registers check under name.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Check runs every component concurrently and returns the results by name.
func (c *Checker) Check(ctx context.Context) map[string]Result {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		comps = append(comps, comp)
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(comps))
	)
	for _, comp := range comps {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()
			r := c.run(ctx, comp)
			mu.Lock()
			results[comp.Name] = r
			mu.Unlock()
		}(comp)
	}
	wg.Wait()
	return results
}

func (c *Checker) run(ctx context.Context, comp *Component) Result {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := c.now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.Check(ctx)
	}()

	var r Result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = Result{Status: StatusUnhealthy, Message: "check timed out", Error: ctx.Err().Error()}
	}
	r.Checked = start
	r.Duration = c.now().Sub(start)
	return r
}

// Overall folds component results into one status.
func (c *Checker) Overall(results map[string]Result) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := StatusHealthy
	for name, r := range results {
		comp := c.components[name]
		if comp == nil {
			continue
		}
		switch r.Status {
		case StatusHealthy:
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			status = StatusDegraded
		default:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return status
}

// Report is the body served by Handler.
type Report struct {
	Status     Status            `json:"status"`
	Uptime     string            `json:"uptime"`
	Components map[string]Result `json:"components"`
}

// Report runs all checks.
func (c *Checker) Report(ctx context.Context) Report {
	results := c.Check(ctx)
	return Report{
		Status:     c.Overall(results),
		Uptime:     c.now().Sub(c.started).Round(time.Second).String(),
		Components: results,
	}
}

// Handler serves the report as JSON. An unhealthy process answers 503.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Report(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	})
}

// PingCheck reports a store healthy when ping succeeds.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) Result {
		if err := ping(ctx); err != nil {
			return Result{Status: StatusUnhealthy, Message: "store unreachable", Error: err.Error()}
		}
		return Result{Status: StatusHealthy}
	}
}

// LoopCheck reports the polling loop. A loop that is not running is only
// degraded: a paused timer has no loop.
func LoopCheck(running func() bool) Check {
	return func(context.Context) Result {
		if running() {
			return Result{Status: StatusHealthy, Message: "polling"}
		}
		return Result{Status: StatusDegraded, Message: "no polling loop"}
	}
}
