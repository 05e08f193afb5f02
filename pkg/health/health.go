// Package health runs dependency checks (Postgres, Elasticsearch, Redis, the
// remote decision API) concurrently and aggregates them into a Report that
// the check commands print and the metrics server exposes as a readiness
// endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) worse(than Status) bool {
	rank := map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}
	return rank[s] > rank[than]
}

// Check tests one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Optional bool          `json:"optional,omitempty"`
	Latency  time.Duration `json:"latency_ns"`
}

// Report is the outcome of one Run. Status is the worst component status,
// except that an optional component being down only degrades it.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Names returns the component names sorted.
func (r Report) Names() []string {
	names := make([]string, 0, len(r.Components))
	for name := range r.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type registration struct {
	name     string
	check    Check
	optional bool
}

// Checker holds the checks of one binary. Checks are registered during
// setup, before the first Run.
type Checker struct {
	checks  []registration
	timeout time.Duration
}

// NewChecker creates a Checker whose checks each get five seconds.
func NewChecker() *Checker {
	return &Checker{timeout: 5 * time.Second}
}

// Register adds a dependency the binary cannot work without.
func (c *Checker) Register(name string, check Check) {
	c.checks = append(c.checks, registration{name: name, check: check})
}

// RegisterOptional adds a dependency whose outage the binary tolerates.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.checks = append(c.checks, registration{name: name, check: check, optional: true})
}

// PingCheck turns a ping function into a Check: an error means down.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(c.checks)),
		CheckedAt:  time.Now().UTC(),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, p := range c.checks {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			start := time.Now()
			result := p.check(pctx)
			result.Latency = time.Since(start).Round(time.Millisecond)
			result.Optional = p.optional

			mu.Lock()
			defer mu.Unlock()
			report.Components[p.name] = result
			effective := result.Status
			if p.optional && effective == StatusDown {
				effective = StatusDegraded
			}
			if effective.worse(report.Status) {
				report.Status = effective
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// ReadyHandler answers 200 while no required dependency is down and 503
// otherwise, with the report as JSON.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
