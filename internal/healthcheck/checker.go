// Package healthcheck probes the external collaborators and reports a
// per-collaborator status snapshot for the diagnostic endpoint.
package healthcheck

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is one collaborator's status snapshot. It is recomputed on
// every report and never persisted.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Checker evaluates one collaborator.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Prober is the probe surface the collaborator clients expose.
type Prober interface {
	Probe(ctx context.Context) error
}

type probeChecker struct {
	name   string
	prober Prober
}

// NewProbeChecker wraps a collaborator probe as a named checker.
func NewProbeChecker(name string, prober Prober) Checker {
	return &probeChecker{name: name, prober: prober}
}

func (p *probeChecker) Name() string { return p.name }

func (p *probeChecker) Check(ctx context.Context) error {
	return p.prober.Probe(ctx)
}

// Aggregator runs all checkers in parallel with a per-check timeout and
// collects the results into one report.
type Aggregator struct {
	logger   *slog.Logger
	checkers []Checker
	timeout  time.Duration
}

// NewAggregator creates an aggregator over the checkers.
func NewAggregator(log *slog.Logger, timeout time.Duration, checkers ...Checker) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Aggregator{
		logger:   log.With(slog.String("component", "healthcheck")),
		checkers: checkers,
		timeout:  timeout,
	}
}

// Names returns the checker names in report order.
func (a *Aggregator) Names() []string {
	names := make([]string, 0, len(a.checkers))
	for _, c := range a.checkers {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

// Report probes every collaborator and maps its name to the outcome.
// A failing probe never fails the report as a whole.
func (a *Aggregator) Report(ctx context.Context) map[string]Result {
	results := make([]Result, len(a.checkers))
	g, groupCtx := errgroup.WithContext(ctx)
	for i, checker := range a.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(groupCtx, a.timeout)
			defer cancel()
			if err := checker.Check(checkCtx); err != nil {
				a.logger.Warn("collaborator check failed",
					slog.String("collaborator", checker.Name()),
					slog.Any("error", err),
				)
				results[i] = Result{Success: false, Error: err.Error()}
				return nil
			}
			results[i] = Result{Success: true, Message: "connection ok"}
			return nil
		})
	}
	_ = g.Wait()

	report := make(map[string]Result, len(a.checkers))
	for i, checker := range a.checkers {
		report[checker.Name()] = results[i]
	}
	return report
}
