package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gitlab.com/gitlab-org/labkit/log"
	"golang.org/x/sync/errgroup"

	"github.com/chtrembl/petstoreapp/internal/clients/petstore"
	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// ServiceHealth is the health of a single downstream service.
type ServiceHealth struct {
	Target    string `json:"target"`
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Container string `json:"container,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is the aggregated health of all downstream services.
type Report struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

// Up reports whether every downstream service is up.
func (r Report) Up() bool {
	return r.Status == StatusUp
}

// Health aggregates the health endpoints of the downstream services.
type Health struct {
	checkers []petstore.HealthChecker
}

// NewHealth creates a Health for the given services.
func NewHealth(checkers ...petstore.HealthChecker) *Health {
	return &Health{checkers: checkers}
}

// Check queries every downstream service in parallel.
func (h *Health) Check(ctx context.Context) Report {
	services := make([]ServiceHealth, len(h.checkers))

	var g errgroup.Group
	for i, checker := range h.checkers {
		g.Go(func() error {
			services[i] = check(ctx, checker)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusUp, Services: services}
	for _, s := range services {
		if s.Status != StatusUp {
			report.Status = StatusDown
		}
	}

	return report
}

func check(ctx context.Context, checker petstore.HealthChecker) ServiceHealth {
	result := ServiceHealth{Target: checker.Target(), Status: StatusDown}

	health, err := checker.Health(ctx)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if health.IsUp() {
		result.Status = StatusUp
	}
	result.Version = health.Version
	result.Container = health.Container

	return result
}

// WaitForDownstreams blocks until every downstream service reports up or
// maxWait has elapsed. It runs outside of any inbound request, so the health
// checks carry a detached request context.
func (h *Health) WaitForDownstreams(ctx context.Context, maxWait time.Duration) error {
	ctx, _ = requestctx.NewDetached(ctx, nil)
	logger := log.WithContextFields(ctx, log.Fields{"max_wait_s": maxWait.Seconds()})

	_, err := backoff.Retry(ctx, func() (Report, error) {
		report := h.Check(ctx)
		if !report.Up() {
			return report, downstreamsDown(report)
		}

		return report, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithError(err).WithField("retry_in_ms", next.Milliseconds()).Warn("Downstream services not ready")
		}),
	)
	if err != nil {
		return fmt.Errorf("wait for downstream services: %w", err)
	}

	logger.Info("Downstream services ready")

	return nil
}

func downstreamsDown(report Report) error {
	var down []string
	for _, s := range report.Services {
		if s.Status != StatusUp {
			down = append(down, s.Target)
		}
	}

	return errors.New("services down: " + strings.Join(down, ", "))
}
