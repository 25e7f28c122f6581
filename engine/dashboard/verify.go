package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/geoaudit/engine/store"
	"github.com/WessleyAI/geoaudit/pkg/fn"
	"github.com/WessleyAI/geoaudit/pkg/repo"
	"github.com/WessleyAI/geoaudit/pkg/wordpress"
	"github.com/robfig/cron/v3"
)

const (
	verifierUser = "system:verifier"
	verifyBudget = 5 * time.Minute
)

// VerifyReport summarizes one re-verification run. Errors counts sites that
// could not be checked; their status is left unchanged. Skipped counts
// integrations deleted while being checked.
type VerifyReport struct {
	Checked   int `json:"checked"`
	Connected int `json:"connected"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
	Skipped   int `json:"skipped"`
}

// VerifyIntegrations re-checks the credentials of every live integration of
// every user and records the new connection status. Only rejected
// credentials mark an integration failed. Sites are checked in parallel, at
// most WithVerifyConcurrency at a time.
func (s *Service) VerifyIntegrations(ctx context.Context) (VerifyReport, error) {
	all, err := s.store.ListIntegrations(ctx, "")
	if err != nil {
		return VerifyReport{}, fmt.Errorf("dashboard: verify integrations: %w", err)
	}
	results := fn.ParMapResult(all, s.verifyN, func(i store.WordPressIntegration) fn.Result[store.ConnectionStatus] {
		return s.verifyOne(ctx, i)
	})

	rep := VerifyReport{Checked: len(all)}
	for i, r := range results {
		status, err := r.Unwrap()
		if errors.Is(err, repo.ErrNotFound) {
			rep.Skipped++
			continue
		}
		if err != nil {
			rep.Errors++
			s.logger.Warn("integration not verified", "integration", all[i].ID, "err", err)
			continue
		}
		if status == store.ConnectionConnected {
			rep.Connected++
		} else {
			rep.Failed++
		}
		s.metrics.Verification(string(status))
	}
	s.logger.Info("integrations verified", "checked", rep.Checked, "connected", rep.Connected, "failed", rep.Failed, "errors", rep.Errors, "skipped", rep.Skipped)
	return rep, nil
}

func (s *Service) verifyOne(ctx context.Context, i store.WordPressIntegration) fn.Result[store.ConnectionStatus] {
	_, meErr := s.wp.Site(i.Domain, i.Username, i.ApplicationPassword).Me(ctx)
	if ctx.Err() != nil {
		return fn.Err[store.ConnectionStatus](ctx.Err())
	}
	status := store.ConnectionConnected
	switch {
	case errors.Is(meErr, wordpress.ErrUnauthorized):
		status = store.ConnectionFailed
		s.logger.Info("integration credentials rejected", "integration", i.ID, "domain", i.Domain, "err", meErr)
	case meErr != nil:
		return fn.Err[store.ConnectionStatus](fmt.Errorf("check %s: %w", i.Domain, meErr))
	}
	if _, err := s.store.RecordVerification(ctx, verifierUser, i.ID, status); err != nil {
		return fn.Err[store.ConnectionStatus](err)
	}
	return fn.Ok(status)
}

// StartVerifier runs VerifyIntegrations on the cron spec (for example
// "@every 6h") until the returned stop function is called. stop waits for a
// running check to finish.
func (s *Service) StartVerifier(spec string) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), verifyBudget)
		defer cancel()
		if _, err := s.VerifyIntegrations(ctx); err != nil {
			s.logger.Error("scheduled verification failed", "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: verify schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("integration verifier scheduled", "schedule", spec)
	return func() { <-c.Stop().Done() }, nil
}
