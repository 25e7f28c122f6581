package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/engine/domain"
	"github.com/WessleyAI/geoaudit/engine/semantic"
	"github.com/WessleyAI/geoaudit/engine/store"
	"github.com/WessleyAI/geoaudit/engine/tracking"
	"github.com/WessleyAI/geoaudit/pkg/repo"
)

// AuditWebsite analyzes rawURL and stores the result under the user's
// website for that URL. The audit itself never fails; only validation and
// persistence errors are returned.
func (s *Service) AuditWebsite(ctx context.Context, user, rawURL string) (store.SchemaAudit, error) {
	s.tracker.Track(ctx, tracking.SchemaAuditClicked, user, rawURL, nil)

	u, err := domain.ValidateURL(rawURL)
	if err != nil {
		return store.SchemaAudit{}, err
	}
	rep := s.auditor.Analyze(ctx, audit.WebsiteTarget{URL: u})

	site, err := s.store.FindOrCreateWebsite(ctx, user, u, "")
	if err != nil {
		return store.SchemaAudit{}, fmt.Errorf("dashboard: audit website: %w", err)
	}
	a := rep.Analysis
	saved, err := s.store.CreateAudit(ctx, user, store.SchemaAudit{
		WebsiteID:    site.ID,
		URL:          u,
		SchemasFound: store.FlattenFindings(a.GeoSchemas),
		Issues:       a.Issues,
		Suggestions:  a.Improvements,
		Score:        a.Score,
		Tier:         rep.Tier,
		AuditData:    a,
	})
	if err != nil {
		return store.SchemaAudit{}, fmt.Errorf("dashboard: audit website: %w", err)
	}

	if s.index != nil {
		doc := semantic.AuditDoc{AuditID: saved.ID, User: user, URL: u, Analysis: a}
		if err := s.index.Index(ctx, doc); err != nil {
			s.logger.Warn("audit not indexed", "audit_id", saved.ID, "err", err)
		}
	}
	return saved, nil
}

// ListAudits returns the user's newest audits; limit <= 0 returns all.
func (s *Service) ListAudits(ctx context.Context, user string, limit int) ([]store.SchemaAudit, error) {
	return s.store.ListAudits(ctx, user, limit)
}

func (s *Service) GetAudit(ctx context.Context, user, id string) (store.SchemaAudit, error) {
	return s.store.GetAudit(ctx, user, id)
}

// DeleteAudit soft-deletes one of the user's audits and drops it from the
// similar-audit index.
func (s *Service) DeleteAudit(ctx context.Context, user, id string) error {
	if err := s.store.SoftDeleteAudit(ctx, user, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Forget(ctx, id); err != nil {
			s.logger.Warn("audit left in index", "audit_id", id, "err", err)
		}
	}
	return nil
}

// WebsiteAudits lists the audits of one of the user's websites.
func (s *Service) WebsiteAudits(ctx context.Context, user, websiteID string) ([]store.SchemaAudit, error) {
	if _, err := s.store.GetWebsite(ctx, user, websiteID); err != nil {
		return nil, err
	}
	return s.store.AuditsByWebsite(ctx, user, websiteID)
}

// SimilarAudits returns up to k of the user's audits whose structured-data
// profile is closest to audit id. Matches for audits deleted since they were
// indexed are dropped.
func (s *Service) SimilarAudits(ctx context.Context, user, id string, k int) ([]semantic.Match, error) {
	if s.index == nil {
		return nil, ErrIndexDisabled
	}
	a, err := s.store.GetAudit(ctx, user, id)
	if err != nil {
		return nil, err
	}
	matches, err := s.index.Similar(ctx, semantic.AuditDoc{AuditID: a.ID, User: user, URL: a.URL, Analysis: a.AuditData}, k)
	if err != nil {
		return nil, fmt.Errorf("dashboard: similar audits: %w", err)
	}
	live := make([]semantic.Match, 0, len(matches))
	for _, m := range matches {
		_, err := s.store.GetAudit(ctx, user, m.AuditID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dashboard: similar audits: %w", err)
		}
		live = append(live, m)
	}
	return live, nil
}
