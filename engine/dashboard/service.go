// Package dashboard is the application service behind the GEO audit
// dashboard: site audits, WordPress connections, post audits and schema
// publishing, all scoped to the signed-in user.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/engine/semantic"
	"github.com/WessleyAI/geoaudit/engine/store"
	"github.com/WessleyAI/geoaudit/engine/tracking"
	"github.com/WessleyAI/geoaudit/pkg/wordpress"
)

// ErrIndexDisabled is returned by SimilarAudits when no vector index is
// configured.
var ErrIndexDisabled = errors.New("dashboard: similar-audit index not configured")

// Auditor runs one audit. *audit.Pipeline implements it.
type Auditor interface {
	Analyze(ctx context.Context, t audit.Target) audit.Report
}

// Index is the similar-audit index. *semantic.AuditIndex implements it.
type Index interface {
	Index(ctx context.Context, d semantic.AuditDoc) error
	Similar(ctx context.Context, d semantic.AuditDoc, k int) ([]semantic.Match, error)
	Forget(ctx context.Context, auditID string) error
}

// Recorder counts publications and verifications. *metrics.Metrics
// implements it.
type Recorder interface {
	Publication(status string)
	Verification(result string)
}

type nopRecorder struct{}

func (nopRecorder) Publication(string)  {}
func (nopRecorder) Verification(string) {}

// Service implements the dashboard operations.
type Service struct {
	store   *store.Store
	auditor Auditor
	wp      *wordpress.Client
	index   Index
	tracker *tracking.Tracker
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
	verifyN int
}

// Option configures a Service.
type Option func(*Service)

// WithIndex enables SimilarAudits and indexes every new site audit.
func WithIndex(x Index) Option { return func(s *Service) { s.index = x } }

// WithTracker sends click events to t.
func WithTracker(t *tracking.Tracker) Option { return func(s *Service) { s.tracker = t } }

// WithMetrics counts publications and verifications on r.
func WithMetrics(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithVerifyConcurrency bounds parallel credential checks.
func WithVerifyConcurrency(n int) Option { return func(s *Service) { s.verifyN = n } }

// New creates a Service.
func New(st *store.Store, a Auditor, wp *wordpress.Client, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:   st,
		auditor: a,
		wp:      wp,
		metrics: nopRecorder{},
		logger:  logger,
		now:     time.Now,
		verifyN: 4,
	}
	for _, o := range opts {
		o(s)
	}
	if s.tracker == nil {
		s.tracker = tracking.New(nil, logger)
	}
	return s
}

// Stats is the dashboard header.
type Stats struct {
	TotalAudits      int `json:"totalAudits"`
	AverageScore     int `json:"averageScore"`
	ConnectedSites   int `json:"connectedSites"`
	PublishedSchemas int `json:"publishedSchemas"`
}

// Stats aggregates the user's audits, connections and publications.
func (s *Service) Stats(ctx context.Context, user string) (Stats, error) {
	as, err := s.store.AuditStats(ctx, user)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard: stats: %w", err)
	}
	connected, err := s.store.ConnectedCount(ctx, user)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard: stats: %w", err)
	}
	published, err := s.store.PublicationCount(ctx, user, store.PublicationPublished)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard: stats: %w", err)
	}
	return Stats{
		TotalAudits:      as.TotalAudits,
		AverageScore:     as.AvgScore,
		ConnectedSites:   connected,
		PublishedSchemas: published,
	}, nil
}

func (s *Service) ListWebsites(ctx context.Context, user string) ([]store.Website, error) {
	return s.store.ListWebsites(ctx, user)
}

func (s *Service) ListPublications(ctx context.Context, user string) ([]store.SchemaPublication, error) {
	return s.store.ListPublications(ctx, user)
}
