package store

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/WessleyAI/geoaudit/pkg/repo"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Repos bundles one repository per record kind.
type Repos struct {
	Websites     repo.Repository[Website, string]
	Audits       repo.Repository[SchemaAudit, string]
	Integrations repo.Repository[WordPressIntegration, string]
	Publications repo.Repository[SchemaPublication, string]
	PostAudits   repo.Repository[PostAudit, string]
}

// Store implements the record operations the dashboard needs. Every query
// hides soft-deleted rows. A non-empty user scopes reads to rows that user
// created.
type Store struct {
	r     Repos
	now   func() time.Time
	newID func() string
}

// New creates a Store over the given repositories.
func New(r Repos) *Store {
	return &Store{r: r, now: time.Now, newID: uuid.NewString}
}

// NewNeo4j creates a Store persisting to Neo4j.
func NewNeo4j(driver neo4j.DriverWithContext) *Store {
	return New(Repos{
		Websites:     repo.NewNeo4jRepo[Website, string](driver, "Website", websiteCodec),
		Audits:       repo.NewNeo4jRepo[SchemaAudit, string](driver, "SchemaAudit", auditCodec),
		Integrations: repo.NewNeo4jRepo[WordPressIntegration, string](driver, "WordPressIntegration", integrationCodec),
		Publications: repo.NewNeo4jRepo[SchemaPublication, string](driver, "SchemaPublication", publicationCodec),
		PostAudits:   repo.NewNeo4jRepo[PostAudit, string](driver, "PostAudit", postAuditCodec),
	})
}

// NewMemory creates a Store that keeps everything in memory.
func NewMemory() *Store {
	return New(Repos{
		Websites:     repo.NewMemoryRepo[Website, string](websiteCodec),
		Audits:       repo.NewMemoryRepo[SchemaAudit, string](auditCodec),
		Integrations: repo.NewMemoryRepo[WordPressIntegration, string](integrationCodec),
		Publications: repo.NewMemoryRepo[SchemaPublication, string](publicationCodec),
		PostAudits:   repo.NewMemoryRepo[PostAudit, string](postAuditCodec),
	})
}

// pageSize bounds each List call made by listAll.
const pageSize = 500

// liveOpts returns list options for non-deleted rows owned by user,
// newest first.
func liveOpts(user string, filter map[string]any) repo.ListOpts {
	f := map[string]any{}
	for k, v := range filter {
		f[k] = v
	}
	if user != "" {
		f["created_by"] = user
	}
	return repo.ListOpts{
		Filter:  f,
		IsNull:  []string{"deleted_at"},
		OrderBy: "created_at",
		Desc:    true,
	}
}

// listAll pages through every row matching opts.
func listAll[T any](ctx context.Context, r repo.Repository[T, string], opts repo.ListOpts) ([]T, error) {
	out := []T{}
	opts.Limit = pageSize
	for {
		page, err := r.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		opts.Offset += pageSize
	}
}

// getLive fetches id and hides deleted rows and rows owned by another user.
func getLive[T any](ctx context.Context, r repo.Repository[T, string], id, user string, meta func(T) Meta) (T, error) {
	v, err := r.Get(ctx, id)
	if err != nil {
		return v, err
	}
	m := meta(v)
	if m.DeletedAt != nil || (user != "" && m.CreatedBy != user) {
		var zero T
		return zero, fmt.Errorf("%s: %w", id, repo.ErrNotFound)
	}
	return v, nil
}

func (s *Store) stamp(m *Meta, user string) {
	now := s.now().UTC()
	m.CreatedAt, m.UpdatedAt, m.CreatedBy = now, now, user
}

func (s *Store) touch(m *Meta, user string) {
	m.UpdatedAt = s.now().UTC()
	m.UpdatedBy = user
}

// --- websites ---

// FindOrCreateWebsite returns the user's live website for rawURL, creating
// it when missing. An empty name defaults to the host.
func (s *Store) FindOrCreateWebsite(ctx context.Context, user, rawURL, name string) (Website, error) {
	opts := liveOpts(user, map[string]any{"url": rawURL})
	opts.Limit = 1
	found, err := s.r.Websites.List(ctx, opts)
	if err != nil {
		return Website{}, fmt.Errorf("store: find website: %w", err)
	}
	if len(found) > 0 {
		return found[0], nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Website{}, fmt.Errorf("store: parse website url: %w", err)
	}
	w := Website{ID: s.newID(), URL: rawURL, Name: name, Domain: u.Hostname()}
	if w.Name == "" {
		w.Name = w.Domain
	}
	s.stamp(&w.Meta, user)
	w, err = s.r.Websites.Create(ctx, w)
	if err != nil {
		return Website{}, fmt.Errorf("store: create website: %w", err)
	}
	return w, nil
}

func (s *Store) ListWebsites(ctx context.Context, user string) ([]Website, error) {
	return listAll(ctx, s.r.Websites, liveOpts(user, nil))
}

func (s *Store) GetWebsite(ctx context.Context, user, id string) (Website, error) {
	return getLive(ctx, s.r.Websites, id, user, func(w Website) Meta { return w.Meta })
}

// --- schema audits ---

func (s *Store) CreateAudit(ctx context.Context, user string, a SchemaAudit) (SchemaAudit, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	s.stamp(&a.Meta, user)
	out, err := s.r.Audits.Create(ctx, a)
	if err != nil {
		return SchemaAudit{}, fmt.Errorf("store: create audit: %w", err)
	}
	return out, nil
}

// ListAudits returns the user's audits, newest first. limit <= 0 means all.
func (s *Store) ListAudits(ctx context.Context, user string, limit int) ([]SchemaAudit, error) {
	opts := liveOpts(user, nil)
	if limit > 0 {
		opts.Limit = limit
		return s.r.Audits.List(ctx, opts)
	}
	return listAll(ctx, s.r.Audits, opts)
}

func (s *Store) GetAudit(ctx context.Context, user, id string) (SchemaAudit, error) {
	return getLive(ctx, s.r.Audits, id, user, func(a SchemaAudit) Meta { return a.Meta })
}

func (s *Store) AuditsByWebsite(ctx context.Context, user, websiteID string) ([]SchemaAudit, error) {
	return listAll(ctx, s.r.Audits, liveOpts(user, map[string]any{"website_id": websiteID}))
}

// SoftDeleteAudit hides the audit from every query.
func (s *Store) SoftDeleteAudit(ctx context.Context, user, id string) error {
	a, err := s.GetAudit(ctx, user, id)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	a.DeletedAt = &now
	a.DeletedBy = user
	s.touch(&a.Meta, user)
	if _, err := s.r.Audits.Update(ctx, a); err != nil {
		return fmt.Errorf("store: delete audit: %w", err)
	}
	return nil
}

// AuditStats counts the user's live audits and rounds their mean score.
func (s *Store) AuditStats(ctx context.Context, user string) (AuditStats, error) {
	all, err := listAll(ctx, s.r.Audits, liveOpts(user, nil))
	if err != nil {
		return AuditStats{}, fmt.Errorf("store: audit stats: %w", err)
	}
	st := AuditStats{TotalAudits: len(all)}
	if len(all) > 0 {
		sum := 0
		for _, a := range all {
			sum += a.Score
		}
		st.AvgScore = int(math.Round(float64(sum) / float64(len(all))))
	}
	return st, nil
}

// --- wordpress integrations ---

func (s *Store) CreateIntegration(ctx context.Context, user string, i WordPressIntegration) (WordPressIntegration, error) {
	if i.ID == "" {
		i.ID = s.newID()
	}
	if i.ConnectionStatus == "" {
		i.ConnectionStatus = ConnectionPending
	}
	s.stamp(&i.Meta, user)
	out, err := s.r.Integrations.Create(ctx, i)
	if err != nil {
		return WordPressIntegration{}, fmt.Errorf("store: create integration: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateIntegration(ctx context.Context, user string, i WordPressIntegration) (WordPressIntegration, error) {
	s.touch(&i.Meta, user)
	out, err := s.r.Integrations.Update(ctx, i)
	if err != nil {
		return WordPressIntegration{}, fmt.Errorf("store: update integration: %w", err)
	}
	return out, nil
}

func (s *Store) ListIntegrations(ctx context.Context, user string) ([]WordPressIntegration, error) {
	return listAll(ctx, s.r.Integrations, liveOpts(user, nil))
}

func (s *Store) GetIntegration(ctx context.Context, user, id string) (WordPressIntegration, error) {
	return getLive(ctx, s.r.Integrations, id, user, func(i WordPressIntegration) Meta { return i.Meta })
}

func (s *Store) ConnectedCount(ctx context.Context, user string) (int, error) {
	all, err := listAll(ctx, s.r.Integrations, liveOpts(user, map[string]any{"connection_status": string(ConnectionConnected)}))
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// RecordVerification sets the connection status of a live integration and
// stamps LastVerifiedAt. The row is reloaded first so a concurrent soft
// delete or credential change is not overwritten; a deleted row yields
// repo.ErrNotFound.
func (s *Store) RecordVerification(ctx context.Context, user, id string, status ConnectionStatus) (WordPressIntegration, error) {
	i, err := s.GetIntegration(ctx, "", id)
	if err != nil {
		return WordPressIntegration{}, err
	}
	now := s.now().UTC()
	i.ConnectionStatus = status
	i.LastVerifiedAt = &now
	return s.UpdateIntegration(ctx, user, i)
}

// SoftDeleteIntegration marks the integration deleted. It stays in the
// database but disappears from every query.
func (s *Store) SoftDeleteIntegration(ctx context.Context, user, id string) error {
	i, err := s.GetIntegration(ctx, user, id)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	i.DeletedAt = &now
	i.DeletedBy = user
	_, err = s.UpdateIntegration(ctx, user, i)
	return err
}

// --- schema publications ---

func (s *Store) CreatePublication(ctx context.Context, user string, p SchemaPublication) (SchemaPublication, error) {
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.Status == "" {
		p.Status = PublicationPending
	}
	s.stamp(&p.Meta, user)
	out, err := s.r.Publications.Create(ctx, p)
	if err != nil {
		return SchemaPublication{}, fmt.Errorf("store: create publication: %w", err)
	}
	return out, nil
}

func (s *Store) UpdatePublication(ctx context.Context, user string, p SchemaPublication) (SchemaPublication, error) {
	s.touch(&p.Meta, user)
	out, err := s.r.Publications.Update(ctx, p)
	if err != nil {
		return SchemaPublication{}, fmt.Errorf("store: update publication: %w", err)
	}
	return out, nil
}

func (s *Store) ListPublications(ctx context.Context, user string) ([]SchemaPublication, error) {
	return listAll(ctx, s.r.Publications, liveOpts(user, nil))
}

// PublicationCount counts the user's publications with the given status;
// an empty status counts all of them.
func (s *Store) PublicationCount(ctx context.Context, user string, status PublicationStatus) (int, error) {
	var filter map[string]any
	if status != "" {
		filter = map[string]any{"publication_status": string(status)}
	}
	all, err := listAll(ctx, s.r.Publications, liveOpts(user, filter))
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// --- post audits ---

func (s *Store) CreatePostAudit(ctx context.Context, user string, a PostAudit) (PostAudit, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	s.stamp(&a.Meta, user)
	out, err := s.r.PostAudits.Create(ctx, a)
	if err != nil {
		return PostAudit{}, fmt.Errorf("store: create post audit: %w", err)
	}
	return out, nil
}

func (s *Store) UpdatePostAudit(ctx context.Context, user string, a PostAudit) (PostAudit, error) {
	s.touch(&a.Meta, user)
	out, err := s.r.PostAudits.Update(ctx, a)
	if err != nil {
		return PostAudit{}, fmt.Errorf("store: update post audit: %w", err)
	}
	return out, nil
}

func (s *Store) PostAuditsByIntegration(ctx context.Context, user, integrationID string) ([]PostAudit, error) {
	return listAll(ctx, s.r.PostAudits, liveOpts(user, map[string]any{"wordpress_integration_id": integrationID}))
}

// LatestPostAudit returns the newest audit of one post, or repo.ErrNotFound.
func (s *Store) LatestPostAudit(ctx context.Context, user, integrationID, postID string) (PostAudit, error) {
	opts := liveOpts(user, map[string]any{"wordpress_integration_id": integrationID, "post_id": postID})
	opts.Limit = 1
	found, err := s.r.PostAudits.List(ctx, opts)
	if err != nil {
		return PostAudit{}, err
	}
	if len(found) == 0 {
		return PostAudit{}, fmt.Errorf("post audit %s/%s: %w", integrationID, postID, repo.ErrNotFound)
	}
	return found[0], nil
}
