package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/engine/domain"
	"github.com/WessleyAI/geoaudit/engine/jsonld"
	"github.com/WessleyAI/geoaudit/engine/store"
	"github.com/WessleyAI/geoaudit/engine/tracking"
	"github.com/WessleyAI/geoaudit/pkg/repo"
	"github.com/WessleyAI/geoaudit/pkg/wordpress"
)

const defaultSiteName = "WordPress Site"

// ConnectWordPress verifies the credentials against users/me and stores a
// connected integration. Invalid credentials are returned as an error
// wrapping wordpress.ErrUnauthorized; nothing is stored then.
func (s *Service) ConnectWordPress(ctx context.Context, user string, creds domain.Credentials) (store.WordPressIntegration, error) {
	s.tracker.Track(ctx, tracking.ConnectWordPressClicked, user, creds.Domain, nil)

	c, err := domain.ValidateCredentials(creds)
	if err != nil {
		return store.WordPressIntegration{}, err
	}
	me, err := s.wp.Site(c.Domain, c.Username, c.ApplicationPassword).Me(ctx)
	if err != nil {
		return store.WordPressIntegration{}, fmt.Errorf("dashboard: verify %s: %w", c.Domain, err)
	}
	name := me.Name
	if name == "" {
		name = defaultSiteName
	}
	site, err := s.store.FindOrCreateWebsite(ctx, user, c.Domain, name)
	if err != nil {
		return store.WordPressIntegration{}, fmt.Errorf("dashboard: connect wordpress: %w", err)
	}
	now := s.now().UTC()
	integ, err := s.store.CreateIntegration(ctx, user, store.WordPressIntegration{
		WebsiteID:           site.ID,
		Domain:              c.Domain,
		Username:            c.Username,
		ApplicationPassword: c.ApplicationPassword,
		ConnectionStatus:    store.ConnectionConnected,
		LastVerifiedAt:      &now,
		UserInfo:            me.Raw,
	})
	if err != nil {
		return store.WordPressIntegration{}, fmt.Errorf("dashboard: connect wordpress: %w", err)
	}
	s.logger.Info("wordpress connected", "integration", integ.ID, "domain", c.Domain, "wp_user", me.Slug)
	return integ, nil
}

func (s *Service) ListIntegrations(ctx context.Context, user string) ([]store.WordPressIntegration, error) {
	return s.store.ListIntegrations(ctx, user)
}

// DeleteIntegration soft-deletes the integration.
func (s *Service) DeleteIntegration(ctx context.Context, user, id string) error {
	return s.store.SoftDeleteIntegration(ctx, user, id)
}

// site loads a connected integration and binds its credentials.
func (s *Service) site(ctx context.Context, user, integrationID string) (store.WordPressIntegration, *wordpress.Site, error) {
	integ, err := s.store.GetIntegration(ctx, user, integrationID)
	if err != nil {
		return integ, nil, err
	}
	if integ.ConnectionStatus != store.ConnectionConnected {
		return integ, nil, fmt.Errorf("integration %s: %w", integrationID, domain.ErrNotConnected)
	}
	return integ, s.wp.Site(integ.Domain, integ.Username, integ.ApplicationPassword), nil
}

// PostItem is one row of the post list, with the latest audit if any.
type PostItem struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Status    string     `json:"status"`
	Published time.Time  `json:"published"`
	Modified  time.Time  `json:"modified"`
	Score     *int       `json:"score,omitempty"`
	Tier      audit.Tier `json:"tier,omitempty"`
	AuditedAt *time.Time `json:"auditedAt,omitempty"`
}

// ListPosts lists the site's posts, annotated with their last audit.
func (s *Service) ListPosts(ctx context.Context, user, integrationID string, opts wordpress.ListOpts) ([]PostItem, error) {
	_, site, err := s.site(ctx, user, integrationID)
	if err != nil {
		return nil, err
	}
	posts, err := site.Posts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dashboard: list posts: %w", err)
	}
	audits, err := s.store.PostAuditsByIntegration(ctx, user, integrationID)
	if err != nil {
		return nil, fmt.Errorf("dashboard: list posts: %w", err)
	}
	latest := make(map[string]store.PostAudit, len(audits))
	for _, a := range audits {
		if _, ok := latest[a.PostID]; !ok {
			latest[a.PostID] = a
		}
	}

	out := make([]PostItem, 0, len(posts))
	for _, p := range posts {
		item := PostItem{
			ID:        p.ID,
			Title:     html.UnescapeString(p.Title.Rendered),
			Link:      p.Link,
			Status:    p.Status,
			Published: p.PublishedAt(),
			Modified:  p.ModifiedAt(),
		}
		if a, ok := latest[strconv.Itoa(p.ID)]; ok {
			score, at := a.Score, a.UpdatedAt
			item.Score, item.Tier, item.AuditedAt = &score, a.Tier, &at
		}
		out = append(out, item)
	}
	return out, nil
}

// PostAudits lists the stored post audits of one integration, newest first.
func (s *Service) PostAudits(ctx context.Context, user, integrationID string) ([]store.PostAudit, error) {
	if _, err := s.store.GetIntegration(ctx, user, integrationID); err != nil {
		return nil, err
	}
	return s.store.PostAuditsByIntegration(ctx, user, integrationID)
}

// AuditPost fetches one post, audits it and stores the result, replacing
// the previous audit of the same post.
func (s *Service) AuditPost(ctx context.Context, user, integrationID string, postID int) (store.PostAudit, error) {
	integ, site, err := s.site(ctx, user, integrationID)
	if err != nil {
		return store.PostAudit{}, err
	}
	s.tracker.Track(ctx, tracking.PostAuditClicked, user, integ.Domain, map[string]any{"post_id": postID})

	post, err := site.Post(ctx, postID)
	if err != nil {
		return store.PostAudit{}, fmt.Errorf("dashboard: fetch post %d: %w", postID, err)
	}
	blocks, err := jsonld.Detect(post.Content.Rendered)
	if err != nil {
		s.logger.Warn("existing json-ld not scanned", "post_id", postID, "err", err)
	}
	link := post.Link
	if link == "" {
		link = fmt.Sprintf("%s/?p=%d", strings.TrimRight(integ.Domain, "/"), postID)
	}
	title := html.UnescapeString(post.Title.Rendered)
	rep := s.auditor.Analyze(ctx, audit.PostTarget{URL: link, Title: title, ContentHTML: post.Content.Rendered})

	a := rep.Analysis
	pa := store.PostAudit{
		WebsiteID:       integ.WebsiteID,
		IntegrationID:   integ.ID,
		PostID:          strconv.Itoa(postID),
		PostTitle:       title,
		PostURL:         link,
		SchemasFound:    store.FlattenFindings(a.GeoSchemas),
		ExistingSchemas: jsonld.Types(blocks),
		Issues:          a.Issues,
		Suggestions:     a.Improvements,
		Score:           a.Score,
		Tier:            rep.Tier,
		AuditData:       a,
	}

	prev, err := s.store.LatestPostAudit(ctx, user, integ.ID, pa.PostID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		pa, err = s.store.CreatePostAudit(ctx, user, pa)
	case err == nil:
		pa.ID, pa.Meta = prev.ID, prev.Meta
		pa, err = s.store.UpdatePostAudit(ctx, user, pa)
	}
	if err != nil {
		return store.PostAudit{}, fmt.Errorf("dashboard: save post audit: %w", err)
	}
	return pa, nil
}

// PublishPostSchema generates the Article JSON-LD for an audited post and
// pushes it to the site's publish route. The attempt is recorded either way.
func (s *Service) PublishPostSchema(ctx context.Context, user, integrationID string, postID int) (store.SchemaPublication, error) {
	integ, site, err := s.site(ctx, user, integrationID)
	if err != nil {
		return store.SchemaPublication{}, err
	}
	s.tracker.Track(ctx, tracking.PublishSchemaClicked, user, integ.Domain, map[string]any{"post_id": postID})

	pa, err := s.store.LatestPostAudit(ctx, user, integ.ID, strconv.Itoa(postID))
	if errors.Is(err, repo.ErrNotFound) {
		return store.SchemaPublication{}, fmt.Errorf("post %d: %w", postID, domain.ErrNoAudit)
	}
	if err != nil {
		return store.SchemaPublication{}, fmt.Errorf("dashboard: publish schema: %w", err)
	}
	post, err := site.Post(ctx, postID)
	if err != nil {
		return store.SchemaPublication{}, fmt.Errorf("dashboard: fetch post %d: %w", postID, err)
	}
	payload, err := jsonld.Generate(pa.AuditData, jsonld.PostMeta{
		Domain:    integ.Domain,
		PostID:    postID,
		Title:     post.Title.Rendered,
		Link:      post.Link,
		Published: post.PublishedAt(),
		Modified:  post.ModifiedAt(),
	}).Payload()
	if err != nil {
		return store.SchemaPublication{}, fmt.Errorf("dashboard: encode schema: %w", err)
	}

	pub, err := s.store.CreatePublication(ctx, user, store.SchemaPublication{
		AuditID:       pa.ID,
		IntegrationID: integ.ID,
		SchemaContent: payload,
		PostID:        pa.PostID,
	})
	if err != nil {
		return store.SchemaPublication{}, fmt.Errorf("dashboard: publish schema: %w", err)
	}

	sendErr := site.PublishSchema(ctx, postID, payload)
	if sendErr != nil {
		pub.Status = store.PublicationFailed
	} else {
		now := s.now().UTC()
		pub.Status, pub.PublishedAt = store.PublicationPublished, &now
	}
	s.metrics.Publication(string(pub.Status))

	// The outcome is recorded even when the request context is gone.
	saved, err := s.store.UpdatePublication(context.WithoutCancel(ctx), user, pub)
	if err != nil {
		s.logger.Error("publication status not saved", "publication", pub.ID, "err", err)
	} else {
		pub = saved
	}
	if sendErr != nil {
		return pub, fmt.Errorf("dashboard: publish schema to %s: %w", integ.Domain, sendErr)
	}
	return pub, err
}

// PreviewSchema renders the JSON-LD for post without publishing it.
func (s *Service) PreviewSchema(post jsonld.PostMeta) (jsonld.GeneratedSchema, error) {
	if _, err := domain.NormalizeDomain(post.Domain); err != nil {
		return jsonld.GeneratedSchema{}, err
	}
	return jsonld.Generate(audit.AuditAnalysis{}, post), nil
}
