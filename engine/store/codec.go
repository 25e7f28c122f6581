package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/pkg/repo"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// props reads typed values out of a flat property map.
type props map[string]any

func (p props) str(k string) string {
	s, _ := p[k].(string)
	return s
}

func (p props) num(k string) int {
	switch n := p[k].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func (p props) when(k string) (time.Time, error) {
	s := p.str(k)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: property %s: %w", k, err)
	}
	return t, nil
}

func (p props) whenPtr(k string) (*time.Time, error) {
	t, err := p.when(k)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func (p props) decode(k string, v any) error {
	s := p.str(k)
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("store: property %s: %w", k, err)
	}
	return nil
}

func putTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func putTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return putTime(*t)
}

func putJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

func putMeta(m Meta, out map[string]any) {
	out["created_at"] = putTime(m.CreatedAt)
	out["updated_at"] = putTime(m.UpdatedAt)
	out["deleted_at"] = putTimePtr(m.DeletedAt)
	out["created_by"] = m.CreatedBy
	out["updated_by"] = m.UpdatedBy
	out["deleted_by"] = m.DeletedBy
}

func readMeta(p props) (Meta, error) {
	var m Meta
	var err error
	if m.CreatedAt, err = p.when("created_at"); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = p.when("updated_at"); err != nil {
		return m, err
	}
	if m.DeletedAt, err = p.whenPtr("deleted_at"); err != nil {
		return m, err
	}
	m.CreatedBy = p.str("created_by")
	m.UpdatedBy = p.str("updated_by")
	m.DeletedBy = p.str("deleted_by")
	return m, nil
}

var websiteCodec = repo.Codec[Website]{
	ToProps: func(w Website) map[string]any {
		out := map[string]any{"id": w.ID, "url": w.URL, "name": w.Name, "domain": w.Domain}
		putMeta(w.Meta, out)
		return out
	},
	FromProps: func(m map[string]any) (Website, error) {
		p := props(m)
		meta, err := readMeta(p)
		return Website{ID: p.str("id"), URL: p.str("url"), Name: p.str("name"), Domain: p.str("domain"), Meta: meta}, err
	},
}

var auditCodec = repo.Codec[SchemaAudit]{
	ToProps: func(a SchemaAudit) map[string]any {
		out := map[string]any{
			"id":            a.ID,
			"website_id":    a.WebsiteID,
			"url":           a.URL,
			"schemas_found": putJSON(a.SchemasFound),
			"issues":        putJSON(a.Issues),
			"suggestions":   putJSON(a.Suggestions),
			"score":         a.Score,
			"tier":          string(a.Tier),
			"audit_data":    putJSON(a.AuditData),
		}
		putMeta(a.Meta, out)
		return out
	},
	FromProps: func(m map[string]any) (SchemaAudit, error) {
		p := props(m)
		a := SchemaAudit{
			ID:        p.str("id"),
			WebsiteID: p.str("website_id"),
			URL:       p.str("url"),
			Score:     p.num("score"),
			Tier:      audit.Tier(p.str("tier")),
		}
		for k, v := range map[string]any{
			"schemas_found": &a.SchemasFound,
			"issues":        &a.Issues,
			"suggestions":   &a.Suggestions,
			"audit_data":    &a.AuditData,
		} {
			if err := p.decode(k, v); err != nil {
				return a, err
			}
		}
		var err error
		a.Meta, err = readMeta(p)
		return a, err
	},
}

var integrationCodec = repo.Codec[WordPressIntegration]{
	ToProps: func(i WordPressIntegration) map[string]any {
		out := map[string]any{
			"id":                   i.ID,
			"website_id":           i.WebsiteID,
			"domain":               i.Domain,
			"username":             i.Username,
			"application_password": i.ApplicationPassword,
			"connection_status":    string(i.ConnectionStatus),
			"last_verified_at":     putTimePtr(i.LastVerifiedAt),
			"user_info":            putJSON(i.UserInfo),
		}
		putMeta(i.Meta, out)
		return out
	},
	FromProps: func(m map[string]any) (WordPressIntegration, error) {
		p := props(m)
		i := WordPressIntegration{
			ID:                  p.str("id"),
			WebsiteID:           p.str("website_id"),
			Domain:              p.str("domain"),
			Username:            p.str("username"),
			ApplicationPassword: p.str("application_password"),
			ConnectionStatus:    ConnectionStatus(p.str("connection_status")),
		}
		var err error
		if i.LastVerifiedAt, err = p.whenPtr("last_verified_at"); err != nil {
			return i, err
		}
		if err = p.decode("user_info", &i.UserInfo); err != nil {
			return i, err
		}
		i.Meta, err = readMeta(p)
		return i, err
	},
}

var publicationCodec = repo.Codec[SchemaPublication]{
	ToProps: func(s SchemaPublication) map[string]any {
		out := map[string]any{
			"id":                       s.ID,
			"audit_id":                 s.AuditID,
			"wordpress_integration_id": s.IntegrationID,
			"schema_content":           s.SchemaContent,
			"post_id":                  s.PostID,
			"publication_status":       string(s.Status),
			"published_at":             putTimePtr(s.PublishedAt),
		}
		putMeta(s.Meta, out)
		return out
	},
	FromProps: func(m map[string]any) (SchemaPublication, error) {
		p := props(m)
		s := SchemaPublication{
			ID:            p.str("id"),
			AuditID:       p.str("audit_id"),
			IntegrationID: p.str("wordpress_integration_id"),
			SchemaContent: p.str("schema_content"),
			PostID:        p.str("post_id"),
			Status:        PublicationStatus(p.str("publication_status")),
		}
		var err error
		if s.PublishedAt, err = p.whenPtr("published_at"); err != nil {
			return s, err
		}
		s.Meta, err = readMeta(p)
		return s, err
	},
}

var postAuditCodec = repo.Codec[PostAudit]{
	ToProps: func(a PostAudit) map[string]any {
		out := map[string]any{
			"id":                       a.ID,
			"website_id":               a.WebsiteID,
			"wordpress_integration_id": a.IntegrationID,
			"post_id":                  a.PostID,
			"post_title":               a.PostTitle,
			"post_url":                 a.PostURL,
			"schemas_found":            putJSON(a.SchemasFound),
			"existing_schemas":         putJSON(a.ExistingSchemas),
			"issues":                   putJSON(a.Issues),
			"suggestions":              putJSON(a.Suggestions),
			"score":                    a.Score,
			"tier":                     string(a.Tier),
			"audit_data":               putJSON(a.AuditData),
		}
		putMeta(a.Meta, out)
		return out
	},
	FromProps: func(m map[string]any) (PostAudit, error) {
		p := props(m)
		a := PostAudit{
			ID:            p.str("id"),
			WebsiteID:     p.str("website_id"),
			IntegrationID: p.str("wordpress_integration_id"),
			PostID:        p.str("post_id"),
			PostTitle:     p.str("post_title"),
			PostURL:       p.str("post_url"),
			Score:         p.num("score"),
			Tier:          audit.Tier(p.str("tier")),
		}
		for k, v := range map[string]any{
			"schemas_found":    &a.SchemasFound,
			"existing_schemas": &a.ExistingSchemas,
			"issues":           &a.Issues,
			"suggestions":      &a.Suggestions,
			"audit_data":       &a.AuditData,
		} {
			if err := p.decode(k, v); err != nil {
				return a, err
			}
		}
		var err error
		a.Meta, err = readMeta(p)
		return a, err
	},
}
