// Package store persists websites, audits, WordPress integrations, schema
// publications and post audits on top of pkg/repo.
package store

import (
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
)

// Meta carries the audit columns every record has. Deleted records keep
// their row; DeletedAt marks them.
type Meta struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

// Website is a site a user has audited or connected.
type Website struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Meta
}

// SchemaAudit is one persisted whole-site audit.
type SchemaAudit struct {
	ID           string              `json:"id"`
	WebsiteID    string              `json:"website_id"`
	URL          string              `json:"url"`
	SchemasFound []map[string]any    `json:"schemas_found"`
	Issues       []string            `json:"issues"`
	Suggestions  []string            `json:"suggestions"`
	Score        int                 `json:"score"`
	Tier         audit.Tier          `json:"tier"`
	AuditData    audit.AuditAnalysis `json:"audit_data"`
	Meta
}

type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionFailed    ConnectionStatus = "failed"
)

// WordPressIntegration holds the REST credentials for one WordPress site.
// The application password never leaves the server.
type WordPressIntegration struct {
	ID                  string           `json:"id"`
	WebsiteID           string           `json:"website_id"`
	Domain              string           `json:"domain"`
	Username            string           `json:"username"`
	ApplicationPassword string           `json:"-"`
	ConnectionStatus    ConnectionStatus `json:"connection_status"`
	LastVerifiedAt      *time.Time       `json:"last_verified_at,omitempty"`
	UserInfo            map[string]any   `json:"user_info"`
	Meta
}

type PublicationStatus string

const (
	PublicationPending   PublicationStatus = "pending"
	PublicationPublished PublicationStatus = "published"
	PublicationFailed    PublicationStatus = "failed"
)

// SchemaPublication records one attempt to push a JSON-LD schema to a post.
type SchemaPublication struct {
	ID            string            `json:"id"`
	AuditID       string            `json:"audit_id"`
	IntegrationID string            `json:"wordpress_integration_id"`
	SchemaContent string            `json:"schema_content"`
	PostID        string            `json:"post_id"`
	Status        PublicationStatus `json:"publication_status"`
	PublishedAt   *time.Time        `json:"published_at,omitempty"`
	Meta
}

// PostAudit is the latest audit of one WordPress post.
type PostAudit struct {
	ID              string              `json:"id"`
	WebsiteID       string              `json:"website_id"`
	IntegrationID   string              `json:"wordpress_integration_id"`
	PostID          string              `json:"post_id"`
	PostTitle       string              `json:"post_title"`
	PostURL         string              `json:"post_url"`
	SchemasFound    []map[string]any    `json:"schemas_found"`
	ExistingSchemas []string            `json:"existing_schemas"`
	Issues          []string            `json:"issues"`
	Suggestions     []string            `json:"suggestions"`
	Score           int                 `json:"score"`
	Tier            audit.Tier          `json:"tier"`
	AuditData       audit.AuditAnalysis `json:"audit_data"`
	Meta
}

// AuditStats summarizes a user's site audits.
type AuditStats struct {
	TotalAudits int `json:"total_audits"`
	AvgScore    int `json:"avg_score"`
}

// FlattenFindings turns findings into the stored schemas_found shape:
// {"@type": type, ...properties}.
func FlattenFindings(findings []audit.SchemaFinding) []map[string]any {
	out := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		m := make(map[string]any, len(f.Properties)+1)
		for k, v := range f.Properties {
			m[k] = v
		}
		m["@type"] = f.Type
		out = append(out, m)
	}
	return out
}
