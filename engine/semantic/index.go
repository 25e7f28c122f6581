package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/google/uuid"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector store surface the index needs.
type Searcher interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	SearchFiltered(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]SearchResult, error)
	DeletePoints(ctx context.Context, ids ...string) error
}

// Payload keys of an indexed audit.
const (
	PayloadAuditID = "audit_id"
	PayloadUser    = "user"
	PayloadURL     = "url"
	PayloadScore   = "score"
	PayloadStatus  = "schema_status"
)

// AuditDoc is the indexable view of a persisted site audit.
type AuditDoc struct {
	AuditID  string
	User     string
	URL      string
	Analysis audit.AuditAnalysis
}

// Match is an audit similar to a query audit.
type Match struct {
	AuditID    string  `json:"audit_id"`
	URL        string  `json:"url"`
	Score      int     `json:"score"`
	Status     string  `json:"schema_status"`
	Similarity float32 `json:"similarity"`
}

// AuditIndex embeds audit summaries so users can find audits with a
// similar structured-data profile.
type AuditIndex struct {
	embed  Embedder
	store  Searcher
	logger *slog.Logger
}

// NewAuditIndex creates an AuditIndex.
func NewAuditIndex(e Embedder, s Searcher, logger *slog.Logger) *AuditIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditIndex{embed: e, store: s, logger: logger}
}

// PointID maps an audit id to a stable Qdrant point UUID.
func PointID(auditID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("geoaudit:audit:"+auditID)).String()
}

// Summarize renders the text that gets embedded for an audit.
func Summarize(url string, a audit.AuditAnalysis) string {
	types := make([]string, 0, len(a.GeoSchemas))
	for _, f := range a.GeoSchemas {
		types = append(types, f.Type+"("+string(f.Status)+")")
	}
	sort.Strings(types)
	var b strings.Builder
	fmt.Fprintf(&b, "url: %s\nschema status: %s\nscore: %d\n", url, a.SchemaStatus, a.Score)
	fmt.Fprintf(&b, "schemas: %s\n", strings.Join(types, ", "))
	if len(a.Issues) > 0 {
		fmt.Fprintf(&b, "issues: %s\n", strings.Join(a.Issues, "; "))
	}
	if len(a.Improvements) > 0 {
		fmt.Fprintf(&b, "improvements: %s\n", strings.Join(a.Improvements, "; "))
	}
	return b.String()
}

// Index embeds and stores one audit.
func (x *AuditIndex) Index(ctx context.Context, d AuditDoc) error {
	vec, err := x.embed.Embed(ctx, Summarize(d.URL, d.Analysis))
	if err != nil {
		return fmt.Errorf("semantic: embed audit %s: %w", d.AuditID, err)
	}
	rec := VectorRecord{
		ID:        PointID(d.AuditID),
		Embedding: vec,
		Payload: map[string]any{
			PayloadAuditID: d.AuditID,
			PayloadUser:    d.User,
			PayloadURL:     d.URL,
			PayloadScore:   d.Analysis.Score,
			PayloadStatus:  string(d.Analysis.SchemaStatus),
		},
	}
	if err := x.store.Upsert(ctx, []VectorRecord{rec}); err != nil {
		return err
	}
	x.logger.Debug("audit indexed", "audit_id", d.AuditID, "dims", len(vec))
	return nil
}

// Similar returns up to k of the user's audits closest to d, excluding d.
func (x *AuditIndex) Similar(ctx context.Context, d AuditDoc, k int) ([]Match, error) {
	if k <= 0 {
		k = 5
	}
	vec, err := x.embed.Embed(ctx, Summarize(d.URL, d.Analysis))
	if err != nil {
		return nil, fmt.Errorf("semantic: embed audit %s: %w", d.AuditID, err)
	}
	var filters map[string]string
	if d.User != "" {
		filters = map[string]string{PayloadUser: d.User}
	}
	hits, err := x.store.SearchFiltered(ctx, vec, k+1, filters)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, k)
	for _, h := range hits {
		id := h.Payload[PayloadAuditID]
		if id == d.AuditID || id == "" {
			continue
		}
		score, _ := strconv.Atoi(h.Payload[PayloadScore])
		out = append(out, Match{
			AuditID:    id,
			URL:        h.Payload[PayloadURL],
			Score:      score,
			Status:     h.Payload[PayloadStatus],
			Similarity: h.Score,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Forget drops an audit from the index.
func (x *AuditIndex) Forget(ctx context.Context, auditID string) error {
	return x.store.DeletePoints(ctx, PointID(auditID))
}
