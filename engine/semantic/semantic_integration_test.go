//go:build integration

package semantic

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/WessleyAI/geoaudit/engine/audit"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		return v
	}
	return "localhost:6334"
}

func testStore(t *testing.T, collection string) *VectorStore {
	t.Helper()
	vs, err := New(qdrantAddr(), collection)
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() {
		vs.DeleteCollection(context.Background())
		vs.Close()
	})
	return vs
}

func TestQdrant_EnsureCollection(t *testing.T) {
	vs := testStore(t, "test_ensure")
	ctx := context.Background()

	if err := vs.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := vs.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection (idempotent): %v", err)
	}
}

// axisEmbedder maps the schema status to a unit vector.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "schema status: present"):
		return []float32{1, 0, 0, 0}, nil
	case strings.Contains(text, "schema status: partial"):
		return []float32{0.9, 0.1, 0, 0}, nil
	default:
		return []float32{0, 1, 0, 0}, nil
	}
}

func TestQdrant_AuditIndexSimilar(t *testing.T) {
	vs := testStore(t, "test_audit_similar")
	ctx := context.Background()
	if err := vs.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	idx := NewAuditIndex(axisEmbedder{}, vs, nil)

	docs := []AuditDoc{
		{AuditID: "a1", User: "u1", URL: "https://a.vn", Analysis: audit.AuditAnalysis{SchemaStatus: audit.StatusPresent, Score: 90}},
		{AuditID: "a2", User: "u1", URL: "https://b.vn", Analysis: audit.AuditAnalysis{SchemaStatus: audit.StatusPartial, Score: 60}},
		{AuditID: "a3", User: "u1", URL: "https://c.vn", Analysis: audit.AuditAnalysis{SchemaStatus: audit.StatusAbsent, Score: 20}},
		{AuditID: "a4", User: "u2", URL: "https://d.vn", Analysis: audit.AuditAnalysis{SchemaStatus: audit.StatusPresent, Score: 95}},
	}
	for _, d := range docs {
		if err := idx.Index(ctx, d); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	matches, err := idx.Similar(ctx, docs[0], 2)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(matches) != 2 || matches[0].AuditID != "a2" {
		t.Fatalf("matches = %+v", matches)
	}
	for _, m := range matches {
		if m.AuditID == "a1" || m.AuditID == "a4" {
			t.Fatalf("unexpected match %+v", m)
		}
	}
}
