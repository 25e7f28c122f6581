package audit

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseStrictRoundTrip(t *testing.T) {
	want := AuditAnalysis{
		SchemaStatus: StatusPresent,
		DetailedInfo: []string{"JSON-LD found"},
		Improvements: []string{"Add geo"},
		GeoSchemas: []SchemaFinding{{
			Type:       "LocalBusiness",
			Status:     FindingValid,
			Properties: map[string]any{"name": "Phở 24", "telephone": "+84 28 1234"},
		}},
		Issues: []string{"missing openingHours"},
		Score:  85,
	}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseStrict(string(b)).Unwrap()
	if err != nil {
		t.Fatalf("ParseStrict: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, want)
	}
}

func TestParseStrictVietnameseLabels(t *testing.T) {
	cases := map[string]SchemaStatus{
		"Có":       StatusPresent,
		"Không":    StatusAbsent,
		"Một phần": StatusPartial,
		"partial":  StatusPartial,
	}
	for label, want := range cases {
		t.Run(label, func(t *testing.T) {
			got, err := ParseStrict(`{"schemaStatus":"` + label + `","geoSchemas":[]}`).Unwrap()
			if err != nil {
				t.Fatalf("ParseStrict: %v", err)
			}
			if got.SchemaStatus != want {
				t.Fatalf("status = %q, want %q", got.SchemaStatus, want)
			}
		})
	}
}

func TestParseStrictEncodesCanonicalStatus(t *testing.T) {
	a, err := ParseStrict(`{"schemaStatus":"Một phần","geoSchemas":[]}`).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(a)
	if !strings.Contains(string(b), `"schemaStatus":"partial"`) {
		t.Fatalf("expected canonical label, got %s", b)
	}
}

func TestParseStrictDefaultsMissingFields(t *testing.T) {
	a, err := ParseStrict(`{"schemaStatus":"Không","geoSchemas":[{"type":"Place","status":"valid/invalid/warning"}]}`).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if a.DetailedInfo == nil || a.Improvements == nil || a.Issues == nil {
		t.Fatal("expected non-nil sequences")
	}
	if a.Score != 0 {
		t.Fatalf("score = %d", a.Score)
	}
	if a.GeoSchemas[0].Status != FindingWarning {
		t.Fatalf("unknown finding status should map to warning, got %q", a.GeoSchemas[0].Status)
	}
	if a.GeoSchemas[0].Properties == nil {
		t.Fatal("expected empty properties map")
	}
}

func TestParseStrictClampsScore(t *testing.T) {
	for in, want := range map[string]int{"150": 100, "-7": 0, "72.6": 73} {
		a, err := ParseStrict(`{"schemaStatus":"Có","geoSchemas":[],"score":` + in + `}`).Unwrap()
		if err != nil {
			t.Fatal(err)
		}
		if a.Score != want {
			t.Errorf("score %s -> %d, want %d", in, a.Score, want)
		}
	}
}

func TestParseStrictRejectsBadShape(t *testing.T) {
	cases := []string{
		`{"geoSchemas":[]}`,
		`{"schemaStatus":"maybe","geoSchemas":[]}`,
		`{"schemaStatus":"Có"}`,
		`{"schemaStatus":"Có","geoSchemas":{}}`,
		`{"schemaStatus":"Có","geoSchemas":[],"issues":"none"}`,
		`{"schemaStatus":1,"geoSchemas":[]}`,
	}
	for _, c := range cases {
		err := ParseStrict(c).Error()
		if !errors.Is(err, ErrInvalidShape) {
			t.Errorf("%s: expected ErrInvalidShape, got %v", c, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Reason == "" {
			t.Errorf("%s: expected ParseError with reason, got %v", c, err)
		}
	}
}

func TestParseStrictRejectsProse(t *testing.T) {
	r := ParseStrict("Here is my analysis")
	if r.IsOk() {
		t.Fatal("expected failure")
	}
	if errors.Is(r.Error(), ErrInvalidShape) {
		t.Fatal("syntax errors are not shape errors")
	}
}

func TestParseLooseExtractsEmbeddedObject(t *testing.T) {
	text := "Sure! Here you go:\n{ \"schemaStatus\": \"Một phần\", \"geoSchemas\": [] }\nHope that helps."
	a, tier := ParseLoose(text, WebsiteTarget{URL: "https://a.vn"})
	if tier != TierExtracted {
		t.Fatalf("tier = %s", tier)
	}
	if a.SchemaStatus != StatusPartial {
		t.Fatalf("status = %s", a.SchemaStatus)
	}
	if tier.Level() != 2 {
		t.Fatalf("level = %d", tier.Level())
	}
}

func TestParseLooseStructured(t *testing.T) {
	_, tier := ParseLoose(`{"schemaStatus":"Có","geoSchemas":[]}`, WebsiteTarget{URL: "u"})
	if tier != TierStructured {
		t.Fatalf("tier = %s", tier)
	}
}

func TestParseLooseHeuristicPost(t *testing.T) {
	text := "Bài viết có schema Article nhưng thiếu mainEntityOfPage"
	a, tier := ParseLoose(text, PostTarget{URL: "https://blog.vn/p/1"})
	if tier != TierHeuristic {
		t.Fatalf("tier = %s", tier)
	}
	if a.SchemaStatus != StatusPartial {
		t.Fatalf("status = %s", a.SchemaStatus)
	}
	if len(a.GeoSchemas) != 1 || a.GeoSchemas[0].Type != "Article" {
		t.Fatalf("findings = %+v", a.GeoSchemas)
	}
	if len(a.Issues) != 1 || a.Issues[0] != "thiếu mainEntityOfPage" {
		t.Fatalf("issues = %q", a.Issues)
	}
	if a.Score != 75 {
		t.Fatalf("score = %d, want 75", a.Score)
	}
}

func TestParseLooseHeuristicDefaultFinding(t *testing.T) {
	a, _ := ParseLoose("I could not analyze this page.", WebsiteTarget{URL: "https://x.vn"})
	if len(a.GeoSchemas) != 1 {
		t.Fatalf("findings = %+v", a.GeoSchemas)
	}
	f := a.GeoSchemas[0]
	if f.Type != "Organization" || f.Status != FindingWarning || f.Properties["url"] != "https://x.vn" {
		t.Fatalf("default finding = %+v", f)
	}
	if a.SchemaStatus != StatusAbsent {
		t.Fatalf("status = %s", a.SchemaStatus)
	}
	// base 30 + few issues 10
	if a.Score != 40 {
		t.Fatalf("score = %d", a.Score)
	}
}

func TestParseLooseHeuristicCaps(t *testing.T) {
	var b strings.Builder
	for _, w := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		b.WriteString("missing field" + w + ". should add field" + w + ". ")
	}
	b.WriteString("missing fielda. ")
	a, tier := ParseLoose(b.String(), WebsiteTarget{URL: "u"})
	if tier != TierHeuristic {
		t.Fatalf("tier = %s", tier)
	}
	if len(a.Issues) != maxMinedIssues {
		t.Fatalf("issues = %d", len(a.Issues))
	}
	if len(a.Improvements) != maxMinedImprovements {
		t.Fatalf("improvements = %d", len(a.Improvements))
	}
	if a.Score < 0 || a.Score > 100 {
		t.Fatalf("score out of range: %d", a.Score)
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		text string
		want SchemaStatus
	}{
		{"Website không có schema", StatusAbsent},
		{"Trang có schema Organization", StatusPresent},
		{"Schema present and valid", StatusPresent},
		{"No schema found on page", StatusAbsent},
		{"Schema chỉ có một phần", StatusPartial},
		{"Schema exists but is missing address", StatusPartial},
		{"con cóc", StatusAbsent},
		{"LocalBusiness schema is not present on this page.", StatusAbsent},
		{"No structured data was detected.", StatusAbsent},
		{"Structured data does not exist here", StatusAbsent},
		{"GeoCoordinates not detected", StatusAbsent},
		{"Never found any JSON-LD", StatusAbsent},
		{"Không tìm thấy schema", StatusAbsent},
		{"Article schema is present. LocalBusiness is not detected.", StatusPartial},
	}
	for _, c := range cases {
		if got := deriveStatus(c.text); got != c.want {
			t.Errorf("deriveStatus(%q) = %s, want %s", c.text, got, c.want)
		}
	}
}

func TestParseLooseNegatedAnswer(t *testing.T) {
	cases := []struct {
		text  string
		score int
	}{
		{"LocalBusiness schema is not present on this page.", 60},
		{"No structured data was detected.", 40},
	}
	for _, c := range cases {
		a, tier := ParseLoose(c.text, WebsiteTarget{URL: "https://shop.vn"})
		if tier != TierHeuristic {
			t.Fatalf("%q: tier = %s", c.text, tier)
		}
		if a.SchemaStatus != StatusAbsent || a.Score != c.score {
			t.Errorf("%q: status=%s score=%d, want absent/%d", c.text, a.SchemaStatus, a.Score, c.score)
		}
	}
}

func TestMineClausesDedupes(t *testing.T) {
	got := mineClauses(issueRe, "Missing geo. missing geo. Thiếu địa chỉ", 5)
	want := []string{"Missing geo", "Thiếu địa chỉ"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestClampScore(t *testing.T) {
	for in, want := range map[int]int{-1: 0, 0: 0, 50: 50, 100: 100, 101: 100} {
		if got := ClampScore(in); got != want {
			t.Errorf("ClampScore(%d) = %d", in, got)
		}
	}
}
