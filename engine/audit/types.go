// Package audit turns an audit target (a whole website or a single WordPress
// post) into an AuditAnalysis by asking an LLM for a structured-data review.
//
// The pipeline never fails: a clean JSON answer is used as is, a messy answer
// is mined heuristically, and an unreachable LLM yields a fixed mock result.
// Which of those happened is reported as a Tier next to the analysis.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind distinguishes the two target variants.
type Kind string

const (
	KindWebsite Kind = "website"
	KindPost    Kind = "post"
)

// Target is what gets audited. It is either a WebsiteTarget or a PostTarget.
type Target interface {
	TargetURL() string
	Kind() Kind
	sealed()
}

// WebsiteTarget audits a whole site by URL.
type WebsiteTarget struct {
	URL string `json:"url"`
}

func (t WebsiteTarget) TargetURL() string { return t.URL }
func (t WebsiteTarget) Kind() Kind        { return KindWebsite }
func (WebsiteTarget) sealed()             {}

// PostTarget audits a single WordPress post.
type PostTarget struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	ContentHTML string `json:"contentHtml"`
}

func (t PostTarget) TargetURL() string { return t.URL }
func (t PostTarget) Kind() Kind        { return KindPost }
func (PostTarget) sealed()             {}

// SchemaStatus says whether structured data is present on the target.
type SchemaStatus string

const (
	StatusPresent SchemaStatus = "present"
	StatusAbsent  SchemaStatus = "absent"
	StatusPartial SchemaStatus = "partial"
)

// statusLabels maps every accepted wire label to its status. The LLM is
// prompted in Vietnamese and answers "Có" / "Không" / "Một phần".
var statusLabels = map[string]SchemaStatus{
	"có":       StatusPresent,
	"không":    StatusAbsent,
	"một phần": StatusPartial,
	"present":  StatusPresent,
	"absent":   StatusAbsent,
	"partial":  StatusPartial,
}

// ParseSchemaStatus maps a wire label to a SchemaStatus.
func ParseSchemaStatus(s string) (SchemaStatus, bool) {
	st, ok := statusLabels[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// UnmarshalJSON accepts only the known labels.
func (s *SchemaStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, ok := ParseSchemaStatus(raw)
	if !ok {
		return fmt.Errorf("unknown schema status %q", raw)
	}
	*s = st
	return nil
}

// FindingStatus grades one detected schema.
type FindingStatus string

const (
	FindingValid   FindingStatus = "valid"
	FindingInvalid FindingStatus = "invalid"
	FindingWarning FindingStatus = "warning"
)

// ParseFindingStatus maps a wire label to a FindingStatus. Anything that is
// not clearly valid or invalid is a warning.
func ParseFindingStatus(s string) FindingStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "valid":
		return FindingValid
	case "invalid":
		return FindingInvalid
	default:
		return FindingWarning
	}
}

// UnmarshalJSON never fails on an unknown label.
func (s *FindingStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseFindingStatus(raw)
	return nil
}

// SchemaFinding is one detected or hypothesized schema.org entity. Type is
// free text as reported by the LLM.
type SchemaFinding struct {
	Type       string         `json:"type"`
	Status     FindingStatus  `json:"status"`
	Properties map[string]any `json:"properties"`
}

// AuditAnalysis is the result of one audit.
type AuditAnalysis struct {
	SchemaStatus SchemaStatus    `json:"schemaStatus"`
	DetailedInfo []string        `json:"detailedInfo"`
	Improvements []string        `json:"improvements"`
	GeoSchemas   []SchemaFinding `json:"geoSchemas"`
	Issues       []string        `json:"issues"`
	Score        int             `json:"score"`
}

// ClampScore bounds a score to [0,100].
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// normalize clamps the score and replaces nil sequences with empty ones.
func (a AuditAnalysis) normalize() AuditAnalysis {
	a.Score = ClampScore(a.Score)
	if a.DetailedInfo == nil {
		a.DetailedInfo = []string{}
	}
	if a.Improvements == nil {
		a.Improvements = []string{}
	}
	if a.Issues == nil {
		a.Issues = []string{}
	}
	if a.GeoSchemas == nil {
		a.GeoSchemas = []SchemaFinding{}
	}
	for i := range a.GeoSchemas {
		if a.GeoSchemas[i].Properties == nil {
			a.GeoSchemas[i].Properties = map[string]any{}
		}
	}
	return a
}

// Tier records which source produced an analysis.
type Tier string

const (
	// TierStructured: the whole LLM answer was valid JSON of the right shape.
	TierStructured Tier = "structured"
	// TierExtracted: a valid JSON object was cut out of surrounding prose.
	TierExtracted Tier = "extracted"
	// TierHeuristic: the answer was mined with keyword and clause matching.
	TierHeuristic Tier = "heuristic"
	// TierMock: the LLM could not be reached; a fixed analysis was served.
	TierMock Tier = "mock"
)

// Level is the fidelity level: 1 structured, 2 extracted or heuristic, 3 mock.
func (t Tier) Level() int {
	switch t {
	case TierStructured:
		return 1
	case TierExtracted, TierHeuristic:
		return 2
	default:
		return 3
	}
}

// Report is what Pipeline.Analyze returns: always a usable analysis, plus
// the tier that produced it. Cause holds the transport error behind a mock.
type Report struct {
	Analysis AuditAnalysis `json:"analysis"`
	Tier     Tier          `json:"tier"`
	Cause    error         `json:"-"`
}
