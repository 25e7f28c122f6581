package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/WessleyAI/geoaudit/pkg/fn"
)

// ErrInvalidShape is returned when an answer decodes as JSON but does not
// look like an AuditAnalysis.
var ErrInvalidShape = errors.New("audit: answer has invalid shape")

// ParseError describes why strict parsing rejected an answer.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audit: parse: %s: %v", e.Reason, e.Err)
	}
	return "audit: parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

type wireFinding struct {
	Type       string         `json:"type"`
	Status     FindingStatus  `json:"status"`
	Properties map[string]any `json:"properties"`
}

type wireAnalysis struct {
	SchemaStatus *string         `json:"schemaStatus"`
	DetailedInfo []string        `json:"detailedInfo"`
	Improvements []string        `json:"improvements"`
	GeoSchemas   json.RawMessage `json:"geoSchemas"`
	Issues       []string        `json:"issues"`
	Score        *float64        `json:"score"`
}

// ParseStrict decodes text as a JSON AuditAnalysis. schemaStatus must be a
// known label and geoSchemas must be an array; the other fields may be
// missing but must have the right type when present.
func ParseStrict(text string) fn.Result[AuditAnalysis] {
	var w wireAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fn.Err[AuditAnalysis](&ParseError{Reason: "field " + typeErr.Field + " has wrong type", Err: ErrInvalidShape})
		}
		return fn.Err[AuditAnalysis](&ParseError{Reason: "not a JSON object", Err: err})
	}
	if w.SchemaStatus == nil {
		return fn.Err[AuditAnalysis](&ParseError{Reason: "schemaStatus missing", Err: ErrInvalidShape})
	}
	status, ok := ParseSchemaStatus(*w.SchemaStatus)
	if !ok {
		return fn.Err[AuditAnalysis](&ParseError{Reason: fmt.Sprintf("schemaStatus %q unknown", *w.SchemaStatus), Err: ErrInvalidShape})
	}
	raw := strings.TrimSpace(string(w.GeoSchemas))
	if !strings.HasPrefix(raw, "[") {
		return fn.Err[AuditAnalysis](&ParseError{Reason: "geoSchemas is not an array", Err: ErrInvalidShape})
	}
	var findings []wireFinding
	if err := json.Unmarshal(w.GeoSchemas, &findings); err != nil {
		return fn.Err[AuditAnalysis](&ParseError{Reason: "geoSchemas entries malformed", Err: ErrInvalidShape})
	}

	a := AuditAnalysis{
		SchemaStatus: status,
		DetailedInfo: w.DetailedInfo,
		Improvements: w.Improvements,
		Issues:       w.Issues,
		GeoSchemas:   make([]SchemaFinding, 0, len(findings)),
	}
	for _, f := range findings {
		if f.Status == "" {
			f.Status = FindingWarning
		}
		a.GeoSchemas = append(a.GeoSchemas, SchemaFinding(f))
	}
	if w.Score != nil {
		s := *w.Score
		switch {
		case math.IsNaN(s):
			s = 0
		case s > 100:
			s = 100
		case s < 0:
			s = 0
		}
		a.Score = int(math.Round(s))
	}
	return fn.Ok(a.normalize())
}

// ParseLoose never fails. It tries, in order: a strict parse of the whole
// text, a strict parse of the span between the first '{' and the last '}',
// and finally heuristic mining of the raw text.
func ParseLoose(text string, target Target) (AuditAnalysis, Tier) {
	r := fn.MapResult(ParseStrict(text), tagWith(TierStructured)).
		OrElse(func(error) fn.Result[tagged] {
			obj, ok := extractObject(text)
			if !ok {
				return fn.Errf[tagged]("audit: no JSON object in answer")
			}
			return fn.MapResult(ParseStrict(obj), tagWith(TierExtracted))
		}).
		OrElse(func(error) fn.Result[tagged] {
			return fn.Ok(tagged{mineText(text, target.TargetURL()), TierHeuristic})
		})
	t, _ := r.Unwrap()
	return t.analysis, t.tier
}

type tagged struct {
	analysis AuditAnalysis
	tier     Tier
}

func tagWith(tier Tier) func(AuditAnalysis) tagged {
	return func(a AuditAnalysis) tagged { return tagged{a, tier} }
}

// extractObject returns the substring from the first '{' through the last '}'.
func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
