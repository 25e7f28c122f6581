package audit

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxMinedIssues       = 5
	maxMinedImprovements = 6
)

// knownSchemaTypes are the schema.org types the miner looks for by name.
var knownSchemaTypes = []string{
	"LocalBusiness", "Organization", "Article", "Person",
	"PostalAddress", "GeoCoordinates", "Place",
}

var typeRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(knownSchemaTypes))
	for _, t := range knownSchemaTypes {
		m[t] = regexp.MustCompile(`\b` + t + `\b`)
	}
	return m
}()

var (
	partialMarkers     = []string{"một phần", "partial", "partially"}
	negativeMarkers    = []string{"no schema found", "không có", "không tồn tại", "chưa có", "không tìm thấy", "không phát hiện", "no schema", "not found", "absent", "does not exist", "missing schema"}
	affirmativeMarkers = []string{"có", "tồn tại", "present", "exists", "found", "detected"}
	gapMarkers         = []string{"thiếu", "lỗi", "missing", "error"}

	partialRes     = wordRes(partialMarkers)
	negativeRes    = wordRes(negativeMarkers)
	affirmativeRes = wordRes(affirmativeMarkers)
	gapRes         = wordRes(gapMarkers)

	// negatedRe catches an English negation followed, within the same
	// sentence, by an affirmative word: "not present", "no structured data
	// was detected", "never exists".
	negatedRe = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:not|no|never|none|without)[^\p{L}](?:[^.\n!?]{0,40}?[^\p{L}])?(?:present|found|detected|exists?)(?:[^\p{L}]|$)`)

	issueRe       = regexp.MustCompile(`(?i)(?:^|[^\p{L}])((?:thiếu|missing|lacks?|chưa có|không có|chưa khai báo)\s+[^.\n;!?]{2,160})`)
	improvementRe = regexp.MustCompile(`(?i)(?:^|[^\p{L}])((?:nên thêm|nên bổ sung|cần thêm|cần bổ sung|đề xuất|khuyến nghị|should add|consider adding|recommend(?:ed)? adding)\s+[^.\n;!?]{2,160})`)
)

// wordRes compiles one case-insensitive whole-word matcher per keyword. Word
// boundaries are Unicode letters, so "có" does not match inside "cóc".
func wordRes(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		out = append(out, regexp.MustCompile(`(?i)(?:^|[^\p{L}])`+regexp.QuoteMeta(w)+`(?:[^\p{L}]|$)`))
	}
	return out
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// deriveStatus guesses a SchemaStatus from free text. Negative phrases are
// removed before looking for affirmative words so "không có" does not count
// as "có" and "not present" does not count as "present".
func deriveStatus(text string) SchemaStatus {
	if matchAny(partialRes, text) {
		return StatusPartial
	}
	negative := matchAny(negativeRes, text) || negatedRe.MatchString(text)
	stripped := negatedRe.ReplaceAllString(text, " ")
	for _, re := range negativeRes {
		stripped = re.ReplaceAllString(stripped, " ")
	}
	affirmative := matchAny(affirmativeRes, stripped)
	switch {
	case affirmative && (negative || matchAny(gapRes, text)):
		return StatusPartial
	case affirmative:
		return StatusPresent
	default:
		return StatusAbsent
	}
}

func findingStatusFor(s SchemaStatus) FindingStatus {
	switch s {
	case StatusPresent:
		return FindingValid
	case StatusAbsent:
		return FindingInvalid
	default:
		return FindingWarning
	}
}

// mineClauses collects distinct trimmed clauses matched by re, up to limit.
func mineClauses(re *regexp.Regexp, text string, limit int) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		clause := strings.TrimRight(strings.TrimSpace(m[1]), ",:")
		key := strings.ToLower(clause)
		if clause == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, clause)
		if len(out) == limit {
			break
		}
	}
	return out
}

// mineText builds an analysis from an unstructured answer.
func mineText(text, url string) AuditAnalysis {
	status := deriveStatus(text)

	var findings []SchemaFinding
	for _, t := range knownSchemaTypes {
		if typeRes[t].MatchString(text) {
			findings = append(findings, SchemaFinding{
				Type:       t,
				Status:     findingStatusFor(status),
				Properties: map[string]any{},
			})
		}
	}
	matched := len(findings) > 0

	info := []string{"Kết quả được trích xuất từ phản hồi dạng văn bản của AI"}
	if matched {
		info = append(info, fmt.Sprintf("Phát hiện %d loại schema được nhắc đến trong phản hồi", len(findings)))
	} else {
		info = append(info, "Không nhận diện được loại schema cụ thể trong phản hồi")
		findings = []SchemaFinding{{
			Type:       "Organization",
			Status:     FindingWarning,
			Properties: map[string]any{"name": "Website Name", "url": url},
		}}
	}

	issues := mineClauses(issueRe, text, maxMinedIssues)
	improvements := mineClauses(improvementRe, text, maxMinedImprovements)

	score := 30
	if matched {
		score += 20
	}
	switch status {
	case StatusPresent:
		score += 30
	case StatusPartial:
		score += 15
	}
	if len(issues) < 3 {
		score += 10
	}
	if len(improvements) > 0 {
		score += 10
	}

	return AuditAnalysis{
		SchemaStatus: status,
		DetailedInfo: info,
		Improvements: improvements,
		GeoSchemas:   findings,
		Issues:       issues,
		Score:        score,
	}.normalize()
}
