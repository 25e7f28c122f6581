package jsonld

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Block is one <script type="application/ld+json"> element.
type Block struct {
	Types []string `json:"types"`
	Raw   string   `json:"raw"`
	Valid bool     `json:"valid"`
}

// Detect lists the JSON-LD blocks in an HTML fragment or document. Blocks
// that are not valid JSON are returned with Valid false.
func Detect(htmlText string) ([]Block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, err
	}
	blocks := []Block{}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			blocks = append(blocks, Block{Types: []string{}, Raw: raw})
			return
		}
		blocks = append(blocks, Block{Types: collectTypes(v, nil), Raw: raw, Valid: true})
	})
	return blocks, nil
}

// collectTypes walks objects, arrays and @graph for @type values.
func collectTypes(v any, acc []string) []string {
	if acc == nil {
		acc = []string{}
	}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			acc = collectTypes(e, acc)
		}
	case map[string]any:
		switch ty := t["@type"].(type) {
		case string:
			acc = append(acc, ty)
		case []any:
			for _, e := range ty {
				if s, ok := e.(string); ok {
					acc = append(acc, s)
				}
			}
		}
		if g, ok := t["@graph"]; ok {
			acc = collectTypes(g, acc)
		}
	}
	return acc
}

// HasType reports whether any block declares schemaType.
func HasType(blocks []Block, schemaType string) bool {
	for _, b := range blocks {
		for _, t := range b.Types {
			if strings.EqualFold(t, schemaType) {
				return true
			}
		}
	}
	return false
}

// Types flattens the declared types of all blocks, without duplicates.
func Types(blocks []Block) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, b := range blocks {
		for _, t := range b.Types {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
