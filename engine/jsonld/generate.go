// Package jsonld builds the Article JSON-LD published back to WordPress and
// detects JSON-LD blocks already present in post HTML.
package jsonld

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
)

const (
	schemaContext     = "https://schema.org"
	defaultAuthor     = "Admin"
	fallbackPublisher = "WordPress Site"
)

// PostMeta is the post metadata the generator reads.
type PostMeta struct {
	Domain        string    `json:"domain"`
	PostID        int       `json:"postId"`
	Title         string    `json:"title"`
	Link          string    `json:"link"`
	Published     time.Time `json:"published"`
	Modified      time.Time `json:"modified"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	AuthorName    string    `json:"authorName,omitempty"`
	PublisherName string    `json:"publisherName,omitempty"`
	PublisherLogo string    `json:"publisherLogo,omitempty"`
}

type Person struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type ImageObject struct {
	Type string `json:"@type"`
	URL  string `json:"url"`
}

type Organization struct {
	Type string       `json:"@type"`
	Name string       `json:"name"`
	Logo *ImageObject `json:"logo,omitempty"`
}

type WebPage struct {
	Type string `json:"@type"`
	ID   string `json:"@id"`
}

// GeneratedSchema is an Article JSON-LD object. Field order matches the
// serialized key order.
type GeneratedSchema struct {
	Context          string       `json:"@context"`
	Type             string       `json:"@type"`
	Headline         string       `json:"headline"`
	Author           Person       `json:"author"`
	Publisher        Organization `json:"publisher"`
	DatePublished    string       `json:"datePublished"`
	DateModified     string       `json:"dateModified"`
	URL              string       `json:"url"`
	MainEntityOfPage WebPage      `json:"mainEntityOfPage"`
	Image            string       `json:"image,omitempty"`
}

// Generate builds the Article schema for a post. The analysis does not
// influence the output; every tier yields the same shape.
func Generate(_ audit.AuditAnalysis, post PostMeta) GeneratedSchema {
	link := post.Link
	if link == "" {
		link = fmt.Sprintf("%s/?p=%d", strings.TrimRight(siteURL(post.Domain), "/"), post.PostID)
	}

	author := post.AuthorName
	if author == "" {
		author = defaultAuthor
	}
	publisher := Organization{Type: "Organization", Name: post.PublisherName}
	if publisher.Name == "" {
		publisher.Name = siteHost(post.Domain)
	}
	if post.PublisherLogo != "" {
		publisher.Logo = &ImageObject{Type: "ImageObject", URL: post.PublisherLogo}
	}

	published := formatDate(post.Published)
	modified := formatDate(post.Modified)
	if modified == "" {
		modified = published
	}

	return GeneratedSchema{
		Context:          schemaContext,
		Type:             "Article",
		Headline:         html.UnescapeString(strings.TrimSpace(post.Title)),
		Author:           Person{Type: "Person", Name: author},
		Publisher:        publisher,
		DatePublished:    published,
		DateModified:     modified,
		URL:              link,
		MainEntityOfPage: WebPage{Type: "WebPage", ID: link},
		Image:            post.ImageURL,
	}
}

// Payload serializes the schema into the string sent as {"schema": ...}.
func (g GeneratedSchema) Payload() (string, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("jsonld: marshal: %w", err)
	}
	return string(b), nil
}

// ScriptTag wraps the payload in an application/ld+json script element.
func (g GeneratedSchema) ScriptTag() (string, error) {
	p, err := g.Payload()
	if err != nil {
		return "", err
	}
	return `<script type="application/ld+json">` + p + `</script>`, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func siteURL(domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" {
		return ""
	}
	if !strings.HasPrefix(d, "http://") && !strings.HasPrefix(d, "https://") {
		d = "https://" + d
	}
	return d
}

func siteHost(domain string) string {
	u, err := url.Parse(siteURL(domain))
	if err != nil || u.Hostname() == "" {
		return fallbackPublisher
	}
	return u.Hostname()
}
