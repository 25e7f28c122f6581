// Package wordpress talks to the WordPress REST API of a connected site:
// credential checks, post listing and schema publication through the
// geo-audit plugin route.
package wordpress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// ErrUnauthorized is returned when the site rejects the credentials.
var ErrUnauthorized = errors.New("wordpress: unauthorized")

// APIError is a non-2xx answer from a site.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wordpress: HTTP %d: %s", e.Status, e.Body)
}

// Unwrap maps 401 and 403 to ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

const (
	DefaultPublishRoute = "/wp-json/geo-audit/v1/schema/{post_id}"
	DefaultAPIKeyHeader = "X-API-Key"
	maxErrorBody        = 4 << 10
)

// Config configures a Client.
type Config struct {
	// PublishRoute is the plugin route receiving {"schema": ...}. The
	// {post_id} placeholder is replaced with the post id.
	PublishRoute  string
	PublishAPIKey string
	APIKeyHeader  string
	Timeout       time.Duration
	// RateEvery and Burst bound outgoing requests across all sites.
	RateEvery  time.Duration
	Burst      int
	HTTPClient *http.Client
	// Logger receives the HTTP client's warnings. Nil means slog.Default().
	Logger *slog.Logger
}

// Client is shared by every connected site.
type Client struct {
	http    *resty.Client
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Client. Zero config fields take defaults.
func New(cfg Config) *Client {
	if cfg.PublishRoute == "" {
		cfg.PublishRoute = DefaultPublishRoute
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateEvery <= 0 {
		cfg.RateEvery = 100 * time.Millisecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rc := resty.NewWithClient(hc).
		SetLogger(restyLogger{cfg.Logger}).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http:    rc,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.RateEvery), cfg.Burst),
	}
}

// Site is one WordPress installation reached with an application password.
type Site struct {
	c        *Client
	base     string
	username string
	password string
}

// Site binds credentials to a site base URL such as https://blog.example.com.
func (c *Client) Site(baseURL, username, appPassword string) *Site {
	return &Site{
		c:        c,
		base:     strings.TrimRight(baseURL, "/"),
		username: username,
		password: appPassword,
	}
}

// BaseURL returns the site root without a trailing slash.
func (s *Site) BaseURL() string { return s.base }

func (s *Site) request(ctx context.Context) (*resty.Request, error) {
	if err := s.c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wordpress: rate limit: %w", err)
	}
	return s.c.http.R().SetContext(ctx), nil
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("wordpress: %w", err)
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &APIError{Status: resp.StatusCode(), Body: body}
	}
	return nil
}

// User is the authenticated WordPress user. Raw keeps the full answer.
type User struct {
	ID   int            `json:"id"`
	Name string         `json:"name"`
	Slug string         `json:"slug"`
	Raw  map[string]any `json:"-"`
}

// Me verifies the credentials with GET /wp-json/wp/v2/users/me.
func (s *Site) Me(ctx context.Context) (User, error) {
	req, err := s.request(ctx)
	if err != nil {
		return User{}, err
	}
	var raw map[string]any
	resp, err := req.SetBasicAuth(s.username, s.password).
		SetResult(&raw).
		Get(s.base + "/wp-json/wp/v2/users/me")
	if err := checkResponse(resp, err); err != nil {
		return User{}, err
	}
	u := User{Raw: raw}
	if id, ok := raw["id"].(float64); ok {
		u.ID = int(id)
	}
	u.Name, _ = raw["name"].(string)
	u.Slug, _ = raw["slug"].(string)
	return u, nil
}

// Rendered is a WordPress {"rendered": ...} field.
type Rendered struct {
	Rendered string `json:"rendered"`
}

// Post is the subset of a wp/v2 post the auditor reads.
type Post struct {
	ID            int      `json:"id"`
	Date          string   `json:"date"`
	DateGMT       string   `json:"date_gmt"`
	Modified      string   `json:"modified"`
	ModifiedGMT   string   `json:"modified_gmt"`
	Slug          string   `json:"slug"`
	Status        string   `json:"status"`
	Link          string   `json:"link"`
	Title         Rendered `json:"title"`
	Content       Rendered `json:"content"`
	Excerpt       Rendered `json:"excerpt"`
	FeaturedMedia int      `json:"featured_media"`
}

const wpTimeLayout = "2006-01-02T15:04:05"

// PublishedAt parses date_gmt, falling back to the site-local date.
func (p Post) PublishedAt() time.Time { return parseWPTime(p.DateGMT, p.Date) }

// ModifiedAt parses modified_gmt, falling back to the site-local date.
func (p Post) ModifiedAt() time.Time { return parseWPTime(p.ModifiedGMT, p.Modified) }

func parseWPTime(gmt, local string) time.Time {
	for _, v := range []string{gmt, local} {
		if t, err := time.ParseInLocation(wpTimeLayout, v, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ListOpts pages through posts.
type ListOpts struct {
	Page    int
	PerPage int
	Search  string
}

// Posts lists published posts, newest first.
func (s *Site) Posts(ctx context.Context, opts ListOpts) ([]Post, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.PerPage <= 0 || opts.PerPage > 100 {
		opts.PerPage = 20
	}
	q := map[string]string{
		"page":     strconv.Itoa(opts.Page),
		"per_page": strconv.Itoa(opts.PerPage),
		"orderby":  "date",
		"order":    "desc",
	}
	if opts.Search != "" {
		q["search"] = opts.Search
	}
	req, err := s.request(ctx)
	if err != nil {
		return nil, err
	}
	posts := []Post{}
	resp, err := req.SetBasicAuth(s.username, s.password).
		SetQueryParams(q).
		SetResult(&posts).
		Get(s.base + "/wp-json/wp/v2/posts")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return posts, nil
}

// Post fetches one post by id.
func (s *Site) Post(ctx context.Context, id int) (Post, error) {
	req, err := s.request(ctx)
	if err != nil {
		return Post{}, err
	}
	var p Post
	resp, err := req.SetBasicAuth(s.username, s.password).
		SetResult(&p).
		Get(fmt.Sprintf("%s/wp-json/wp/v2/posts/%d", s.base, id))
	if err := checkResponse(resp, err); err != nil {
		return Post{}, err
	}
	return p, nil
}

// PublishSchema posts {"schema": schema} to the plugin route with the
// static API-key header.
func (s *Site) PublishSchema(ctx context.Context, postID int, schema string) error {
	req, err := s.request(ctx)
	if err != nil {
		return err
	}
	route := strings.ReplaceAll(s.c.cfg.PublishRoute, "{post_id}", strconv.Itoa(postID))
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	resp, err := req.SetHeader(s.c.cfg.APIKeyHeader, s.c.cfg.PublishAPIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"schema": schema}).
		Post(s.base + route)
	return checkResponse(resp, err)
}
