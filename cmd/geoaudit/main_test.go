package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/engine/tracking"
	"github.com/WessleyAI/geoaudit/pkg/natsutil"
)

// isolate runs the command in an empty directory with no config in the
// environment.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range []string{"CHATGPT_API_KEY", "OPENAI_API_KEY", "LLM_BASE_URL", "NATS_URL", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// fakeLLM answers every completion with a fixed audit and records the
// prompts it saw.
func fakeLLM(t *testing.T, prompts *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		for _, m := range req.Messages {
			*prompts = append(*prompts, m.Content)
		}
		mu.Unlock()
		content := `{"schemaStatus":"Một phần","detailedInfo":["Organization"],"improvements":["Add Article"],"geoSchemas":[],"issues":[],"score":55}`
		b, _ := json.Marshal(content)
		io.WriteString(w, `{"choices":[{"message":{"content":`+string(b)+`}}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyze(t *testing.T) {
	isolate(t)
	var prompts []string
	srv := fakeLLM(t, &prompts)
	t.Setenv("LLM_BASE_URL", srv.URL)
	t.Setenv("CHATGPT_API_KEY", "sk-test")

	out, err := execute(t, context.Background(), "analyze", "https://shop.example.com")
	if err != nil {
		t.Fatal(err)
	}
	var rep audit.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if rep.Tier != audit.TierStructured || rep.Analysis.Score != 55 || rep.Analysis.SchemaStatus != audit.StatusPartial {
		t.Fatalf("unexpected report %+v", rep)
	}
	if !strings.Contains(strings.Join(prompts, "\n"), "https://shop.example.com") {
		t.Fatal("prompt should carry the target url")
	}
}

func TestAnalyzeRejectsBadURL(t *testing.T) {
	isolate(t)
	if _, err := execute(t, context.Background(), "analyze", "not a url"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := execute(t, context.Background(), "analyze"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestAnalyzeFallsBackToMock(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	t.Setenv("LLM_BASE_URL", srv.URL)

	out, err := execute(t, context.Background(), "analyze", "https://shop.example.com")
	if err != nil {
		t.Fatal(err)
	}
	var rep audit.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Tier != audit.TierMock {
		t.Fatalf("expected mock tier, got %q", rep.Tier)
	}
}

func TestAnalyzePost(t *testing.T) {
	isolate(t)
	var prompts []string
	srv := fakeLLM(t, &prompts)
	t.Setenv("LLM_BASE_URL", srv.URL)

	content := filepath.Join(t.TempDir(), "post.html")
	if err := os.WriteFile(content, []byte("<p>Bánh mì Sài Gòn</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, context.Background(), "analyze-post",
		"--url", "https://blog.example/banh-mi", "--title", "Bánh mì", "--content-file", content)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"tier": "structured"`) {
		t.Fatalf("unexpected output %s", out)
	}
	joined := strings.Join(prompts, "\n")
	if !strings.Contains(joined, "Bánh mì Sài Gòn") {
		t.Fatal("prompt should carry the post content")
	}

	if _, err := execute(t, context.Background(), "analyze-post", "--url", "https://blog.example/x", "--content-file", "missing.html"); err == nil {
		t.Fatal("expected read error")
	}
}

func TestSchema(t *testing.T) {
	isolate(t)
	out, err := execute(t, context.Background(), "schema",
		"--domain", "blog.example", "--post-id", "12", "--title", "Phở &amp; cơm", "--date", "2024-03-05")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, `<script type="application/ld+json">`) {
		t.Fatalf("expected script tag, got %s", out)
	}

	out, err = execute(t, context.Background(), "schema", "--domain", "blog.example", "--post-id", "12", "--title", "Phở &amp; cơm", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if schema["headline"] != "Phở & cơm" {
		t.Fatalf("unexpected headline %v", schema["headline"])
	}
	if schema["url"] != "https://blog.example/?p=12" {
		t.Fatalf("unexpected url %v", schema["url"])
	}
}

func TestSchemaValidation(t *testing.T) {
	isolate(t)
	if _, err := execute(t, context.Background(), "schema", "--domain", "blog.example"); err == nil {
		t.Fatal("expected missing post id error")
	}
	if _, err := execute(t, context.Background(), "schema", "--domain", "blog.example", "--post-id", "1", "--date", "yesterday"); err == nil {
		t.Fatal("expected date error")
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-05", "2024-03-05T10:00:00", "2024-03-05T10:00:00+07:00"} {
		if _, err := parseDate(s); err != nil {
			t.Errorf("%s: %v", s, err)
		}
	}
	got, _ := parseDate("2024-03-05T10:00:00+07:00")
	if got.Hour() != 3 || got.Location() != time.UTC {
		t.Fatalf("expected UTC 03:00, got %v", got)
	}
}

func TestEventsNeedsURL(t *testing.T) {
	isolate(t)
	if _, err := execute(t, context.Background(), "events"); err == nil {
		t.Fatal("expected error without a NATS url")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEventsTail(t *testing.T) {
	isolate(t)
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Shutdown()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"events", "--nats", srv.ClientURL(), "--subject", "geoaudit.test.events"})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	ev := tracking.Event{Name: tracking.PublishSchemaClicked, User: "u9", Target: "post-4", At: time.Now().UTC()}
	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), "publish_schema_clicked") {
		if time.Now().After(deadline) {
			t.Fatalf("event never printed, output %q", out.String())
		}
		if err := natsutil.Publish(context.Background(), nc, "geoaudit.test.events", ev); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(out.String(), "user=u9 target=post-4") {
		t.Fatalf("unexpected line %q", out.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("events exited with %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("events did not stop on cancel")
	}
}
