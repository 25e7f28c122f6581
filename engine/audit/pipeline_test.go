package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WessleyAI/geoaudit/pkg/llm"
	"github.com/WessleyAI/geoaudit/pkg/resilience"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	block bool
	reqs  []llm.ChatRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingSink) RecordOutcome(_ context.Context, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func TestAnalyzeStructured(t *testing.T) {
	fc := &fakeCompleter{reply: `{"schemaStatus":"Có","geoSchemas":[{"type":"LocalBusiness","status":"valid","properties":{"name":"X"}}],"score":90}`}
	sink := &recordingSink{}
	p := New(fc, DefaultOptions(), slog.Default(), sink)

	rep := p.AnalyzeWebsite(context.Background(), "https://shop.vn")
	if rep.Tier != TierStructured || rep.Cause != nil {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Analysis.Score != 90 || rep.Analysis.SchemaStatus != StatusPresent {
		t.Fatalf("analysis = %+v", rep.Analysis)
	}
	if len(sink.outcomes) != 1 {
		t.Fatalf("outcomes = %d", len(sink.outcomes))
	}
	o := sink.outcomes[0]
	if o.Kind != KindWebsite || o.URL != "https://shop.vn" || o.Tier != TierStructured || o.Score != 90 {
		t.Fatalf("outcome = %+v", o)
	}
}

func TestAnalyzeRequestShape(t *testing.T) {
	fc := &fakeCompleter{reply: `{"schemaStatus":"Có","geoSchemas":[]}`}
	p := New(fc, DefaultOptions(), nil)
	p.AnalyzeWebsite(context.Background(), "https://shop.vn")

	if len(fc.reqs) != 1 {
		t.Fatalf("requests = %d", len(fc.reqs))
	}
	req := fc.reqs[0]
	if req.Model != "gpt-4" || req.MaxTokens != 2000 || req.Temperature != 0.3 {
		t.Fatalf("request params = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != websiteSystemInstruction {
		t.Fatalf("system message = %+v", req.Messages)
	}
	if req.Messages[1].Role != "user" || !strings.Contains(req.Messages[1].Content, "URL website: https://shop.vn") {
		t.Fatalf("user message = %q", req.Messages[1].Content)
	}
}

func TestPostRequestUsesPostInstruction(t *testing.T) {
	fc := &fakeCompleter{reply: `{"schemaStatus":"Có","geoSchemas":[]}`}
	New(fc, DefaultOptions(), nil).AnalyzePost(context.Background(), "https://blog.vn/p", "Tiêu đề", "<p>x</p>")

	sys := fc.reqs[0].Messages[0].Content
	if sys != postSystemInstruction || !strings.Contains(sys, "Phân tích bài viết") {
		t.Fatalf("system message = %q", sys)
	}
	if SystemInstruction(&PostTarget{}) != postSystemInstruction || SystemInstruction(WebsiteTarget{}) != websiteSystemInstruction {
		t.Fatal("instruction not chosen per target")
	}
}

func TestZeroOptionsUseDefaults(t *testing.T) {
	fc := &fakeCompleter{reply: `{"schemaStatus":"Có","geoSchemas":[]}`}
	New(fc, Options{Temperature: -1}, nil).AnalyzeWebsite(context.Background(), "https://shop.vn")
	New(fc, Options{}, nil).AnalyzeWebsite(context.Background(), "https://shop.vn")

	for _, req := range fc.reqs {
		if req.Model != "gpt-4" || req.MaxTokens != 2000 || req.Temperature != 0.3 {
			t.Fatalf("request params = %+v", req)
		}
	}
}

func TestAnalyzeLogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	New(&fakeCompleter{reply: `{"schemaStatus":"Có","geoSchemas":[]}`}, DefaultOptions(), logger).AnalyzeWebsite(context.Background(), "https://shop.vn")
	New(&fakeCompleter{err: errors.New("down")}, DefaultOptions(), logger).AnalyzeWebsite(context.Background(), "https://shop.vn")

	out := buf.String()
	for _, want := range []string{
		"level=INFO msg=\"audit state\" url=https://shop.vn kind=website from=idle to=requesting",
		"level=INFO msg=\"audit state\" url=https://shop.vn kind=website from=requesting to=succeeded",
		"level=WARN msg=\"audit state\" url=https://shop.vn kind=website from=requesting to=failed tier=mock err=down",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.Model != "gpt-4" || o.MaxTokens != 2000 || o.Temperature != 0.3 || o.Timeout != 30*time.Second {
		t.Fatalf("defaults = %+v", o)
	}
}

func TestAnalyzeTransportFailureServesMock(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	fc := &fakeCompleter{err: boom}
	sink := &recordingSink{}
	p := New(fc, DefaultOptions(), slog.Default(), sink)

	rep := p.AnalyzeWebsite(context.Background(), "https://down.vn")
	if rep.Tier != TierMock || !errors.Is(rep.Cause, boom) {
		t.Fatalf("report = %+v", rep)
	}
	if !reflect.DeepEqual(rep.Analysis, MockAnalysis(WebsiteTarget{URL: "https://down.vn"})) {
		t.Fatalf("expected mock analysis, got %+v", rep.Analysis)
	}
	if sink.outcomes[0].Tier != TierMock || sink.outcomes[0].Cause == nil {
		t.Fatalf("outcome = %+v", sink.outcomes[0])
	}
}

func TestAnalyzeEmptyAnswerServesMock(t *testing.T) {
	p := New(&fakeCompleter{}, DefaultOptions(), slog.Default())
	rep := p.AnalyzeWebsite(context.Background(), "https://a.vn")
	if rep.Tier != TierMock || !errors.Is(rep.Cause, llm.ErrEmptyCompletion) {
		t.Fatalf("report = %+v", rep)
	}
}

func TestAnalyzeTimeoutServesMock(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	p := New(&fakeCompleter{block: true}, opts, slog.Default())

	rep := p.AnalyzeWebsite(context.Background(), "https://slow.vn")
	if rep.Tier != TierMock || !errors.Is(rep.Cause, context.DeadlineExceeded) {
		t.Fatalf("report = %+v", rep)
	}
}

func TestAnalyzeNilCompleterServesMock(t *testing.T) {
	rep := New(nil, DefaultOptions(), nil).AnalyzeWebsite(context.Background(), "https://a.vn")
	if rep.Tier != TierMock {
		t.Fatalf("tier = %s", rep.Tier)
	}
}

func TestAnalyzeOpenBreakerServesMock(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("503")}
	opts := DefaultOptions()
	opts.Breaker = resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1, Timeout: time.Hour})
	p := New(fc, opts, slog.Default())

	p.AnalyzeWebsite(context.Background(), "https://a.vn")
	rep := p.AnalyzeWebsite(context.Background(), "https://a.vn")
	if rep.Tier != TierMock || !errors.Is(rep.Cause, resilience.ErrCircuitOpen) {
		t.Fatalf("report = %+v", rep)
	}
	if len(fc.reqs) != 1 {
		t.Fatalf("open breaker should skip the request, got %d calls", len(fc.reqs))
	}
}

func TestAnalyzeProseIsHeuristic(t *testing.T) {
	fc := &fakeCompleter{reply: "Bài viết có schema Article nhưng thiếu mainEntityOfPage"}
	rep := New(fc, DefaultOptions(), slog.Default()).AnalyzePost(context.Background(), "https://blog.vn/p", "Tiêu đề", "<p>x</p>")
	if rep.Tier != TierHeuristic || rep.Cause != nil {
		t.Fatalf("report = %+v", rep)
	}
	if StateOf(rep.Tier) != StateDegraded {
		t.Fatalf("state = %s", StateOf(rep.Tier))
	}
}

func TestAnalyzeNeverFails(t *testing.T) {
	replies := []string{"", "{", "}{", "null", "[]", `{"schemaStatus":`, strings.Repeat("{", 500), "🙂"}
	for _, r := range replies {
		rep := New(&fakeCompleter{reply: r}, DefaultOptions(), slog.Default()).AnalyzeWebsite(context.Background(), "u")
		if rep.Analysis.Score < 0 || rep.Analysis.Score > 100 {
			t.Fatalf("%q: score %d out of range", r, rep.Analysis.Score)
		}
		if rep.Analysis.GeoSchemas == nil || rep.Analysis.Issues == nil {
			t.Fatalf("%q: nil sequences", r)
		}
	}
}

func TestPostPromptTruncatesContent(t *testing.T) {
	content := strings.Repeat("ạ", 1500) + "TAIL"
	fc := &fakeCompleter{reply: `{"schemaStatus":"Có","geoSchemas":[]}`}
	New(fc, DefaultOptions(), slog.Default()).AnalyzePost(context.Background(), "https://blog.vn/p", "Tiêu đề", content)

	prompt := fc.reqs[0].Messages[1].Content
	if !strings.Contains(prompt, strings.Repeat("ạ", 1000)+"...") {
		t.Fatal("expected first 1000 characters followed by ellipsis")
	}
	if strings.Contains(prompt, strings.Repeat("ạ", 1001)) || strings.Contains(prompt, "TAIL") {
		t.Fatal("content not truncated")
	}
	if !strings.Contains(prompt, "Tiêu đề: Tiêu đề") || !strings.Contains(prompt, "URL bài viết: https://blog.vn/p") {
		t.Fatalf("post prompt missing fields")
	}
}

func TestMockAnalysisDeterministic(t *testing.T) {
	a := MockAnalysis(WebsiteTarget{URL: "https://a.vn"})
	b := MockAnalysis(PostTarget{URL: "https://a.vn"})
	if !reflect.DeepEqual(a, b) {
		t.Fatal("mock should depend only on the URL")
	}
	if a.SchemaStatus != StatusPartial || a.Score != 60 {
		t.Fatalf("mock = %+v", a)
	}
	if len(a.DetailedInfo) != 3 || len(a.Improvements) != 5 || len(a.Issues) != 4 || len(a.GeoSchemas) != 1 {
		t.Fatalf("mock sizes = %d/%d/%d/%d", len(a.DetailedInfo), len(a.Improvements), len(a.Issues), len(a.GeoSchemas))
	}
	if a.GeoSchemas[0].Properties["url"] != "https://a.vn" {
		t.Fatalf("mock finding = %+v", a.GeoSchemas[0])
	}
	if a.DetailedInfo[0] != "Website có một số schema cơ bản" ||
		a.Improvements[4] != "Thêm telephone và email liên hệ" ||
		a.Issues[3] != "Chưa khai báo giờ hoạt động openingHours" {
		t.Fatalf("mock content = %+v", a)
	}
}

func TestConcurrentAnalyze(t *testing.T) {
	fc := &fakeCompleter{reply: `{"schemaStatus":"Có","geoSchemas":[]}`}
	sink := &recordingSink{}
	p := New(fc, DefaultOptions(), slog.Default(), sink)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.AnalyzeWebsite(context.Background(), "https://a.vn")
		}()
	}
	wg.Wait()
	if len(sink.outcomes) != 16 {
		t.Fatalf("outcomes = %d", len(sink.outcomes))
	}
}
