package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/WessleyAI/geoaudit/pkg/fn"
	"github.com/WessleyAI/geoaudit/pkg/llm"
	"github.com/WessleyAI/geoaudit/pkg/resilience"
	"go.opentelemetry.io/otel/attribute"
)

// Completer sends one chat-completion request and returns the answer text.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// State is the lifecycle position of a single audit.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateSucceeded
	StateDegraded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateSucceeded:
		return "succeeded"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateOf maps the producing tier to the terminal state.
func StateOf(t Tier) State {
	switch t {
	case TierStructured:
		return StateSucceeded
	case TierExtracted, TierHeuristic:
		return StateDegraded
	default:
		return StateFailed
	}
}

// Outcome summarizes one finished audit for observers.
type Outcome struct {
	Kind     Kind
	URL      string
	Tier     Tier
	Score    int
	Duration time.Duration
	Cause    error
}

// OutcomeSink receives an Outcome after every audit. Implementations must
// not block for long; they run on the caller's goroutine.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, o Outcome)
}

// Options configures the request sent to the LLM.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// Breaker, when set, short-circuits requests after repeated transport
	// failures. An open breaker yields the mock analysis.
	Breaker *resilience.Breaker
}

// DefaultOptions returns the production request parameters.
func DefaultOptions() Options {
	return Options{
		Model:       "gpt-4",
		MaxTokens:   2000,
		Temperature: 0.3,
		Timeout:     30 * time.Second,
	}
}

// Pipeline runs audits. It is safe for concurrent use; audits share no
// mutable state.
type Pipeline struct {
	llm    Completer
	opts   Options
	sinks  []OutcomeSink
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline. Zero-valued options fall back to DefaultOptions.
func New(c Completer, opts Options, logger *slog.Logger, sinks ...OutcomeSink) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = def.Temperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Pipeline{
		llm:    c,
		opts:   opts,
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

// Analyze audits t. It never fails: transport problems produce the mock
// analysis, malformed answers are mined heuristically.
func (p *Pipeline) Analyze(ctx context.Context, t Target) Report {
	start := p.now()
	url := t.TargetURL()
	p.transition(ctx, t, StateIdle, StateRequesting)

	req := BuildRequest(t, p.opts)
	stage := resilience.BreakerStage(p.opts.Breaker, fn.TracedStage("audit.complete", p.complete,
		attribute.String("audit.kind", string(t.Kind())),
		attribute.String("audit.model", p.opts.Model),
	))

	var rep Report
	text, err := stage(ctx, req).Unwrap()
	if err != nil {
		rep = Report{Analysis: MockAnalysis(t), Tier: TierMock, Cause: err}
		p.transition(ctx, t, StateRequesting, StateFailed, "tier", rep.Tier, "err", err)
	} else {
		a, tier := ParseLoose(text, t)
		rep = Report{Analysis: a, Tier: tier}
		p.transition(ctx, t, StateRequesting, StateOf(tier), "tier", tier, "score", a.Score, "answer_len", len(text))
	}

	o := Outcome{
		Kind:     t.Kind(),
		URL:      url,
		Tier:     rep.Tier,
		Score:    rep.Analysis.Score,
		Duration: p.now().Sub(start),
		Cause:    rep.Cause,
	}
	for _, s := range p.sinks {
		s.RecordOutcome(ctx, o)
	}
	return rep
}

// AnalyzeWebsite is Analyze for a WebsiteTarget.
func (p *Pipeline) AnalyzeWebsite(ctx context.Context, url string) Report {
	return p.Analyze(ctx, WebsiteTarget{URL: url})
}

// AnalyzePost is Analyze for a PostTarget.
func (p *Pipeline) AnalyzePost(ctx context.Context, url, title, contentHTML string) Report {
	return p.Analyze(ctx, PostTarget{URL: url, Title: title, ContentHTML: contentHTML})
}

func (p *Pipeline) complete(ctx context.Context, req llm.ChatRequest) fn.Result[string] {
	if p.llm == nil {
		return fn.Err[string](errors.New("audit: no LLM configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	text, err := p.llm.Complete(ctx, req)
	if err == nil && text == "" {
		err = llm.ErrEmptyCompletion
	}
	return fn.FromPair(text, err)
}

// transition logs a state change. Degraded and failed audits log at Warn.
func (p *Pipeline) transition(ctx context.Context, t Target, from, to State, attrs ...any) {
	level := slog.LevelInfo
	if to == StateDegraded || to == StateFailed {
		level = slog.LevelWarn
	}
	args := append([]any{"url", t.TargetURL(), "kind", t.Kind(), "from", from.String(), "to", to.String()}, attrs...)
	p.logger.Log(ctx, level, "audit state", args...)
}
