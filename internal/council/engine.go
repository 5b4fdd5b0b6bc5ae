// Package council asks several models the same question through a connected MCP
// server and reduces their answers to one.
//
// Each model is reached through a tool named after it (see ToolName). All models are
// asked concurrently and every call is allowed to settle; failures are folded into the
// per-model details and only abort the request when no model answered.
package council

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

const instrumentationName = "github.com/nakad-pixel/Mcpclient/internal/council"

// Defaults applied when a request leaves temperature or max tokens unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
	DefaultConcurrency = 8
)

var toolNameReplacer = regexp.MustCompile(`[^a-z0-9]`)

// ErrEmptyResponse marks a model that answered with blank text.
var ErrEmptyResponse = errors.New("empty response")

// Dispatcher calls a tool on a session without consulting its catalog.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *session.Session, toolName string, args map[string]any) (mcp.ToolResult, time.Duration, error)
}

// Option configures an Engine.
type Option func(*Engine)

// Engine runs consensus requests.
type Engine struct {
	dispatcher  Dispatcher
	temperature float64
	maxTokens   int
	concurrency int
	logger      zerolog.Logger
	now         func() time.Time

	meterProvider metric.MeterProvider
	requests      metric.Int64Counter
	failures      metric.Int64Counter
}

// Request is one consensus question.
type Request struct {
	Prompt      string
	Models      []string
	Temperature *float64
	MaxTokens   *int
}

// Response is one model's contribution. Response is nil when the model failed.
type Response struct {
	Model      string  `json:"model"`
	Response   *string `json:"response"`
	Error      string  `json:"error,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Result is the reduced answer with the per-model details in request order.
type Result struct {
	Consensus     string        `json:"consensus"`
	VotedModel    string        `json:"votedModel"`
	Strategy      Strategy      `json:"strategy"`
	Details       []Response    `json:"details"`
	ExecutionTime time.Duration `json:"-"`
}

// WithDefaults sets the temperature and max tokens used when a request omits them.
func WithDefaults(temperature float64, maxTokens int) Option {
	return func(e *Engine) {
		e.temperature = temperature
		e.maxTokens = maxTokens
	}
}

// WithConcurrency bounds how many models are asked at once. Zero or less means no bound.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source used to measure execution time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMeterProvider sets the meter provider instruments are created from.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) {
		e.meterProvider = mp
	}
}

// NewEngine creates an Engine dispatching model calls through d.
func NewEngine(d Dispatcher, options ...Option) *Engine {
	e := &Engine{
		dispatcher:  d,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		concurrency: DefaultConcurrency,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.meterProvider == nil {
		e.meterProvider = otel.GetMeterProvider()
	}

	meter := e.meterProvider.Meter(instrumentationName)
	var err error
	if e.requests, err = meter.Int64Counter("mcpclient.council.requests",
		metric.WithDescription("Consensus requests by resulting strategy.")); err != nil {
		otel.Handle(err)
	}
	if e.failures, err = meter.Int64Counter("mcpclient.council.model_failures",
		metric.WithDescription("Individual model calls that produced no answer.")); err != nil {
		otel.Handle(err)
	}

	return e
}

// ToolName derives the tool a model is reached through: "llm_" followed by the
// lower-cased model name with every character outside [a-z0-9] replaced by '_'.
func ToolName(model string) string {
	return "llm_" + toolNameReplacer.ReplaceAllString(strings.ToLower(model), "_")
}

// GetConsensus asks every model in req concurrently and votes over the answers.
// It fails with ALL_MODELS_FAILED, carrying every Response as details, when no model
// produced a non-blank answer.
func (e *Engine) GetConsensus(ctx context.Context, sess *session.Session, req Request) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, mcp.NewError(mcp.KindInvalidRequest, "prompt is required")
	}
	if len(req.Models) == 0 {
		return Result{}, mcp.NewError(mcp.KindInvalidRequest, "at least one model is required")
	}

	temperature := e.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := e.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	start := e.now()
	responses := make([]Response, len(req.Models))

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, model := range req.Models {
		g.Go(func() error {
			responses[i] = e.ask(ctx, sess, model, map[string]any{
				"model":       model,
				"prompt":      req.Prompt,
				"temperature": temperature,
				"maxTokens":   maxTokens,
			})
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]Candidate, 0, len(responses))
	for _, r := range responses {
		if r.Response != nil {
			candidates = append(candidates, Candidate{Model: r.Model, Response: *r.Response})
		}
	}

	elapsed := e.now().Sub(start)

	decision, ok := Vote(candidates)
	if !ok {
		e.countRequest(ctx, "all_failed")
		e.logger.Warn().Int("models", len(req.Models)).Dur("elapsed", elapsed).Msg("all council models failed")
		return Result{}, mcp.Errorf(mcp.KindAllModelsFailed, "all %d models failed", len(req.Models)).
			WithDetails(responses)
	}

	e.countRequest(ctx, string(decision.Strategy))
	e.logger.Info().
		Str("strategy", string(decision.Strategy)).
		Str("voted_model", decision.VotedModel).
		Int("answered", len(candidates)).
		Int("models", len(req.Models)).
		Dur("elapsed", elapsed).
		Msg("consensus reached")

	return Result{
		Consensus:     decision.Consensus,
		VotedModel:    decision.VotedModel,
		Strategy:      decision.Strategy,
		Details:       responses,
		ExecutionTime: elapsed,
	}, nil
}

func (e *Engine) ask(ctx context.Context, sess *session.Session, model string, payload map[string]any) Response {
	result, _, err := e.dispatcher.Dispatch(ctx, sess, ToolName(model), payload)
	if err == nil {
		text, ok := ExtractResponse(result)
		if !ok {
			err = ErrEmptyResponse
		} else {
			confidence := 1.0
			if c, ok := mcp.NumberField(result, "confidence"); ok {
				confidence = c
			}
			return Response{Model: model, Response: &text, Confidence: confidence}
		}
	}

	if e.failures != nil {
		e.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
	}
	e.logger.Debug().Err(err).Str("model", model).Msg("council model failed")
	return Response{Model: model, Error: err.Error()}
}

// ExtractResponse pulls a model's answer out of a tool result: the text of string and
// content results, else a non-empty response or text member, else the JSON of the
// whole result. Blank answers report false.
func ExtractResponse(r mcp.ToolResult) (string, bool) {
	var text string
	switch v := r.(type) {
	case nil, mcp.NullResult:
		return "", false
	case mcp.StructuredResult:
		if s, ok := mcp.StringField(v, "response"); ok {
			text = s
		} else if s, ok := mcp.StringField(v, "text"); ok {
			text = s
		} else {
			text = v.Text()
		}
	default:
		text = r.Text()
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (e *Engine) countRequest(ctx context.Context, outcome string) {
	if e.requests != nil {
		e.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
