// Package gateway dispatches tool calls to connected MCP servers. It checks a call
// against the session's advertised catalog, times the remote execution and renders
// the result in its canonical text form.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

const instrumentationName = "github.com/nakad-pixel/Mcpclient/internal/gateway"

// Option configures a Gateway.
type Option func(*Gateway)

// Gateway invokes tools on sessions.
type Gateway struct {
	logger        zerolog.Logger
	meterProvider metric.MeterProvider

	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// Invocation is the outcome of a successful Invoke.
type Invocation struct {
	ToolName      string
	Result        string
	Raw           mcp.ToolResult
	ExecutionTime time.Duration
}

// WithLogger sets the logger for the gateway.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMeterProvider sets the meter provider instruments are created from. The global
// provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(g *Gateway) {
		g.meterProvider = mp
	}
}

// New creates a Gateway.
func New(options ...Option) *Gateway {
	g := &Gateway{logger: zerolog.Nop()}
	for _, opt := range options {
		opt(g)
	}
	if g.meterProvider == nil {
		g.meterProvider = otel.GetMeterProvider()
	}

	meter := g.meterProvider.Meter(instrumentationName)
	var err error
	g.calls, err = meter.Int64Counter("mcpclient.tool.calls",
		metric.WithDescription("Tool calls dispatched to MCP servers."))
	if err != nil {
		otel.Handle(err)
	}
	g.duration, err = meter.Float64Histogram("mcpclient.tool.duration",
		metric.WithDescription("Wall clock duration of tool calls."),
		metric.WithUnit("ms"))
	if err != nil {
		otel.Handle(err)
	}

	return g
}

// Invoke calls toolName on the session after checking that the tool is in the
// session's current catalog and that every field the tool's schema marks as required
// is present in args. Only presence is checked.
func (g *Gateway) Invoke(
	ctx context.Context,
	sess *session.Session,
	toolName string,
	args map[string]any,
) (Invocation, error) {
	if toolName == "" {
		return Invocation{}, mcp.NewError(mcp.KindInvalidRequest, "tool name is required")
	}

	tool, ok := sess.Tool(toolName)
	if !ok {
		available := make([]string, 0)
		for _, t := range sess.Tools() {
			available = append(available, t.Name)
		}
		g.record(ctx, toolName, "not_found", 0)
		return Invocation{}, mcp.Errorf(mcp.KindToolNotFound, "tool %q not found", toolName).
			WithDetails(map[string]any{"available": available})
	}

	if field, missing := tool.MissingRequired(args); missing {
		g.record(ctx, toolName, "invalid", 0)
		return Invocation{}, mcp.Errorf(mcp.KindToolValidation, "missing required field %q for tool %q", field, toolName).
			WithDetails(map[string]any{"field": field, "required": tool.Required()})
	}

	result, elapsed, err := g.Dispatch(ctx, sess, toolName, args)
	if err != nil {
		return Invocation{}, err
	}

	return Invocation{
		ToolName:      toolName,
		Result:        result.Text(),
		Raw:           result,
		ExecutionTime: elapsed,
	}, nil
}

// Dispatch calls toolName on the session's client without consulting the catalog and
// returns the parsed result with the wall clock time the call took.
func (g *Gateway) Dispatch(
	ctx context.Context,
	sess *session.Session,
	toolName string,
	args map[string]any,
) (mcp.ToolResult, time.Duration, error) {
	start := time.Now()
	raw, err := sess.Client.CallTool(ctx, toolName, args)
	elapsed := time.Since(start)

	if err != nil {
		g.record(ctx, toolName, "error", elapsed)
		g.logger.Warn().
			Err(err).
			Str("session_id", sess.ID).
			Str("tool", toolName).
			Dur("elapsed", elapsed).
			Msg("tool call failed")
		return nil, elapsed, err
	}

	g.record(ctx, toolName, "ok", elapsed)
	g.logger.Debug().
		Str("session_id", sess.ID).
		Str("tool", toolName).
		Dur("elapsed", elapsed).
		Msg("tool call completed")

	return mcp.ParseToolResult(raw), elapsed, nil
}

func (g *Gateway) record(ctx context.Context, tool, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	if g.calls != nil {
		g.calls.Add(ctx, 1, attrs)
	}
	if g.duration != nil && elapsed > 0 {
		g.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}
