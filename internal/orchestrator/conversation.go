// Package orchestrator drives a chat turn: it asks the selected model (or a council of
// models) for the next step, runs the tools the model requests on the connected MCP
// servers and feeds the results back until the model produces a final answer.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/gateway"
	"github.com/nakad-pixel/Mcpclient/internal/history"
	"github.com/nakad-pixel/Mcpclient/internal/llm"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

const instrumentationName = "github.com/nakad-pixel/Mcpclient/internal/orchestrator"

// DefaultMaxLoops bounds the model round trips of a single turn.
const DefaultMaxLoops = 8

// ErrBusy is wrapped by Submit and Reset while a turn is running.
var ErrBusy = errors.New("conversation busy")

// Config selects the models of a conversation and how they are called.
type Config struct {
	ID           string   `json:"id"`
	Models       []string `json:"models"`
	Council      bool     `json:"council"`
	MaxLoops     int      `json:"maxLoops"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
}

// ToolInvoker runs a tool on a session.
type ToolInvoker interface {
	Invoke(ctx context.Context, sess *session.Session, toolName string, args map[string]any) (gateway.Invocation, error)
}

// ToolExecution reports one tool call made during a turn.
type ToolExecution struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	SessionID string         `json:"sessionId,omitempty"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind mcp.Kind       `json:"errorKind,omitempty"`
	Loop      int            `json:"loop"`
	Duration  time.Duration  `json:"duration"`
}

// Turn is the outcome of a completed Submit.
type Turn struct {
	ConversationID string          `json:"conversationId"`
	Answer         string          `json:"answer"`
	Model          string          `json:"model"`
	Loops          int             `json:"loops"`
	ToolCalls      []ToolExecution `json:"toolCalls"`
	Duration       time.Duration   `json:"duration"`
}

// Option configures a Conversation.
type Option func(*Conversation)

// Conversation is one chat with its history and state. Only one turn runs at a time.
type Conversation struct {
	cfg      Config
	resolver llm.Resolver
	router   *Router
	sessions SessionSource
	invoker  ToolInvoker
	recorder history.Recorder
	listener Listener
	budget   *Budget
	logger   zerolog.Logger
	now      func() time.Time

	meterProvider metric.MeterProvider
	turns         metric.Int64Counter
	loops         metric.Int64Histogram

	mu      sync.Mutex
	state   State
	history []llm.Message
	lastErr error
}

// WithResolver sets how model names are turned into providers.
func WithResolver(r llm.Resolver) Option {
	return func(c *Conversation) {
		c.resolver = r
	}
}

// WithTools routes tool calls through router to sessions looked up in sessions and
// runs them with invoker.
func WithTools(router *Router, sessions SessionSource, invoker ToolInvoker) Option {
	return func(c *Conversation) {
		c.router = router
		c.sessions = sessions
		c.invoker = invoker
	}
}

// WithRecorder stores a transcript of every completed turn.
func WithRecorder(r history.Recorder) Option {
	return func(c *Conversation) {
		c.recorder = r
	}
}

// WithListener reports state transitions to l.
func WithListener(l Listener) Option {
	return func(c *Conversation) {
		c.listener = l
	}
}

// WithBudget trims the history sent to the model.
func WithBudget(b *Budget) Option {
	return func(c *Conversation) {
		c.budget = b
	}
}

// WithLogger sets the logger for the conversation.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Conversation) {
		c.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		c.now = now
	}
}

// WithMeterProvider sets the meter provider instruments are created from.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Conversation) {
		c.meterProvider = mp
	}
}

// New creates a conversation in the IDLE state.
func New(cfg Config, options ...Option) *Conversation {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.MaxLoops <= 0 {
		cfg.MaxLoops = DefaultMaxLoops
	}
	c := &Conversation{
		cfg:      cfg,
		recorder: history.Nop{},
		logger:   zerolog.Nop(),
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.meterProvider == nil {
		c.meterProvider = otel.GetMeterProvider()
	}
	c.logger = c.logger.With().Str("conversation", cfg.ID).Logger()

	meter := c.meterProvider.Meter(instrumentationName)
	var err error
	c.turns, err = meter.Int64Counter("mcpclient.orchestrator.turns",
		metric.WithDescription("Conversation turns by outcome."))
	if err != nil {
		otel.Handle(err)
	}
	c.loops, err = meter.Int64Histogram("mcpclient.orchestrator.loops",
		metric.WithDescription("Model round trips per turn."))
	if err != nil {
		otel.Handle(err)
	}

	return c
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	return c.cfg.ID
}

// Config returns the conversation settings.
func (c *Conversation) Config() Config {
	cfg := c.cfg
	cfg.Models = append([]string(nil), c.cfg.Models...)
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		cfg.Temperature = &t
	}
	return cfg
}

// Router returns the tool router, nil when the conversation has no tools.
func (c *Conversation) Router() *Router {
	return c.router
}

// State returns the current state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the conversation to ERROR, if any.
func (c *Conversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// History returns a copy of the messages exchanged so far, without the system prompt.
func (c *Conversation) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.history...)
}

// Reset returns a finished or failed conversation to IDLE, keeping its history.
func (c *Conversation) Reset() error {
	c.mu.Lock()
	from := c.state
	if from != StateError && from != StateDone && from != StateIdle {
		c.mu.Unlock()
		return mcp.WrapError(mcp.KindInvalidRequest, ErrBusy, "turn in progress ("+from.String()+")")
	}
	c.state = StateIdle
	c.lastErr = nil
	c.mu.Unlock()

	if from != StateIdle {
		c.notify(Transition{From: from, To: StateIdle})
	}
	return nil
}

// Submit runs one turn for the user input and returns the final answer. Failures that
// end the turn leave the conversation in ERROR until Reset.
func (c *Conversation) Submit(ctx context.Context, input string) (Turn, error) {
	if strings.TrimSpace(input) == "" {
		return Turn{}, mcp.NewError(mcp.KindInvalidRequest, "message is required")
	}

	c.mu.Lock()
	if !c.state.acceptsInput() {
		state := c.state
		c.mu.Unlock()
		return Turn{}, mcp.WrapError(mcp.KindInvalidRequest, ErrBusy, "cannot accept input ("+state.String()+")")
	}
	provider, model, err := c.provider()
	if err != nil {
		c.mu.Unlock()
		return Turn{}, err
	}
	from := c.state
	c.state = StateThinking
	c.history = append(c.history, llm.Message{Role: llm.RoleUser, Content: input})
	keepFrom := len(c.history) - 1
	c.mu.Unlock()
	c.notify(Transition{From: from, To: StateThinking, Loop: 1})

	start := c.now()
	turn := Turn{ConversationID: c.cfg.ID, ToolCalls: make([]ToolExecution, 0)}

	for loop := 1; loop <= c.cfg.MaxLoops; loop++ {
		if loop > 1 {
			c.transition(StateThinking, loop, "")
		}
		turn.Loops = loop

		var tools []llm.ToolSpec
		if c.router != nil {
			tools, err = c.router.Catalog(ctx)
			if err != nil {
				return turn, c.fail(ctx, err, loop)
			}
		}

		reply, err := provider.Complete(ctx, llm.Request{
			Model:       model,
			Messages:    c.prompt(keepFrom),
			Tools:       tools,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		})
		if err != nil {
			return turn, c.fail(ctx, err, loop)
		}
		if err := ctx.Err(); err != nil {
			return turn, c.fail(ctx, err, loop)
		}
		turn.Model = reply.Model
		if turn.Model == "" {
			turn.Model = model
		}

		if len(reply.ToolCalls) == 0 {
			c.transition(StateFinalizing, loop, "")
			c.append(llm.Message{Role: llm.RoleAssistant, Content: reply.Content})
			turn.Answer = reply.Content
			turn.Duration = c.now().Sub(start)
			c.record(ctx, input, turn)
			c.transition(StateDone, loop, "")
			c.finish(ctx, "done", loop)
			return turn, nil
		}

		c.transition(StateToolCalling, loop, "")
		calls := make([]llm.ToolCall, len(reply.ToolCalls))
		for i, call := range reply.ToolCalls {
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			calls[i] = call
		}
		c.append(llm.Message{Role: llm.RoleAssistant, Content: reply.Content, ToolCalls: calls})

		for _, call := range calls {
			exec, err := c.execute(ctx, call, loop)
			if err != nil {
				exec.Error = err.Error()
				exec.ErrorKind = mcp.KindOf(err)
				turn.ToolCalls = append(turn.ToolCalls, exec)
				return turn, c.fail(ctx, err, loop)
			}
			turn.ToolCalls = append(turn.ToolCalls, exec)

			msg := llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: exec.Result}
			if exec.Error != "" {
				msg.Content = "Error: " + exec.Error
				msg.IsError = true
			}
			c.append(msg)
		}
	}

	err = mcp.Errorf(mcp.KindLoopLimitExceeded, "no final answer after %d model calls", c.cfg.MaxLoops).
		WithDetails(map[string]any{"maxLoops": c.cfg.MaxLoops, "toolCalls": turn.ToolCalls})
	turn.Duration = c.now().Sub(start)
	return turn, c.fail(ctx, err, c.cfg.MaxLoops)
}

// provider resolves the models of the conversation without any network call. Must be
// called with c.mu held.
func (c *Conversation) provider() (llm.Provider, string, error) {
	models := c.cfg.Models
	if len(models) == 0 {
		return nil, "", mcp.NewError(mcp.KindNoModelSelected, "no model selected")
	}
	if c.cfg.Council && len(models) < 2 {
		return nil, "", mcp.Errorf(mcp.KindInsufficientCouncilModels,
			"council mode needs at least 2 models, got %d", len(models))
	}
	if c.resolver == nil {
		return nil, "", mcp.NewError(mcp.KindInternal, "no model resolver configured")
	}

	if !c.cfg.Council {
		p, id, err := c.resolver.Resolve(models[0])
		if err != nil {
			return nil, "", err
		}
		return p, id, nil
	}

	members := make([]llm.Member, 0, len(models))
	for _, name := range models {
		p, id, err := c.resolver.Resolve(name)
		if err != nil {
			return nil, "", err
		}
		members = append(members, llm.Member{Name: name, Model: id, Provider: p})
	}
	return llm.NewCouncil(c.logger, members...), "", nil
}

// prompt builds the messages for the next model call.
func (c *Conversation) prompt(keepFrom int) []llm.Message {
	c.mu.Lock()
	msgs := append([]llm.Message(nil), c.history...)
	c.mu.Unlock()

	reserved := 0
	var system []llm.Message
	if c.cfg.SystemPrompt != "" {
		sys := llm.Message{Role: llm.RoleSystem, Content: c.cfg.SystemPrompt}
		system = append(system, sys)
		if c.budget != nil {
			reserved = c.budget.Cost(sys)
		}
	}
	trimmed := c.budget.Trim(msgs, keepFrom, reserved)
	if dropped := len(msgs) - len(trimmed); dropped > 0 {
		c.logger.Debug().Int("dropped", dropped).Msg("history trimmed to token budget")
	}
	return append(system, trimmed...)
}

// execute runs one tool call. Unknown tools and remote tool failures are returned
// inside the execution for the model to act on. Invalid arguments and transport
// failures are returned as errors and end the turn.
func (c *Conversation) execute(ctx context.Context, call llm.ToolCall, loop int) (ToolExecution, error) {
	exec := ToolExecution{ID: call.ID, Name: call.Name, Arguments: call.Arguments, Loop: loop}
	if exec.Arguments == nil {
		exec.Arguments = map[string]any{}
	}

	inv, sid, err := c.invoke(ctx, call, loop)
	exec.SessionID = sid
	if err != nil {
		if ctx.Err() != nil {
			return exec, ctx.Err()
		}
		switch mcp.KindOf(err) {
		case mcp.KindToolNotFound, mcp.KindRemote:
			exec.Error = err.Error()
			exec.ErrorKind = mcp.KindOf(err)
			c.logger.Warn().Err(err).Str("tool", call.Name).Int("loop", loop).Msg("tool call failed")
			return exec, nil
		default:
			return exec, err
		}
	}

	exec.Result = inv.Result
	exec.Duration = inv.ExecutionTime
	return exec, nil
}

func (c *Conversation) invoke(ctx context.Context, call llm.ToolCall, loop int) (gateway.Invocation, string, error) {
	if c.router == nil || c.sessions == nil || c.invoker == nil {
		return gateway.Invocation{}, "", mcp.Errorf(mcp.KindToolNotFound, "tool %q not found", call.Name).
			WithDetails(map[string]any{"available": []string{}})
	}
	sid, err := c.router.Resolve(call.Name)
	if err != nil {
		return gateway.Invocation{}, "", err
	}
	sess, err := c.sessions.GetSession(sid)
	if err != nil {
		return gateway.Invocation{}, sid, err
	}

	c.transition(StateWaitingForTool, loop, call.Name)
	inv, err := c.invoker.Invoke(ctx, sess, call.Name, call.Arguments)
	c.transition(StateToolCalling, loop, call.Name)
	return inv, sid, err
}

func (c *Conversation) append(m llm.Message) {
	c.mu.Lock()
	c.history = append(c.history, m)
	c.mu.Unlock()
}

func (c *Conversation) record(ctx context.Context, input string, turn Turn) {
	msgs, err := json.Marshal(c.History())
	if err != nil {
		c.logger.Error().Err(err).Msg("encode transcript")
		return
	}
	err = c.recorder.Record(ctx, history.Transcript{
		ConversationID: c.cfg.ID,
		Input:          input,
		Answer:         turn.Answer,
		Model:          turn.Model,
		Loops:          turn.Loops,
		Messages:       msgs,
		CreatedAt:      c.now(),
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("record transcript")
	}
}

func (c *Conversation) fail(ctx context.Context, err error, loop int) error {
	if errors.Is(err, context.DeadlineExceeded) && mcp.KindOf(err) == mcp.KindInternal {
		err = mcp.WrapError(mcp.KindTimeout, err, "turn deadline exceeded")
	}

	c.mu.Lock()
	from := c.state
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Error().Err(err).Int("loop", loop).Str("kind", string(mcp.KindOf(err))).Msg("turn failed")
	c.notify(Transition{From: from, To: StateError, Loop: loop, Error: err.Error()})
	c.finish(ctx, strings.ToLower(string(mcp.KindOf(err))), loop)
	return err
}

func (c *Conversation) finish(ctx context.Context, outcome string, loops int) {
	ctx = context.WithoutCancel(ctx)
	c.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	c.loops.Record(ctx, int64(loops))
}

func (c *Conversation) transition(to State, loop int, tool string) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	if from != to {
		c.notify(Transition{From: from, To: to, Loop: loop, Tool: tool})
	}
}

func (c *Conversation) notify(t Transition) {
	if c.listener == nil {
		return
	}
	t.ConversationID = c.cfg.ID
	t.At = c.now()
	c.listener.OnTransition(t)
}
