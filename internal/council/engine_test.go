package council

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/gateway"
	"github.com/nakad-pixel/Mcpclient/internal/mcptest"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

type answer struct {
	raw   string
	err   error
	delay time.Duration
}

type stubDispatcher struct {
	answers map[string]answer

	mu       sync.Mutex
	payloads map[string]map[string]any

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (d *stubDispatcher) Dispatch(
	ctx context.Context,
	_ *session.Session,
	toolName string,
	args map[string]any,
) (mcp.ToolResult, time.Duration, error) {
	n := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		m := d.maxInflight.Load()
		if n <= m || d.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	d.mu.Lock()
	if d.payloads == nil {
		d.payloads = map[string]map[string]any{}
	}
	d.payloads[toolName] = args
	d.mu.Unlock()

	a, ok := d.answers[toolName]
	if !ok {
		return nil, 0, mcp.Errorf(mcp.KindRemote, "unknown tool: %s", toolName)
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.delay, a.err
	}
	return mcp.ParseToolResult(json.RawMessage(a.raw)), a.delay, nil
}

func TestGetConsensusMajority(t *testing.T) {
	d := &stubDispatcher{answers: map[string]answer{
		"llm_gpt_4":     {raw: `"Paris"`},
		"llm_claude":    {raw: `{"content":[{"type":"text","text":"paris"}]}`, delay: 30 * time.Millisecond},
		"llm_mistral":   {raw: `{"response":"Paris","confidence":0.4}`},
		"llm_llama_3_1": {raw: `{"text":"London"}`},
	}}
	engine := NewEngine(d)

	res, err := engine.GetConsensus(context.Background(), nil, Request{
		Prompt: "Capital of France?",
		Models: []string{"gpt-4", "claude", "mistral", "llama-3.1"},
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyMajorityVote, res.Strategy)
	assert.Equal(t, "Paris", res.Consensus)
	assert.Equal(t, "gpt-4", res.VotedModel)

	require.Len(t, res.Details, 4)
	assert.Equal(t, "claude", res.Details[1].Model, "details keep request order")
	assert.Equal(t, "paris", *res.Details[1].Response, "slow model was waited for")
	assert.InDelta(t, 1.0, res.Details[0].Confidence, 1e-9)
	assert.InDelta(t, 0.4, res.Details[2].Confidence, 1e-9)
	assert.Equal(t, "London", *res.Details[3].Response)

	payload := d.payloads["llm_gpt_4"]
	assert.Equal(t, "gpt-4", payload["model"])
	assert.Equal(t, "Capital of France?", payload["prompt"])
	assert.Equal(t, DefaultTemperature, payload["temperature"])
	assert.Equal(t, DefaultMaxTokens, payload["maxTokens"])
}

func TestGetConsensusPartialFailure(t *testing.T) {
	d := &stubDispatcher{answers: map[string]answer{
		"llm_a": {err: mcp.NewError(mcp.KindTimeout, "too slow")},
		"llm_b": {raw: `"short"`},
		"llm_c": {raw: `"   "`},
		"llm_d": {raw: `"a much longer answer"`},
	}}
	temperature := 0.1
	maxTokens := 64

	res, err := NewEngine(d).GetConsensus(context.Background(), nil, Request{
		Prompt:      "q",
		Models:      []string{"a", "b", "c", "d"},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyLongestResponse, res.Strategy)
	assert.Equal(t, "d", res.VotedModel)

	assert.Nil(t, res.Details[0].Response)
	assert.Contains(t, res.Details[0].Error, "too slow")
	assert.Zero(t, res.Details[0].Confidence)
	assert.Nil(t, res.Details[2].Response)
	assert.Equal(t, ErrEmptyResponse.Error(), res.Details[2].Error)

	assert.Equal(t, 0.1, d.payloads["llm_b"]["temperature"])
	assert.Equal(t, 64, d.payloads["llm_b"]["maxTokens"])
}

func TestGetConsensusSingleSurvivor(t *testing.T) {
	d := &stubDispatcher{answers: map[string]answer{
		"llm_a": {err: errors.New("boom")},
		"llm_b": {raw: `{"content":"only me"}`},
	}}

	res, err := NewEngine(d).GetConsensus(context.Background(), nil, Request{Prompt: "q", Models: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, StrategySingleModel, res.Strategy)
	assert.Equal(t, "only me", res.Consensus)
	assert.Equal(t, "b", res.VotedModel)
}

func TestGetConsensusAllFailed(t *testing.T) {
	d := &stubDispatcher{answers: map[string]answer{
		"llm_a": {err: errors.New("boom")},
		"llm_b": {raw: `""`},
		"llm_c": {raw: `null`},
	}}

	_, err := NewEngine(d).GetConsensus(context.Background(), nil, Request{Prompt: "q", Models: []string{"a", "b", "c"}})
	require.Error(t, err)
	assert.Equal(t, mcp.KindAllModelsFailed, mcp.KindOf(err))

	var e *mcp.Error
	require.True(t, errors.As(err, &e))
	details, ok := e.Details.([]Response)
	require.True(t, ok)
	require.Len(t, details, 3)
	for _, r := range details {
		assert.Nil(t, r.Response)
		assert.NotEmpty(t, r.Error)
	}
}

func TestGetConsensusValidation(t *testing.T) {
	engine := NewEngine(&stubDispatcher{})

	_, err := engine.GetConsensus(context.Background(), nil, Request{Prompt: " ", Models: []string{"a"}})
	assert.True(t, mcp.IsKind(err, mcp.KindInvalidRequest))

	_, err = engine.GetConsensus(context.Background(), nil, Request{Prompt: "q"})
	assert.True(t, mcp.IsKind(err, mcp.KindInvalidRequest))
}

func TestGetConsensusConcurrency(t *testing.T) {
	answers := map[string]answer{}
	models := []string{"a", "b", "c", "d", "e", "f"}
	for _, m := range models {
		answers[ToolName(m)] = answer{raw: `"same"`, delay: 20 * time.Millisecond}
	}

	unbounded := &stubDispatcher{answers: answers}
	_, err := NewEngine(unbounded, WithConcurrency(0)).GetConsensus(context.Background(), nil, Request{Prompt: "q", Models: models})
	require.NoError(t, err)
	assert.Greater(t, unbounded.maxInflight.Load(), int32(1), "models are asked concurrently")

	bounded := &stubDispatcher{answers: answers}
	_, err = NewEngine(bounded, WithConcurrency(2)).GetConsensus(context.Background(), nil, Request{Prompt: "q", Models: models})
	require.NoError(t, err)
	assert.LessOrEqual(t, bounded.maxInflight.Load(), int32(2))
}

func TestGetConsensusThroughGateway(t *testing.T) {
	srv := mcptest.NewServer(
		mcptest.Tool{
			Tool: mcp.Tool{Name: "llm_gpt_4o"},
			Handler: func(args map[string]any) (any, error) {
				return map[string]any{"content": []map[string]any{{"type": "text", "text": "4"}}}, nil
			},
		},
		mcptest.Tool{
			Tool:    mcp.Tool{Name: "llm_claude_3_haiku"},
			Handler: func(args map[string]any) (any, error) { return "4", nil },
		},
	)
	defer srv.Close()

	store := session.NewStore()
	sess, err := store.CreateSession(context.Background(), "llm", srv.URL, nil)
	require.NoError(t, err)

	engine := NewEngine(gateway.New())
	res, err := engine.GetConsensus(context.Background(), sess, Request{
		Prompt: "2+2?",
		Models: []string{"gpt-4o", "claude-3-haiku", "missing-model"},
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyMajorityVote, res.Strategy)
	assert.Equal(t, "4", res.Consensus)
	assert.Equal(t, "gpt-4o", res.VotedModel)
	assert.Nil(t, res.Details[2].Response)
	assert.Equal(t, 3, srv.Calls(mcp.MethodToolsCall))
}

func TestExtractResponse(t *testing.T) {
	type testCase struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}

	testCases := []testCase{
		{name: "string", raw: `"hi"`, want: "hi", wantOK: true},
		{name: "content list", raw: `{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`, want: "a\nb", wantOK: true},
		{name: "content string", raw: `{"content":"c"}`, want: "c", wantOK: true},
		{name: "response member", raw: `{"response":"r","text":"t"}`, want: "r", wantOK: true},
		{name: "text member", raw: `{"text":"t"}`, want: "t", wantOK: true},
		{name: "json dump", raw: `{"answer":1}`, want: `{"answer":1}`, wantOK: true},
		{name: "null", raw: `null`},
		{name: "blank", raw: `"  \n "`},
		{name: "blank content", raw: `{"content":[{"type":"text","text":""}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractResponse(mcp.ParseToolResult(json.RawMessage(tc.raw)))
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
