package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/gateway"
	"github.com/nakad-pixel/Mcpclient/internal/mcptest"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

func TestMCPToolProvider(t *testing.T) {
	var prompt string
	plain := mcptest.NewServer()
	defer plain.Close()
	withModel := mcptest.NewServer(mcptest.Tool{
		Tool: mcp.Tool{Name: "llm_mistral_large"},
		Handler: func(args map[string]any) (any, error) {
			prompt, _ = args["prompt"].(string)
			return map[string]any{"response": "Bonjour"}, nil
		},
	})
	defer withModel.Close()

	store := session.NewStore()
	s1, err := store.CreateSession(context.Background(), "plain", plain.URL, nil)
	require.NoError(t, err)
	s2, err := store.CreateSession(context.Background(), "models", withModel.URL, nil)
	require.NoError(t, err)

	p := NewMCPTool(store, gateway.New(), "sess_missing", s1.ID, s2.ID)
	reply, err := p.Complete(context.Background(), Request{
		Model: "Mistral-Large",
		Messages: []Message{
			{Role: RoleSystem, Content: "Answer in French."},
			{Role: RoleUser, Content: "Say hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", reply.Content)
	assert.Equal(t, "System: Answer in French.\n\nUser: Say hello", prompt)
	assert.Equal(t, 0, plain.Calls(mcp.MethodToolsCall), "session advertising the tool is preferred")
}

func TestMCPToolProviderNoSession(t *testing.T) {
	store := session.NewStore()
	_, err := NewMCPTool(store, gateway.New()).Complete(context.Background(), Request{Model: "x"})
	assert.True(t, mcp.IsKind(err, mcp.KindInvalidRequest))

	_, err = NewMCPTool(store, gateway.New(), "sess_gone").Complete(context.Background(), Request{Model: "x"})
	assert.True(t, mcp.IsKind(err, mcp.KindSessionNotFound))
}

func TestTranscript(t *testing.T) {
	got := Transcript([]Message{
		{Role: RoleUser, Content: "list files"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "ls"}}},
		{Role: RoleTool, Name: "ls", Content: "a\nb"},
	})
	assert.Equal(t, "User: list files\n\nAssistant: \n[called ls]\n\nTool result (ls):\na\nb", got)
}

func TestDirectoryResolve(t *testing.T) {
	keys := staticKeys{"openrouter": "sk"}
	d := NewDirectory(keys, http.DefaultClient, zerolog.Nop(),
		Model{Name: "GPT-4o", Service: "openrouter", ID: "openai/gpt-4o", BaseURL: "https://openrouter.ai/api/v1"},
		Model{Name: "llama", Service: "groq", BaseURL: "https://api.groq.com/openai/v1"},
	)

	p, id, err := d.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", id)
	assert.IsType(t, &OpenAI{}, p)

	again, _, err := d.Resolve("GPT-4o")
	require.NoError(t, err)
	assert.Same(t, p, again, "providers are reused per service")

	_, id, err = d.Resolve("llama")
	require.NoError(t, err)
	assert.Equal(t, "llama", id)

	_, _, err = d.Resolve("unknown")
	assert.True(t, mcp.IsKind(err, mcp.KindInvalidRequest))

	fallback := ProviderFunc(func(context.Context, Request) (Reply, error) { return Reply{Content: "fb"}, nil })
	withFallback := d.WithFallback(fallback)
	p, id, err = withFallback.Resolve("unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", id)
	reply, err := p.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fb", reply.Content)

	// Models set after the fallback resolver was derived are visible through it.
	d.SetModels(Model{Name: "unknown", Service: "groq", BaseURL: "https://api.groq.com/openai/v1"})
	p, id, err = withFallback.Resolve("unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", id)
	assert.IsType(t, &OpenAI{}, p)

	p, _, err = withFallback.Resolve("gpt-4o")
	require.NoError(t, err)
	reply, err = p.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fb", reply.Content, "removed models fall back")
}
