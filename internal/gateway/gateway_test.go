package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/gateway"
	"github.com/nakad-pixel/Mcpclient/internal/mcptest"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

func newSession(t *testing.T, tools ...mcptest.Tool) (*mcptest.Server, *session.Session) {
	t.Helper()
	srv := mcptest.NewServer(tools...)
	t.Cleanup(srv.Close)

	store := session.NewStore()
	sess, err := store.CreateSession(context.Background(), "test", srv.URL, nil)
	require.NoError(t, err)
	return srv, sess
}

func TestInvoke(t *testing.T) {
	srv, sess := newSession(t,
		mcptest.TextTool("read_file", []string{"path"}, func(args map[string]any) string {
			return fmt.Sprintf("contents of %s", args["path"])
		}),
		mcptest.Tool{
			Tool: mcp.Tool{Name: "weather", InputSchema: []byte(`{"type":"object","required":["city","unit"]}`)},
			Handler: func(args map[string]any) (any, error) {
				return map[string]any{"city": args["city"], "temp": 21}, nil
			},
		},
		mcptest.Tool{
			Tool:    mcp.Tool{Name: "greet"},
			Handler: func(map[string]any) (any, error) { return "hello there", nil },
		},
		mcptest.Tool{
			Tool:    mcp.Tool{Name: "fail"},
			Handler: func(map[string]any) (any, error) { return nil, errors.New("disk on fire") },
		},
	)

	gw := gateway.New(gateway.WithMeterProvider(noop.NewMeterProvider()))

	type testCase struct {
		name       string
		tool       string
		args       map[string]any
		wantKind   mcp.Kind
		wantResult string
		check      func(t *testing.T, err error)
	}

	testCases := []testCase{
		{
			name:       "content list result",
			tool:       "read_file",
			args:       map[string]any{"path": "/etc/hosts"},
			wantResult: "contents of /etc/hosts",
		},
		{
			name:       "structured result is json",
			tool:       "weather",
			args:       map[string]any{"city": "Oslo", "unit": "C"},
			wantResult: `{"city":"Oslo","temp":21}`,
		},
		{
			name:       "bare string result",
			tool:       "greet",
			wantResult: "hello there",
		},
		{
			name:     "unknown tool",
			tool:     "delete_everything",
			wantKind: mcp.KindToolNotFound,
			check: func(t *testing.T, err error) {
				var e *mcp.Error
				require.True(t, errors.As(err, &e))
				details := e.Details.(map[string]any)
				assert.Equal(t, []string{"read_file", "weather", "greet", "fail"}, details["available"])
			},
		},
		{
			name:     "missing required field",
			tool:     "weather",
			args:     map[string]any{"city": "Oslo"},
			wantKind: mcp.KindToolValidation,
			check: func(t *testing.T, err error) {
				var e *mcp.Error
				require.True(t, errors.As(err, &e))
				assert.Contains(t, e.Message, `"unit"`)
				assert.Equal(t, "unit", e.Details.(map[string]any)["field"])
			},
		},
		{
			name:     "first missing field named",
			tool:     "weather",
			args:     nil,
			wantKind: mcp.KindToolValidation,
			check: func(t *testing.T, err error) {
				var e *mcp.Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "city", e.Details.(map[string]any)["field"])
			},
		},
		{
			name:     "remote error propagates",
			tool:     "fail",
			wantKind: mcp.KindRemote,
		},
		{
			name:     "empty tool name",
			tool:     "",
			wantKind: mcp.KindInvalidRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := srv.Calls(mcp.MethodToolsCall)
			inv, err := gw.Invoke(context.Background(), sess, tc.tool, tc.args)

			if tc.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, mcp.KindOf(err))
				if tc.wantKind != mcp.KindRemote {
					assert.Equal(t, before, srv.Calls(mcp.MethodToolsCall), "rejected call must not reach the server")
				}
				if tc.check != nil {
					tc.check(t, err)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.tool, inv.ToolName)
			assert.Equal(t, tc.wantResult, inv.Result)
			assert.Positive(t, inv.ExecutionTime)
			assert.Equal(t, before+1, srv.Calls(mcp.MethodToolsCall))
		})
	}
}

func TestDispatchSkipsCatalog(t *testing.T) {
	srv, sess := newSession(t)
	srv.SetTools(mcptest.Tool{
		Tool:    mcp.Tool{Name: "llm_gpt_4"},
		Handler: func(map[string]any) (any, error) { return map[string]any{"response": "hi"}, nil },
	})

	gw := gateway.New()
	result, _, err := gw.Dispatch(context.Background(), sess, "llm_gpt_4", map[string]any{"prompt": "x"})
	require.NoError(t, err)
	got, ok := mcp.StringField(result, "response")
	assert.True(t, ok)
	assert.Equal(t, "hi", got)

	_, err = gw.Invoke(context.Background(), sess, "llm_gpt_4", nil)
	assert.True(t, mcp.IsKind(err, mcp.KindToolNotFound), "catalog snapshot is still empty")
}
