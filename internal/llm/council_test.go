package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/nakad-pixel/Mcpclient"
)

func fixed(reply Reply, err error, delay time.Duration) Provider {
	return ProviderFunc(func(ctx context.Context, req Request) (Reply, error) {
		time.Sleep(delay)
		reply.Model = req.Model
		return reply, err
	})
}

func TestCouncilPrefersToolCalls(t *testing.T) {
	c := NewCouncil(zerolog.Nop(),
		Member{Name: "a", Model: "a-1", Provider: fixed(Reply{Content: "plain answer"}, nil, 0)},
		Member{Name: "b", Model: "b-1", Provider: fixed(Reply{ToolCalls: []ToolCall{{ID: "1", Name: "search"}}}, nil, 20*time.Millisecond)},
		Member{Name: "c", Model: "c-1", Provider: fixed(Reply{ToolCalls: []ToolCall{{ID: "2", Name: "fetch"}}}, nil, 0)},
	)

	reply, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "b", reply.Model, "first member in order with tool calls, even if slower")
	assert.Equal(t, "search", reply.ToolCalls[0].Name)
}

func TestCouncilVotesOnContent(t *testing.T) {
	c := NewCouncil(zerolog.Nop(),
		Member{Name: "a", Provider: fixed(Reply{Content: "Paris"}, nil, 0)},
		Member{Name: "b", Provider: fixed(Reply{Content: "London"}, nil, 0)},
		Member{Name: "c", Provider: fixed(Reply{Content: " paris"}, nil, 0)},
		Member{Name: "d", Provider: fixed(Reply{}, errors.New("down"), 0)},
	)

	reply, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "a", reply.Model)
	assert.Equal(t, "Paris", reply.Content)
}

func TestCouncilSendsMemberModelID(t *testing.T) {
	var seen atomic.Value
	c := NewCouncil(zerolog.Nop(),
		Member{Name: "display", Model: "upstream-id", Provider: ProviderFunc(func(_ context.Context, req Request) (Reply, error) {
			seen.Store(req.Model)
			return Reply{Content: "ok"}, nil
		})},
	)
	reply, err := c.Complete(context.Background(), Request{Model: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "upstream-id", seen.Load())
	assert.Equal(t, "display", reply.Model)
}

func TestCouncilAllFailed(t *testing.T) {
	c := NewCouncil(zerolog.Nop(),
		Member{Name: "a", Provider: fixed(Reply{}, errors.New("x"), 0)},
		Member{Name: "b", Provider: fixed(Reply{}, errors.New("y"), 0)},
	)
	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, mcp.KindAllModelsFailed, mcp.KindOf(err))

	var e *mcp.Error
	require.ErrorAs(t, err, &e)
	assert.Len(t, e.Details, 2)
}

func TestCouncilEmptyContentFallsBackToFirstReply(t *testing.T) {
	c := NewCouncil(zerolog.Nop(),
		Member{Name: "a", Provider: fixed(Reply{Content: ""}, nil, 0)},
		Member{Name: "b", Provider: fixed(Reply{Content: "  "}, nil, 0)},
	)
	reply, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "a", reply.Model)
}
