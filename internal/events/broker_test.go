package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"

	"github.com/nakad-pixel/Mcpclient/internal/orchestrator"
)

func subscribe(t *testing.T, url string) <-chan sse.Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	out := make(chan sse.Event, 16)
	go func() {
		defer close(out)
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				return
			}
			out <- ev
		}
	}()
	return out
}

func next(t *testing.T, ch <-chan sse.Event) sse.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return sse.Event{}
	}
}

func TestBrokerStreamsFilteredEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(b)
	defer srv.Close()
	defer b.Close()

	events := subscribe(t, srv.URL+"?conversation=c1")
	hello := next(t, events)
	assert.Equal(t, TypeConnected, hello.Type)
	assert.Equal(t, 1, b.Subscribers())

	b.OnTransition(orchestrator.Transition{ConversationID: "c2", From: orchestrator.StateIdle, To: orchestrator.StateThinking})
	b.OnTransition(orchestrator.Transition{ConversationID: "c1", From: orchestrator.StateThinking, To: orchestrator.StateDone, Loop: 2})
	b.Publish(Event{Type: TypeSession, Data: map[string]string{"sessionId": "s1"}})

	ev := next(t, events)
	assert.Equal(t, TypeTransition, ev.Type)
	var got struct {
		ConversationID string `json:"conversationId"`
		Data           struct {
			From string `json:"from"`
			To   string `json:"to"`
			Loop int    `json:"loop"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &got))
	assert.Equal(t, "c1", got.ConversationID)
	assert.Equal(t, "THINKING", got.Data.From)
	assert.Equal(t, "DONE", got.Data.To)
	assert.Equal(t, 2, got.Data.Loop)

	ev = next(t, events)
	assert.Equal(t, TypeSession, ev.Type, "events without a conversation reach every subscriber")
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewBroker(WithBuffer(1))
	sub := &subscriber{id: "slow", ch: make(chan Event, 1)}
	b.subs[sub] = struct{}{}

	b.Publish(Event{Type: TypeSession})
	b.Publish(Event{Type: TypeSession})
	b.Publish(Event{Type: TypeSession})

	assert.Len(t, sub.ch, 1)
	assert.Equal(t, int64(2), b.Dropped())
}

func TestBrokerCloseEndsStreams(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(b)
	defer srv.Close()

	events := subscribe(t, srv.URL)
	next(t, events)
	b.Close()
	b.Close()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed")
	}
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
