// Package events fans conversation and session events out to Server-Sent Events
// subscribers.
package events

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tmaxmax/go-sse"

	"github.com/nakad-pixel/Mcpclient/internal/orchestrator"
)

// Event types.
const (
	TypeConnected  = "connected"
	TypeTransition = "transition"
	TypeSession    = "session"
	TypeRegistry   = "registry"
)

// DefaultBuffer is the number of events queued per subscriber before new ones are dropped.
const DefaultBuffer = 64

// Event is published to subscribers. Events without a conversation id reach every
// subscriber.
type Event struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	Data           any       `json:"data,omitempty"`
	At             time.Time `json:"at"`
}

// Option configures a Broker.
type Option func(*Broker)

// Broker delivers events to connected subscribers. A subscriber that falls behind
// loses events instead of slowing publishers down.
type Broker struct {
	logger zerolog.Logger
	buffer int
	now    func() time.Time

	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	done      chan struct{}
	closeOnce sync.Once

	dropped atomic.Int64
}

type subscriber struct {
	id           string
	conversation string
	ch           chan Event
}

// WithLogger sets the logger for the broker.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithBuffer sets the per subscriber queue length.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBroker creates a broker.
func NewBroker(options ...Option) *Broker {
	b := &Broker{
		logger: zerolog.Nop(),
		buffer: DefaultBuffer,
		now:    time.Now,
		subs:   map[*subscriber]struct{}{},
		done:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Publish queues e for every matching subscriber without blocking.
func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.conversation != "" && e.ConversationID != "" && sub.conversation != e.ConversationID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug().Str("subscriber", sub.id).Str("type", e.Type).Msg("subscriber queue full, event dropped")
		}
	}
}

// OnTransition publishes a conversation state change.
func (b *Broker) OnTransition(t orchestrator.Transition) {
	b.Publish(Event{Type: TypeTransition, ConversationID: t.ConversationID, Data: t, At: t.At})
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of events dropped for slow subscribers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// Close disconnects every subscriber.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// ServeHTTP streams events until the client goes away or the broker is closed. The
// conversation query parameter restricts the stream to one conversation.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.Stream(w, r, r.URL.Query().Get("conversation"))
}

// Stream serves the events of one conversation, or all events when conversation is empty.
func (b *Broker) Stream(w http.ResponseWriter, r *http.Request, conversation string) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := &subscriber{
		id:           uuid.NewString(),
		conversation: conversation,
		ch:           make(chan Event, b.buffer),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.logger.Debug().Str("subscriber", sub.id).Int("subscribers", count).Msg("events subscriber connected")

	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		b.logger.Debug().Str("subscriber", sub.id).Msg("events subscriber disconnected")
	}()

	hello := Event{Type: TypeConnected, ConversationID: conversation, Data: map[string]string{"subscriber": sub.id}, At: b.now()}
	if err := send(sess, hello); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-b.done:
			return
		case e := <-sub.ch:
			if err := send(sess, e); err != nil {
				b.logger.Debug().Err(err).Str("subscriber", sub.id).Msg("failed to write event")
				return
			}
		}
	}
}

func send(sess *sse.Session, e Event) error {
	bs, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := &sse.Message{Type: sse.Type(e.Type)}
	msg.AppendData(string(bs))
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}
