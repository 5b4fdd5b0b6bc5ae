package orchestrator

import "time"

// State of a conversation.
type State int

// Conversation states. A turn moves from Idle (or Done) through Thinking, and through
// ToolCalling and WaitingForTool for every round of tool calls, to Finalizing and Done.
// Error is entered from any state on a failure that ends the turn.
const (
	StateIdle State = iota
	StateThinking
	StateToolCalling
	StateWaitingForTool
	StateFinalizing
	StateDone
	StateError
)

// Transition is reported to listeners on every state change.
type Transition struct {
	ConversationID string    `json:"conversationId"`
	From           State     `json:"from"`
	To             State     `json:"to"`
	Loop           int       `json:"loop"`
	Tool           string    `json:"tool,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// Listener observes transitions. It is called synchronously and must not block.
type Listener interface {
	OnTransition(Transition)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Transition)

// OnTransition calls f.
func (f ListenerFunc) OnTransition(t Transition) {
	f(t)
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateThinking:
		return "THINKING"
	case StateToolCalling:
		return "TOOL_CALLING"
	case StateWaitingForTool:
		return "WAITING_FOR_TOOL"
	case StateFinalizing:
		return "FINALIZING"
	case StateDone:
		return "DONE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// acceptsInput reports whether a new turn may start.
func (s State) acceptsInput() bool {
	return s == StateIdle || s == StateDone
}
