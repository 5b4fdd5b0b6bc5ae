package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure surfaced by the backend. Kinds are stable strings and are
// echoed verbatim to HTTP clients as error codes.
type Kind string

// Error is the typed failure returned by the remote procedure client and by every
// component built on top of it.
type Error struct {
	Kind    Kind
	Message string

	// Status is the HTTP status returned by a remote server, zero if none was received.
	Status int
	// Body holds the raw (or truncated) response body for diagnostics.
	Body string
	// Hint is a remediation suggestion suitable for display.
	Hint string
	// Details carries kind specific payload, for example the remote JSON-RPC error
	// object or the per-model results of a failed consensus.
	Details any

	Err error
}

// Error kinds.
const (
	KindInvalidRequest            Kind = "INVALID_REQUEST"
	KindSessionNotFound           Kind = "SESSION_NOT_FOUND"
	KindToolNotFound              Kind = "TOOL_NOT_FOUND"
	KindToolValidation            Kind = "TOOL_VALIDATION_ERROR"
	KindTimeout                   Kind = "TIMEOUT"
	KindRemote                    Kind = "REMOTE_ERROR"
	KindUnexpectedContentType     Kind = "UNEXPECTED_CONTENT_TYPE"
	KindAllModelsFailed           Kind = "ALL_MODELS_FAILED"
	KindLoopLimitExceeded         Kind = "LOOP_LIMIT_EXCEEDED"
	KindNoModelSelected           Kind = "NO_MODEL_SELECTED"
	KindInsufficientCouncilModels Kind = "INSUFFICIENT_COUNCIL_MODELS"
	KindInternal                  Kind = "INTERNAL_ERROR"
)

const previewLimit = 200

// NewError returns an Error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf returns an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns an Error of the given kind wrapping err.
func WrapError(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithDetails attaches a details payload and returns the same error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err. Errors that are not *Error are KindInternal,
// a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HintForStatus returns the remediation hint attached to HTML responses, keyed by the
// HTTP status the server answered with.
func HintForStatus(status int) string {
	switch {
	case status == 401:
		return "The server rejected the credentials. Check the Authorization header or API key configured for this server."
	case status == 403:
		return "The server refused access. Verify the account has permission to use this MCP endpoint."
	case status == 404:
		return "The endpoint was not found. Check that the URL points at the MCP JSON-RPC endpoint and not the server's home page."
	case status >= 500:
		return "The server is failing or unavailable. Try again later or check the server status."
	default:
		return "Check that the MCP server URL is correct and that it accepts JSON-RPC requests from this client."
	}
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewLimit {
		return body
	}
	return string(r[:previewLimit])
}
