package api

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/orchestrator"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: message, Details: details}})
}

// writeError renders err with the status its kind maps to.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := mcp.KindOf(err)

	var e *mcp.Error
	if !errors.As(err, &e) {
		s.deps.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
		writeFailure(w, status, string(mcp.KindInternal), "internal server error", nil)
		return
	}
	if status >= http.StatusInternalServerError {
		s.deps.Logger.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	message := e.Message
	if message == "" {
		message = err.Error()
	}
	writeFailure(w, status, string(kind), message, errorDetails(e))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNotFound):
		return http.StatusNotFound
	}
	switch mcp.KindOf(err) {
	case mcp.KindInvalidRequest, mcp.KindNoModelSelected, mcp.KindInsufficientCouncilModels, mcp.KindToolValidation:
		return http.StatusBadRequest
	case mcp.KindSessionNotFound:
		return http.StatusUnauthorized
	case mcp.KindToolNotFound:
		return http.StatusNotFound
	case mcp.KindRemote, mcp.KindUnexpectedContentType, mcp.KindAllModelsFailed:
		return http.StatusBadGateway
	case mcp.KindTimeout:
		return http.StatusGatewayTimeout
	case mcp.KindLoopLimitExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorDetails(e *mcp.Error) any {
	if e.Status == 0 && e.Body == "" && e.Hint == "" {
		return e.Details
	}
	d := map[string]any{}
	if e.Status != 0 {
		d["status"] = e.Status
	}
	if e.Body != "" {
		d["body"] = e.Body
	}
	if e.Hint != "" {
		d["suggestion"] = e.Hint
	}
	if e.Details != nil {
		d["details"] = e.Details
	}
	return d
}

// decode reads a JSON body into v. An empty body leaves v untouched when optional.
func decode(r *http.Request, v any, optional bool) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	err := json.NewDecoder(body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if optional {
			return nil
		}
		return mcp.NewError(mcp.KindInvalidRequest, "request body is required")
	default:
		return mcp.WrapError(mcp.KindInvalidRequest, err, "invalid JSON body")
	}
}
