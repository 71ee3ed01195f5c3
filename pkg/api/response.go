package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billing/pkg/logger"
)

const maxJSONBody = 64 << 10

// envelope is the body of every non-webhook response.
type envelope struct {
	Data  any          `json:"data,omitempty"`
	Meta  any          `json:"meta,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

// writeError logs err and answers with its mapped status. Server errors hide
// the message from the client.
func (rt *router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	info := classifyError(err)
	rt.logger.LogAttrs(r.Context(), logLevel(info.status), "request failed",
		logger.Error(err),
		slog.Int("status_code", info.status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	msg := err.Error()
	if info.status >= http.StatusInternalServerError {
		msg = http.StatusText(info.status)
	}
	writeJSON(w, info.status, envelope{Error: &errorDetail{Code: info.code, Message: msg}})
}

// decodeJSON reads one JSON object from the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrMalformedBody, err)
	}
	return nil
}
