package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/walkiger/storyforge/internal/errs"
	"github.com/walkiger/storyforge/internal/token"
)

type errorBody struct {
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	Required string `json:"required,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeUnauthenticated sends the single generic 401 used for every
// authentication failure cause.
func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not_authenticated"})
}

// respondError maps internal errors to protocol status codes. Root causes are
// logged, never returned to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *errs.ConflictError
	var forbidden *errs.AuthorizationError

	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "conflict", Field: conflict.Field})
	case errors.Is(err, errs.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: err.Error()})
	case errors.Is(err, errs.ErrUnauthorized),
		errors.Is(err, token.ErrMalformed),
		errors.Is(err, token.ErrInvalid),
		errors.Is(err, token.ErrExpired):
		// The causes stay distinguishable here for logging only.
		s.log.Info("authentication failed",
			zap.String("path", r.URL.Path),
			zap.String("reason", err.Error()),
		)
		writeUnauthenticated(w)
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Required: forbidden.Required})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("reqID", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}
