package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var (
	errNotFoundRoute    = &domain.AppError{Kind: domain.KindNotFound, Message: "route not found"}
	errMethodNotAllowed = &domain.AppError{Kind: domain.KindBadRequest, Message: "method not allowed"}
	errEmptyBody        = &domain.AppError{Kind: domain.KindBadRequest, Message: "request body is required"}
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.ErrorKind       `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError maps err to its status code. Errors that are not
// *domain.AppError are reported as internal without their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := domain.AsAppError(err)
	status := appErr.HTTPStatus()
	if appErr == errMethodNotAllowed {
		status = http.StatusMethodNotAllowed
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Kind:    appErr.Kind,
		Message: appErr.UserMessage(),
		Details: appErr.Details,
	}})
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return domain.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err))
	}
	if dec.More() {
		return domain.NewBadRequestError("request body must contain a single JSON value")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if err := decodeJSON(r, v); err != errEmptyBody {
		return err
	}
	return nil
}

func urlID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewBadRequestError(fmt.Sprintf("query parameter %s must be a non-negative integer", key)).
			WithDetail("field", key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.NewBadRequestError(fmt.Sprintf("query parameter %s must be a boolean", key)).
			WithDetail("field", key)
	}
	return b, nil
}

// deleted is the body of successful deletes.
type deleted struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
