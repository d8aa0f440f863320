// Package httpapi is the HTTP transport over the kernel services.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/kernel"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	Core  *kernel.Core
	Store *store.Store
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	if code >= 500 {
		log.Ctx(r.Context()).Error().Int("status", code).Str("path", r.URL.Path).Msg(msg)
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

// kindStatus maps a kernel error kind to an HTTP status.
func kindStatus(k model.Kind) int {
	switch k {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindInvalidArgument:
		return http.StatusBadRequest
	case model.KindInvalidState:
		return http.StatusUnprocessableEntity
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	case model.KindIntegrity:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeKernelError maps a service error onto the wire. Internal detail is
// logged, not leaked: unknown errors get a generic body.
func writeKernelError(w http.ResponseWriter, r *http.Request, err error) {
	code := kindStatus(model.KindOf(err))
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

// parsePage reads page/size query params into a PageRequest. Values are
// clamped by the store.
func parsePage(r *http.Request) model.PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	return model.PageRequest{Page: page, Size: size}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
