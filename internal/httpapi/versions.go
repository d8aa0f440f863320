package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetVersionHistory handles GET /versions/object/{id}.
func (s *Server) GetVersionHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	res, err := s.Core.Reader.VersionHistory(r.Context(), TenantID(r.Context()), id, parsePage(r))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetVersion handles GET /versions/object/{id}/version/{number}.
func (s *Server) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "version number must be an integer")
		return
	}
	v, err := s.Core.Reader.VersionAt(r.Context(), TenantID(r.Context()), id, number)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetVersionAtTime handles GET /versions/object/{id}/at?timestamp=RFC3339.
func (s *Server) GetVersionAtTime(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	at, err := time.Parse(time.RFC3339, r.URL.Query().Get("timestamp"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "timestamp must be RFC3339")
		return
	}
	v, err := s.Core.Reader.VersionAtTime(r.Context(), TenantID(r.Context()), id, at)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
