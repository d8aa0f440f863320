package httpapi

import (
	"net/http"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/kernel"
)

// CreateRelationship handles POST /relationships.
func (s *Server) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req kernel.RelateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rel, err := s.Core.Relationships.Relate(r.Context(), TenantID(r.Context()), Actor(r.Context()), req)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// DeleteRelationship handles DELETE /relationships/{id}.
func (s *Server) DeleteRelationship(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.Core.Relationships.Unrelate(r.Context(), TenantID(r.Context()), id, Actor(r.Context())); err != nil {
		writeKernelError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListObjectRelationships handles GET /objects/{id}/relationships?type=.
func (s *Server) ListObjectRelationships(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	rels, err := s.Core.Relationships.ListRelated(r.Context(), TenantID(r.Context()), id, r.URL.Query().Get("type"))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rels})
}
