package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

type metadataSyncRequest struct {
	TypeCode       string         `json:"objectTypeCode"`
	TypeName       string         `json:"objectTypeName"`
	Descriptor     map[string]any `json:"metadata"`
	AttributeDefs  map[string]any `json:"attributeDefinitions,omitempty"`
	ValidationRule map[string]any `json:"validationRules,omitempty"`
	TTLMinutes     int            `json:"ttlMinutes,omitempty"`
}

// SyncTypeMetadata handles PUT /metadata. The metadata authority pushes
// descriptors here.
func (s *Server) SyncTypeMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataSyncRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m := &model.MetadataCache{
		ID:             uuid.New(),
		TypeCode:       req.TypeCode,
		TypeName:       req.TypeName,
		Descriptor:     req.Descriptor,
		AttributeDefs:  req.AttributeDefs,
		ValidationRule: req.ValidationRule,
		SyncedAt:       time.Now().UTC(),
		TTLMinutes:     req.TTLMinutes,
	}
	if err := s.Core.Registry.Sync(r.Context(), m); err != nil {
		writeKernelError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListStaleTypeMetadata handles GET /metadata/stale.
func (s *Server) ListStaleTypeMetadata(w http.ResponseWriter, r *http.Request) {
	out, err := s.Core.Registry.RefreshNeeded(r.Context())
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTypeMetadata handles GET /metadata/{typeCode}.
func (s *Server) GetTypeMetadata(w http.ResponseWriter, r *http.Request) {
	m, err := s.Core.Registry.Describe(r.Context(), chi.URLParam(r, "typeCode"))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// MarkTypeMetadataStale handles POST /metadata/{typeCode}/stale.
func (s *Server) MarkTypeMetadataStale(w http.ResponseWriter, r *http.Request) {
	if err := s.Core.Registry.MarkStale(r.Context(), chi.URLParam(r, "typeCode")); err != nil {
		writeKernelError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeadLetters handles GET /outbox/dead-letters. Terminal FAILED rows
// stay in place until an operator deals with them.
func (s *Server) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	res, err := s.Store.DeadLetters(r.Context(), parsePage(r))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
