package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/kernel"
)

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// CreateObject handles POST /objects.
func (s *Server) CreateObject(w http.ResponseWriter, r *http.Request) {
	var req kernel.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := s.Core.Mutator.Create(r.Context(), TenantID(r.Context()), Actor(r.Context()), req)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GetObject handles GET /objects/{id}.
func (s *Server) GetObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.Core.Reader.Get(r.Context(), TenantID(r.Context()), id)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GetObjectByCode handles GET /objects/code/{typeCode}/{code}.
func (s *Server) GetObjectByCode(w http.ResponseWriter, r *http.Request) {
	typeCode := chi.URLParam(r, "typeCode")
	code := chi.URLParam(r, "code")
	o, err := s.Core.Reader.GetByCode(r.Context(), TenantID(r.Context()), typeCode, code)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateObject handles PUT /objects/{id}.
func (s *Server) UpdateObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req kernel.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := s.Core.Mutator.Update(r.Context(), TenantID(r.Context()), id, Actor(r.Context()), req)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DeleteObject handles DELETE /objects/{id}. The optional reason query
// param lands in the version row.
func (s *Server) DeleteObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	err := s.Core.Mutator.SoftDelete(r.Context(), TenantID(r.Context()), id, Actor(r.Context()), r.URL.Query().Get("reason"))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreObject handles POST /objects/{id}/restore.
func (s *Server) RestoreObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.Core.Mutator.Restore(r.Context(), TenantID(r.Context()), id, Actor(r.Context()))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusChangeRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ChangeObjectStatus handles POST /objects/{id}/status.
func (s *Server) ChangeObjectStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req statusChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := s.Core.Mutator.ChangeStatus(r.Context(), TenantID(r.Context()), id, Actor(r.Context()), req.Status, req.Reason)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ListObjectsByType handles GET /objects/type/{typeCode}.
func (s *Server) ListObjectsByType(w http.ResponseWriter, r *http.Request) {
	res, err := s.Core.Reader.ListByType(r.Context(), TenantID(r.Context()), chi.URLParam(r, "typeCode"), r.URL.Query().Get("status"), parsePage(r))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListObjectsByStatus handles GET /objects/status/{status}.
func (s *Server) ListObjectsByStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.Core.Reader.ListByStatus(r.Context(), TenantID(r.Context()), chi.URLParam(r, "status"), parsePage(r))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchObjects handles GET /objects/search?typeCode=&q=.
func (s *Server) SearchObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.Core.Reader.SearchByName(r.Context(), TenantID(r.Context()), q.Get("typeCode"), q.Get("q"), parsePage(r))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// QueryObjectsByAttribute handles GET /objects/attribute?typeCode=&key=&value=.
// The value is matched as a JSON string; structured values go through the
// data document directly.
func (s *Server) QueryObjectsByAttribute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.Core.Reader.QueryByAttribute(r.Context(), TenantID(r.Context()), q.Get("typeCode"), q.Get("key"), q.Get("value"), parsePage(r))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type bulkGetRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// BulkGetObjects handles POST /objects/bulk-get.
func (s *Server) BulkGetObjects(w http.ResponseWriter, r *http.Request) {
	var req bulkGetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items, err := s.Core.Reader.BulkGet(r.Context(), TenantID(r.Context()), req.IDs)
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// CountObjects handles GET /objects/counts.
func (s *Server) CountObjects(w http.ResponseWriter, r *http.Request) {
	counts, err := s.Core.Reader.CountByType(r.Context(), TenantID(r.Context()))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// RecentObjects handles GET /objects/recent?since=RFC3339. Without since,
// the last 24 hours are returned.
func (s *Server) RecentObjects(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	res, err := s.Core.Reader.RecentlyModified(r.Context(), TenantID(r.Context()), since, parsePage(r))
	if err != nil {
		writeKernelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
