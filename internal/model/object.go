package model

import (
	"time"

	"github.com/google/uuid"
)

// Object statuses. DELETED is only ever set through soft delete; the other
// transitions go through the status-change operation.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusArchived = "ARCHIVED"
	StatusDeleted  = "DELETED"
)

// ValidStatus reports whether s is a status a client may request via the
// status-change operation. DELETED is excluded on purpose.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// statusTransitions holds the allowed status-change edges. Soft delete and
// restore are separate operations and do not appear here.
var statusTransitions = map[string][]string{
	StatusActive:   {StatusInactive, StatusArchived},
	StatusInactive: {StatusActive},
}

// CanTransition reports whether a status change from -> to is allowed.
func CanTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Object is the live record for a (tenant, type, code) triple. The data
// document is schema-flexible; only the envelope fields here are fixed.
type Object struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenantId"`
	TypeCode   string         `json:"objectTypeCode"`
	Code       string         `json:"objectCode"`
	Name       string         `json:"objectName"`
	Data       map[string]any `json:"data"`
	Status     string         `json:"status"`
	Version    int            `json:"version"`
	Deleted    bool           `json:"isDeleted"`
	DeletedAt  *time.Time     `json:"deletedAt,omitempty"`
	DeletedBy  *string        `json:"deletedBy,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	CreatedBy  string         `json:"createdBy"`
	ModifiedAt time.Time      `json:"modifiedAt"`
	ModifiedBy string         `json:"modifiedBy"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MarkDeleted applies the soft-delete field changes. The caller increments
// the version and persists.
func (o *Object) MarkDeleted(by string, at time.Time) {
	o.Deleted = true
	o.DeletedAt = &at
	o.DeletedBy = &by
	o.Status = StatusDeleted
}

// Restore clears the soft-delete fields and reactivates the object.
func (o *Object) Restore() {
	o.Deleted = false
	o.DeletedAt = nil
	o.DeletedBy = nil
	o.Status = StatusActive
}

// ActorContext carries the audit identity of the caller through every
// mutation. There is no ambient or thread-local fallback: a zero User is an
// invalid argument at the mutator boundary.
type ActorContext struct {
	User      string
	IP        string
	UserAgent string
}

// PageRequest is a 1-based page selector. Size is capped by the store.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps a page request to sane bounds.
func (p PageRequest) Normalize(maxSize int) PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	if p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

// Offset returns the row offset for the page.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.Size }

// PageResult is one page of items plus the total row count for the filter.
type PageResult[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}
