package model

import (
	"time"

	"github.com/google/uuid"
)

// Change types recorded on version rows.
const (
	ChangeCreate       = "CREATE"
	ChangeUpdate       = "UPDATE"
	ChangeDelete       = "DELETE"
	ChangeRestore      = "RESTORE"
	ChangeStatusChange = "STATUS_CHANGE"
)

// ObjectVersion is an immutable snapshot of one mutation. Rows are append
// only; (ObjectID, VersionNumber) is unique and gap-free per object.
type ObjectVersion struct {
	ID            uuid.UUID      `json:"id"`
	ObjectID      uuid.UUID      `json:"objectId"`
	VersionNumber int            `json:"versionNumber"`
	ChangeType    string         `json:"changeType"`
	PreviousData  map[string]any `json:"previousData,omitempty"`
	CurrentData   map[string]any `json:"currentData,omitempty"`
	Diff          map[string]any `json:"diff,omitempty"`
	ChangedBy     string         `json:"changedBy"`
	IP            string         `json:"ipAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	ChangeReason  string         `json:"changeReason,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}
