package model

import (
	"time"

	"github.com/google/uuid"
)

// Relationship cardinalities. Declared, not enforced by the store.
const (
	CardinalityOneToOne   = "ONE_TO_ONE"
	CardinalityOneToMany  = "ONE_TO_MANY"
	CardinalityManyToMany = "MANY_TO_MANY"
)

// Relationship is a directed, typed edge between two objects.
// (SourceID, TargetID, RelType) is unique. Deleting either endpoint
// cascades to the edge.
type Relationship struct {
	ID            uuid.UUID      `json:"id"`
	SourceID      uuid.UUID      `json:"sourceObjectId"`
	TargetID      uuid.UUID      `json:"targetObjectId"`
	RelType       string         `json:"relationshipType"`
	Cardinality   string         `json:"cardinality"`
	Bidirectional bool           `json:"isBidirectional"`
	InverseType   string         `json:"inverseRelationshipType,omitempty"`
	Strength      *float64       `json:"strength,omitempty"`
	DisplayOrder  *int           `json:"displayOrder,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Active        bool           `json:"isActive"`
	CreatedAt     time.Time      `json:"createdAt"`
	CreatedBy     string         `json:"createdBy"`
	ModifiedAt    time.Time      `json:"modifiedAt"`
	ModifiedBy    string         `json:"modifiedBy"`
}

// MetadataCache is a type-level descriptor mirrored from the external
// metadata authority. It enriches validation when present and fresh; the
// store never requires it.
type MetadataCache struct {
	ID             uuid.UUID      `json:"id"`
	TypeCode       string         `json:"objectTypeCode"`
	TypeName       string         `json:"objectTypeName"`
	Descriptor     map[string]any `json:"metadata"`
	AttributeDefs  map[string]any `json:"attributeDefinitions,omitempty"`
	ValidationRule map[string]any `json:"validationRules,omitempty"`
	SyncedAt       time.Time      `json:"syncedAt"`
	Stale          bool           `json:"isStale"`
	TTLMinutes     int            `json:"ttlMinutes"`
	UsageCount     int64          `json:"usageCount"`
	LastAccessedAt *time.Time     `json:"lastAccessedAt,omitempty"`
}

// ValidForUse reports whether the descriptor may be used for validation:
// not stale and inside its TTL window.
func (m *MetadataCache) ValidForUse(now time.Time) bool {
	if m.Stale {
		return false
	}
	return now.Before(m.SyncedAt.Add(time.Duration(m.TTLMinutes) * time.Minute))
}
