package kernel

import (
	"time"

	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

// eventSource identifies this component in every event envelope.
const eventSource = "kernel"

// objectEventPayload builds the event envelope for an object mutation. The
// payload is frozen into the outbox row at commit time; consumers see the
// object exactly as the mutation left it.
func objectEventPayload(eventType string, o *model.Object, now time.Time) map[string]any {
	return map[string]any{
		"eventId":   uuid.NewString(),
		"eventType": eventType,
		"timestamp": now.UTC().Format(time.RFC3339Nano),
		"source":    eventSource,
		"tenantId":  o.TenantID.String(),
		"data": map[string]any{
			"objectId":       o.ID.String(),
			"objectTypeCode": o.TypeCode,
			"objectCode":     o.Code,
			"status":         o.Status,
			"version":        o.Version,
			"payload":        o.Data,
		},
	}
}

// relationshipEventPayload builds the event envelope for a relationship
// change. The tenant comes from the source object; edges never cross
// tenants.
func relationshipEventPayload(eventType string, tenantID uuid.UUID, r *model.Relationship, now time.Time) map[string]any {
	return map[string]any{
		"eventId":   uuid.NewString(),
		"eventType": eventType,
		"timestamp": now.UTC().Format(time.RFC3339Nano),
		"source":    eventSource,
		"tenantId":  tenantID.String(),
		"data": map[string]any{
			"relationshipId":   r.ID.String(),
			"sourceObjectId":   r.SourceID.String(),
			"targetObjectId":   r.TargetID.String(),
			"relationshipType": r.RelType,
			"isBidirectional":  r.Bidirectional,
		},
	}
}
