// Package bus publishes kernel events to Kafka. The dispatcher is the only
// producer; nothing publishes outside the outbox path.
package bus

import (
	"context"
	"fmt"
)

// topicPrefix is the namespace every kernel topic lives under.
const topicPrefix = "platform.kernel."

// Event types carried on outbox rows. The topic name is derived from the
// event type, never stored independently.
const (
	EventObjectCreated       = "object.created"
	EventObjectUpdated       = "object.updated"
	EventObjectDeleted       = "object.deleted"
	EventObjectRestored      = "object.restored"
	EventObjectStatusChanged = "object.status_changed"
	EventRelationshipCreated = "relationship.created"
	EventRelationshipDeleted = "relationship.deleted"
)

var knownEvents = map[string]bool{
	EventObjectCreated:       true,
	EventObjectUpdated:       true,
	EventObjectDeleted:       true,
	EventObjectRestored:      true,
	EventObjectStatusChanged: true,
	EventRelationshipCreated: true,
	EventRelationshipDeleted: true,
}

// TopicFor maps an event type to its topic. Unknown event types are
// rejected rather than routed to a surprise topic. Status changes ride the
// updated topic; consumers that track object state subscribe there anyway.
func TopicFor(eventType string) (string, error) {
	if !knownEvents[eventType] {
		return "", fmt.Errorf("unknown event type %q", eventType)
	}
	if eventType == EventObjectStatusChanged {
		return topicPrefix + EventObjectUpdated, nil
	}
	return topicPrefix + eventType, nil
}

// PublishResult reports where a record landed.
type PublishResult struct {
	Topic     string
	Partition int
	Offset    int64
}

// Client is the producer the dispatcher talks to. key selects the partition
// so all events for one aggregate share one partition.
type Client interface {
	Publish(ctx context.Context, topic, key string, payload []byte) (PublishResult, error)
	Close() error
}
