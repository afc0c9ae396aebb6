package auditlog

import (
	"fmt"

	"github.com/google/uuid"
)

// Event is the kind of change being recorded. Values match the
// audit_event enum the bootstrap applier guarantees in every tenant schema.
type Event string

const (
	EventCreate  Event = "create"
	EventUpdate  Event = "update"
	EventDestroy Event = "destroy"
)

// Entry is one row in a tenant's audit_logs table.
type Entry struct {
	ItemID        uuid.UUID              `json:"item_id"`
	ItemType      string                 `json:"item_type"`
	Event         Event                  `json:"event"`
	ActorID       string                 `json:"actor_id"`
	ActorType     string                 `json:"actor_type"`
	ObjectChanges map[string]interface{} `json:"object_changes,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	RemoteAddr    string                 `json:"remote_addr,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty"`
}

func (e *Entry) validate() error {
	if e.ItemID == uuid.Nil {
		return fmt.Errorf("audit entry requires an item id")
	}
	if e.ItemType == "" {
		return fmt.Errorf("audit entry requires an item type")
	}
	switch e.Event {
	case EventCreate, EventUpdate, EventDestroy:
	default:
		return fmt.Errorf("unknown audit event %q", e.Event)
	}
	return nil
}
