// Package realtime fans task events out to websocket subscribers. Each task
// id is a topic; clients join and leave topics explicitly.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event types pushed to subscribers.
const (
	EventTodoCreated = "todo_created"
	EventTodoUpdated = "todo_updated"
	EventTodoDeleted = "todo_deleted"
	EventTodoToggled = "todo_toggled"
	EventTaskUpdated = "task_updated"
	EventTaskDeleted = "task_deleted"
)

// MsgRevoked tells a client it was removed from a topic.
const MsgRevoked = "revoked"

// Publisher sends an event to every subscriber of a topic. Delivery is
// best effort and at most once.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
	// Revoke unsubscribes every client of topic whose user is not in keep.
	Revoke(ctx context.Context, topic string, keep ...string) error
}

// Message is the frame exchanged with websocket clients in both directions.
type Message struct {
	Type    string          `json:"type"`
	TaskID  string          `json:"task_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Encode builds the wire frame for an event on a topic.
func Encode(topic, event string, payload any) ([]byte, error) {
	msg := Message{Type: event, TaskID: topic}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
