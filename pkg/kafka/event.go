package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every published message carries.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// partitionKey overrides AggregateID as the message key.
	partitionKey string
}

// EventOption customizes an event built by NewEvent.
type EventOption func(*Event)

// WithCorrelationID tags the event with the request's correlation ID. Empty
// IDs are ignored.
func WithCorrelationID(id string) EventOption {
	return func(e *Event) {
		if id != "" {
			e.CorrelationID = id
		}
	}
}

// WithMetadata adds a key-value pair to the event metadata.
func WithMetadata(key, value string) EventOption {
	return func(e *Event) {
		e.Metadata[key] = value
	}
}

// WithPartitionKey routes the event by key instead of its aggregate ID.
// Events sharing a key keep their publish order.
func WithPartitionKey(key string) EventOption {
	return func(e *Event) {
		e.partitionKey = key
	}
}

// NewEvent creates a version 1 event with a generated ID and the current time.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any, opts ...EventOption) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	e := &Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
		Metadata:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Key returns the message key: the partition key when set, else the
// aggregate ID, else the event ID.
func (e *Event) Key() []byte {
	switch {
	case e.partitionKey != "":
		return []byte(e.partitionKey)
	case e.AggregateID != "":
		return []byte(e.AggregateID)
	default:
		return []byte(e.EventID)
	}
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	return json.Unmarshal(e.Data, target)
}
