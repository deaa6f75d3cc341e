package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopicPrefix is the prefix of every docsearch topic.
const TopicPrefix = "docsearch"

// Topic builds a topic name such as "docsearch.document.upserted".
func Topic(entity, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, entity, action)
}

// Event is the envelope of every message on docsearch topics. Key is the
// message key and identifies the entity the event is about; Data holds the
// event-type specific payload.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Key           string            `json:"key"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(eventType, key, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	return &Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Key:       key,
		Version:   1,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      raw,
	}, nil
}

// WithCorrelationID sets the correlation id and returns the event.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds a metadata entry and returns the event.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Marshal serializes the event.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent parses an event envelope. An envelope without event_type
// is rejected.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("unmarshal event: missing event_type")
	}
	return &event, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.EventID)
	}
	return json.Unmarshal(e.Data, target)
}
