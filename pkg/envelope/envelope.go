// Package envelope defines the request envelope that flows from ingress
// through the queue to the worker, processor, and routing engine. It is the
// "full message" the spec's routing and partitioning components match and
// transform against.
package envelope

import (
	"encoding/json"
	"time"
)

// Metadata carries the optional request metadata fields.
type Metadata struct {
	Priority     int    `json:"priority"`
	Timeout      int    `json:"timeout,omitempty"`
	RetryCount   int    `json:"retry_count"`
	Endpoint     string `json:"endpoint,omitempty"`
	Method       string `json:"method,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	PartitionKey string `json:"partition_key,omitempty"`
	Type         string `json:"type,omitempty"`
}

// Message is the immutable record produced by ingress and carried, JSON
// encoded, as the queue message payload.
type Message struct {
	CorrelationID string            `json:"correlation_id"`
	Payload       interface{}       `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	Metadata      Metadata          `json:"metadata"`
	SubmittedAt   time.Time         `json:"submitted_at"`
}

// ToMap round-trips the message through JSON to produce the generic tree
// that dot-path matching walks. This is the "full message" referenced
// throughout the routing and partitioning contracts.
func (m *Message) ToMap() (map[string]interface{}, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal serializes the message for transport as a queue message payload.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a queue message payload back into a Message.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Status values for RequestState. Transitions are one-way:
// PENDING -> PROCESSING -> (COMPLETED | FAILED | TIMEOUT).
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusTimeout    = "TIMEOUT"
)

// RequestState is the mutable record stored under req:{cid}:meta.
type RequestState struct {
	CorrelationID string    `json:"correlation_id"`
	Status        string    `json:"status"`
	SubmittedAt   time.Time `json:"submitted_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ResponseRecord is stored under resp:{cid}. Exactly one of Result or Error
// is populated.
type ResponseRecord struct {
	CorrelationID    string                 `json:"correlation_id"`
	Result           map[string]interface{} `json:"result,omitempty"`
	Error            string                 `json:"error,omitempty"`
	StatusCode       int                    `json:"status_code,omitempty"`
	Headers          map[string]string      `json:"headers,omitempty"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	CompletedAt      time.Time              `json:"completed_at"`
}

// RequestStateKey returns the state-store key for a correlation id's state.
func RequestStateKey(cid string) string { return "req:" + cid + ":meta" }

// ResponseRecordKey returns the state-store key for a correlation id's
// response record.
func ResponseRecordKey(cid string) string { return "resp:" + cid }
