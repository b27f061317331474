package recorder

import (
	"time"

	"github.com/google/uuid"
)

// TrafficRecord is one captured request.
type TrafficRecord struct {
	ID        string            `json:"id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Key       string            `json:"key"`      // user ID, API key, IP...
	Endpoint  string            `json:"endpoint"` // e.g. "GET /api/check"
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewRecord builds a TrafficRecord with a fresh ID.
func NewRecord(at time.Time, key, endpoint string) TrafficRecord {
	return TrafficRecord{
		ID:        uuid.NewString(),
		Timestamp: at,
		Key:       key,
		Endpoint:  endpoint,
	}
}
