package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"halfmonth/internal/core"
)

type EventType string

const (
	PeriodChanged EventType = "changed"
	PeriodDeleted EventType = "deleted"
)

var ErrInvalidEvent = errors.New("invalid period event")

// PeriodEvent announces that a user's period document was written or
// removed. Consumers re-read the store; the event carries no payload.
type PeriodEvent struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"userId"`
	Key       core.PeriodKey `json:"key"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewPeriodEvent(t EventType, userID string, key core.PeriodKey) *PeriodEvent {
	return &PeriodEvent{
		Type:      t,
		UserID:    userID,
		Key:       key,
		Timestamp: time.Now(),
	}
}

func (m *PeriodEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PeriodEventFromJSON decodes and validates a message body.
func PeriodEventFromJSON(data []byte) (*PeriodEvent, error) {
	var msg PeriodEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != PeriodChanged && msg.Type != PeriodDeleted {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, msg.Type)
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidEvent)
	}
	if !msg.Key.Valid() {
		return nil, fmt.Errorf("%w: missing key", ErrInvalidEvent)
	}
	return &msg, nil
}
