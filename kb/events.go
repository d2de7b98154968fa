package kb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Direction of a logged envelope relative to the recording agent.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// eventSeq disambiguates events logged within the same nanosecond.
var eventSeq atomic.Uint64

// AddEvent appends one row to the ACL traffic log. The key encodes the
// direction and a nanosecond timestamp so rows sort chronologically.
func (s *Store) AddEvent(ctx context.Context, conversationID, direction, performative, payloadType, peer string) error {
	key := fmt.Sprintf("event_%s_%d_%d", direction, time.Now().UnixNano(), eventSeq.Add(1))
	return s.db.WithContext(ctx).Create(&Event{
		Key:            key,
		ConversationID: conversationID,
		Direction:      direction,
		Performative:   performative,
		PayloadType:    payloadType,
		Peer:           peer,
		CreatedAt:      time.Now().UTC(),
	}).Error
}

// ListEvents returns the traffic log of a conversation in arrival order.
func (s *Store) ListEvents(ctx context.Context, conversationID string) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id").
		Find(&events).Error
	return events, err
}
