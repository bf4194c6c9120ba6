package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryRecorder keeps events in memory. Used in tests and when no
// database is configured.
type MemoryRecorder struct {
	mu     sync.Mutex
	nextID int64
	events []*Event
}

// NewMemoryRecorder creates an in-memory audit recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{nextID: 1}
}

// Record appends an event to the in-memory log
func (r *MemoryRecorder) Record(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.ID = r.nextID
	r.nextID++

	stored := *event
	r.events = append(r.events, &stored)
	return nil
}

// Search filters the in-memory log, newest first
func (r *MemoryRecorder) Search(_ context.Context, filter SearchFilter) ([]*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*Event, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		event := r.events[i]
		if !matches(event, filter) {
			continue
		}
		matched = append(matched, event)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Event{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

// Events returns a copy of all recorded events in insertion order
func (r *MemoryRecorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

func matches(event *Event, filter SearchFilter) bool {
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.ActorID != nil && (event.ActorID == nil || *event.ActorID != *filter.ActorID) {
		return false
	}
	if filter.TenantID != nil && (event.TenantID == nil || *event.TenantID != *filter.TenantID) {
		return false
	}
	if len(filter.EventTypes) > 0 {
		found := false
		for _, et := range filter.EventTypes {
			if event.EventType == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Status != nil && event.Status != *filter.Status {
		return false
	}
	if filter.ResourceType != "" && event.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != "" && event.ResourceID != filter.ResourceID {
		return false
	}
	return true
}
