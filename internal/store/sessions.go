package store

import (
	"context"

	"github.com/sujalbistaa/entrenous/internal/models"
)

// CreateSessionEvent seals e.IP before writing the row.
func (s *Store) CreateSessionEvent(ctx context.Context, e *models.SessionEvent) error {
	sealed, err := s.seal(e.IP)
	if err != nil {
		return err
	}
	e.IPSealed = sealed
	return s.retry(ctx, "create_session_event", func() error {
		return s.q(ctx).Create(e).Error
	})
}

// SessionEventsByLookup lists events recorded under an IP lookup key, newest first.
func (s *Store) SessionEventsByLookup(ctx context.Context, lookup string, limit int) ([]models.SessionEvent, error) {
	var events []models.SessionEvent
	err := s.retry(ctx, "session_events_by_lookup", func() error {
		return s.q(ctx).
			Where("ip_lookup = ?", lookup).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&events).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].IP, err = s.open("session event", events[i].ID, events[i].IPSealed); err != nil {
			return nil, err
		}
	}
	return events, nil
}
