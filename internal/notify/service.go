// Package notify serves the per-user notification inbox. The inbox is the
// durable record: a client that reconnects after a dropped live connection
// reconstructs everything it missed from here.
package notify

import (
	"context"
	"errors"

	"leadline.io/internal/crm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service exposes read and mark-read operations over the inbox. Rows are
// created by the lead workflow, never through this service.
type Service struct {
	store crm.Store
}

// NewService constructs the inbox service.
func NewService(store crm.Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("notify: store is required")
	}
	return &Service{store: store}, nil
}

// List returns the recipient's notifications newest-first, together with the
// current unread count.
func (s *Service) List(ctx context.Context, userID string, f crm.NotificationFilter) ([]crm.Notification, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	rows, err := s.store.ListNotifications(ctx, userID, f)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return rows, unread, nil
}

// MarkRead flips one notification to read. Only the recipient may do this;
// repeating the call is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, id, userID)
}

// MarkAllRead flips every unread notification for the recipient. Idempotent.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}
