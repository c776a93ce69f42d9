package crm

import (
	"context"
	"time"
)

// Store is the persistence boundary for the core subsystem. Composite
// mutations take the derived rows alongside the primary one: implementations
// must commit them in a single transaction, so a crash can never leave a
// status change without its activity record.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, lead *Lead, act *Activity, note *Notification) error
	GetLead(ctx context.Context, id string) (Lead, error)
	ListLeads(ctx context.Context, f LeadFilter) ([]Lead, int, error)
	UpdateLead(ctx context.Context, lead *Lead, acts []Activity, notes []Notification) error
	DeleteLead(ctx context.Context, id string) error // cascades to activities

	// Activities
	CreateActivity(ctx context.Context, act *Activity, note *Notification) error
	GetActivity(ctx context.Context, id string) (Activity, error)
	ListActivities(ctx context.Context, f ActivityFilter) ([]Activity, int, error)
	UpdateActivity(ctx context.Context, act *Activity) error
	DeleteActivity(ctx context.Context, id string) error

	// Notifications
	CreateNotification(ctx context.Context, note *Notification) error
	ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]Notification, error)
	// MarkNotificationRead returns ErrNotFound for an unknown id and
	// ErrForbidden when the row belongs to another recipient. Marking an
	// already-read row is a no-op.
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	CountUnread(ctx context.Context, userID string) (int, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, user *User) error

	// Dashboard
	Stats(ctx context.Context, ownerScope string, activitySince time.Time) (Stats, error)
}
