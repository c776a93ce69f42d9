package crm

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs the
// test suites and local development; the Postgres store is the durable
// implementation.
type InMemory struct {
	mu            sync.RWMutex
	users         map[string]*User
	usersByEmail  map[string]string
	leads         map[string]*Lead
	activities    map[string]*Activity
	notifications map[string]*Notification
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:         make(map[string]*User),
		usersByEmail:  make(map[string]string),
		leads:         make(map[string]*Lead),
		activities:    make(map[string]*Activity),
		notifications: make(map[string]*Notification),
	}
}

// --- Leads ---

func (s *InMemory) CreateLead(ctx context.Context, lead *Lead, act *Activity, note *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *lead
	s.leads[lead.ID] = &cp
	if act != nil {
		a := cloneActivity(*act)
		s.activities[act.ID] = &a
	}
	if note != nil {
		n := *note
		s.notifications[note.ID] = &n
	}
	return nil
}

func (s *InMemory) GetLead(ctx context.Context, id string) (Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return *lead, nil
}

func (s *InMemory) ListLeads(ctx context.Context, f LeadFilter) ([]Lead, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Lead
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	for _, lead := range s.leads {
		if f.OwnerID != "" && lead.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && lead.Status != f.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(lead.Name), needle) &&
			!strings.Contains(strings.ToLower(lead.Email), needle) &&
			!strings.Contains(strings.ToLower(lead.Company), needle) {
			continue
		}
		matched = append(matched, *lead)
	}

	sortLeads(matched, f.SortBy, f.SortDir)
	total := len(matched)
	matched = window(matched, f.Offset, f.Limit)
	return matched, total, nil
}

func (s *InMemory) UpdateLead(ctx context.Context, lead *Lead, acts []Activity, notes []Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[lead.ID]; !ok {
		return ErrNotFound
	}
	cp := *lead
	s.leads[lead.ID] = &cp
	for _, act := range acts {
		a := cloneActivity(act)
		s.activities[act.ID] = &a
	}
	for _, note := range notes {
		n := note
		s.notifications[note.ID] = &n
	}
	return nil
}

func (s *InMemory) DeleteLead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[id]; !ok {
		return ErrNotFound
	}
	delete(s.leads, id)
	for actID, act := range s.activities {
		if act.LeadID == id {
			delete(s.activities, actID)
		}
	}
	return nil
}

// --- Activities ---

func (s *InMemory) CreateActivity(ctx context.Context, act *Activity, note *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[act.LeadID]; !ok {
		return ErrNotFound
	}
	a := cloneActivity(*act)
	s.activities[act.ID] = &a
	if note != nil {
		n := *note
		s.notifications[note.ID] = &n
	}
	return nil
}

func (s *InMemory) GetActivity(ctx context.Context, id string) (Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	act, ok := s.activities[id]
	if !ok {
		return Activity{}, ErrNotFound
	}
	return cloneActivity(*act), nil
}

func (s *InMemory) ListActivities(ctx context.Context, f ActivityFilter) ([]Activity, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Activity
	for _, act := range s.activities {
		if f.LeadID != "" && act.LeadID != f.LeadID {
			continue
		}
		if f.Type != "" && act.Type != f.Type {
			continue
		}
		matched = append(matched, cloneActivity(*act))
	}
	// Newest first; id breaks creation-time ties deterministically.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	matched = window(matched, f.Offset, f.Limit)
	return matched, total, nil
}

func (s *InMemory) UpdateActivity(ctx context.Context, act *Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[act.ID]; !ok {
		return ErrNotFound
	}
	a := cloneActivity(*act)
	s.activities[act.ID] = &a
	return nil
}

func (s *InMemory) DeleteActivity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[id]; !ok {
		return ErrNotFound
	}
	delete(s.activities, id)
	return nil
}

// --- Notifications ---

func (s *InMemory) CreateNotification(ctx context.Context, note *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := *note
	s.notifications[note.ID] = &n
	return nil
}

func (s *InMemory) ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Notification
	for _, note := range s.notifications {
		if note.UserID != userID {
			continue
		}
		if f.UnreadOnly && note.Read {
			continue
		}
		matched = append(matched, *note)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *InMemory) MarkNotificationRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	if note.UserID != userID {
		return ErrForbidden
	}
	note.Read = true
	return nil
}

func (s *InMemory) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, note := range s.notifications {
		if note.UserID == userID {
			note.Read = true
		}
	}
	return nil
}

func (s *InMemory) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, note := range s.notifications {
		if note.UserID == userID && !note.Read {
			count++
		}
	}
	return count, nil
}

// --- Users ---

func (s *InMemory) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByEmail[user.Email]; exists {
		return ErrConflict
	}
	cp := *user
	s.users[user.ID] = &cp
	s.usersByEmail[user.Email] = user.ID
	return nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *user, nil
}

func (s *InMemory) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return *s.users[id], nil
}

func (s *InMemory) UpdateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Email != user.Email {
		if other, exists := s.usersByEmail[user.Email]; exists && other != user.ID {
			return ErrConflict
		}
		delete(s.usersByEmail, prev.Email)
		s.usersByEmail[user.Email] = user.ID
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// --- Dashboard ---

func (s *InMemory) Stats(ctx context.Context, ownerScope string, activitySince time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{LeadsByStatus: make(map[LeadStatus]int)}
	byOwner := make(map[string]int)
	for _, lead := range s.leads {
		if ownerScope != "" && lead.OwnerID != ownerScope {
			continue
		}
		stats.TotalLeads++
		stats.LeadsByStatus[lead.Status]++
		stats.TotalValue += lead.Value
		byOwner[lead.OwnerID]++
	}
	for _, act := range s.activities {
		if ownerScope != "" && act.UserID != ownerScope {
			continue
		}
		if !act.CreatedAt.Before(activitySince) {
			stats.RecentActivities++
		}
	}
	if ownerScope == "" {
		for ownerID, count := range byOwner {
			name := "Unassigned"
			if user, ok := s.users[ownerID]; ok {
				name = user.Name
			}
			stats.LeadsByOwner = append(stats.LeadsByOwner, OwnerCount{
				OwnerID:   ownerID,
				OwnerName: name,
				Count:     count,
			})
		}
		sort.Slice(stats.LeadsByOwner, func(i, j int) bool {
			return stats.LeadsByOwner[i].OwnerID < stats.LeadsByOwner[j].OwnerID
		})
	}
	return stats, nil
}

// --- helpers ---

func cloneActivity(act Activity) Activity {
	if act.Metadata != nil {
		meta := make(map[string]any, len(act.Metadata))
		for k, v := range act.Metadata {
			meta[k] = v
		}
		act.Metadata = meta
	}
	return act
}

func sortLeads(leads []Lead, sortBy, sortDir string) {
	desc := !strings.EqualFold(sortDir, "asc")
	less := func(i, j int) bool {
		var cmp int
		switch sortBy {
		case "name":
			cmp = strings.Compare(strings.ToLower(leads[i].Name), strings.ToLower(leads[j].Name))
		case "email":
			cmp = strings.Compare(leads[i].Email, leads[j].Email)
		case "company":
			cmp = strings.Compare(strings.ToLower(leads[i].Company), strings.ToLower(leads[j].Company))
		case "status":
			cmp = strings.Compare(string(leads[i].Status), string(leads[j].Status))
		case "value":
			switch {
			case leads[i].Value < leads[j].Value:
				cmp = -1
			case leads[i].Value > leads[j].Value:
				cmp = 1
			}
		case "updated_at":
			switch {
			case leads[i].UpdatedAt.Before(leads[j].UpdatedAt):
				cmp = -1
			case leads[i].UpdatedAt.After(leads[j].UpdatedAt):
				cmp = 1
			}
		default: // created_at
			switch {
			case leads[i].CreatedAt.Before(leads[j].CreatedAt):
				cmp = -1
			case leads[i].CreatedAt.After(leads[j].CreatedAt):
				cmp = 1
			}
		}
		if cmp == 0 {
			cmp = strings.Compare(leads[i].ID, leads[j].ID)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	}
	sort.Slice(leads, less)
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
