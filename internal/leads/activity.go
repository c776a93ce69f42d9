package leads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadline.io/internal/access"
	"leadline.io/internal/crm"
	"leadline.io/internal/ids"
	"leadline.io/internal/obs"
)

// AddActivityInput is a manual activity added by a user. Type defaults to
// note.
type AddActivityInput struct {
	Type        crm.ActivityType
	Description string
	Metadata    map[string]any
}

// AddActivity appends a manual entry to a lead's trail. When the lead's owner
// differs from the author, a durable notification is committed with the
// activity and a directed push is attempted afterwards.
func (s *Service) AddActivity(ctx context.Context, actor crm.Actor, leadID string, in AddActivityInput) (crm.Activity, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return crm.Activity{}, err
	}
	if !access.CanAccessLead(actor.Role, actor.ID, lead) {
		return crm.Activity{}, crm.ErrForbidden
	}

	actType := in.Type
	if actType == "" {
		actType = crm.ActivityNote
	}
	if !actType.Valid() {
		return crm.Activity{}, fmt.Errorf("%w: unknown activity type %q", crm.ErrValidation, in.Type)
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return crm.Activity{}, fmt.Errorf("%w: description is required", crm.ErrValidation)
	}

	now := s.now()
	act := crm.Activity{
		ID:          ids.New(),
		Type:        actType,
		Description: description,
		Metadata:    in.Metadata,
		LeadID:      lead.ID,
		UserID:      actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var note *crm.Notification
	if lead.OwnerID != "" && lead.OwnerID != actor.ID {
		note = &crm.Notification{
			ID:        ids.New(),
			Message:   fmt.Sprintf("%s added a %s to lead %q", actor.Name, actType, lead.Name),
			Severity:  crm.SeverityInfo,
			Link:      "/leads/" + lead.ID,
			UserID:    lead.OwnerID,
			CreatedAt: now,
		}
	}

	if err := s.store.CreateActivity(ctx, &act, note); err != nil {
		return crm.Activity{}, err
	}
	if note != nil {
		obs.NotificationsCreated.Inc()
		s.pushNotification(*note)
	}
	return act, nil
}

// ListActivities returns the newest-first window of a lead's trail.
func (s *Service) ListActivities(ctx context.Context, actor crm.Actor, leadID string, f crm.ActivityFilter) ([]crm.Activity, int, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, 0, err
	}
	if !access.CanAccessLead(actor.Role, actor.ID, lead) {
		return nil, 0, crm.ErrForbidden
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown activity type %q", crm.ErrValidation, f.Type)
	}
	f.LeadID = lead.ID
	if f.Limit <= 0 {
		f.Limit = defaultActivityPage
	}
	if f.Limit > maxActivityPage {
		f.Limit = maxActivityPage
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListActivities(ctx, f)
}

// UpdateActivity corrects description or metadata. Type, lead and author are
// immutable; only the author or a moderating role may touch the row.
func (s *Service) UpdateActivity(ctx context.Context, actor crm.Actor, id string, upd crm.ActivityUpdate) (crm.Activity, error) {
	act, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return crm.Activity{}, err
	}
	if !access.CanMutateActivity(actor.Role, actor.ID, act) {
		return crm.Activity{}, crm.ErrForbidden
	}
	if upd.Description != nil {
		description := strings.TrimSpace(*upd.Description)
		if description == "" {
			return crm.Activity{}, fmt.Errorf("%w: description is required", crm.ErrValidation)
		}
		act.Description = description
	}
	if upd.Metadata != nil {
		act.Metadata = upd.Metadata
	}
	act.UpdatedAt = s.now()
	if err := s.store.UpdateActivity(ctx, &act); err != nil {
		return crm.Activity{}, err
	}
	return act, nil
}

// DeleteActivity removes a single activity with no cascading effects.
func (s *Service) DeleteActivity(ctx context.Context, actor crm.Actor, id string) error {
	act, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	if !access.CanMutateActivity(actor.Role, actor.ID, act) {
		return crm.ErrForbidden
	}
	return s.store.DeleteActivity(ctx, id)
}

// StatsWindow is how far back "recent activity" reaches on the dashboard.
const StatsWindow = 7 * 24 * time.Hour

// Stats returns the role-scoped dashboard summary.
func (s *Service) Stats(ctx context.Context, actor crm.Actor) (crm.Stats, error) {
	scope, _ := access.LeadScope(actor.Role, actor.ID)
	return s.store.Stats(ctx, scope, s.now().Add(-StatsWindow))
}
