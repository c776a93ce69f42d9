// Package leads implements the lead workflow: guarded mutations, the derived
// activity trail, and the notification fan-out that follows every change.
package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadline.io/internal/access"
	"leadline.io/internal/crm"
	"leadline.io/internal/ids"
	"leadline.io/internal/obs"
	"leadline.io/internal/stream"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100

	// Bounded window for a lead's activity trail; history beyond it is
	// reachable through explicit pagination, never in one response.
	defaultActivityPage = 50
	maxActivityPage     = 100
)

// Mailer is the outbound email collaborator. Calls are fire-and-forget:
// failures are logged and never reach the caller of a lead operation.
type Mailer interface {
	SendAssignmentNotice(ctx context.Context, user crm.User, lead crm.Lead) error
	SendStatusChangeNotice(ctx context.Context, user crm.User, lead crm.Lead, oldStatus, newStatus crm.LeadStatus) error
}

// Service owns lead records and their workflow transitions. Every mutation
// commits the lead write together with its derived activity (and notification)
// rows; live pushes and emails are dispatched only after the commit.
type Service struct {
	store  crm.Store
	router *stream.Router
	mailer Mailer
	now    func() time.Time
}

// NewService wires the workflow service. router and mailer may be nil, in
// which case the corresponding side effects are skipped.
func NewService(store crm.Store, router *stream.Router, mailer Mailer) (*Service, error) {
	if store == nil {
		return nil, errors.New("leads: store is required")
	}
	return &Service{
		store:  store,
		router: router,
		mailer: mailer,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateInput carries the fields of a new lead. Omitted status defaults to
// "new", omitted value to zero.
type CreateInput struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Status  crm.LeadStatus
	Source  string
	Value   *int64
	Notes   string
	OwnerID string
}

// List returns the role-scoped page of leads plus the total over the filtered
// set. The ownership scope is fixed before the query is built so the total
// stays correct.
func (s *Service) List(ctx context.Context, actor crm.Actor, f crm.LeadFilter) ([]crm.Lead, int, error) {
	if owner, restricted := access.LeadScope(actor.Role, actor.ID); restricted {
		f.OwnerID = owner
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", crm.ErrValidation, f.Status)
	}
	f.SortBy = normalizeSort(f.SortBy)
	if !strings.EqualFold(f.SortDir, "asc") {
		f.SortDir = "desc"
	} else {
		f.SortDir = "asc"
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListLeads(ctx, f)
}

// Get returns a single lead, or NotFound / Forbidden.
func (s *Service) Get(ctx context.Context, actor crm.Actor, id string) (crm.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return crm.Lead{}, err
	}
	if !access.CanAccessLead(actor.Role, actor.ID, lead) {
		return crm.Lead{}, crm.ErrForbidden
	}
	return lead, nil
}

// Create inserts a lead and its creation activity atomically. When the lead
// lands with an owner other than the actor, a durable notification is queued
// in the same transaction, then a live push and an assignment email are
// attempted best-effort.
func (s *Service) Create(ctx context.Context, actor crm.Actor, in CreateInput) (crm.Lead, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return crm.Lead{}, fmt.Errorf("%w: name is required", crm.ErrValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return crm.Lead{}, err
	}
	status := in.Status
	if status == "" {
		status = crm.StatusNew
	}
	if !status.Valid() {
		return crm.Lead{}, fmt.Errorf("%w: unknown status %q", crm.ErrValidation, in.Status)
	}
	var value int64
	if in.Value != nil {
		if *in.Value < 0 {
			return crm.Lead{}, fmt.Errorf("%w: value must be >= 0", crm.ErrValidation)
		}
		value = *in.Value
	}

	ownerID := strings.TrimSpace(in.OwnerID)
	if ownerID == "" && actor.Role == crm.RoleSalesExec {
		ownerID = actor.ID
	}
	var owner crm.User
	if ownerID != "" {
		owner, err = s.requireActiveOwner(ctx, ownerID)
		if err != nil {
			return crm.Lead{}, err
		}
	}

	now := s.now()
	lead := crm.Lead{
		ID:        ids.New(),
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		Company:   strings.TrimSpace(in.Company),
		Status:    status,
		Source:    strings.TrimSpace(in.Source),
		Value:     value,
		Notes:     in.Notes,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	act := crm.Activity{
		ID:          ids.New(),
		Type:        crm.ActivityNote,
		Description: fmt.Sprintf("Lead created: %s", lead.Name),
		LeadID:      lead.ID,
		UserID:      actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var note *crm.Notification
	if lead.OwnerID != "" && lead.OwnerID != actor.ID {
		note = s.assignmentNotification(lead, now)
	}

	if err := s.store.CreateLead(ctx, &lead, &act, note); err != nil {
		return crm.Lead{}, err
	}
	obs.LeadMutations.WithLabelValues("create").Inc()

	// Durable rows are committed; everything below is best-effort.
	if note != nil {
		obs.NotificationsCreated.Inc()
		s.pushNotification(*note)
		s.sendAssignmentMail(ctx, owner, lead)
	}
	s.broadcast(stream.KindLeadCreated, lead)
	return lead, nil
}

// Update applies the fields present in upd. Status and ownership changes each
// append their own activity; both may fire in a single update. A
// sales_executive's owner change is silently dropped while the rest of the
// update still applies.
func (s *Service) Update(ctx context.Context, actor crm.Actor, id string, upd crm.LeadUpdate) (crm.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return crm.Lead{}, err
	}
	if !access.CanAccessLead(actor.Role, actor.ID, lead) {
		return crm.Lead{}, crm.ErrForbidden
	}
	if upd.OwnerID != nil && !access.CanReassignOwner(actor.Role) {
		upd.OwnerID = nil
	}

	oldStatus := lead.Status
	oldOwnerID := lead.OwnerID

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return crm.Lead{}, fmt.Errorf("%w: name is required", crm.ErrValidation)
		}
		lead.Name = name
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return crm.Lead{}, err
		}
		lead.Email = email
	}
	if upd.Phone != nil {
		lead.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Company != nil {
		lead.Company = strings.TrimSpace(*upd.Company)
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return crm.Lead{}, fmt.Errorf("%w: unknown status %q", crm.ErrValidation, *upd.Status)
		}
		lead.Status = *upd.Status
	}
	if upd.Source != nil {
		lead.Source = strings.TrimSpace(*upd.Source)
	}
	if upd.Value != nil {
		if *upd.Value < 0 {
			return crm.Lead{}, fmt.Errorf("%w: value must be >= 0", crm.ErrValidation)
		}
		lead.Value = *upd.Value
	}
	if upd.Notes != nil {
		lead.Notes = *upd.Notes
	}

	var newOwner crm.User
	if upd.OwnerID != nil {
		ownerID := strings.TrimSpace(*upd.OwnerID)
		if ownerID != "" && ownerID != oldOwnerID {
			newOwner, err = s.requireActiveOwner(ctx, ownerID)
			if err != nil {
				return crm.Lead{}, err
			}
		}
		lead.OwnerID = ownerID
	}

	now := s.now()
	lead.UpdatedAt = now

	var acts []crm.Activity
	var notes []crm.Notification

	statusChanged := lead.Status != oldStatus
	if statusChanged {
		acts = append(acts, crm.Activity{
			ID:          ids.New(),
			Type:        crm.ActivityStatusChange,
			Description: fmt.Sprintf("Status changed from %s to %s", oldStatus, lead.Status),
			Metadata:    map[string]any{"oldStatus": string(oldStatus), "newStatus": string(lead.Status)},
			LeadID:      lead.ID,
			UserID:      actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	ownerChanged := lead.OwnerID != oldOwnerID
	if ownerChanged {
		desc := "Lead unassigned"
		if lead.OwnerID != "" {
			ownerName := newOwner.Name
			if ownerName == "" {
				ownerName = "user"
			}
			desc = fmt.Sprintf("Lead assigned to %s", ownerName)
		}
		acts = append(acts, crm.Activity{
			ID:          ids.New(),
			Type:        crm.ActivityAssignment,
			Description: desc,
			Metadata:    map[string]any{"oldOwnerId": oldOwnerID, "newOwnerId": lead.OwnerID},
			LeadID:      lead.ID,
			UserID:      actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if lead.OwnerID != "" && lead.OwnerID != actor.ID {
			notes = append(notes, *s.assignmentNotification(lead, now))
		}
	}

	// A status change made by someone else lands in the owner's inbox too,
	// in the same transaction as the activity.
	if statusChanged && lead.OwnerID != "" && lead.OwnerID != actor.ID {
		notes = append(notes, *s.statusNotification(lead, oldStatus, now))
	}

	if err := s.store.UpdateLead(ctx, &lead, acts, notes); err != nil {
		return crm.Lead{}, err
	}
	obs.LeadMutations.WithLabelValues("update").Inc()

	for _, note := range notes {
		obs.NotificationsCreated.Inc()
		s.pushNotification(note)
	}
	if statusChanged && lead.OwnerID != "" {
		if owner, err := s.store.GetUser(ctx, lead.OwnerID); err == nil {
			s.sendStatusMail(ctx, owner, lead, oldStatus, lead.Status)
		}
	}
	if ownerChanged && lead.OwnerID != "" && lead.OwnerID != actor.ID {
		s.sendAssignmentMail(ctx, newOwner, lead)
	}
	s.broadcast(stream.KindLeadUpdated, lead)
	return lead, nil
}

// Delete removes the lead and, in the same transaction, every activity that
// references it. Connected clients get a broadcast so open lists drop the row
// without a refetch.
func (s *Service) Delete(ctx context.Context, actor crm.Actor, id string) error {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return err
	}
	if !access.CanAccessLead(actor.Role, actor.ID, lead) {
		return crm.ErrForbidden
	}
	if err := s.store.DeleteLead(ctx, id); err != nil {
		return err
	}
	obs.LeadMutations.WithLabelValues("delete").Inc()
	s.broadcast(stream.KindLeadDeleted, map[string]any{"id": id, "deleted": true})
	return nil
}

func (s *Service) requireActiveOwner(ctx context.Context, ownerID string) (crm.User, error) {
	owner, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		if errors.Is(err, crm.ErrNotFound) {
			return crm.User{}, fmt.Errorf("%w: owner %s does not exist", crm.ErrValidation, ownerID)
		}
		return crm.User{}, err
	}
	if !owner.Active {
		return crm.User{}, fmt.Errorf("%w: owner %s is deactivated", crm.ErrValidation, ownerID)
	}
	return owner, nil
}

func (s *Service) assignmentNotification(lead crm.Lead, now time.Time) *crm.Notification {
	return &crm.Notification{
		ID:        ids.New(),
		Message:   fmt.Sprintf("Lead %q has been assigned to you", lead.Name),
		Severity:  crm.SeverityInfo,
		Link:      "/leads/" + lead.ID,
		UserID:    lead.OwnerID,
		CreatedAt: now,
	}
}

func (s *Service) statusNotification(lead crm.Lead, oldStatus crm.LeadStatus, now time.Time) *crm.Notification {
	return &crm.Notification{
		ID:        ids.New(),
		Message:   fmt.Sprintf("Lead %q moved from %s to %s", lead.Name, oldStatus, lead.Status),
		Severity:  crm.SeverityInfo,
		Link:      "/leads/" + lead.ID,
		UserID:    lead.OwnerID,
		CreatedAt: now,
	}
}

func (s *Service) pushNotification(note crm.Notification) {
	if s.router == nil {
		return
	}
	s.router.PublishDirected(note.UserID, stream.Event{
		Kind: stream.KindNotification,
		Data: note,
	})
}

func (s *Service) broadcast(kind string, data any) {
	if s.router == nil {
		return
	}
	s.router.PublishBroadcast(stream.Event{Kind: kind, Data: data})
}

func (s *Service) sendAssignmentMail(ctx context.Context, owner crm.User, lead crm.Lead) {
	if s.mailer == nil || owner.ID == "" {
		return
	}
	if err := s.mailer.SendAssignmentNotice(ctx, owner, lead); err != nil {
		obs.EmailFailures.Inc()
		obs.LogError("mail", err, map[string]any{"notice": "assignment", "lead": lead.ID, "to": owner.Email})
	}
}

func (s *Service) sendStatusMail(ctx context.Context, owner crm.User, lead crm.Lead, oldStatus, newStatus crm.LeadStatus) {
	if s.mailer == nil || owner.ID == "" {
		return
	}
	if err := s.mailer.SendStatusChangeNotice(ctx, owner, lead, oldStatus, newStatus); err != nil {
		obs.EmailFailures.Inc()
		obs.LogError("mail", err, map[string]any{"notice": "status_change", "lead": lead.ID, "to": owner.Email})
	}
}

func normalizeSort(sortBy string) string {
	switch sortBy {
	case "name", "email", "company", "status", "value", "updated_at", "created_at":
		return sortBy
	default:
		return "created_at"
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", fmt.Errorf("%w: valid email is required", crm.ErrValidation)
	}
	return email, nil
}
