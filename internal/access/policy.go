// Package access holds the pure policy decisions for lead visibility and
// activity moderation. Decisions depend only on (role, actor id, row); no
// store access happens here.
package access

import "leadline.io/internal/crm"

// Capability is the per-role policy table. Branching on roles happens through
// this table rather than ad hoc conditionals scattered per operation.
type Capability struct {
	ReadAllLeads     bool
	ReassignOwner    bool
	ModerateActivity bool
}

var capabilities = map[crm.Role]Capability{
	crm.RoleAdmin:     {ReadAllLeads: true, ReassignOwner: true, ModerateActivity: true},
	crm.RoleManager:   {ReadAllLeads: true, ReassignOwner: true, ModerateActivity: true},
	crm.RoleSalesExec: {},
}

// For returns the capability set for a role. Unknown roles get no capabilities.
func For(role crm.Role) Capability {
	return capabilities[role]
}

// CanAccessLead reports whether the actor may see or mutate the lead.
// Admin and manager see everything; a sales executive only their own leads.
func CanAccessLead(role crm.Role, actorID string, lead crm.Lead) bool {
	if For(role).ReadAllLeads {
		return true
	}
	return lead.OwnerID != "" && lead.OwnerID == actorID
}

// CanMutateActivity reports whether the actor may update or delete the
// activity: its author, or a moderating role.
func CanMutateActivity(role crm.Role, actorID string, act crm.Activity) bool {
	if act.UserID == actorID {
		return true
	}
	return For(role).ModerateActivity
}

// CanReassignOwner reports whether the actor may change a lead's owner.
// For other roles an owner change in an update request is silently ignored,
// not rejected.
func CanReassignOwner(role crm.Role) bool {
	return For(role).ReassignOwner
}

// LeadScope returns the owner constraint to apply when building a lead query.
// The constraint is a precondition to query construction, never a post-filter,
// so pagination totals stay correct. restricted=false means no constraint.
func LeadScope(role crm.Role, actorID string) (ownerID string, restricted bool) {
	if For(role).ReadAllLeads {
		return "", false
	}
	return actorID, true
}
