package crm

import "time"

// Role is the closed set of user roles. Policy derived from a role lives in
// the access package; the role itself is immutable by its subject.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleSalesExec Role = "sales_executive"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleSalesExec:
		return true
	}
	return false
}

// LeadStatus is an ordered workflow stage. Transitions are deliberately
// unrestricted: any status may move to any other, the change is only recorded.
type LeadStatus string

const (
	StatusNew         LeadStatus = "new"
	StatusContacted   LeadStatus = "contacted"
	StatusQualified   LeadStatus = "qualified"
	StatusProposal    LeadStatus = "proposal"
	StatusNegotiation LeadStatus = "negotiation"
	StatusWon         LeadStatus = "won"
	StatusLost        LeadStatus = "lost"
)

// Statuses lists every workflow stage in pipeline order.
var Statuses = []LeadStatus{
	StatusNew, StatusContacted, StatusQualified,
	StatusProposal, StatusNegotiation, StatusWon, StatusLost,
}

func (s LeadStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ActivityType classifies an entry in a lead's activity trail.
type ActivityType string

const (
	ActivityNote         ActivityType = "note"
	ActivityCall         ActivityType = "call"
	ActivityMeeting      ActivityType = "meeting"
	ActivityEmail        ActivityType = "email"
	ActivityStatusChange ActivityType = "status_change"
	ActivityAssignment   ActivityType = "assignment"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityNote, ActivityCall, ActivityMeeting, ActivityEmail,
		ActivityStatusChange, ActivityAssignment:
		return true
	}
	return false
}

// Severity grades a notification for display purposes.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Actor is the resolved identity performing an operation, as handed over by
// the authentication layer.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// User is an authenticated actor. Deactivation is a soft flag: leads and
// activities keep referencing the id, so rows are never deleted.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Lead is a prospective customer tracked through the sales workflow.
// Value is carried in minor units (cents); no floats touch money.
type Lead struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Company   string     `json:"company,omitempty"`
	Status    LeadStatus `json:"status"`
	Source    string     `json:"source,omitempty"`
	Value     int64      `json:"value"`
	Notes     string     `json:"notes,omitempty"`
	OwnerID   string     `json:"owner_id,omitempty"` // empty = unassigned
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Activity is an immutable, timestamped event attached to a lead, either a
// manual note or a system-derived record of a change. Type, lead and author
// never change after creation; description and metadata may be corrected by
// the author or a moderator.
type Activity struct {
	ID          string         `json:"id"`
	Type        ActivityType   `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	LeadID      string         `json:"lead_id"`
	UserID      string         `json:"user_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Notification is a durable per-user inbox entry. It is the record of truth:
// the live channel only accelerates delivery of what is written here.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"read"`
	Link      string    `json:"link,omitempty"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LeadUpdate is a partial update: nil fields are left untouched. Setting
// OwnerID to a pointer at empty string unassigns the lead; absent and
// present-but-null are not distinguished.
type LeadUpdate struct {
	Name    *string
	Email   *string
	Phone   *string
	Company *string
	Status  *LeadStatus
	Source  *string
	Value   *int64
	Notes   *string
	OwnerID *string
}

// ActivityUpdate corrects description and metadata only.
type ActivityUpdate struct {
	Description *string
	Metadata    map[string]any
}

// LeadFilter constrains a lead listing. OwnerID, when set, is a hard scope
// applied at query construction so pagination totals stay correct.
type LeadFilter struct {
	OwnerID string
	Status  LeadStatus
	Search  string
	SortBy  string
	SortDir string
	Offset  int
	Limit   int
}

// ActivityFilter constrains a per-lead activity listing, newest first.
type ActivityFilter struct {
	LeadID string
	Type   ActivityType
	Offset int
	Limit  int
}

// NotificationFilter constrains a per-user inbox listing, newest first.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
}

// Stats is the role-scoped dashboard summary.
type Stats struct {
	TotalLeads       int                `json:"total_leads"`
	LeadsByStatus    map[LeadStatus]int `json:"leads_by_status"`
	TotalValue       int64              `json:"total_value"`
	RecentActivities int                `json:"recent_activities"`
	LeadsByOwner     []OwnerCount       `json:"leads_by_owner,omitempty"`
}

// OwnerCount is a per-owner slice of the pipeline; an empty OwnerID bucket
// collects unassigned leads.
type OwnerCount struct {
	OwnerID   string `json:"owner_id,omitempty"`
	OwnerName string `json:"owner_name"`
	Count     int    `json:"count"`
}
