package domain

import (
	"regexp"
	"strings"
	"time"
)

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	EventActivate   Event = "activate"
	EventSuspend    Event = "suspend"
	EventReactivate Event = "reactivate"
	EventCancel     Event = "cancel"
	EventExpire     Event = "expire"
)

// Transition defines a valid state change: an event moves a tenant from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the tenant lifecycle.
// This is domain knowledge consumed by the FSM adapter. Trial expiry is
// normally a derived read-time fact, but the explicit expire event lets an
// operator make the stored status match.
var Transitions = []Transition{
	{Event: EventActivate, Src: StatusTrial, Dst: StatusActive},
	{Event: EventSuspend, Src: StatusActive, Dst: StatusSuspended},
	{Event: EventReactivate, Src: StatusSuspended, Dst: StatusActive},
	{Event: EventCancel, Src: StatusTrial, Dst: StatusCancelled},
	{Event: EventCancel, Src: StatusActive, Dst: StatusCancelled},
	{Event: EventCancel, Src: StatusSuspended, Dst: StatusCancelled},
	{Event: EventExpire, Src: StatusTrial, Dst: StatusExpired},
}

// ActiveFor reports whether a status implies the tenant may be served.
// Every transition keeps IsActive consistent with this mapping.
func ActiveFor(s Status) bool {
	return s == StatusTrial || s == StatusActive
}

// Plan describes a tenant's subscription limits. Soft quota only; nothing
// in this layer enforces it.
type Plan struct {
	Type         string
	MaxUsers     int
	MaxCampaigns int
	Features     []string
}

// DefaultTrialPlan is the plan assigned to newly provisioned tenants.
func DefaultTrialPlan() Plan {
	return Plan{
		Type:         "trial",
		MaxUsers:     10,
		MaxCampaigns: 3,
		Features:     []string{"campaigns", "templates", "reports"},
	}
}

// Tenant is a registry record describing one customer organization and the
// physical store that holds its data.
type Tenant struct {
	ID             string
	Name           string
	Subdomain      string
	StoreName      string
	Status         Status
	IsActive       bool
	Plan           Plan
	LastAccessedAt time.Time
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTenant creates a tenant in the initial "trial" state with the default
// trial plan. The store name is derived from the id so it is unique whenever
// the id is.
func NewTenant(id, name, subdomain, createdBy string) Tenant {
	now := time.Now().UTC()
	return Tenant{
		ID:        id,
		Name:      name,
		Subdomain: subdomain,
		StoreName: StoreNameFor(id),
		Status:    StatusTrial,
		IsActive:  true,
		Plan:      DefaultTrialPlan(),
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StoreNameFor derives the physical store identifier for a tenant id.
func StoreNameFor(id string) string {
	trimmed := strings.ReplaceAll(id, "-", "")
	if len(trimmed) > 12 {
		trimmed = trimmed[:12]
	}
	return "tenant_" + trimmed
}

// subdomainPattern is the DNS-label shape a subdomain must have after
// normalization.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeSubdomain lowercases the input, maps spaces and underscores to
// hyphens, strips everything outside [a-z0-9-], collapses hyphen runs, trims
// edge hyphens, and caps the result at 63 bytes. The result may still be
// invalid (e.g. empty); validate with ValidSubdomain.
func NormalizeSubdomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			b.WriteByte('-')
		}
	}
	s = b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 63 {
		s = strings.TrimRight(s[:63], "-")
	}
	return s
}

// ValidSubdomain reports whether s is a well-formed DNS label.
func ValidSubdomain(s string) bool {
	return subdomainPattern.MatchString(s)
}

// TrialExpired reports whether a trial tenant's trial window has elapsed.
// Expiry is a derived fact: it holds even before any operator fires the
// explicit expire event.
func (t Tenant) TrialExpired(now time.Time, trialLength time.Duration) bool {
	return t.Status == StatusTrial && now.After(t.CreatedAt.Add(trialLength))
}
