package domain

import "time"

// InvitationStatus represents the state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// InvitationTTL is how long a freshly issued invitation stays valid.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation is a registry record inviting an email address into a tenant.
// The token is unique across all invitations regardless of tenant.
type Invitation struct {
	ID         string
	Email      string
	TenantID   string
	Role       string
	Status     InvitationStatus
	Token      string
	ExpiresAt  time.Time
	AcceptedAt time.Time
	AcceptedBy string
	CreatedAt  time.Time
}

// NewInvitation creates a pending invitation expiring InvitationTTL from now.
func NewInvitation(id, email, tenantID, role, token string) Invitation {
	now := time.Now().UTC()
	return Invitation{
		ID:        id,
		Email:     email,
		TenantID:  tenantID,
		Role:      role,
		Status:    InvitationPending,
		Token:     token,
		ExpiresAt: now.Add(InvitationTTL),
		CreatedAt: now,
	}
}

// Usable reports whether the invitation can still be accepted. A pending
// invitation past its expiry is invalid on every read path, even if no job
// has marked it expired yet.
func (i Invitation) Usable(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}
