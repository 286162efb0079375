package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/Krutik090/phishing-backend/internal/domain"
)

// InvitationEmailArgs carries everything the email worker needs, snapshotted
// at enqueue time so the worker never reads the registry. River serializes
// this as JSON into its job table.
type InvitationEmailArgs struct {
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TenantID     string    `json:"tenant_id"`
	Organization string    `json:"organization"`
	Subdomain    string    `json:"subdomain"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (InvitationEmailArgs) Kind() string { return "invitation.email" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Notifier implements domain.Notifier by enqueuing invitation email jobs.
// Delivery happens asynchronously; the fire-and-forget contract is the
// caller's to honor.
type Notifier struct {
	client *Client
}

// Compile-time check: Notifier implements domain.Notifier.
var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier backed by the given River client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// SendInvitation enqueues the invitation email job.
func (n *Notifier) SendInvitation(ctx context.Context, tenant domain.Tenant, inv domain.Invitation) error {
	_, err := n.client.Insert(ctx, InvitationEmailArgs{
		Email:        inv.Email,
		Role:         inv.Role,
		Token:        inv.Token,
		ExpiresAt:    inv.ExpiresAt,
		TenantID:     tenant.ID,
		Organization: tenant.Name,
		Subdomain:    tenant.Subdomain,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing invitation email: %w", err)
	}
	return nil
}
