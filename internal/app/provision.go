package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Krutik090/phishing-backend/internal/domain"
)

// CreateTenantInput carries the caller-supplied fields for tenant creation.
type CreateTenantInput struct {
	OrganizationName string
	Subdomain        string
	AdminEmail       string
}

// CreateTenantResult is what a successful creation yields.
type CreateTenantResult struct {
	Tenant     domain.Tenant
	Invitation domain.Invitation
}

// Provisioner runs the tenant creation saga: one registry transaction,
// then physical store provisioning, with compensating deletes when the
// second phase fails.
type Provisioner struct {
	conns    *ConnManager
	notifier domain.Notifier
	logger   *slog.Logger
}

// NewProvisioner creates a provisioner using the given connection manager
// and notifier.
func NewProvisioner(conns *ConnManager, notifier domain.Notifier, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{conns: conns, notifier: notifier, logger: logger}
}

// compensation is one undo action for an already-committed registry write.
// Each Phase-A side effect records its own step, so writes added later get
// symmetric compensation automatically.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// CreateTenant validates input, writes the tenant and its admin invitation
// in a single registry transaction, then provisions the physical store. The
// observable outcome is all-or-nothing: a Phase-B failure deletes the
// just-committed records before the error propagates.
func (p *Provisioner) CreateTenant(ctx context.Context, input CreateTenantInput, createdBy string) (CreateTenantResult, error) {
	if input.OrganizationName == "" {
		return CreateTenantResult{}, &domain.ValidationError{Field: "organizationName", Reason: "must not be empty"}
	}
	if input.AdminEmail == "" {
		return CreateTenantResult{}, &domain.ValidationError{Field: "adminEmail", Reason: "must not be empty"}
	}
	if input.Subdomain == "" {
		return CreateTenantResult{}, &domain.ValidationError{Field: "subdomain", Reason: "must not be empty"}
	}

	subdomain := domain.NormalizeSubdomain(input.Subdomain)
	if !domain.ValidSubdomain(subdomain) {
		return CreateTenantResult{}, &domain.ValidationError{
			Field:  "subdomain",
			Reason: fmt.Sprintf("%q does not normalize to a valid DNS label", input.Subdomain),
		}
	}

	reg, err := p.conns.Registry(ctx)
	if err != nil {
		return CreateTenantResult{}, err
	}

	token, err := newToken()
	if err != nil {
		return CreateTenantResult{}, fmt.Errorf("generating invitation token: %w", err)
	}

	tenant := domain.NewTenant(newID(), input.OrganizationName, subdomain, createdBy)
	invitation := domain.NewInvitation(newID(), input.AdminEmail, tenant.ID, "admin", token)

	// Phase A: one transaction against the registry. Conflict pre-checks
	// and both inserts commit together or not at all.
	if err := reg.Provision(ctx, tenant, invitation); err != nil {
		return CreateTenantResult{}, err
	}

	steps := []compensation{
		{name: "delete invitation", undo: func(ctx context.Context) error {
			return reg.DeleteInvitation(ctx, invitation.ID)
		}},
		{name: "delete tenant", undo: func(ctx context.Context) error {
			return reg.DeleteTenant(ctx, tenant.ID)
		}},
	}

	// Phase B: materialize the physical store. Resolve both opens it and
	// installs the per-tenant schema.
	if _, err := p.conns.Resolve(ctx, tenant.ID); err != nil {
		p.compensate(ctx, tenant.ID, steps)
		return CreateTenantResult{}, &domain.ProvisioningError{TenantID: tenant.ID, Err: err}
	}

	// The tenant now durably exists; notification failure must not undo it.
	if err := p.notifier.SendInvitation(ctx, tenant, invitation); err != nil {
		p.logger.Warn("sending invitation notification",
			"tenant_id", tenant.ID, "email", invitation.Email, "error", err)
	}

	return CreateTenantResult{Tenant: tenant, Invitation: invitation}, nil
}

// compensate undoes committed Phase-A writes after a Phase-B failure. The
// deletes are best-effort single-record operations; if one fails, the
// registry holds a tenant with no usable store, and that inconsistency is
// escalated for out-of-band remediation rather than masked.
func (p *Provisioner) compensate(ctx context.Context, tenantID string, steps []compensation) {
	for _, step := range steps {
		if err := step.undo(ctx); err != nil {
			p.logger.Error("saga compensation failed, registry is inconsistent",
				"tenant_id", tenantID, "step", step.name, "error", err)
		}
	}
}

// DeleteTenant tears a tenant down: evict the cached handle, destroy the
// physical store, then delete the registry records. A tenant whose store is
// already gone still deletes cleanly, so retrying after a partial failure
// converges.
func (p *Provisioner) DeleteTenant(ctx context.Context, tenantID string) error {
	reg, err := p.conns.Registry(ctx)
	if err != nil {
		return err
	}

	tenant, err := reg.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	// A held connection to a destroyed store is undefined; close first.
	p.conns.Evict(tenantID)

	if err := p.conns.opener.Destroy(ctx, tenant.StoreName); err != nil {
		if !errors.Is(err, domain.ErrStoreNotFound) {
			return fmt.Errorf("destroying store %q: %w", tenant.StoreName, err)
		}
		p.logger.Info("store already destroyed, continuing deletion",
			"tenant_id", tenantID, "store", tenant.StoreName)
	}

	// Registry records go last: a failure above leaves a retryable record,
	// never a record-less orphan store.
	if err := reg.DeleteTenant(ctx, tenantID); err != nil {
		return err
	}
	if err := reg.DeleteInvitationsForTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("deleting invitations for tenant %s: %w", tenantID, err)
	}

	return nil
}

// AcceptInvitation marks a pending, unexpired invitation accepted.
func (p *Provisioner) AcceptInvitation(ctx context.Context, token, userID string) (domain.Invitation, error) {
	reg, err := p.conns.Registry(ctx)
	if err != nil {
		return domain.Invitation{}, err
	}

	inv, err := reg.GetInvitationByToken(ctx, token)
	if err != nil {
		return domain.Invitation{}, err
	}
	if !inv.Usable(time.Now().UTC()) {
		return domain.Invitation{}, domain.ErrInvitationNotUsable
	}

	inv.Status = domain.InvitationAccepted
	inv.AcceptedAt = time.Now().UTC()
	inv.AcceptedBy = userID

	if err := reg.UpdateInvitation(ctx, inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("updating invitation: %w", err)
	}
	return inv, nil
}
