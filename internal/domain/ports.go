package domain

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Registry defines the persistence contract for the shared control-plane
// store holding tenant and invitation records.
type Registry interface {
	// Provision runs the saga's registry phase in a single transaction:
	// subdomain and pending-invitation uniqueness checks plus both inserts.
	// Nothing is persisted if any step fails.
	Provision(ctx context.Context, tenant Tenant, invitation Invitation) error

	GetTenant(ctx context.Context, id string) (Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
	ListTenants(ctx context.Context, filter ListFilter) ([]Tenant, error)
	UpdateTenant(ctx context.Context, tenant Tenant) error
	DeleteTenant(ctx context.Context, id string) error

	GetInvitationByToken(ctx context.Context, token string) (Invitation, error)
	UpdateInvitation(ctx context.Context, invitation Invitation) error
	DeleteInvitation(ctx context.Context, id string) error
	DeleteInvitationsForTenant(ctx context.Context, tenantID string) error

	// TouchLastAccessed updates a tenant's last-accessed timestamp.
	// Best-effort bookkeeping; callers log failures and move on.
	TouchLastAccessed(ctx context.Context, id string, at time.Time) error

	// Ping reports whether the underlying registry connection is live.
	Ping(ctx context.Context) error
	Close() error
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// StoreHandle is a live connection to one physical store. Handles are owned
// by the connection manager's cache; callers borrow one for a single logical
// operation and must not retain it beyond that.
type StoreHandle interface {
	Name() string
	DB() *sql.DB
	Ping(ctx context.Context) error
	Close() error
}

// StoreOpener creates and destroys physical per-tenant stores.
type StoreOpener interface {
	// Open connects to the named store, creating it and installing its
	// schema on first use. Opening an existing store is a safe no-op
	// beyond connecting.
	Open(ctx context.Context, storeName string) (StoreHandle, error)
	// Destroy removes the physical store. Destroying an absent store
	// returns ErrStoreNotFound.
	Destroy(ctx context.Context, storeName string) error
}

// ErrStoreNotFound is returned by StoreOpener.Destroy for an absent store.
var ErrStoreNotFound = errors.New("physical store not found")

// TransitionValidator checks lifecycle transitions and yields the
// destination status.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}

// Notifier delivers the invitation notification. Fire-and-forget contract:
// failures are logged by the caller, never propagated.
type Notifier interface {
	SendInvitation(ctx context.Context, tenant Tenant, invitation Invitation) error
}
