package app_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Krutik090/phishing-backend/internal/app"
	"github.com/Krutik090/phishing-backend/internal/domain"
)

// --- Mocks ---

type mockRegistry struct {
	mu          sync.Mutex
	tenants     map[string]domain.Tenant
	invitations map[string]domain.Invitation

	pingErr         error
	provisionErr    error
	deleteTenantErr error
	deleteInvErr    error
	touchErr        error
	touched         []string
	closed          bool
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		tenants:     make(map[string]domain.Tenant),
		invitations: make(map[string]domain.Invitation),
	}
}

func (m *mockRegistry) Provision(_ context.Context, t domain.Tenant, inv domain.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.provisionErr != nil {
		return m.provisionErr
	}
	for _, existing := range m.tenants {
		if existing.Subdomain == t.Subdomain {
			return &domain.ConflictError{Field: "subdomain", Value: t.Subdomain}
		}
	}
	now := time.Now().UTC()
	for _, existing := range m.invitations {
		if existing.Email == inv.Email && existing.Usable(now) {
			return &domain.ConflictError{Field: "adminEmail", Value: inv.Email}
		}
	}
	m.tenants[t.ID] = t
	m.invitations[inv.ID] = inv
	return nil
}

func (m *mockRegistry) GetTenant(_ context.Context, id string) (domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, nil
}

func (m *mockRegistry) GetTenantBySubdomain(_ context.Context, subdomain string) (domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Subdomain == subdomain {
			return t, nil
		}
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (m *mockRegistry) ListTenants(_ context.Context, _ domain.ListFilter) ([]domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockRegistry) UpdateTenant(_ context.Context, t domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return domain.ErrTenantNotFound
	}
	m.tenants[t.ID] = t
	return nil
}

func (m *mockRegistry) DeleteTenant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteTenantErr != nil {
		return m.deleteTenantErr
	}
	if _, ok := m.tenants[id]; !ok {
		return domain.ErrTenantNotFound
	}
	delete(m.tenants, id)
	return nil
}

func (m *mockRegistry) GetInvitationByToken(_ context.Context, token string) (domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return domain.Invitation{}, domain.ErrInvitationNotFound
}

func (m *mockRegistry) UpdateInvitation(_ context.Context, inv domain.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[inv.ID]; !ok {
		return domain.ErrInvitationNotFound
	}
	m.invitations[inv.ID] = inv
	return nil
}

func (m *mockRegistry) DeleteInvitation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteInvErr != nil {
		return m.deleteInvErr
	}
	delete(m.invitations, id)
	return nil
}

func (m *mockRegistry) DeleteInvitationsForTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, inv := range m.invitations {
		if inv.TenantID == tenantID {
			delete(m.invitations, id)
		}
	}
	return nil
}

func (m *mockRegistry) TouchLastAccessed(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touched = append(m.touched, id)
	return nil
}

func (m *mockRegistry) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *mockRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// addTenant seeds a tenant directly, bypassing Provision.
func (m *mockRegistry) addTenant(t domain.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
}

func (m *mockRegistry) tenantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants)
}

func (m *mockRegistry) invitationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invitations)
}

type mockHandle struct {
	mu      sync.Mutex
	name    string
	pingErr error
	closed  bool
}

func (h *mockHandle) Name() string { return h.name }
func (h *mockHandle) DB() *sql.DB  { return nil }

func (h *mockHandle) Ping(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("handle %s closed", h.name)
	}
	return h.pingErr
}

func (h *mockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *mockHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type mockOpener struct {
	mu        sync.Mutex
	opens     map[string]int
	handles   map[string]*mockHandle
	openErr   error
	openDelay time.Duration
	destroyed []string
	existing  map[string]bool
}

func newMockOpener() *mockOpener {
	return &mockOpener{
		opens:    make(map[string]int),
		handles:  make(map[string]*mockHandle),
		existing: make(map[string]bool),
	}
}

func (o *mockOpener) Open(_ context.Context, storeName string) (domain.StoreHandle, error) {
	if o.openDelay > 0 {
		time.Sleep(o.openDelay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	o.opens[storeName]++
	o.existing[storeName] = true
	h := &mockHandle{name: storeName}
	o.handles[storeName] = h
	return h, nil
}

func (o *mockOpener) Destroy(_ context.Context, storeName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.existing[storeName] {
		return domain.ErrStoreNotFound
	}
	delete(o.existing, storeName)
	o.destroyed = append(o.destroyed, storeName)
	return nil
}

func (o *mockOpener) openCount(storeName string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[storeName]
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.Invitation
	err  error
}

func (n *mockNotifier) SendInvitation(_ context.Context, _ domain.Tenant, inv domain.Invitation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, inv)
	return nil
}

func (n *mockNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// tableValidator validates against domain.Transitions directly, without the
// FSM adapter.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	for _, tr := range domain.Transitions {
		if tr.Event == event && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, reg *mockRegistry, opener *mockOpener, capacity int) *app.ConnManager {
	t.Helper()
	return app.NewConnManager(app.ConnManagerConfig{
		Registry: reg,
		Opener:   opener,
		Logger:   testLogger(),
		Capacity: capacity,
	})
}

func seedTenant(reg *mockRegistry, id string) domain.Tenant {
	tenant := domain.NewTenant(id, "Org "+id, "sub-"+id, "op-1")
	reg.addTenant(tenant)
	return tenant
}
