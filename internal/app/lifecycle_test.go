package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Krutik090/phishing-backend/internal/app"
	"github.com/Krutik090/phishing-backend/internal/domain"
)

func newTestLifecycle(t *testing.T, reg *mockRegistry) *app.LifecycleService {
	t.Helper()
	m := newTestManager(t, reg, newMockOpener(), 10)
	return app.NewLifecycleService(m, tableValidator{}, testLogger())
}

func TestTransition_ActivateSetsIsActive(t *testing.T) {
	reg := newMockRegistry()
	seedTenant(reg, "t-1")
	svc := newTestLifecycle(t, reg)

	tenant, err := svc.Transition(context.Background(), "t-1", domain.EventActivate)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if tenant.Status != domain.StatusActive {
		t.Errorf("Status = %q, want %q", tenant.Status, domain.StatusActive)
	}
	if !tenant.IsActive {
		t.Error("IsActive should be true after activation")
	}
}

func TestTransition_SuspendClearsIsActive(t *testing.T) {
	reg := newMockRegistry()
	seedTenant(reg, "t-1")
	svc := newTestLifecycle(t, reg)
	ctx := context.Background()

	if _, err := svc.Transition(ctx, "t-1", domain.EventActivate); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	tenant, err := svc.Transition(ctx, "t-1", domain.EventSuspend)
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if tenant.Status != domain.StatusSuspended {
		t.Errorf("Status = %q, want %q", tenant.Status, domain.StatusSuspended)
	}
	if tenant.IsActive {
		t.Error("IsActive should be false after suspension")
	}

	// And the stored record agrees.
	stored, _ := reg.GetTenant(ctx, "t-1")
	if stored.IsActive {
		t.Error("stored IsActive should be false")
	}
}

func TestTransition_FullLifecycle(t *testing.T) {
	reg := newMockRegistry()
	seedTenant(reg, "t-1")
	svc := newTestLifecycle(t, reg)
	ctx := context.Background()

	steps := []struct {
		event      domain.Event
		wantStatus domain.Status
		wantActive bool
	}{
		{domain.EventActivate, domain.StatusActive, true},
		{domain.EventSuspend, domain.StatusSuspended, false},
		{domain.EventReactivate, domain.StatusActive, true},
		{domain.EventCancel, domain.StatusCancelled, false},
	}

	for _, step := range steps {
		tenant, err := svc.Transition(ctx, "t-1", step.event)
		if err != nil {
			t.Fatalf("%s failed: %v", step.event, err)
		}
		if tenant.Status != step.wantStatus {
			t.Errorf("%s: Status = %q, want %q", step.event, tenant.Status, step.wantStatus)
		}
		if tenant.IsActive != step.wantActive {
			t.Errorf("%s: IsActive = %v, want %v", step.event, tenant.IsActive, step.wantActive)
		}
	}
}

func TestTransition_InvalidEvent(t *testing.T) {
	reg := newMockRegistry()
	seedTenant(reg, "t-1")
	svc := newTestLifecycle(t, reg)

	// Can't reactivate from trial.
	_, err := svc.Transition(context.Background(), "t-1", domain.EventReactivate)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Current != domain.StatusTrial {
		t.Errorf("current = %q, want %q", trErr.Current, domain.StatusTrial)
	}
}

func TestTransition_NotFound(t *testing.T) {
	svc := newTestLifecycle(t, newMockRegistry())

	_, err := svc.Transition(context.Background(), "ghost", domain.EventActivate)
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestGetTenant_And_List(t *testing.T) {
	reg := newMockRegistry()
	seedTenant(reg, "t-1")
	seedTenant(reg, "t-2")
	svc := newTestLifecycle(t, reg)
	ctx := context.Background()

	tenant, err := svc.GetTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if tenant.ID != "t-1" {
		t.Errorf("ID = %q, want %q", tenant.ID, "t-1")
	}

	tenants, err := svc.ListTenants(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("ListTenants failed: %v", err)
	}
	if len(tenants) != 2 {
		t.Errorf("got %d tenants, want 2", len(tenants))
	}
}
