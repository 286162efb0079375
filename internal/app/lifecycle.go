package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Krutik090/phishing-backend/internal/domain"
)

// LifecycleService applies operator-triggered lifecycle events to tenants.
type LifecycleService struct {
	conns     *ConnManager
	validator domain.TransitionValidator
	logger    *slog.Logger
}

// NewLifecycleService creates a lifecycle service with the given transition
// validator.
func NewLifecycleService(conns *ConnManager, validator domain.TransitionValidator, logger *slog.Logger) *LifecycleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{conns: conns, validator: validator, logger: logger}
}

// GetTenant returns a tenant by id.
func (s *LifecycleService) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	reg, err := s.conns.Registry(ctx)
	if err != nil {
		return domain.Tenant{}, err
	}
	return reg.GetTenant(ctx, id)
}

// ListTenants returns tenants matching the given filter.
func (s *LifecycleService) ListTenants(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	reg, err := s.conns.Registry(ctx)
	if err != nil {
		return nil, err
	}
	return reg.ListTenants(ctx, filter)
}

// Transition applies a lifecycle event, keeping status and the active gate
// consistent. Deactivation takes effect on the next cache-miss resolution;
// already-cached handles are deliberately left to finish their in-flight
// work rather than being forcibly revoked.
func (s *LifecycleService) Transition(ctx context.Context, id string, event domain.Event) (domain.Tenant, error) {
	reg, err := s.conns.Registry(ctx)
	if err != nil {
		return domain.Tenant{}, err
	}

	tenant, err := reg.GetTenant(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}

	newStatus, err := s.validator.Apply(ctx, tenant.Status, event)
	if err != nil {
		return domain.Tenant{}, err
	}

	tenant.Status = newStatus
	tenant.IsActive = domain.ActiveFor(newStatus)

	if err := reg.UpdateTenant(ctx, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("updating tenant: %w", err)
	}

	s.logger.Info("tenant lifecycle transition",
		"tenant_id", id, "event", event, "status", newStatus, "is_active", tenant.IsActive)

	return tenant, nil
}
