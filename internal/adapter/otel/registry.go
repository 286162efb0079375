package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Krutik090/phishing-backend/internal/domain"
)

const tracerName = "github.com/Krutik090/phishing-backend/internal/adapter/otel"

// TracingRegistry wraps a domain.Registry with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingRegistry struct {
	next   domain.Registry
	tracer trace.Tracer
}

// Compile-time check: TracingRegistry implements domain.Registry.
var _ domain.Registry = (*TracingRegistry)(nil)

// NewTracingRegistry creates a tracing decorator around the given registry.
func NewTracingRegistry(next domain.Registry) *TracingRegistry {
	return &TracingRegistry{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRegistry) Provision(ctx context.Context, tenant domain.Tenant, invitation domain.Invitation) error {
	ctx, span := r.tracer.Start(ctx, "Registry.Provision",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("tenant.subdomain", tenant.Subdomain),
			attribute.String("invitation.id", invitation.ID),
		),
	)
	defer span.End()

	return r.record(span, r.next.Provision(ctx, tenant, invitation))
}

func (r *TracingRegistry) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.GetTenant",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer span.End()

	tenant, err := r.next.GetTenant(ctx, id)
	return tenant, r.record(span, err)
}

func (r *TracingRegistry) GetTenantBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.GetTenantBySubdomain",
		trace.WithAttributes(attribute.String("tenant.subdomain", subdomain)),
	)
	defer span.End()

	tenant, err := r.next.GetTenantBySubdomain(ctx, subdomain)
	return tenant, r.record(span, err)
}

func (r *TracingRegistry) ListTenants(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.ListTenants",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	tenants, err := r.next.ListTenants(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	return tenants, r.record(span, err)
}

func (r *TracingRegistry) UpdateTenant(ctx context.Context, tenant domain.Tenant) error {
	ctx, span := r.tracer.Start(ctx, "Registry.UpdateTenant",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("tenant.status", string(tenant.Status)),
		),
	)
	defer span.End()

	return r.record(span, r.next.UpdateTenant(ctx, tenant))
}

func (r *TracingRegistry) DeleteTenant(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "Registry.DeleteTenant",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer span.End()

	return r.record(span, r.next.DeleteTenant(ctx, id))
}

func (r *TracingRegistry) GetInvitationByToken(ctx context.Context, token string) (domain.Invitation, error) {
	// The token is a credential; it never goes on the span.
	ctx, span := r.tracer.Start(ctx, "Registry.GetInvitationByToken")
	defer span.End()

	inv, err := r.next.GetInvitationByToken(ctx, token)
	return inv, r.record(span, err)
}

func (r *TracingRegistry) UpdateInvitation(ctx context.Context, invitation domain.Invitation) error {
	ctx, span := r.tracer.Start(ctx, "Registry.UpdateInvitation",
		trace.WithAttributes(
			attribute.String("invitation.id", invitation.ID),
			attribute.String("invitation.status", string(invitation.Status)),
		),
	)
	defer span.End()

	return r.record(span, r.next.UpdateInvitation(ctx, invitation))
}

func (r *TracingRegistry) DeleteInvitation(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "Registry.DeleteInvitation",
		trace.WithAttributes(attribute.String("invitation.id", id)),
	)
	defer span.End()

	return r.record(span, r.next.DeleteInvitation(ctx, id))
}

func (r *TracingRegistry) DeleteInvitationsForTenant(ctx context.Context, tenantID string) error {
	ctx, span := r.tracer.Start(ctx, "Registry.DeleteInvitationsForTenant",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	return r.record(span, r.next.DeleteInvitationsForTenant(ctx, tenantID))
}

func (r *TracingRegistry) TouchLastAccessed(ctx context.Context, id string, at time.Time) error {
	ctx, span := r.tracer.Start(ctx, "Registry.TouchLastAccessed",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer span.End()

	return r.record(span, r.next.TouchLastAccessed(ctx, id, at))
}

func (r *TracingRegistry) Ping(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "Registry.Ping")
	defer span.End()

	return r.record(span, r.next.Ping(ctx))
}

func (r *TracingRegistry) Close() error {
	return r.next.Close()
}

func (r *TracingRegistry) record(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
