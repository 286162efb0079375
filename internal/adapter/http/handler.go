package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Krutik090/phishing-backend/internal/app"
	"github.com/Krutik090/phishing-backend/internal/domain"
)

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID        string   `json:"id" doc:"Unique identifier"`
	Name      string   `json:"name" doc:"Organization display name"`
	Subdomain string   `json:"subdomain" doc:"URL-friendly identifier"`
	Status    string   `json:"status" doc:"Lifecycle state"`
	IsActive  bool     `json:"is_active" doc:"Whether the tenant may be served"`
	Plan      string   `json:"plan" doc:"Subscription plan type"`
	Features  []string `json:"features,omitempty" doc:"Enabled plan features"`
	CreatedAt string   `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt string   `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Subdomain: t.Subdomain,
		Status:    string(t.Status),
		IsActive:  t.IsActive,
		Plan:      t.Plan.Type,
		Features:  t.Plan.Features,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
	}
}

// InvitationResponse is the API representation of an invitation. The token
// is only returned from the create call that minted it.
type InvitationResponse struct {
	ID        string `json:"id" doc:"Unique identifier"`
	Email     string `json:"email" doc:"Invited email address"`
	Role      string `json:"role" doc:"Role granted on acceptance"`
	Status    string `json:"status" doc:"Invitation state"`
	Token     string `json:"token,omitempty" doc:"One-time acceptance token"`
	ExpiresAt string `json:"expires_at" doc:"Expiry timestamp (ISO 8601)"`
}

func toInvitationResponse(inv domain.Invitation, includeToken bool) InvitationResponse {
	resp := InvitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		Status:    string(inv.Status),
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	}
	if includeToken {
		resp.Token = inv.Token
	}
	return resp
}

// --- Create Tenant ---

type CreateTenantInput struct {
	CreatedBy string `header:"X-User-ID" required:"false" doc:"ID of the requesting user"`
	Body      struct {
		OrganizationName string `json:"organization_name" minLength:"1" maxLength:"255" doc:"Organization display name"`
		Subdomain        string `json:"subdomain" minLength:"1" maxLength:"255" doc:"Requested subdomain (normalized server-side)"`
		AdminEmail       string `json:"admin_email" format:"email" doc:"Email address for the initial admin invitation"`
	}
}

type CreateTenantOutput struct {
	Body struct {
		Tenant     TenantResponse     `json:"tenant"`
		Invitation InvitationResponse `json:"invitation"`
	}
}

// --- Get Tenant ---

type GetTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type GetTenantOutput struct {
	Body TenantResponse
}

// --- List Tenants ---

type ListTenantsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Delete Tenant ---

type DeleteTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

// --- Transition ---

type TransitionInput struct {
	ID   string `path:"id" doc:"Tenant ID"`
	Body struct {
		Event string `json:"event" doc:"Lifecycle event to trigger" enum:"activate,suspend,reactivate,cancel,expire"`
	}
}

type TransitionOutput struct {
	Body TenantResponse
}

// --- Accept Invitation ---

type AcceptInvitationInput struct {
	Body struct {
		Token  string `json:"token" minLength:"1" doc:"Invitation token"`
		UserID string `json:"user_id" minLength:"1" doc:"ID of the accepting user"`
	}
}

type AcceptInvitationOutput struct {
	Body InvitationResponse
}

// --- Connection Stats ---

type StatsOutput struct {
	Body struct {
		RegistryReady bool `json:"registry_ready" doc:"Whether the registry store is reachable"`
		CachedCount   int  `json:"cached_count" doc:"Number of cached tenant store connections"`
		Capacity      int  `json:"capacity" doc:"Connection cache capacity"`
	}
}

// Register adds all control-plane API routes to the Huma API.
func Register(api huma.API, prov *app.Provisioner, lifecycle *app.LifecycleService, conns *app.ConnManager) {
	huma.Register(api, huma.Operation{
		OperationID: "create-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants",
		Summary:     "Provision a new tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		result, err := prov.CreateTenant(ctx, app.CreateTenantInput{
			OrganizationName: input.Body.OrganizationName,
			Subdomain:        input.Body.Subdomain,
			AdminEmail:       input.Body.AdminEmail,
		}, input.CreatedBy)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &CreateTenantOutput{}
		out.Body.Tenant = toTenantResponse(result.Tenant)
		out.Body.Invitation = toInvitationResponse(result.Invitation, true)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		tenant, err := lifecycle.GetTenant(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}

		tenants, err := lifecycle.ListTenants(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-tenant",
		Method:        http.MethodDelete,
		Path:          "/api/v1/tenants/{id}",
		Summary:       "Delete a tenant and its physical store",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteTenantInput) (*struct{}, error) {
		if err := prov.DeleteTenant(ctx, input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/events",
		Summary:     "Trigger a lifecycle event",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *TransitionInput) (*TransitionOutput, error) {
		tenant, err := lifecycle.Transition(ctx, input.ID, domain.Event(input.Body.Event))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TransitionOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-invitation",
		Method:      http.MethodPost,
		Path:        "/api/v1/invitations/accept",
		Summary:     "Accept an invitation by token",
		Tags:        []string{"Invitations"},
	}, func(ctx context.Context, input *AcceptInvitationInput) (*AcceptInvitationOutput, error) {
		inv, err := prov.AcceptInvitation(ctx, input.Body.Token, input.Body.UserID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &AcceptInvitationOutput{Body: toInvitationResponse(inv, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "connection-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats/connections",
		Summary:     "Connection cache and registry health",
		Tags:        []string{"Operations"},
	}, func(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
		stats := conns.Stats(ctx)
		out := &StatsOutput{}
		out.Body.RegistryReady = stats.RegistryReady
		out.Body.CachedCount = stats.CachedCount
		out.Body.Capacity = stats.Capacity
		return out, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return huma.Error404NotFound("tenant not found")
	case errors.Is(err, domain.ErrInvitationNotFound):
		return huma.Error404NotFound("invitation not found")
	case errors.Is(err, domain.ErrInvitationNotUsable):
		return huma.Error409Conflict(domain.ErrInvitationNotUsable.Error())
	case errors.Is(err, domain.ErrTenantInactive):
		return huma.Error403Forbidden(domain.ErrTenantInactive.Error())
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return huma.Error503ServiceUnavailable("registry store unavailable")
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return huma.Error422UnprocessableEntity(valErr.Error())
	}

	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		return huma.Error409Conflict(conflictErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	// Check ConnectionError before ProvisioningError: the saga wraps the
	// former in the latter and the transport cause is the better signal.
	var connErr *domain.ConnectionError
	if errors.As(err, &connErr) {
		return huma.Error502BadGateway("tenant store unreachable")
	}

	var provErr *domain.ProvisioningError
	if errors.As(err, &provErr) {
		return huma.Error502BadGateway("tenant provisioning failed")
	}

	return huma.Error500InternalServerError("internal server error")
}
