package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Krutik090/phishing-backend/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Registry implements domain.Registry.
var _ domain.Registry = (*Registry)(nil)

// Registry implements domain.Registry on the shared control-plane SQLite
// database.
type Registry struct {
	db *sql.DB
}

// New opens the registry database, runs migrations, and returns a ready
// registry.
func New(dataSourceName string) (*Registry, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	if err := configureConn(db); err != nil {
		return nil, err
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing connection, runs migrations, and returns a
// ready registry. Use this when the *sql.DB has been pre-configured (e.g.
// with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Registry, error) {
	if err := runMigrations(context.Background(), db, migrations, "migrations"); err != nil {
		return nil, fmt.Errorf("registry migrations: %w", err)
	}

	return &Registry{db: db}, nil
}

// configureConn applies the pragmas every registry connection needs.
func configureConn(db *sql.DB) error {
	// WAL for concurrent reads; busy_timeout so writers queue instead of
	// failing immediately under contention.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("applying %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// DB returns the underlying connection for use by other adapters (e.g. the
// river job queue shares the registry database).
func (r *Registry) DB() *sql.DB {
	return r.db
}

// Ping reports registry connection liveness.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const timeFormat = "2006-01-02T15:04:05.000Z"

// Provision inserts a tenant and its admin invitation in one transaction.
// Subdomain and pending-invitation conflicts abort before anything is
// written; either both records commit or neither does.
func (r *Registry) Provision(ctx context.Context, t domain.Tenant, inv domain.Invitation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning provision transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM tenants WHERE subdomain = ?`, t.Subdomain).Scan(&existing)
	switch {
	case err == nil:
		return &domain.ConflictError{Field: "subdomain", Value: t.Subdomain}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking subdomain: %w", err)
	}

	// An expired pending invitation does not block: it is logically dead
	// even before anything marks it so.
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM invitations WHERE email = ? AND status = ? AND expires_at > ?`,
		inv.Email, string(domain.InvitationPending), time.Now().UTC().Format(timeFormat),
	).Scan(&existing)
	switch {
	case err == nil:
		return &domain.ConflictError{Field: "adminEmail", Value: inv.Email}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking pending invitations: %w", err)
	}

	features, err := json.Marshal(t.Plan.Features)
	if err != nil {
		return fmt.Errorf("encoding plan features: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tenants (id, name, subdomain, store_name, status, is_active,
		   plan_type, plan_max_users, plan_max_campaigns, plan_features,
		   created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subdomain, t.StoreName, string(t.Status), boolToInt(t.IsActive),
		t.Plan.Type, t.Plan.MaxUsers, t.Plan.MaxCampaigns, string(features),
		t.CreatedBy, t.CreatedAt.Format(timeFormat), t.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Field: "subdomain", Value: t.Subdomain}
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO invitations (id, email, tenant_id, role, status, token, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Email, inv.TenantID, inv.Role, string(inv.Status), inv.Token,
		inv.ExpiresAt.Format(timeFormat), inv.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Field: "token", Value: inv.Token}
		}
		return fmt.Errorf("inserting invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing provision transaction: %w", err)
	}
	return nil
}

const tenantColumns = `id, name, subdomain, store_name, status, is_active,
	plan_type, plan_max_users, plan_max_campaigns, plan_features,
	last_accessed_at, created_by, created_at, updated_at`

func (r *Registry) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
}

func (r *Registry) GetTenantBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = ?`, subdomain))
}

func (r *Registry) ListTenants(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

func (r *Registry) UpdateTenant(ctx context.Context, t domain.Tenant) error {
	features, err := json.Marshal(t.Plan.Features)
	if err != nil {
		return fmt.Errorf("encoding plan features: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET name = ?, status = ?, is_active = ?,
		   plan_type = ?, plan_max_users = ?, plan_max_campaigns = ?, plan_features = ?,
		   updated_at = ?
		 WHERE id = ?`,
		t.Name, string(t.Status), boolToInt(t.IsActive),
		t.Plan.Type, t.Plan.MaxUsers, t.Plan.MaxCampaigns, string(features),
		time.Now().UTC().Format(timeFormat), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}
	return requireRow(result, domain.ErrTenantNotFound)
}

func (r *Registry) DeleteTenant(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	return requireRow(result, domain.ErrTenantNotFound)
}

func (r *Registry) TouchLastAccessed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET last_accessed_at = ? WHERE id = ?`,
		at.Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("touching last accessed: %w", err)
	}
	return nil
}

const invitationColumns = `id, email, tenant_id, role, status, token,
	expires_at, accepted_at, accepted_by, created_at`

func (r *Registry) GetInvitationByToken(ctx context.Context, token string) (domain.Invitation, error) {
	return scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token))
}

func (r *Registry) UpdateInvitation(ctx context.Context, inv domain.Invitation) error {
	var acceptedAt any
	if !inv.AcceptedAt.IsZero() {
		acceptedAt = inv.AcceptedAt.Format(timeFormat)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = ?, expires_at = ?, accepted_at = ?, accepted_by = ?
		 WHERE id = ?`,
		string(inv.Status), inv.ExpiresAt.Format(timeFormat), acceptedAt, nullable(inv.AcceptedBy), inv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating invitation: %w", err)
	}
	return requireRow(result, domain.ErrInvitationNotFound)
}

func (r *Registry) DeleteInvitation(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting invitation: %w", err)
	}
	return nil
}

func (r *Registry) DeleteInvitationsForTenant(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("deleting invitations: %w", err)
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (domain.Tenant, error) {
	var t domain.Tenant
	var status, createdAt, updatedAt, features string
	var isActive int
	var lastAccessed sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.StoreName, &status, &isActive,
		&t.Plan.Type, &t.Plan.MaxUsers, &t.Plan.MaxCampaigns, &features,
		&lastAccessed, &t.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = domain.Status(status)
	t.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(features), &t.Plan.Features); err != nil {
		return domain.Tenant{}, fmt.Errorf("decoding plan features: %w", err)
	}
	if lastAccessed.Valid {
		t.LastAccessedAt, _ = time.Parse(timeFormat, lastAccessed.String)
	}
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	t.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return t, nil
}

func scanInvitation(row rowScanner) (domain.Invitation, error) {
	var inv domain.Invitation
	var status, expiresAt, createdAt string
	var acceptedAt, acceptedBy sql.NullString

	err := row.Scan(&inv.ID, &inv.Email, &inv.TenantID, &inv.Role, &status, &inv.Token,
		&expiresAt, &acceptedAt, &acceptedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invitation{}, domain.ErrInvitationNotFound
		}
		return domain.Invitation{}, fmt.Errorf("scanning invitation: %w", err)
	}

	inv.Status = domain.InvitationStatus(status)
	inv.ExpiresAt, _ = time.Parse(timeFormat, expiresAt)
	inv.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	if acceptedAt.Valid {
		inv.AcceptedAt, _ = time.Parse(timeFormat, acceptedAt.String)
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = acceptedBy.String
	}

	return inv, nil
}

func requireRow(result sql.Result, missing error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return missing
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
