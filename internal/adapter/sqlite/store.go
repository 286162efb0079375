package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/Krutik090/phishing-backend/internal/domain"
)

//go:embed tenantmigrations/*.sql
var tenantMigrations embed.FS

// Compile-time checks.
var (
	_ domain.StoreOpener = (*Opener)(nil)
	_ domain.StoreHandle = (*Handle)(nil)
)

// Opener creates and destroys per-tenant SQLite stores. The path template
// contains one %s, substituted with the store name, e.g.
// "/var/lib/phishing/tenants/%s.db".
type Opener struct {
	pathTemplate string
	maxConns     int
}

// NewOpener creates an opener for the given path template. maxConns bounds
// each handle's connection pool; zero means 4.
func NewOpener(pathTemplate string, maxConns int) *Opener {
	if maxConns <= 0 {
		maxConns = 4
	}
	return &Opener{pathTemplate: pathTemplate, maxConns: maxConns}
}

func (o *Opener) path(storeName string) string {
	return fmt.Sprintf(o.pathTemplate, storeName)
}

// Open connects to the named store and installs the tenant schema. First
// use creates the database file; reopening an existing store just reruns
// the (idempotent) migrations.
func (o *Opener) Open(ctx context.Context, storeName string) (domain.StoreHandle, error) {
	db, err := sql.Open("sqlite", "file:"+o.path(storeName))
	if err != nil {
		return nil, fmt.Errorf("opening store %q: %w", storeName, err)
	}

	// The caller's context carries the connect timeout; fail fast here
	// rather than on first query.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("reaching store %q: %w", storeName, err)
	}

	if err := configureConn(db); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(o.maxConns)

	if err := runMigrations(ctx, db, tenantMigrations, "tenantmigrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("installing schema on store %q: %w", storeName, err)
	}

	return &Handle{name: storeName, db: db}, nil
}

// Destroy removes the store's database file and its WAL sidecars. Returns
// domain.ErrStoreNotFound if the store never existed or is already gone, so
// retried teardowns converge.
func (o *Opener) Destroy(_ context.Context, storeName string) error {
	path := o.path(storeName)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrStoreNotFound
		}
		return fmt.Errorf("removing store %q: %w", storeName, err)
	}
	for _, sidecar := range []string{path + "-wal", path + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", sidecar, err)
		}
	}
	return nil
}

// Handle is a live connection to one per-tenant store.
type Handle struct {
	name string
	db   *sql.DB
}

// Name returns the store identifier this handle is connected to.
func (h *Handle) Name() string { return h.name }

// DB returns the underlying connection pool.
func (h *Handle) DB() *sql.DB { return h.db }

// Ping probes liveness; used to revalidate degraded handles.
func (h *Handle) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (h *Handle) Close() error {
	return h.db.Close()
}
