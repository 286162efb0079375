package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Krutik090/phishing-backend/internal/domain"
)

// Handle states. A handle enters the cache ready; a transport-level problem
// marks it degraded, which forces a liveness probe on next borrow; eviction
// or shutdown closes it.
type handleState int

const (
	stateReady handleState = iota
	stateDegraded
	stateClosed
)

type cacheEntry struct {
	handle     domain.StoreHandle
	state      handleState
	insertedAt time.Time
}

// ConnManagerConfig configures a ConnManager.
type ConnManagerConfig struct {
	Registry domain.Registry
	Opener   domain.StoreOpener
	Logger   *slog.Logger

	// ReopenRegistry re-establishes the registry connection after it
	// drops. Optional; without it a dead registry surfaces as
	// ErrRegistryUnavailable immediately.
	ReopenRegistry func(ctx context.Context) (domain.Registry, error)

	// Capacity bounds the handle cache; above it the oldest-inserted
	// entry is evicted. Zero means DefaultCacheCapacity.
	Capacity int

	// TrialLength is the trial window used for derived expiry gating.
	// Zero means DefaultTrialLength.
	TrialLength time.Duration

	// ConnectTimeout bounds each physical store open. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// CloseTimeout bounds CloseAll's grace period. Zero means
	// DefaultCloseTimeout.
	CloseTimeout time.Duration
}

const (
	DefaultCacheCapacity  = 50
	DefaultTrialLength    = 14 * 24 * time.Hour
	DefaultConnectTimeout = 5 * time.Second
	DefaultCloseTimeout   = 10 * time.Second
)

// ConnManager maps tenant ids to live store handles. It owns the registry
// connection and a bounded, insertion-ordered cache of per-tenant handles;
// callers borrow a handle for one logical operation.
type ConnManager struct {
	opener         domain.StoreOpener
	logger         *slog.Logger
	reopenRegistry func(ctx context.Context) (domain.Registry, error)
	capacity       int
	trialLength    time.Duration
	connectTimeout time.Duration
	closeTimeout   time.Duration

	flight singleflight.Group

	mu       sync.Mutex
	registry domain.Registry
	cache    map[string]*cacheEntry
	order    []string
	closed   bool
}

// NewConnManager creates a connection manager. The registry connection must
// already be open; per-tenant handles are established lazily.
func NewConnManager(cfg ConnManagerConfig) *ConnManager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCacheCapacity
	}
	if cfg.TrialLength <= 0 {
		cfg.TrialLength = DefaultTrialLength
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ConnManager{
		opener:         cfg.Opener,
		logger:         cfg.Logger,
		reopenRegistry: cfg.ReopenRegistry,
		capacity:       cfg.Capacity,
		trialLength:    cfg.TrialLength,
		connectTimeout: cfg.ConnectTimeout,
		closeTimeout:   cfg.CloseTimeout,
		registry:       cfg.Registry,
		cache:          make(map[string]*cacheEntry),
	}
}

// Resolve returns a live store handle for the tenant, opening one on a cache
// miss. Misses re-check the tenant's active gate against the registry, so a
// suspension takes effect on the next resolution; handles already borrowed
// keep serving their in-flight operations.
func (m *ConnManager) Resolve(ctx context.Context, tenantID string) (domain.StoreHandle, error) {
	if h, ok := m.cached(ctx, tenantID); ok {
		return h, nil
	}

	// Single-flight per tenant id: dual creation for the same unseen key
	// is never allowed; distinct keys resolve in parallel.
	v, err, _ := m.flight.Do(tenantID, func() (any, error) {
		if h, ok := m.cached(ctx, tenantID); ok {
			return h, nil
		}
		return m.create(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.StoreHandle), nil
}

// cached returns a usable cached handle. A degraded entry is probed first;
// a failed probe evicts it and reports a miss.
func (m *ConnManager) cached(ctx context.Context, tenantID string) (domain.StoreHandle, bool) {
	m.mu.Lock()
	e, ok := m.cache[tenantID]
	if !ok || e.state == stateClosed {
		m.mu.Unlock()
		return nil, false
	}
	handle, degraded := e.handle, e.state == stateDegraded
	m.mu.Unlock()

	if !degraded {
		return handle, true
	}

	// Probe outside the lock; pings block.
	if err := handle.Ping(ctx); err != nil {
		m.logger.Warn("degraded handle failed revalidation, evicting",
			"tenant_id", tenantID, "error", err)
		m.Evict(tenantID)
		return nil, false
	}

	m.mu.Lock()
	if e, ok := m.cache[tenantID]; ok && e.handle == handle && e.state == stateDegraded {
		e.state = stateReady
	}
	m.mu.Unlock()
	return handle, true
}

func (m *ConnManager) create(ctx context.Context, tenantID string) (domain.StoreHandle, error) {
	reg, err := m.Registry(ctx)
	if err != nil {
		return nil, err
	}

	tenant, err := reg.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive || tenant.TrialExpired(time.Now().UTC(), m.trialLength) {
		return nil, fmt.Errorf("%w: tenant %s", domain.ErrTenantInactive, tenantID)
	}

	openCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	handle, err := m.opener.Open(openCtx, tenant.StoreName)
	if err != nil {
		return nil, &domain.ConnectionError{StoreName: tenant.StoreName, Err: err}
	}

	victims := m.insert(tenantID, handle)
	for _, v := range victims {
		m.logger.Info("evicting oldest cached handle at capacity",
			"tenant_id", v.id, "store", v.handle.Name(), "inserted_at", v.insertedAt)
		if err := v.handle.Close(); err != nil {
			m.logger.Warn("closing evicted handle", "tenant_id", v.id, "error", err)
		}
	}

	// Best-effort access bookkeeping, off the hot path.
	go m.touch(tenantID)

	return handle, nil
}

type victim struct {
	id         string
	handle     domain.StoreHandle
	insertedAt time.Time
}

// insert puts a handle into the cache and returns any entries that must be
// evicted to respect capacity. Victims are removed from the cache before the
// caller closes them, so a concurrent Resolve can never borrow a handle that
// is being torn down.
func (m *ConnManager) insert(tenantID string, handle domain.StoreHandle) []victim {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.cache[tenantID]; ok {
		// Raced with another insert for the same key: adopt the new
		// handle and discard the displaced one.
		displaced := victim{id: tenantID, handle: old.handle, insertedAt: old.insertedAt}
		old.handle, old.state, old.insertedAt = handle, stateReady, time.Now().UTC()
		return []victim{displaced}
	}

	m.cache[tenantID] = &cacheEntry{handle: handle, state: stateReady, insertedAt: time.Now().UTC()}
	m.order = append(m.order, tenantID)

	var victims []victim
	for len(m.cache) > m.capacity && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		e, ok := m.cache[oldest]
		if !ok {
			continue
		}
		delete(m.cache, oldest)
		e.state = stateClosed
		victims = append(victims, victim{id: oldest, handle: e.handle, insertedAt: e.insertedAt})
	}
	return victims
}

func (m *ConnManager) touch(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	defer cancel()

	m.mu.Lock()
	reg := m.registry
	m.mu.Unlock()

	if err := reg.TouchLastAccessed(ctx, tenantID, time.Now().UTC()); err != nil {
		m.logger.Warn("updating last-accessed timestamp", "tenant_id", tenantID, "error", err)
	}
}

// Registry returns the shared control-plane registry, transparently
// re-establishing the connection if it has dropped. Reconnection failure is
// the one case surfaced to callers, as ErrRegistryUnavailable.
func (m *ConnManager) Registry(ctx context.Context) (domain.Registry, error) {
	m.mu.Lock()
	reg := m.registry
	m.mu.Unlock()

	if err := reg.Ping(ctx); err == nil {
		return reg, nil
	} else if m.reopenRegistry == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	} else {
		m.logger.Warn("registry connection lost, reconnecting", "error", err)
	}

	fresh, err := m.reopenRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reconnect failed: %v", domain.ErrRegistryUnavailable, err)
	}

	m.mu.Lock()
	old := m.registry
	m.registry = fresh
	m.mu.Unlock()

	if old != fresh {
		if err := old.Close(); err != nil {
			m.logger.Warn("closing stale registry connection", "error", err)
		}
	}
	return fresh, nil
}

// MarkDegraded flags a cached handle for revalidation before its next use.
// Called by transport-level error handling; unknown ids are a no-op.
func (m *ConnManager) MarkDegraded(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.cache[tenantID]; ok && e.state == stateReady {
		e.state = stateDegraded
	}
}

// Evict closes and removes a tenant's cached handle. Idempotent; evicting an
// absent key is a no-op.
func (m *ConnManager) Evict(tenantID string) {
	m.mu.Lock()
	e, ok := m.cache[tenantID]
	if ok {
		delete(m.cache, tenantID)
		e.state = stateClosed
		for i, id := range m.order {
			if id == tenantID {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if ok {
		if err := e.handle.Close(); err != nil {
			m.logger.Warn("closing evicted handle", "tenant_id", tenantID, "error", err)
		}
	}
}

// CloseAll closes every cached handle and the registry connection, blocking
// until each closes or the grace period elapses. Errors are logged, not
// returned: shutdown must make progress regardless.
func (m *ConnManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := make(map[string]domain.StoreHandle, len(m.cache))
	for id, e := range m.cache {
		entries[id] = e.handle
		e.state = stateClosed
	}
	m.cache = make(map[string]*cacheEntry)
	m.order = nil
	reg := m.registry
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, h := range entries {
		wg.Add(1)
		go func(id string, h domain.StoreHandle) {
			defer wg.Done()
			if err := h.Close(); err != nil {
				m.logger.Warn("closing tenant handle during shutdown", "tenant_id", id, "error", err)
			}
		}(id, h)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reg.Close(); err != nil {
			m.logger.Warn("closing registry connection during shutdown", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Error("shutdown grace period elapsed with handles still closing",
			"remaining", len(entries))
	case <-time.After(m.closeTimeout):
		m.logger.Error("shutdown grace period elapsed with handles still closing",
			"remaining", len(entries))
	}
}

// Stats describes the manager's current cache occupancy.
type Stats struct {
	RegistryReady bool
	CachedCount   int
	Capacity      int
}

// Stats reports cache occupancy and registry liveness.
func (m *ConnManager) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	count := len(m.cache)
	reg := m.registry
	m.mu.Unlock()

	return Stats{
		RegistryReady: reg.Ping(ctx) == nil,
		CachedCount:   count,
		Capacity:      m.capacity,
	}
}
