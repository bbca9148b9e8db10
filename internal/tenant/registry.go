// Package tenant resolves a request's host domain to a Tenant and its
// policy snapshot. Onboarding itself is an external collaborator (§1
// non-goals); this registry only holds what's needed to route and apply
// policy at request time.
package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/mallquest/mallquest/internal/domain"
)

// Registry is an in-memory tenant directory, loaded at startup and mutable
// via the `tenant add` CLI subcommand.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]domain.Tenant
	byHost    map[string]string // host domain -> tenant id
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[string]domain.Tenant),
		byHost: make(map[string]string),
	}
}

// Add registers or replaces a tenant. Host domain uniqueness is enforced.
func (r *Registry) Add(t domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byHost[t.HostDomain]; ok && existingID != t.ID {
		return fmt.Errorf("tenant: host domain %q already maps to tenant %q", t.HostDomain, existingID)
	}
	r.byID[t.ID] = t
	r.byHost[t.HostDomain] = t.ID
	return nil
}

// Get resolves a tenant by id.
func (r *Registry) Get(ctx context.Context, tenantID string) (domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[tenantID]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, nil
}

// GetByHost resolves a tenant by request host, per §6.1's tenant-resolution rule.
func (r *Registry) GetByHost(ctx context.Context, host string) (domain.Tenant, error) {
	r.mu.RLock()
	id, ok := r.byHost[host]
	r.mu.RUnlock()
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return r.Get(ctx, id)
}

// List returns every registered tenant.
func (r *Registry) List() []domain.Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}
