// Package accesscontrol holds the single role registry shared by the query
// oracle, the payment processor and the verification registry. Keeping one
// registry instead of per-component authorized-caller maps removes the
// two-step authorize dance and the risk of the lists drifting apart.
package accesscontrol

import (
	"context"
	"sync"

	"github.com/google/uuid"

	dErrors "dataledger/pkg/domain-errors"
)

// Role names a capability a caller may hold.
type Role string

const (
	// RoleAdmin manages roles and engine parameters.
	RoleAdmin Role = "admin"
	// RoleOracle marks a caller allowed to trigger settlement
	// distribution on behalf of executed queries.
	RoleOracle Role = "oracle"
	// RoleRelayer marks the decryption relayer allowed to submit
	// decrypted aggregates.
	RoleRelayer Role = "relayer"
	// RoleAttestor marks AI-oracle and healthcare-provider identities
	// allowed to submit confidence scores.
	RoleAttestor Role = "attestor"
	// RoleArbiter marks callers allowed to resolve disputes. Never
	// granted implicitly to claimants.
	RoleArbiter Role = "arbiter"
)

// Valid reports whether the role is one of the defined values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOracle, RoleRelayer, RoleAttestor, RoleArbiter:
		return true
	}
	return false
}

// ParseRole validates a role name at the trust boundary.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", raw)
	}
	return role, nil
}

// Registry is the in-memory allow-list store. Single-writer per mutation via
// the mutex; reads are shared.
type Registry struct {
	mu    sync.RWMutex
	roles map[Role]map[uuid.UUID]struct{}
}

// New creates a registry with the given initial admin. Every other role is
// granted through the admin surface.
func New(admin uuid.UUID) *Registry {
	r := &Registry{roles: make(map[Role]map[uuid.UUID]struct{})}
	if admin != uuid.Nil {
		r.roles[RoleAdmin] = map[uuid.UUID]struct{}{admin: {}}
	}
	return r
}

// Grant adds caller to the role's allow-list. Idempotent.
func (r *Registry) Grant(ctx context.Context, role Role, caller uuid.UUID) error {
	if !role.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", role)
	}
	if caller == uuid.Nil {
		return dErrors.New(dErrors.CodeInvalidInput, "caller id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.roles[role]
	if members == nil {
		members = make(map[uuid.UUID]struct{})
		r.roles[role] = members
	}
	members[caller] = struct{}{}
	return nil
}

// Revoke removes caller from the role's allow-list. Idempotent.
func (r *Registry) Revoke(ctx context.Context, role Role, caller uuid.UUID) error {
	if !role.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles[role], caller)
	return nil
}

// HasRole reports whether caller is on the role's allow-list.
func (r *Registry) HasRole(ctx context.Context, role Role, caller uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[role][caller]
	return ok
}

// Require returns a forbidden error unless caller holds the role.
func (r *Registry) Require(ctx context.Context, role Role, caller uuid.UUID) error {
	if caller == uuid.Nil {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not authenticated")
	}
	if !r.HasRole(ctx, role, caller) {
		return dErrors.Newf(dErrors.CodeForbidden, "caller lacks required role %q", role)
	}
	return nil
}

// Members lists the callers holding a role. Admin surface read model.
func (r *Registry) Members(ctx context.Context, role Role) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.roles[role]))
	for caller := range r.roles[role] {
		out = append(out, caller)
	}
	return out
}
