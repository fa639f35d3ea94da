package claims

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
)

// SetPermission ORs perm into g's grant on c.
func (r *Registry) SetPermission(c *Claim, g Grantee, perm Permission) error {
	if !c.registered {
		return ErrNotRegistered
	}
	c.setPermission(g, perm)
	id := c.id
	r.enqueue("set_permission", []string{r.familyKey(c)}, func(ctx context.Context) error {
		return r.backend.SetPermission(ctx, id, g, perm)
	})
	return nil
}

// UnsetPermission removes g's grant on c.
func (r *Registry) UnsetPermission(c *Claim, g Grantee) error {
	if !c.registered {
		return ErrNotRegistered
	}
	c.unsetPermission(g)
	id := c.id
	r.enqueue("unset_permission", []string{r.familyKey(c)}, func(ctx context.Context) error {
		return r.backend.UnsetPermission(ctx, id, g)
	})
	return nil
}

// ClearPermissions removes every grant on c.
func (r *Registry) ClearPermissions(c *Claim) error {
	if !c.registered {
		return ErrNotRegistered
	}
	c.clearPermissions()
	id := c.id
	r.enqueue("clear_permissions", []string{r.familyKey(c)}, func(ctx context.Context) error {
		return r.backend.UnsetAllPermissions(ctx, id)
	})
	return nil
}

// DropPermissionOnOwnerClaims removes g's grant from every claim owned by
// owner, subdivisions included. Returns the number of claims touched.
func (r *Registry) DropPermissionOnOwnerClaims(owner uuid.UUID, g Grantee) int {
	owned := r.claimsWithOwner(owner)
	for _, c := range owned {
		c.unsetPermission(g)
	}
	r.enqueue("unset_owner_permission", r.ownerScopeKeys(owner, owned), func(ctx context.Context) error {
		return r.backend.UnsetOwnerPermission(ctx, owner, g)
	})
	return len(owned)
}

// ClearPermissionsOnOwnerClaims removes every grant from every claim owned by owner.
func (r *Registry) ClearPermissionsOnOwnerClaims(owner uuid.UUID) int {
	owned := r.claimsWithOwner(owner)
	for _, c := range owned {
		c.clearPermissions()
	}
	r.enqueue("clear_owner_permissions", r.ownerScopeKeys(owner, owned), func(ctx context.Context) error {
		return r.backend.UnsetAllOwnerPermissions(ctx, owner)
	})
	return len(owned)
}

func (r *Registry) claimsWithOwner(owner uuid.UUID) []*Claim {
	var out []*Claim
	for _, c := range r.claims {
		if c.owner == owner {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *Claim) int { return cmp.Compare(a.id, b.id) })
	return out
}

// ownerScopeKeys orders an owner-wide write after every queued write to the
// affected claim families and to the owner itself.
func (r *Registry) ownerScopeKeys(owner uuid.UUID, owned []*Claim) []string {
	keys := []string{OwnerKey(owner)}
	for _, c := range owned {
		keys = append(keys, r.familyKey(c))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
