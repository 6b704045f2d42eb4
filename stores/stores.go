// Package stores provides persistence backends for roles, policies,
// ACL entries and role memberships, with in-memory, SQL (squealx) and
// Redis implementations.
package stores

import (
	"context"

	"github.com/oarkflow/pdp"
)

// RoleStore persists the role registry.
type RoleStore interface {
	SaveRole(ctx context.Context, r *pdp.Role) error
	DeleteRole(ctx context.Context, name string) error
	GetRole(ctx context.Context, name string) (*pdp.Role, error)
	ListRoles(ctx context.Context) ([]*pdp.Role, error)
}

// PolicyStore persists attribute policies.
type PolicyStore interface {
	SavePolicy(ctx context.Context, p *pdp.Policy) error
	DeletePolicy(ctx context.Context, id string) error
	GetPolicy(ctx context.Context, id string) (*pdp.Policy, error)
	ListPolicies(ctx context.Context) ([]*pdp.Policy, error)
}

// ACLStore persists fine-grained entries.
type ACLStore interface {
	GrantACL(ctx context.Context, e *pdp.ACLEntry) error
	RevokeACL(ctx context.Context, id string) error
	ListACLs(ctx context.Context) ([]*pdp.ACLEntry, error)
}

// MembershipStore persists principal to role assignments.
type MembershipStore interface {
	AssignRole(ctx context.Context, principalID, role string) error
	RevokeRole(ctx context.Context, principalID, role string) error
	ListRoles(ctx context.Context, principalID string) ([]string, error)
}

// Hydrate loads persisted state into a running decision point. Nil
// stores are skipped. Memberships require a store that can enumerate
// principals, so they are hydrated only from stores implementing
// PrincipalLister.
func Hydrate(ctx context.Context, p *pdp.PDP, roles RoleStore, policies PolicyStore, acls ACLStore, members MembershipStore) error {
	if roles != nil {
		list, err := roles.ListRoles(ctx)
		if err != nil {
			return err
		}
		for _, r := range list {
			if err := p.UpsertRole(r); err != nil {
				return err
			}
		}
	}
	if policies != nil {
		list, err := policies.ListPolicies(ctx)
		if err != nil {
			return err
		}
		if len(list) > 0 {
			if err := p.LoadPolicies(list); err != nil {
				return err
			}
		}
	}
	if acls != nil {
		list, err := acls.ListACLs(ctx)
		if err != nil {
			return err
		}
		for _, e := range list {
			if _, err := p.GrantACL(e); err != nil {
				return err
			}
		}
	}
	if lister, ok := members.(PrincipalLister); ok && members != nil {
		principals, err := lister.ListPrincipals(ctx)
		if err != nil {
			return err
		}
		for _, id := range principals {
			assigned, err := members.ListRoles(ctx, id)
			if err != nil {
				return err
			}
			for _, role := range assigned {
				if err := p.AssignRole(id, role); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// PrincipalLister enumerates every principal with stored memberships.
type PrincipalLister interface {
	ListPrincipals(ctx context.Context) ([]string, error)
}
