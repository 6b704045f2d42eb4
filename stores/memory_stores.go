package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oarkflow/pdp"
)

// MemoryRoleStore keeps roles in a map, for tests and single-process
// deployments.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*pdp.Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*pdp.Role)}
}

func (s *MemoryRoleStore) SaveRole(_ context.Context, r *pdp.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.roles[r.Name] = &cp
	return nil
}

func (s *MemoryRoleStore) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, name)
	return nil
}

func (s *MemoryRoleStore) GetRole(_ context.Context, name string) (*pdp.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, fmt.Errorf("role not found: %s", name)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryRoleStore) ListRoles(_ context.Context) ([]*pdp.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pdp.Role, 0, len(s.roles))
	for _, r := range s.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MemoryPolicyStore keeps policies in a map.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*pdp.Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*pdp.Policy)}
}

func (s *MemoryPolicyStore) SavePolicy(_ context.Context, p *pdp.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

func (s *MemoryPolicyStore) DeletePolicy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}

func (s *MemoryPolicyStore) GetPolicy(_ context.Context, id string) (*pdp.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPolicyStore) ListPolicies(_ context.Context) ([]*pdp.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pdp.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// MemoryACLStore keeps entries in a map.
type MemoryACLStore struct {
	mu      sync.RWMutex
	entries map[string]*pdp.ACLEntry
}

func NewMemoryACLStore() *MemoryACLStore {
	return &MemoryACLStore{entries: make(map[string]*pdp.ACLEntry)}
}

func (s *MemoryACLStore) GrantACL(_ context.Context, e *pdp.ACLEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryACLStore) RevokeACL(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryACLStore) ListACLs(_ context.Context) ([]*pdp.ACLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pdp.ACLEntry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryMembershipStore keeps assignments in a map of sets.
type MemoryMembershipStore struct {
	mu      sync.RWMutex
	byPrincipal map[string]map[string]struct{}
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{byPrincipal: make(map[string]map[string]struct{})}
}

func (s *MemoryMembershipStore) AssignRole(_ context.Context, principalID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.byPrincipal[principalID]
	if !ok {
		set = make(map[string]struct{})
		s.byPrincipal[principalID] = set
	}
	set[role] = struct{}{}
	return nil
}

func (s *MemoryMembershipStore) RevokeRole(_ context.Context, principalID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.byPrincipal[principalID]; ok {
		delete(set, role)
		if len(set) == 0 {
			delete(s.byPrincipal, principalID)
		}
	}
	return nil
}

func (s *MemoryMembershipStore) ListRoles(_ context.Context, principalID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byPrincipal[principalID]
	out := make([]string, 0, len(set))
	for role := range set {
		out = append(out, role)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryMembershipStore) ListPrincipals(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byPrincipal))
	for id := range s.byPrincipal {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
