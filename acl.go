package pdp

import (
	"sync"
	"time"

	"github.com/oarkflow/pdp/utils"
)

// ACLEntry is a fine-grained, optionally expiring grant or denial for
// one principal on one resource pattern.
type ACLEntry struct {
	ID          string    `json:"id" yaml:"id"`
	PrincipalID string    `json:"principal_id" yaml:"principal_id"`
	Resource    string    `json:"resource" yaml:"resource"`
	Actions     []string  `json:"actions" yaml:"actions"`
	Effect      Effect    `json:"effect" yaml:"effect"`
	ExpiresAt   time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Expired reports whether the entry has lapsed. A zero ExpiresAt never
// expires.
func (a *ACLEntry) Expired() bool {
	return !a.ExpiresAt.IsZero() && time.Now().After(a.ExpiresAt)
}

// covers reports whether the entry applies to the request. PrincipalID
// "*" matches every principal.
func (a *ACLEntry) covers(principalID, resource, action string) bool {
	if a.Expired() {
		return false
	}
	if a.PrincipalID != "*" && a.PrincipalID != principalID {
		return false
	}
	if !utils.Match(resource, a.Resource) {
		return false
	}
	for _, act := range a.Actions {
		if act == "*" || act == action {
			return true
		}
	}
	return false
}

// ACLStore holds ACL entries behind its own lock.
type ACLStore struct {
	mu      sync.RWMutex
	entries map[string]*ACLEntry
}

func NewACLStore() *ACLStore {
	return &ACLStore{entries: make(map[string]*ACLEntry)}
}

// Grant inserts or replaces an entry.
func (s *ACLStore) Grant(e *ACLEntry) error {
	if e == nil || e.ID == "" || e.PrincipalID == "" || e.Resource == "" {
		return &ConfigError{Op: "grant acl", Detail: "id, principal and resource are required"}
	}
	switch e.Effect {
	case EffectAllow, EffectDeny:
	default:
		return &ConfigError{Op: "grant acl", Detail: "effect must be allow or deny"}
	}
	cp := *e
	s.mu.Lock()
	s.entries[e.ID] = &cp
	s.mu.Unlock()
	return nil
}

// Revoke deletes by id and reports whether it was present.
func (s *ACLStore) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Get returns a copy of the entry with the given id.
func (s *ACLStore) Get(id string) (*ACLEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// List returns copies of every live entry.
func (s *ACLStore) List() []*ACLEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ACLEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Expired() {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// Check scans the entries for the request. Deny entries take
// precedence over allows; the booleans are (covered, allowed) with the
// matching entry id.
func (s *ACLStore) Check(principalID, resource, action string) (bool, bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowID := ""
	for _, e := range s.entries {
		if !e.covers(principalID, resource, action) {
			continue
		}
		if e.Effect == EffectDeny {
			return true, false, e.ID
		}
		if allowID == "" {
			allowID = e.ID
		}
	}
	if allowID != "" {
		return true, true, allowID
	}
	return false, false, ""
}
