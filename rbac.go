package pdp

import (
	"sort"
	"sync"

	"github.com/oarkflow/pdp/cache"
	"github.com/oarkflow/pdp/logger"
)

// Built-in role names. These ship pre-loaded, system-protected, and
// cannot be deleted or unprotected.
const (
	RoleAdmin          = "admin"
	RoleEditor         = "editor"
	RoleDeveloper      = "developer"
	RoleViewer         = "viewer"
	RoleServiceAccount = "service-account"
)

func builtinRoles() []*Role {
	return []*Role{
		{Name: RoleAdmin, Description: "Full access to every resource", Permissions: []string{"*:*:*"}, Active: true, Protected: true},
		{Name: RoleEditor, Description: "Read and write on services", Permissions: []string{"service:*:write", "service:*:update"}, Inherits: []string{RoleViewer}, Active: true, Protected: true},
		{Name: RoleDeveloper, Description: "Read, write and deploy on services", Permissions: []string{"service:*:deploy", "service:*:logs"}, Inherits: []string{RoleEditor}, Active: true, Protected: true},
		{Name: RoleViewer, Description: "Read-only access", Permissions: []string{"service:*:read", "service:*:list"}, Active: true, Protected: true},
		{Name: RoleServiceAccount, Description: "Machine-to-machine access", Permissions: []string{"service:*:read", "service:*:invoke"}, Active: true, Protected: true},
	}
}

// RBACEngine owns the role registry, the inheritance graph and role
// memberships. All state is guarded by a single lock so readers never
// observe a half-applied graph; the cycle check and the edge insertion
// happen inside the same critical section.
type RBACEngine struct {
	mu          sync.RWMutex
	roles       map[string]*Role
	memberships map[string][]string // principal id -> directly assigned role names

	caches *cache.Manager
	logger logger.Logger
}

// NewRBACEngine creates an engine pre-loaded with the built-in roles.
func NewRBACEngine(caches *cache.Manager, l logger.Logger) *RBACEngine {
	return newRBACEngine(caches, l, builtinRoles())
}

func newRBACEngine(caches *cache.Manager, l logger.Logger, seed []*Role) *RBACEngine {
	if l == nil {
		l = logger.NewNullLogger()
	}
	e := &RBACEngine{
		roles:       make(map[string]*Role),
		memberships: make(map[string][]string),
		caches:      caches,
		logger:      l,
	}
	for _, r := range seed {
		e.roles[r.Name] = r
	}
	return e
}

// CreateRole registers a role. Inherited parents must exist and must
// not close a cycle; a rejected mutation leaves the graph untouched.
func (e *RBACEngine) CreateRole(role *Role) error {
	if role == nil || role.Name == "" {
		return &ConfigError{Op: "create role", Detail: "missing name"}
	}
	for _, p := range role.Permissions {
		if _, err := ParsePermission(p); err != nil {
			return &ConfigError{Op: "create role", Detail: p, Err: err}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.roles[role.Name]; ok {
		return &ConfigError{Op: "create role", Detail: role.Name, Err: ErrRoleExists}
	}
	for _, parent := range role.Inherits {
		if _, ok := e.roles[parent]; !ok {
			return &ConfigError{Op: "create role", Detail: parent, Err: ErrRoleNotFound}
		}
	}
	// A brand-new node cannot be reachable from its parents yet, so no
	// cycle check is needed here.
	e.roles[role.Name] = role.clone()
	e.invalidateRoleLocked(role.Name)
	e.logger.Info("role created", "role", role.Name)
	return nil
}

// UpsertRole creates or replaces a role, re-running the cycle check
// against the proposed parent set. Protected built-ins keep their
// protected flag across replacement.
func (e *RBACEngine) UpsertRole(role *Role) error {
	if role == nil || role.Name == "" {
		return &ConfigError{Op: "upsert role", Detail: "missing name"}
	}
	for _, p := range role.Permissions {
		if _, err := ParsePermission(p); err != nil {
			return &ConfigError{Op: "upsert role", Detail: p, Err: err}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, parent := range role.Inherits {
		if _, ok := e.roles[parent]; !ok {
			return &ConfigError{Op: "upsert role", Detail: parent, Err: ErrRoleNotFound}
		}
		if e.reachableLocked(parent, role.Name) {
			return &ConfigError{Op: "upsert role", Detail: role.Name + " <- " + parent, Err: ErrInheritanceCycle}
		}
	}
	cp := role.clone()
	if old, ok := e.roles[role.Name]; ok && old.Protected {
		cp.Protected = true
	}
	e.roles[role.Name] = cp
	e.invalidateRoleLocked(role.Name)
	return nil
}

// DeleteRole removes a role and strips it from every other role's
// parent set and from every membership. Deleting a protected role
// fails; deleting an unknown role reports false without error.
func (e *RBACEngine) DeleteRole(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	role, ok := e.roles[name]
	if !ok {
		return false, nil
	}
	if role.Protected {
		return false, &ConfigError{Op: "delete role", Detail: name, Err: ErrRoleProtected}
	}
	delete(e.roles, name)
	for _, r := range e.roles {
		r.Inherits = removeString(r.Inherits, name)
	}
	for pid, assigned := range e.memberships {
		e.memberships[pid] = removeString(assigned, name)
	}
	e.invalidateRoleLocked(name)
	e.logger.Info("role deleted", "role", name)
	return true, nil
}

// AddInheritance makes child inherit parent. The reachability check
// from the prospective parent back to the child runs under the same
// lock as the insertion, so the read path always sees an acyclic graph.
func (e *RBACEngine) AddInheritance(child, parent string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.roles[child]
	if !ok {
		return &ConfigError{Op: "add inheritance", Detail: child, Err: ErrRoleNotFound}
	}
	if _, ok := e.roles[parent]; !ok {
		return &ConfigError{Op: "add inheritance", Detail: parent, Err: ErrRoleNotFound}
	}
	for _, existing := range c.Inherits {
		if existing == parent {
			return nil
		}
	}
	if e.reachableLocked(parent, child) {
		return &ConfigError{Op: "add inheritance", Detail: child + " <- " + parent, Err: ErrInheritanceCycle}
	}
	c.Inherits = append(c.Inherits, parent)
	e.invalidateRoleLocked(child)
	return nil
}

// RemoveInheritance drops the child->parent edge and reports whether it
// existed.
func (e *RBACEngine) RemoveInheritance(child, parent string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.roles[child]
	if !ok {
		return false, &ConfigError{Op: "remove inheritance", Detail: child, Err: ErrRoleNotFound}
	}
	before := len(c.Inherits)
	c.Inherits = removeString(c.Inherits, parent)
	if len(c.Inherits) == before {
		return false, nil
	}
	e.invalidateRoleLocked(child)
	return true, nil
}

// AssignRole grants a role to a principal. The role must exist.
func (e *RBACEngine) AssignRole(principalID, roleName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.roles[roleName]; !ok {
		return &ConfigError{Op: "assign role", Detail: roleName, Err: ErrRoleNotFound}
	}
	for _, r := range e.memberships[principalID] {
		if r == roleName {
			return nil
		}
	}
	e.memberships[principalID] = append(e.memberships[principalID], roleName)
	e.invalidatePrincipalLocked(principalID)
	return nil
}

// RevokeRole removes a direct assignment and reports whether it
// existed.
func (e *RBACEngine) RevokeRole(principalID, roleName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := len(e.memberships[principalID])
	e.memberships[principalID] = removeString(e.memberships[principalID], roleName)
	changed := len(e.memberships[principalID]) != before
	if changed {
		e.invalidatePrincipalLocked(principalID)
	}
	return changed
}

// GetRole returns a copy of the named role.
func (e *RBACEngine) GetRole(name string) (*Role, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.roles[name]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// ListRoles returns copies of every registered role, sorted by name.
func (e *RBACEngine) ListRoles() []*Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Role, 0, len(e.roles))
	for _, r := range e.roles {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Memberships returns the direct role assignments per principal.
func (e *RBACEngine) Memberships() map[string][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]string, len(e.memberships))
	for pid, roles := range e.memberships {
		out[pid] = append([]string(nil), roles...)
	}
	return out
}

// GetEffectiveRoles resolves the transitive closure over inheritance
// starting from the principal's directly assigned roles. Results are
// cached per principal, tagged with the principal and every role the
// walk encountered (inactive ones included) so role mutations evict
// exactly the affected entries.
func (e *RBACEngine) GetEffectiveRoles(principalID string) []string {
	cacheKey := "effective-roles:" + principalID
	if e.caches != nil {
		if cached, ok := e.caches.Roles().Get(cacheKey); ok {
			return append([]string(nil), cached.([]string)...)
		}
	}

	e.mu.RLock()
	direct := append([]string(nil), e.memberships[principalID]...)
	closure, encountered := e.closureLocked(direct)
	e.mu.RUnlock()

	names := make([]string, 0, len(closure))
	for name := range closure {
		names = append(names, name)
	}
	sort.Strings(names)

	if e.caches != nil {
		tags := make([]string, 0, len(encountered)+1)
		tags = append(tags, cache.TagPrincipal(principalID))
		for n := range encountered {
			tags = append(tags, cache.TagRole(n))
		}
		e.caches.Roles().Put(cacheKey, append([]string(nil), names...), 0, tags...)
	}
	return names
}

// EffectiveRolesOf resolves the closure for an explicit role list, used
// when the caller carries roles on the principal instead of relying on
// stored memberships.
func (e *RBACEngine) EffectiveRolesOf(direct []string) []string {
	e.mu.RLock()
	closure, _ := e.closureLocked(direct)
	e.mu.RUnlock()
	names := make([]string, 0, len(closure))
	for name := range closure {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReachableRolesOf returns every role name reachable from the given
// direct assignments, inactive roles included. Used to tag cache
// entries so reactivating a role evicts results computed while it was
// inactive.
func (e *RBACEngine) ReachableRolesOf(direct []string) []string {
	e.mu.RLock()
	_, encountered := e.closureLocked(direct)
	e.mu.RUnlock()
	names := make([]string, 0, len(encountered))
	for name := range encountered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEffectivePermissions unions a principal's direct permissions with
// the permissions of every effective role.
func (e *RBACEngine) GetEffectivePermissions(principalID string) []Permission {
	cacheKey := "effective-perms:" + principalID
	if e.caches != nil {
		if cached, ok := e.caches.Permissions().Get(cacheKey); ok {
			return append([]Permission(nil), cached.([]Permission)...)
		}
	}

	roles := e.GetEffectiveRoles(principalID)
	seen := make(map[string]struct{})
	perms := make([]Permission, 0)

	e.mu.RLock()
	for _, name := range roles {
		role, ok := e.roles[name]
		if !ok || !role.Active {
			continue
		}
		for _, ps := range role.Permissions {
			if _, dup := seen[ps]; dup {
				continue
			}
			if p, err := ParsePermission(ps); err == nil {
				seen[ps] = struct{}{}
				perms = append(perms, p)
			}
		}
	}
	e.mu.RUnlock()

	if e.caches != nil {
		reachable := e.ReachableRolesOf(e.directRoles(principalID))
		tags := make([]string, 0, len(reachable)+1)
		tags = append(tags, cache.TagPrincipal(principalID))
		for _, n := range reachable {
			tags = append(tags, cache.TagRole(n))
		}
		e.caches.Permissions().Put(cacheKey, append([]Permission(nil), perms...), 0, tags...)
	}
	return perms
}

// CheckPermission reports whether any effective permission of the
// principal grants the action on the resource.
func (e *RBACEngine) CheckPermission(principalID, resourceType, resourceID, action string) bool {
	for _, p := range e.GetEffectivePermissions(principalID) {
		if p.Matches(resourceType, resourceID, action) {
			return true
		}
	}
	return false
}

// directRoles returns a copy of the stored role assignments for a
// principal.
func (e *RBACEngine) directRoles(principalID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.memberships[principalID]...)
}

// grantingRole finds the first role in the given set whose own
// permission list matches the request, so decisions can name the role
// that granted access.
func (e *RBACEngine) grantingRole(roles []string, resourceType, resourceID, action string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, name := range roles {
		role, ok := e.roles[name]
		if !ok || !role.Active {
			continue
		}
		for _, ps := range role.Permissions {
			perm, err := ParsePermission(ps)
			if err != nil {
				continue
			}
			if perm.Matches(resourceType, resourceID, action) {
				return name, true
			}
		}
	}
	return "", false
}

// checkDirect matches the permission strings carried directly on a
// principal, outside any role.
func checkDirect(p *Principal, resourceType, resourceID, action string) bool {
	for _, ps := range p.Permissions {
		perm, err := ParsePermission(ps)
		if err != nil {
			continue
		}
		if perm.Matches(resourceType, resourceID, action) {
			return true
		}
	}
	return false
}

// closureLocked walks the inheritance graph with an explicit worklist
// and a visited set. Caller holds at least a read lock. Inactive roles
// contribute nothing to the active closure but are still reported in
// the encountered set, so cache entries computed while a role was
// inactive carry its tag and get evicted when the role changes.
func (e *RBACEngine) closureLocked(direct []string) (active, encountered map[string]struct{}) {
	active = make(map[string]struct{})
	encountered = make(map[string]struct{})
	stack := make([]string, 0, len(direct))
	for _, r := range direct {
		stack = append(stack, r)
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := encountered[name]; seen {
			continue
		}
		encountered[name] = struct{}{}
		role, ok := e.roles[name]
		if !ok || !role.Active {
			continue
		}
		active[name] = struct{}{}
		stack = append(stack, role.Inherits...)
	}
	return active, encountered
}

// reachableLocked reports whether target is reachable from start along
// inheritance edges. Caller holds the write lock.
func (e *RBACEngine) reachableLocked(start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]struct{}{}
	stack := []string{start}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[name]; seen {
			continue
		}
		visited[name] = struct{}{}
		role, ok := e.roles[name]
		if !ok {
			continue
		}
		for _, parent := range role.Inherits {
			if parent == target {
				return true
			}
			stack = append(stack, parent)
		}
	}
	return false
}

func (e *RBACEngine) invalidateRoleLocked(name string) {
	if e.caches != nil {
		e.caches.InvalidateRole(name)
	}
}

func (e *RBACEngine) invalidatePrincipalLocked(id string) {
	if e.caches != nil {
		e.caches.InvalidatePrincipal(id)
	}
}

// removeString filters into a fresh slice. The input may be aliased by
// copies handed to callers, so it must not be reused in place.
func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
