package cache

import "time"

// Tag helpers shared by everything that writes into the managed caches.
func TagPrincipal(id string) string  { return "principal:" + id }
func TagResource(name string) string { return "resource:" + name }
func TagRole(name string) string     { return "role:" + name }

// Config sizes the four managed caches. Zero values fall back to the
// defaults below.
type Config struct {
	DecisionCapacity   int           `json:"decision_capacity" yaml:"decision_capacity"`
	RoleCapacity       int           `json:"role_capacity" yaml:"role_capacity"`
	IdentityCapacity   int           `json:"identity_capacity" yaml:"identity_capacity"`
	PermissionCapacity int           `json:"permission_capacity" yaml:"permission_capacity"`
	DecisionTTL        time.Duration `json:"decision_ttl" yaml:"decision_ttl"`
	RoleTTL            time.Duration `json:"role_ttl" yaml:"role_ttl"`
	IdentityTTL        time.Duration `json:"identity_ttl" yaml:"identity_ttl"`
	PermissionTTL      time.Duration `json:"permission_ttl" yaml:"permission_ttl"`
	SweepInterval      time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// Default TTLs mirror the relative volatility of what each cache holds:
// decisions churn fastest, identities slowest.
const (
	DefaultDecisionTTL   = 30 * time.Second
	DefaultRoleTTL       = 5 * time.Minute
	DefaultPermissionTTL = 10 * time.Minute
	DefaultIdentityTTL   = 30 * time.Minute
	DefaultCapacity      = 10000
	DefaultSweepInterval = 5 * time.Second
)

func (c Config) withDefaults() Config {
	def := func(v *int) {
		if *v <= 0 {
			*v = DefaultCapacity
		}
	}
	def(&c.DecisionCapacity)
	def(&c.RoleCapacity)
	def(&c.IdentityCapacity)
	def(&c.PermissionCapacity)
	if c.DecisionTTL <= 0 {
		c.DecisionTTL = DefaultDecisionTTL
	}
	if c.RoleTTL <= 0 {
		c.RoleTTL = DefaultRoleTTL
	}
	if c.IdentityTTL <= 0 {
		c.IdentityTTL = DefaultIdentityTTL
	}
	if c.PermissionTTL <= 0 {
		c.PermissionTTL = DefaultPermissionTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Manager composes the four specialized caches the decision engine
// relies on. Each cache keeps its own lock, so operations on different
// caches never block each other.
type Manager struct {
	decisions   *Cache
	roles       *Cache
	identities  *Cache
	permissions *Cache
}

func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		decisions:   New("decisions", cfg.DecisionCapacity, cfg.DecisionTTL, cfg.SweepInterval),
		roles:       New("roles", cfg.RoleCapacity, cfg.RoleTTL, cfg.SweepInterval),
		identities:  New("identities", cfg.IdentityCapacity, cfg.IdentityTTL, cfg.SweepInterval),
		permissions: New("permissions", cfg.PermissionCapacity, cfg.PermissionTTL, cfg.SweepInterval),
	}
}

func (m *Manager) Decisions() *Cache   { return m.decisions }
func (m *Manager) Roles() *Cache       { return m.roles }
func (m *Manager) Identities() *Cache  { return m.identities }
func (m *Manager) Permissions() *Cache { return m.permissions }

func (m *Manager) all() []*Cache {
	return []*Cache{m.decisions, m.roles, m.identities, m.permissions}
}

// InvalidatePrincipal evicts every entry tagged with the principal id
// across all caches and returns the total removed.
func (m *Manager) InvalidatePrincipal(id string) int {
	tag := TagPrincipal(id)
	n := 0
	for _, c := range m.all() {
		n += c.InvalidateByTags(tag)
	}
	return n
}

// InvalidateResource evicts every entry tagged with the resource name
// across all caches and returns the total removed.
func (m *Manager) InvalidateResource(name string) int {
	tag := TagResource(name)
	n := 0
	for _, c := range m.all() {
		n += c.InvalidateByTags(tag)
	}
	return n
}

// InvalidateRole evicts every entry tagged with the role name across
// all caches and returns the total removed.
func (m *Manager) InvalidateRole(name string) int {
	tag := TagRole(name)
	n := 0
	for _, c := range m.all() {
		n += c.InvalidateByTags(tag)
	}
	return n
}

// Flush drops every entry in every cache.
func (m *Manager) Flush() {
	for _, c := range m.all() {
		c.Flush()
	}
}

// Metrics returns per-cache counter snapshots keyed by cache name.
func (m *Manager) Metrics() map[string]Stats {
	out := make(map[string]Stats, 4)
	for _, c := range m.all() {
		out[c.Name()] = c.Metrics()
	}
	return out
}
