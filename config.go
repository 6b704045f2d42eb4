package pdp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oarkflow/pdp/cache"
)

// Config is the declarative form of a decision point: roles,
// policies, ACL entries and memberships, plus engine tuning.
type Config struct {
	Version     uint16            `json:"version" yaml:"version"`
	Roles       []*Role           `json:"roles,omitempty" yaml:"roles,omitempty"`
	Policies    []*PolicyConfig   `json:"policies,omitempty" yaml:"policies,omitempty"`
	ACLs        []*ACLEntry       `json:"acls,omitempty" yaml:"acls,omitempty"`
	Memberships []RoleMembership  `json:"memberships,omitempty" yaml:"memberships,omitempty"`
	Hierarchy   map[string]string `json:"hierarchy,omitempty" yaml:"hierarchy,omitempty"` // child -> parent
	Engine      EngineConfig      `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// PolicyConfig is a policy plus an optional list of conditions in the
// compact string form, e.g. `principal.attrs.department == "eng"`.
type PolicyConfig struct {
	Policy `yaml:",inline"`
	When   []string `json:"when,omitempty" yaml:"when,omitempty"`
}

type RoleMembership struct {
	PrincipalID string `json:"principal_id" yaml:"principal_id"`
	Role        string `json:"role" yaml:"role"`
}

// EngineConfig tunes the runtime. Durations are in milliseconds.
type EngineConfig struct {
	DefaultEffect       string `json:"default_effect,omitempty" yaml:"default_effect,omitempty"`
	DecisionTTL         int64  `json:"decision_ttl_ms,omitempty" yaml:"decision_ttl_ms,omitempty"`
	RoleTTL             int64  `json:"role_ttl_ms,omitempty" yaml:"role_ttl_ms,omitempty"`
	PermissionTTL       int64  `json:"permission_ttl_ms,omitempty" yaml:"permission_ttl_ms,omitempty"`
	IdentityTTL         int64  `json:"identity_ttl_ms,omitempty" yaml:"identity_ttl_ms,omitempty"`
	CacheCapacity       int    `json:"cache_capacity,omitempty" yaml:"cache_capacity,omitempty"`
	AuditBuffer         int    `json:"audit_buffer,omitempty" yaml:"audit_buffer,omitempty"`
	RistrettoNumCounter int64  `json:"ristretto_num_counter,omitempty" yaml:"ristretto_num_counter,omitempty"`
	RistrettoMaxCost    int64  `json:"ristretto_max_cost,omitempty" yaml:"ristretto_max_cost,omitempty"`
}

// ConfigLoader parses configuration documents.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Op: "load yaml", Err: err}
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Op: "load json", Err: err}
	}
	return cfg, nil
}

// LoadFile picks the decoder from the file extension.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Op: "load file", Detail: path, Err: err}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	default:
		return nil, &ConfigError{Op: "load file", Detail: "unsupported extension " + filepath.Ext(path)}
	}
}

// ToYAML exports the config as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports the config as indented JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks the whole document without touching any engine.
func (c *Config) Validate() []error {
	var errs []error
	for _, r := range c.Roles {
		if r.Name == "" {
			errs = append(errs, &ConfigError{Op: "validate role", Detail: "missing name"})
			continue
		}
		for _, ps := range r.Permissions {
			if _, err := ParsePermission(ps); err != nil {
				errs = append(errs, &ConfigError{Op: "validate role", Detail: r.Name, Err: err})
			}
		}
	}
	for _, pc := range c.Policies {
		policy, err := pc.resolve()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := policy.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, a := range c.ACLs {
		if a.PrincipalID == "" || a.Resource == "" || len(a.Actions) == 0 {
			errs = append(errs, &ConfigError{Op: "validate acl", Detail: a.ID})
		}
	}
	for _, m := range c.Memberships {
		if m.PrincipalID == "" || m.Role == "" {
			errs = append(errs, &ConfigError{Op: "validate membership", Detail: m.PrincipalID + "/" + m.Role})
		}
	}
	return errs
}

// resolve merges the string-form conditions into the policy's
// condition list.
func (pc *PolicyConfig) resolve() (*Policy, error) {
	policy := pc.Policy
	policy.Conditions = append([]Condition(nil), pc.Policy.Conditions...)
	for _, s := range pc.When {
		cond, err := ParseCondition(s)
		if err != nil {
			return nil, &ConfigError{Op: "parse condition", Detail: pc.ID, Err: err}
		}
		policy.Conditions = append(policy.Conditions, cond)
	}
	return &policy, nil
}

// ApplyConfig loads roles, hierarchy, memberships, policies and ACL
// entries into the running decision point. The policy set is swapped
// atomically; roles and entries are upserted in document order.
func (p *PDP) ApplyConfig(cfg *Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return &ConfigError{Op: "apply config", Detail: fmt.Sprintf("%d invalid items", len(errs)), Err: errs[0]}
	}

	for _, r := range cfg.Roles {
		if err := p.rbac.UpsertRole(r); err != nil {
			return err
		}
	}
	for child, parent := range cfg.Hierarchy {
		if err := p.rbac.AddInheritance(child, parent); err != nil {
			return err
		}
	}
	for _, m := range cfg.Memberships {
		if err := p.rbac.AssignRole(m.PrincipalID, m.Role); err != nil {
			return err
		}
	}

	policies := make([]*Policy, 0, len(cfg.Policies))
	for _, pc := range cfg.Policies {
		policy, err := pc.resolve()
		if err != nil {
			return err
		}
		policies = append(policies, policy)
	}
	if len(policies) > 0 {
		if err := p.abac.LoadPolicies(policies); err != nil {
			return err
		}
	}
	if cfg.Engine.DefaultEffect != "" {
		p.abac.SetDefaultEffect(Effect(cfg.Engine.DefaultEffect))
	}

	for _, a := range cfg.ACLs {
		if _, err := p.GrantACL(a); err != nil {
			return err
		}
	}

	p.FlushCaches()
	p.metrics.SetPolicyCount("rbac", len(p.rbac.ListRoles()))
	p.metrics.SetPolicyCount("abac", len(p.abac.ListPolicies()))
	p.auditConfig("config.apply", map[string]any{
		"roles":    len(cfg.Roles),
		"policies": len(cfg.Policies),
		"acls":     len(cfg.ACLs),
	})
	return nil
}

// ExportConfig snapshots the current state as a document that
// ApplyConfig can reload.
func (p *PDP) ExportConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.Roles = p.rbac.ListRoles()
	for _, policy := range p.abac.ListPolicies() {
		cfg.Policies = append(cfg.Policies, &PolicyConfig{Policy: *policy})
	}
	cfg.ACLs = p.acl.List()
	for principalID, roles := range p.rbac.Memberships() {
		for _, role := range roles {
			cfg.Memberships = append(cfg.Memberships, RoleMembership{PrincipalID: principalID, Role: role})
		}
	}
	cfg.Engine.DefaultEffect = string(p.abac.DefaultEffect())
	return cfg
}

// NewFromConfig builds a PDP with engine tuning taken from the
// document, then applies its contents.
func NewFromConfig(cfg *Config, opts ...Option) (*PDP, error) {
	ec := cfg.Engine
	cc := cache.Config{
		DecisionTTL:   time.Duration(ec.DecisionTTL) * time.Millisecond,
		RoleTTL:       time.Duration(ec.RoleTTL) * time.Millisecond,
		PermissionTTL: time.Duration(ec.PermissionTTL) * time.Millisecond,
		IdentityTTL:   time.Duration(ec.IdentityTTL) * time.Millisecond,
	}
	if ec.CacheCapacity > 0 {
		cc.DecisionCapacity = ec.CacheCapacity
		cc.RoleCapacity = ec.CacheCapacity
		cc.PermissionCapacity = ec.CacheCapacity
		cc.IdentityCapacity = ec.CacheCapacity
	}

	all := []Option{WithCacheConfig(cc)}
	if ec.AuditBuffer > 0 {
		all = append(all, WithAuditBuffer(ec.AuditBuffer))
	}
	if ec.RistrettoNumCounter > 0 && ec.RistrettoMaxCost > 0 {
		all = append(all, WithHotDecisionCache(ec.RistrettoNumCounter, ec.RistrettoMaxCost))
	}
	all = append(all, opts...)

	p := New(all...)
	if err := p.ApplyConfig(cfg); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}
