package pdp

import (
	"strings"
	"time"

	"github.com/oarkflow/pdp/utils"
)

// Effect is the outcome a policy or ACL entry prescribes.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
	// EffectAudit allows the request but flags the decision so the
	// audit trail records that a sensitive policy fired.
	EffectAudit Effect = "audit"
)

// PrincipalKind classifies the authenticated subject.
type PrincipalKind string

const (
	KindUser    PrincipalKind = "user"
	KindService PrincipalKind = "service"
	KindDevice  PrincipalKind = "device"
)

// Principal is the already-authenticated subject requesting access.
// The ID is immutable; roles and permissions are mutated only through
// the administration API.
type Principal struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        PrincipalKind  `json:"kind" yaml:"kind"`
	Roles       []string       `json:"roles,omitempty" yaml:"roles,omitempty"`
	Permissions []string       `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Attrs       map[string]any `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Provider    string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	SessionID   string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	SessionExp  time.Time      `json:"session_exp,omitempty" yaml:"session_exp,omitempty"`
}

// Context carries one authorization request through the evaluators.
// It is built fresh per request and never persisted.
type Context struct {
	Principal   *Principal
	Resource    string
	Action      string
	Environment map[string]any
	Timestamp   time.Time
}

// Decision is the result of an authorization request. Once produced it
// is immutable and cached by value.
type Decision struct {
	Allowed   bool           `json:"allowed"`
	Reason    string         `json:"reason"`
	Policies  []string       `json:"policies,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Latency   time.Duration  `json:"latency"`
	Timestamp time.Time      `json:"timestamp"`
}

// Role is a named permission set in the inheritance graph. Protected
// roles ship with the engine and cannot be deleted.
type Role struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Inherits    []string `json:"inherits,omitempty" yaml:"inherits,omitempty"`
	Active      bool     `json:"active" yaml:"active"`
	Protected   bool     `json:"protected,omitempty" yaml:"protected,omitempty"`
}

// clone copies the role without sharing slice backing arrays, so a
// returned copy stays stable across later graph mutations.
func (r *Role) clone() *Role {
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	cp.Inherits = append([]string(nil), r.Inherits...)
	return &cp
}

// Permission is a (resource-type, resource-id-pattern, action) triple.
// The resource-id field supports the full wildcard grammar; type and
// action match exactly or "*".
type Permission struct {
	ResourceType string `json:"resource_type" yaml:"resource_type"`
	ResourceID   string `json:"resource_id" yaml:"resource_id"`
	Action       string `json:"action" yaml:"action"`
}

// ParsePermission parses "type:id-pattern:action" into a Permission.
func ParsePermission(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Permission{}, &ConfigError{Op: "parse permission", Detail: s}
	}
	return Permission{ResourceType: parts[0], ResourceID: parts[1], Action: parts[2]}, nil
}

// String renders the triple back into its compact form.
func (p Permission) String() string {
	return p.ResourceType + ":" + p.ResourceID + ":" + p.Action
}

// Matches reports whether the triple grants the requested access. Only
// the resource-id field is glob-matched; type and action are exact or
// full wildcard.
func (p Permission) Matches(resourceType, resourceID, action string) bool {
	if p.ResourceType != "*" && p.ResourceType != resourceType {
		return false
	}
	if p.Action != "*" && p.Action != action {
		return false
	}
	return utils.Match(resourceID, p.ResourceID)
}

// AuthRequest bundles the arguments of one Authorize call for batch
// evaluation.
type AuthRequest struct {
	Principal   *Principal
	Resource    string
	Action      string
	Environment map[string]any
}
