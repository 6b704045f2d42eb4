package pdp

import (
	"time"

	"github.com/google/uuid"
)

// Administrative mutations route through the PDP rather than the
// engines directly so every change also evicts the decisions it could
// have influenced and leaves an audit trail.

// CreateRole registers a new role.
func (p *PDP) CreateRole(role *Role) error {
	if err := p.rbac.CreateRole(role); err != nil {
		return err
	}
	p.afterRoleChange("role.create", role.Name)
	return nil
}

// UpsertRole creates or replaces a role.
func (p *PDP) UpsertRole(role *Role) error {
	if err := p.rbac.UpsertRole(role); err != nil {
		return err
	}
	p.afterRoleChange("role.upsert", role.Name)
	return nil
}

// DeleteRole removes a role, reporting whether it existed. Protected
// roles cannot be removed.
func (p *PDP) DeleteRole(name string) (bool, error) {
	existed, err := p.rbac.DeleteRole(name)
	if err != nil {
		return existed, err
	}
	if existed {
		p.afterRoleChange("role.delete", name)
	}
	return existed, nil
}

// AddInheritance makes child inherit parent, rejecting cycles.
func (p *PDP) AddInheritance(child, parent string) error {
	if err := p.rbac.AddInheritance(child, parent); err != nil {
		return err
	}
	p.afterRoleChange("role.inherit", child)
	return nil
}

// RemoveInheritance removes an inheritance edge.
func (p *PDP) RemoveInheritance(child, parent string) (bool, error) {
	removed, err := p.rbac.RemoveInheritance(child, parent)
	if err != nil {
		return removed, err
	}
	if removed {
		p.afterRoleChange("role.uninherit", child)
	}
	return removed, nil
}

// AssignRole stores a direct role membership for a principal.
func (p *PDP) AssignRole(principalID, roleName string) error {
	if err := p.rbac.AssignRole(principalID, roleName); err != nil {
		return err
	}
	p.afterPrincipalChange("role.assign", principalID)
	return nil
}

// RevokeRole removes a direct role membership.
func (p *PDP) RevokeRole(principalID, roleName string) bool {
	if !p.rbac.RevokeRole(principalID, roleName) {
		return false
	}
	p.afterPrincipalChange("role.revoke", principalID)
	return true
}

// AddPolicy upserts one policy. Policy changes can affect any
// decision, so the whole decision cache is dropped.
func (p *PDP) AddPolicy(policy *Policy) error {
	if err := p.abac.AddPolicy(policy); err != nil {
		return err
	}
	p.afterPolicyChange("policy.add", policy.ID)
	return nil
}

// RemovePolicy deletes a policy by id, reporting whether it existed.
func (p *PDP) RemovePolicy(id string) bool {
	if !p.abac.RemovePolicy(id) {
		return false
	}
	p.afterPolicyChange("policy.remove", id)
	return true
}

// LoadPolicies atomically replaces the policy set. Nothing changes if
// any policy fails validation.
func (p *PDP) LoadPolicies(policies []*Policy) error {
	if err := p.abac.LoadPolicies(policies); err != nil {
		return err
	}
	p.afterPolicyChange("policy.load", "")
	return nil
}

// GrantACL adds a fine-grained entry. An empty id gets a generated
// one; the id is returned either way.
func (p *PDP) GrantACL(entry *ACLEntry) (string, error) {
	if entry != nil && entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := p.acl.Grant(entry); err != nil {
		return "", err
	}
	p.afterACLChange("acl.grant", entry)
	return entry.ID, nil
}

// RevokeACL removes an entry by id.
func (p *PDP) RevokeACL(id string) bool {
	entry, ok := p.acl.Get(id)
	if !ok || !p.acl.Revoke(id) {
		return false
	}
	p.afterACLChange("acl.revoke", entry)
	return true
}

// InvalidatePrincipal evicts every cached entry tagged with the
// principal, across all caches.
func (p *PDP) InvalidatePrincipal(id string) int {
	n := p.caches.InvalidatePrincipal(id)
	p.clearHot()
	p.metrics.RecordInvalidation("principal", n)
	return n
}

// InvalidateResource evicts every cached entry tagged with the
// resource.
func (p *PDP) InvalidateResource(name string) int {
	n := p.caches.InvalidateResource(name)
	p.clearHot()
	p.metrics.RecordInvalidation("resource", n)
	return n
}

// InvalidateRole evicts every cached entry tagged with the role,
// including decisions that relied on it through inheritance.
func (p *PDP) InvalidateRole(name string) int {
	n := p.caches.InvalidateRole(name)
	p.clearHot()
	p.metrics.RecordInvalidation("role", n)
	return n
}

// FlushCaches drops all cached state.
func (p *PDP) FlushCaches() {
	p.caches.Flush()
	p.clearHot()
}

func (p *PDP) clearHot() {
	if p.hot != nil {
		p.hot.Clear()
	}
}

func (p *PDP) afterRoleChange(op, role string) {
	p.clearHot()
	p.metrics.SetPolicyCount("rbac", len(p.rbac.ListRoles()))
	p.auditConfig(op, map[string]any{"role": role})
}

func (p *PDP) afterPrincipalChange(op, principalID string) {
	n := p.caches.InvalidatePrincipal(principalID)
	p.clearHot()
	p.metrics.RecordInvalidation("principal", n)
	p.auditConfig(op, map[string]any{"principal": principalID})
}

func (p *PDP) afterPolicyChange(op, policyID string) {
	p.caches.Decisions().Flush()
	p.clearHot()
	p.metrics.SetPolicyCount("abac", len(p.abac.ListPolicies()))
	meta := map[string]any{}
	if policyID != "" {
		meta["policy"] = policyID
	}
	p.auditConfig(op, meta)
}

func (p *PDP) afterACLChange(op string, entry *ACLEntry) {
	if entry != nil && entry.PrincipalID != "" && entry.PrincipalID != "*" {
		n := p.caches.InvalidatePrincipal(entry.PrincipalID)
		p.metrics.RecordInvalidation("principal", n)
	} else {
		p.caches.Decisions().Flush()
	}
	p.clearHot()
	meta := map[string]any{}
	if entry != nil {
		meta["entry"] = entry.ID
	}
	p.auditConfig(op, meta)
}

func (p *PDP) auditConfig(op string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["op"] = op
	ev := AuditEvent{
		ID:        uuid.NewString(),
		Type:      EventConfig,
		Timestamp: time.Now(),
		Reason:    op,
		Metadata:  meta,
	}
	select {
	case p.auditCh <- ev:
	default:
		p.metrics.RecordAuditDrop()
	}
}
