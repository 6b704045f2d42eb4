package pdp

import "time"

// PolicyBuilder builds up a Policy fluently.
type PolicyBuilder struct {
	p *Policy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &Policy{Active: true}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder       { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder      { b.p.Name = n; return b }
func (b *PolicyBuilder) Describe(d string) *PolicyBuilder  { b.p.Description = d; return b }
func (b *PolicyBuilder) Effect(e Effect) *PolicyBuilder    { b.p.Effect = e; return b }
func (b *PolicyBuilder) Priority(pr int) *PolicyBuilder    { b.p.Priority = pr; return b }
func (b *PolicyBuilder) Active(active bool) *PolicyBuilder { b.p.Active = active; return b }

func (b *PolicyBuilder) Resources(r ...string) *PolicyBuilder {
	b.p.Resources = append(b.p.Resources, r...)
	return b
}

func (b *PolicyBuilder) Actions(a ...string) *PolicyBuilder {
	b.p.Actions = append(b.p.Actions, a...)
	return b
}

func (b *PolicyBuilder) Condition(path string, op Operator, value any) *PolicyBuilder {
	b.p.Conditions = append(b.p.Conditions, Condition{Path: path, Operator: op, Value: value})
	return b
}

// When appends a condition written in the compact string form. A parse
// failure is deferred to Build.
func (b *PolicyBuilder) When(expr string) *PolicyBuilder {
	cond, err := ParseCondition(expr)
	if err != nil {
		b.p.Conditions = append(b.p.Conditions, Condition{Path: expr})
		return b
	}
	b.p.Conditions = append(b.p.Conditions, cond)
	return b
}

// Build validates and returns the policy.
func (b *PolicyBuilder) Build() (*Policy, error) {
	if err := b.p.Validate(); err != nil {
		return nil, err
	}
	return b.p, nil
}

// RoleBuilder builds up a Role fluently.
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder(name string) *RoleBuilder {
	return &RoleBuilder{r: &Role{Name: name, Active: true}}
}

func (b *RoleBuilder) Describe(d string) *RoleBuilder  { b.r.Description = d; return b }
func (b *RoleBuilder) Active(active bool) *RoleBuilder { b.r.Active = active; return b }

func (b *RoleBuilder) Permission(resourceType, resourceID, action string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, resourceType+":"+resourceID+":"+action)
	return b
}

func (b *RoleBuilder) Inherits(names ...string) *RoleBuilder {
	b.r.Inherits = append(b.r.Inherits, names...)
	return b
}

func (b *RoleBuilder) Build() *Role { return b.r }

// ACLBuilder builds up an ACLEntry fluently.
type ACLBuilder struct {
	e *ACLEntry
}

func NewACLBuilder() *ACLBuilder {
	return &ACLBuilder{e: &ACLEntry{Effect: EffectAllow}}
}

func (b *ACLBuilder) ID(id string) *ACLBuilder          { b.e.ID = id; return b }
func (b *ACLBuilder) Principal(id string) *ACLBuilder   { b.e.PrincipalID = id; return b }
func (b *ACLBuilder) Resource(r string) *ACLBuilder     { b.e.Resource = r; return b }
func (b *ACLBuilder) Effect(e Effect) *ACLBuilder       { b.e.Effect = e; return b }
func (b *ACLBuilder) ExpiresAt(t time.Time) *ACLBuilder { b.e.ExpiresAt = t; return b }

func (b *ACLBuilder) Actions(a ...string) *ACLBuilder {
	b.e.Actions = append(b.e.Actions, a...)
	return b
}

func (b *ACLBuilder) Build() *ACLEntry { return b.e }
