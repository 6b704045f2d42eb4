package pdp

import "testing"

func TestPolicyBuilder(t *testing.T) {
	policy, err := NewPolicyBuilder().
		ID("after-hours").
		Effect(EffectDeny).
		Priority(10).
		Resources("service:*").
		Actions("write", "delete").
		When(`environment.business_hours == false`).
		Condition("principal.attrs.department", OpNotEquals, "ops").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if policy.ID != "after-hours" || policy.Effect != EffectDeny || len(policy.Conditions) != 2 {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if !policy.Active {
		t.Fatalf("builder should default to active")
	}

	if _, err := NewPolicyBuilder().Effect(EffectAllow).Build(); err == nil {
		t.Fatalf("missing id should fail validation")
	}
	if _, err := NewPolicyBuilder().ID("p").Effect("maybe").Build(); err == nil {
		t.Fatalf("bad effect should fail validation")
	}
	if _, err := NewPolicyBuilder().ID("p").Effect(EffectAllow).When("garbage <> expr").Build(); err == nil {
		t.Fatalf("unparseable when clause should fail at build")
	}
}

func TestRoleBuilder(t *testing.T) {
	role := NewRoleBuilder("release-manager").
		Describe("cuts releases").
		Permission("service", "*-prod", "deploy").
		Inherits(RoleViewer).
		Build()
	if role.Name != "release-manager" || !role.Active {
		t.Fatalf("unexpected role %+v", role)
	}
	if len(role.Permissions) != 1 || role.Permissions[0] != "service:*-prod:deploy" {
		t.Fatalf("unexpected permissions %v", role.Permissions)
	}
	if len(role.Inherits) != 1 || role.Inherits[0] != RoleViewer {
		t.Fatalf("unexpected parents %v", role.Inherits)
	}
}

func TestACLBuilder(t *testing.T) {
	entry := NewACLBuilder().
		ID("tmp-access").
		Principal("u1").
		Resource("report:q3").
		Actions("read").
		Build()
	if entry.Effect != EffectAllow {
		t.Fatalf("builder should default to allow")
	}
	if entry.PrincipalID != "u1" || entry.Resource != "report:q3" || len(entry.Actions) != 1 {
		t.Fatalf("unexpected entry %+v", entry)
	}
}
