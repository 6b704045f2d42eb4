package benchmark

import (
	"context"
	"testing"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	pdp "github.com/oarkflow/pdp"
	"github.com/oarkflow/pdp/logger"
)

func newBenchPDP(b *testing.B) *pdp.PDP {
	b.Helper()
	p := pdp.New(
		pdp.WithLogger(logger.NewNullLogger()),
		pdp.WithDefaultEffect(pdp.EffectAllow),
	)
	b.Cleanup(p.Close)
	if err := p.AssignRole("alice", "viewer"); err != nil {
		b.Fatalf("assign role: %v", err)
	}
	return p
}

func BenchmarkAuthorizeCached(b *testing.B) {
	p := newBenchPDP(b)
	principal := &pdp.Principal{ID: "alice", Kind: pdp.KindUser}
	ctx := context.Background()

	// Warm the decision cache.
	if d, err := p.Authorize(ctx, principal, "service:orders", "read", nil); err != nil || !d.Allowed {
		b.Fatalf("warmup: allowed=%v err=%v", d.Allowed, err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = p.Authorize(ctx, principal, "service:orders", "read", nil)
	}
}

func BenchmarkAuthorizeUncached(b *testing.B) {
	p := newBenchPDP(b)
	principal := &pdp.Principal{ID: "alice", Kind: pdp.KindUser}
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		p.FlushCaches()
		b.StartTimer()
		_, _ = p.Authorize(ctx, principal, "service:orders", "read", nil)
	}
}

func BenchmarkCheckPermission(b *testing.B) {
	p := newBenchPDP(b)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = p.RBAC().CheckPermission("alice", "service", "orders", "read")
	}
}

func BenchmarkABACEvaluate(b *testing.B) {
	p := newBenchPDP(b)
	policies := []*pdp.Policy{
		{ID: "deny-secrets", Effect: pdp.EffectDeny, Resources: []string{"secret:*"}, Actions: []string{"*"}, Priority: 1, Active: true},
		{ID: "allow-reads", Effect: pdp.EffectAllow, Resources: []string{"service:*"}, Actions: []string{"read"}, Priority: 10, Active: true},
	}
	if err := p.LoadPolicies(policies); err != nil {
		b.Fatalf("load policies: %v", err)
	}
	req := &pdp.Context{
		Principal: &pdp.Principal{ID: "alice"},
		Resource:  "service:orders",
		Action:    "read",
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = p.ABAC().Evaluate(req)
	}
}

func BenchmarkCasbinRBAC(b *testing.B) {
	modelText := `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		b.Fatalf("casbin model: %v", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		b.Fatalf("casbin enforcer: %v", err)
	}
	_, _ = e.AddPolicy("viewer", "service:orders", "read")
	_, _ = e.AddGroupingPolicy("alice", "viewer")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = e.Enforce("alice", "service:orders", "read")
	}
}
