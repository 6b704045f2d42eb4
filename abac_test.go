package pdp

import (
	"sync"
	"testing"
	"time"
)

func requestCtx(principal *Principal, resource, action string, env map[string]any) *Context {
	return &Context{
		Principal:   principal,
		Resource:    resource,
		Action:      action,
		Environment: env,
		Timestamp:   time.Now(),
	}
}

func TestABACFirstMatchByPriority(t *testing.T) {
	e := NewABACEngine(nil)
	err := e.LoadPolicies([]*Policy{
		{ID: "allow-all", Effect: EffectAllow, Resources: []string{"*"}, Actions: []string{"*"}, Priority: 100, Active: true},
		{ID: "deny-writes", Effect: EffectDeny, Resources: []string{"/api/*"}, Actions: []string{"write"}, Priority: 10, Active: true},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	d := e.Evaluate(requestCtx(&Principal{ID: "u1"}, "/api/orders", "write", nil))
	if d.Allowed {
		t.Fatalf("lower priority deny must win: %+v", d)
	}
	if len(d.Policies) != 1 || d.Policies[0] != "deny-writes" {
		t.Fatalf("expected deny-writes cited, got %v", d.Policies)
	}

	d = e.Evaluate(requestCtx(&Principal{ID: "u1"}, "/api/orders", "read", nil))
	if !d.Allowed || d.Policies[0] != "allow-all" {
		t.Fatalf("read should fall through to allow-all: %+v", d)
	}
}

func TestABACConditionGatesMatch(t *testing.T) {
	e := NewABACEngine(nil)
	err := e.LoadPolicies([]*Policy{
		{
			ID: "sensitive-hours", Effect: EffectAllow,
			Resources: []string{"/api/sensitive/*"}, Actions: []string{"read"},
			Priority: 1, Active: true,
			Conditions: []Condition{
				{Path: "environment.business_hours", Operator: OpEquals, Value: true},
			},
		},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	d := e.Evaluate(requestCtx(&Principal{ID: "u1"}, "/api/sensitive/x", "read", map[string]any{"business_hours": true}))
	if !d.Allowed {
		t.Fatalf("expected allow during business hours: %+v", d)
	}

	// With the condition false the policy is skipped entirely; the
	// decision cites the default, not the policy.
	d = e.Evaluate(requestCtx(&Principal{ID: "u1"}, "/api/sensitive/x", "read", map[string]any{"business_hours": false}))
	if d.Allowed {
		t.Fatalf("expected default deny off-hours: %+v", d)
	}
	if len(d.Policies) != 0 {
		t.Fatalf("skipped policy must not be cited: %v", d.Policies)
	}
	if d.Reason != "default-deny" {
		t.Fatalf("reason should cite the default: %q", d.Reason)
	}
}

func TestABACDefaultEffect(t *testing.T) {
	e := NewABACEngine(nil)
	d := e.Evaluate(requestCtx(&Principal{ID: "u1"}, "anything", "read", nil))
	if d.Allowed {
		t.Fatal("empty engine must default deny")
	}

	e.SetDefaultEffect(EffectAllow)
	d = e.Evaluate(requestCtx(&Principal{ID: "u1"}, "anything", "read", nil))
	if !d.Allowed || d.Reason != "default-allow" {
		t.Fatalf("expected default allow: %+v", d)
	}

	// Only allow and deny are valid defaults; anything else is deny.
	e.SetDefaultEffect(EffectAudit)
	if e.DefaultEffect() != EffectDeny {
		t.Fatalf("unexpected default: %v", e.DefaultEffect())
	}
}

func TestABACAuditEffect(t *testing.T) {
	e := NewABACEngine(nil)
	err := e.LoadPolicies([]*Policy{
		{ID: "audit-exports", Effect: EffectAudit, Resources: []string{"export:*"}, Actions: []string{"*"}, Priority: 1, Active: true},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := e.Evaluate(requestCtx(&Principal{ID: "u1"}, "export:users", "run", nil))
	if !d.Allowed {
		t.Fatalf("audit effect must allow: %+v", d)
	}
	if flag, _ := d.Metadata["audit"].(bool); !flag {
		t.Fatalf("audit flag missing: %+v", d.Metadata)
	}
}

func TestABACInactivePolicySkipped(t *testing.T) {
	e := NewABACEngine(nil)
	err := e.LoadPolicies([]*Policy{
		{ID: "disabled-deny", Effect: EffectDeny, Resources: []string{"*"}, Actions: []string{"*"}, Priority: 1, Active: false},
		{ID: "allow", Effect: EffectAllow, Resources: []string{"*"}, Actions: []string{"*"}, Priority: 2, Active: true},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := e.Evaluate(requestCtx(&Principal{ID: "u1"}, "x", "read", nil))
	if !d.Allowed || d.Policies[0] != "allow" {
		t.Fatalf("inactive policy must be skipped: %+v", d)
	}
}

func TestABACLoadPoliciesAtomic(t *testing.T) {
	e := NewABACEngine(nil)
	if err := e.LoadPolicies([]*Policy{
		{ID: "keep", Effect: EffectAllow, Priority: 1, Active: true},
	}); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	err := e.LoadPolicies([]*Policy{
		{ID: "ok", Effect: EffectAllow, Priority: 1, Active: true},
		{ID: "", Effect: EffectAllow, Priority: 2, Active: true},
	})
	if err == nil {
		t.Fatal("invalid batch must be rejected")
	}
	got := e.ListPolicies()
	if len(got) != 1 || got[0].ID != "keep" {
		t.Fatalf("failed load must not change the list: %+v", got)
	}
}

func TestABACAddRemovePolicy(t *testing.T) {
	e := NewABACEngine(nil)
	if err := e.AddPolicy(&Policy{ID: "p1", Effect: EffectAllow, Priority: 5, Active: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := e.AddPolicy(&Policy{ID: "p2", Effect: EffectDeny, Priority: 1, Active: true}); err != nil {
		t.Fatalf("add second: %v", err)
	}
	list := e.ListPolicies()
	if list[0].ID != "p2" {
		t.Fatalf("list must be priority sorted: %v", list[0].ID)
	}

	// Replacing by id keeps a single entry.
	if err := e.AddPolicy(&Policy{ID: "p1", Effect: EffectDeny, Priority: 5, Active: true}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(e.ListPolicies()) != 2 {
		t.Fatalf("replace must not duplicate: %d", len(e.ListPolicies()))
	}

	if !e.RemovePolicy("p1") {
		t.Fatal("remove should report presence")
	}
	if e.RemovePolicy("p1") {
		t.Fatal("second remove should report absence")
	}
}

// Evaluate walks a snapshot outside the lock, so concurrent mutation
// must never touch a slice a reader still holds. Run with -race.
func TestABACConcurrentEvaluateAndMutate(t *testing.T) {
	e := NewABACEngine(nil)
	if err := e.LoadPolicies([]*Policy{
		{ID: "base", Effect: EffectAllow, Resources: []string{"*"}, Actions: []string{"*"}, Priority: 10, Active: true},
		{ID: "churn", Effect: EffectDeny, Resources: []string{"/none/*"}, Actions: []string{"*"}, Priority: 1, Active: true},
	}); err != nil {
		t.Fatalf("load: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := requestCtx(&Principal{ID: "u1"}, "/api/orders", "read", nil)
			for {
				select {
				case <-stop:
					return
				default:
				}
				if d := e.Evaluate(ctx); d == nil {
					t.Error("nil decision")
					return
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		// Re-adding an existing id replaces in the list; the removal and
		// re-insert exercise both mutation paths.
		if err := e.AddPolicy(&Policy{ID: "churn", Effect: EffectDeny, Resources: []string{"/none/*"}, Actions: []string{"*"}, Priority: i % 20, Active: true}); err != nil {
			t.Fatalf("add: %v", err)
		}
		if i%50 == 0 {
			e.RemovePolicy("churn")
		}
	}
	close(stop)
	wg.Wait()

	d := e.Evaluate(requestCtx(&Principal{ID: "u1"}, "/api/orders", "read", nil))
	if !d.Allowed || d.Policies[0] != "base" {
		t.Fatalf("expected base allow after churn: %+v", d)
	}
}
