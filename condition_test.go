package pdp

import (
	"testing"
	"time"
)

func testContext() *Context {
	return &Context{
		Principal: &Principal{
			ID:    "user-1",
			Kind:  KindUser,
			Roles: []string{"editor", "auditor"},
			Attrs: map[string]any{
				"department": "engineering",
				"level":      5,
				"mfa":        true,
				"address": map[string]any{
					"country": "DE",
				},
			},
		},
		Resource:    "/api/orders/42",
		Action:      "read",
		Environment: map[string]any{"business_hours": true, "ip": "10.0.0.7"},
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestConditionOperators(t *testing.T) {
	ctx := testContext()
	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq string", Condition{Path: "principal.attrs.department", Operator: OpEquals, Value: "engineering"}, true},
		{"eq mismatch", Condition{Path: "principal.attrs.department", Operator: OpEquals, Value: "sales"}, false},
		{"eq bool", Condition{Path: "environment.business_hours", Operator: OpEquals, Value: true}, true},
		{"ne", Condition{Path: "action", Operator: OpNotEquals, Value: "delete"}, true},
		{"gt numeric", Condition{Path: "principal.attrs.level", Operator: OpGreaterThan, Value: 3}, true},
		{"gte equal", Condition{Path: "principal.attrs.level", Operator: OpGreaterOrEqual, Value: 5}, true},
		{"lt fails", Condition{Path: "principal.attrs.level", Operator: OpLessThan, Value: 5}, false},
		{"lte", Condition{Path: "principal.attrs.level", Operator: OpLessOrEqual, Value: 5.0}, true},
		{"in", Condition{Path: "action", Operator: OpIn, Value: []any{"read", "list"}}, true},
		{"not_in", Condition{Path: "action", Operator: OpNotIn, Value: []any{"delete"}}, true},
		{"contains substring", Condition{Path: "resource", Operator: OpContains, Value: "/orders/"}, true},
		{"contains list element", Condition{Path: "principal.roles", Operator: OpContains, Value: "auditor"}, true},
		{"starts_with", Condition{Path: "resource", Operator: OpStartsWith, Value: "/api/"}, true},
		{"ends_with", Condition{Path: "resource", Operator: OpEndsWith, Value: "/42"}, true},
		{"regex", Condition{Path: "environment.ip", Operator: OpRegex, Value: `^10\.`}, true},
		{"nested attr", Condition{Path: "principal.attrs.address.country", Operator: OpEquals, Value: "DE"}, true},
		{"exists", Condition{Path: "principal.attrs.mfa", Operator: OpExists}, true},
		{"not_exists", Condition{Path: "principal.attrs.badge", Operator: OpNotExists}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Evaluate(ctx); got != tc.want {
				t.Fatalf("%s: got %v, want %v", tc.cond, got, tc.want)
			}
		})
	}
}

func TestConditionAbsentAttribute(t *testing.T) {
	ctx := testContext()
	// Every non-existence operator must evaluate false on an absent path.
	ops := []Condition{
		{Path: "principal.attrs.badge", Operator: OpEquals, Value: "x"},
		{Path: "principal.attrs.badge", Operator: OpNotEquals, Value: "x"},
		{Path: "principal.attrs.badge", Operator: OpGreaterThan, Value: 1},
		{Path: "principal.attrs.badge", Operator: OpIn, Value: []any{"x"}},
		{Path: "principal.attrs.badge", Operator: OpContains, Value: "x"},
		{Path: "principal.attrs.badge", Operator: OpRegex, Value: ".*"},
	}
	for _, c := range ops {
		if c.Evaluate(ctx) {
			t.Fatalf("%s: absent attribute must not satisfy %s", c.Path, c.Operator)
		}
	}
	if !(Condition{Path: "principal.attrs.badge", Operator: OpNotExists}).Evaluate(ctx) {
		t.Fatal("not_exists must hold for absent attribute")
	}
	if (Condition{Path: "principal.attrs.badge", Operator: OpExists}).Evaluate(ctx) {
		t.Fatal("exists must fail for absent attribute")
	}
}

func TestConditionTimeComparison(t *testing.T) {
	ctx := testContext()
	c := Condition{Path: "timestamp", Operator: OpGreaterThan, Value: "2025-01-01"}
	if !c.Evaluate(ctx) {
		t.Fatal("timestamp should compare after 2025-01-01")
	}
	c = Condition{Path: "timestamp", Operator: OpLessThan, Value: "2026-01-01"}
	if !c.Evaluate(ctx) {
		t.Fatal("timestamp should compare before 2026-01-01")
	}
}

func TestConditionValidate(t *testing.T) {
	if err := (Condition{Path: "action", Operator: OpEquals, Value: "read"}).Validate(); err != nil {
		t.Fatalf("valid condition rejected: %v", err)
	}
	if err := (Condition{Operator: OpEquals}).Validate(); err == nil {
		t.Fatal("empty path must be rejected")
	}
	if err := (Condition{Path: "action", Operator: "like"}).Validate(); err == nil {
		t.Fatal("unknown operator must be rejected")
	}
	if err := (Condition{Path: "action", Operator: OpRegex, Value: "("}).Validate(); err == nil {
		t.Fatal("invalid regex must be rejected")
	}
	if err := (Condition{Path: "action", Operator: OpIn, Value: "read"}).Validate(); err == nil {
		t.Fatal("non-list value for in must be rejected")
	}
}

func TestLookupRoots(t *testing.T) {
	ctx := testContext()
	if v, ok := Lookup(ctx, "principal.id"); !ok || v != "user-1" {
		t.Fatalf("principal.id: %v %v", v, ok)
	}
	if v, ok := Lookup(ctx, "principal.kind"); !ok || v != "user" {
		t.Fatalf("principal.kind: %v %v", v, ok)
	}
	if v, ok := Lookup(ctx, "resource"); !ok || v != "/api/orders/42" {
		t.Fatalf("resource: %v %v", v, ok)
	}
	if v, ok := Lookup(ctx, "env.ip"); !ok || v != "10.0.0.7" {
		t.Fatalf("env alias: %v %v", v, ok)
	}
	if _, ok := Lookup(ctx, "unknown.path"); ok {
		t.Fatal("unknown root must not resolve")
	}
	if _, ok := Lookup(nil, "action"); ok {
		t.Fatal("nil context must not resolve")
	}
}
