package pdp

import (
	"errors"
	"testing"

	"github.com/oarkflow/pdp/cache"
)

func newTestRBAC() *RBACEngine {
	return NewRBACEngine(cache.NewManager(cache.Config{}), nil)
}

func TestRBACInheritanceClosure(t *testing.T) {
	e := newTestRBAC()
	for _, name := range []string{"r1", "r2", "r3"} {
		if err := e.CreateRole(&Role{Name: name, Active: true}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if err := e.AddInheritance("r1", "r2"); err != nil {
		t.Fatalf("r1 -> r2: %v", err)
	}
	if err := e.AddInheritance("r2", "r3"); err != nil {
		t.Fatalf("r2 -> r3: %v", err)
	}
	if err := e.AssignRole("u1", "r1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	got := e.GetEffectiveRoles("u1")
	want := map[string]bool{"r1": true, "r2": true, "r3": true}
	if len(got) != len(want) {
		t.Fatalf("effective roles: %v", got)
	}
	for _, r := range got {
		if !want[r] {
			t.Fatalf("unexpected effective role %s in %v", r, got)
		}
	}
}

func TestRBACCycleRejected(t *testing.T) {
	e := newTestRBAC()
	for _, name := range []string{"a", "b", "c"} {
		if err := e.CreateRole(&Role{Name: name, Active: true}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if err := e.AddInheritance("a", "b"); err != nil {
		t.Fatalf("a -> b: %v", err)
	}
	if err := e.AddInheritance("b", "c"); err != nil {
		t.Fatalf("b -> c: %v", err)
	}

	err := e.AddInheritance("c", "a")
	if !errors.Is(err, ErrInheritanceCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	// The rejected edge must leave the graph untouched.
	role, ok := e.GetRole("c")
	if !ok {
		t.Fatal("role c missing")
	}
	if len(role.Inherits) != 0 {
		t.Fatalf("rejected edge persisted: %v", role.Inherits)
	}
	// Self-inheritance is the smallest cycle.
	if err := e.AddInheritance("a", "a"); !errors.Is(err, ErrInheritanceCycle) {
		t.Fatalf("expected self-cycle error, got %v", err)
	}
}

func TestRBACProtectedRoles(t *testing.T) {
	e := newTestRBAC()
	for _, name := range []string{RoleAdmin, RoleEditor, RoleDeveloper, RoleViewer, RoleServiceAccount} {
		if _, ok := e.GetRole(name); !ok {
			t.Fatalf("built-in role %s missing", name)
		}
		_, err := e.DeleteRole(name)
		if !errors.Is(err, ErrRoleProtected) {
			t.Fatalf("deleting %s: expected protection error, got %v", name, err)
		}
	}
	// Deleting an unknown role is a no-op, not an error.
	existed, err := e.DeleteRole("ghost")
	if err != nil || existed {
		t.Fatalf("delete unknown: existed=%v err=%v", existed, err)
	}
}

func TestRBACBuiltinEditorSemantics(t *testing.T) {
	e := newTestRBAC()
	if err := e.AssignRole("u-editor", RoleEditor); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if !e.CheckPermission("u-editor", "service", "billing", "write") {
		t.Fatal("editor must be able to write services")
	}
	if !e.CheckPermission("u-editor", "service", "billing", "read") {
		t.Fatal("editor must inherit read from viewer")
	}
	if e.CheckPermission("u-editor", "service", "billing", "delete") {
		t.Fatal("editor must not delete services")
	}
}

func TestRBACPermissionPatterns(t *testing.T) {
	e := newTestRBAC()
	err := e.CreateRole(&Role{
		Name:        "api-ops",
		Permissions: []string{"service:api-*:restart"},
		Active:      true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AssignRole("u1", "api-ops"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if !e.CheckPermission("u1", "service", "api-gateway", "restart") {
		t.Fatal("api-gateway should match api-*")
	}
	if e.CheckPermission("u1", "service", "web-frontend", "restart") {
		t.Fatal("web-frontend must not match api-*")
	}
	if e.CheckPermission("u1", "database", "api-gateway", "restart") {
		t.Fatal("resource type must match exactly")
	}
}

func TestRBACInvalidPermissionRejected(t *testing.T) {
	e := newTestRBAC()
	err := e.CreateRole(&Role{Name: "broken", Permissions: []string{"not-a-triple"}, Active: true})
	if err == nil {
		t.Fatal("malformed permission must be rejected")
	}
}

func TestRBACInactiveRoleSkipped(t *testing.T) {
	e := newTestRBAC()
	if err := e.CreateRole(&Role{Name: "dormant", Permissions: []string{"service:*:purge"}, Active: false}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AssignRole("u1", "dormant"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if e.CheckPermission("u1", "service", "x", "purge") {
		t.Fatal("inactive role must not grant permissions")
	}
}

func TestRBACMembershipLifecycle(t *testing.T) {
	e := newTestRBAC()
	if err := e.AssignRole("u1", RoleViewer); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := e.AssignRole("u1", RoleViewer); err != nil {
		t.Fatalf("duplicate assign: %v", err)
	}
	if got := e.Memberships()["u1"]; len(got) != 1 {
		t.Fatalf("duplicate assignment stored: %v", got)
	}

	if !e.RevokeRole("u1", RoleViewer) {
		t.Fatal("revoke should report removal")
	}
	if e.RevokeRole("u1", RoleViewer) {
		t.Fatal("second revoke should report nothing removed")
	}
	if err := e.AssignRole("u1", "ghost"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("assigning unknown role: %v", err)
	}
}

func TestRBACDeleteCascades(t *testing.T) {
	e := newTestRBAC()
	if err := e.CreateRole(&Role{Name: "base", Active: true}); err != nil {
		t.Fatalf("create base: %v", err)
	}
	if err := e.CreateRole(&Role{Name: "derived", Inherits: []string{"base"}, Active: true}); err != nil {
		t.Fatalf("create derived: %v", err)
	}
	if err := e.AssignRole("u1", "base"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	existed, err := e.DeleteRole("base")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	role, ok := e.GetRole("derived")
	if !ok {
		t.Fatal("derived missing")
	}
	if len(role.Inherits) != 0 {
		t.Fatalf("dangling inheritance after delete: %v", role.Inherits)
	}
	if got := e.Memberships()["u1"]; len(got) != 0 {
		t.Fatalf("dangling membership after delete: %v", got)
	}
}

func TestRBACEffectiveRoleCacheInvalidation(t *testing.T) {
	caches := cache.NewManager(cache.Config{})
	e := NewRBACEngine(caches, nil)

	if err := e.AssignRole("u1", RoleViewer); err != nil {
		t.Fatalf("assign: %v", err)
	}
	first := e.GetEffectiveRoles("u1")
	if len(first) != 1 || first[0] != RoleViewer {
		t.Fatalf("effective roles: %v", first)
	}

	// A second assignment must not serve the stale cached closure.
	if err := e.AssignRole("u1", RoleServiceAccount); err != nil {
		t.Fatalf("assign second: %v", err)
	}
	second := e.GetEffectiveRoles("u1")
	if len(second) != 2 {
		t.Fatalf("stale effective roles after assignment: %v", second)
	}
}

func TestRBACReactivatedRoleRefreshesCache(t *testing.T) {
	caches := cache.NewManager(cache.Config{})
	e := NewRBACEngine(caches, nil)

	if err := e.CreateRole(&Role{Name: "dormant", Permissions: []string{"service:*:purge"}, Active: false}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AssignRole("u1", "dormant"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// Prime the closure and permission caches while the role is
	// inactive. The cached entries must still carry the role's tag.
	if got := e.GetEffectiveRoles("u1"); len(got) != 0 {
		t.Fatalf("inactive role must not be effective: %v", got)
	}
	if e.CheckPermission("u1", "service", "x", "purge") {
		t.Fatal("inactive role must not grant permissions")
	}

	if err := e.UpsertRole(&Role{Name: "dormant", Permissions: []string{"service:*:purge"}, Active: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got := e.GetEffectiveRoles("u1")
	if len(got) != 1 || got[0] != "dormant" {
		t.Fatalf("stale closure after reactivation: %v", got)
	}
	if !e.CheckPermission("u1", "service", "x", "purge") {
		t.Fatal("reactivated role must grant its permissions")
	}
}

func TestRBACRoleCopiesIsolated(t *testing.T) {
	e := newTestRBAC()
	if err := e.CreateRole(&Role{Name: "base", Permissions: []string{"service:*:read"}, Active: true}); err != nil {
		t.Fatalf("create base: %v", err)
	}
	if err := e.CreateRole(&Role{Name: "derived", Permissions: []string{"service:*:write"}, Inherits: []string{"base", RoleViewer}, Active: true}); err != nil {
		t.Fatalf("create derived: %v", err)
	}

	held, ok := e.GetRole("derived")
	if !ok {
		t.Fatal("derived missing")
	}
	// Deleting a parent rewrites derived's parent list inside the
	// engine; a copy handed out earlier must not change under it.
	if _, err := e.DeleteRole("base"); err != nil {
		t.Fatalf("delete base: %v", err)
	}
	if len(held.Inherits) != 2 || held.Inherits[0] != "base" {
		t.Fatalf("held copy mutated by delete: %v", held.Inherits)
	}

	// Nor may mutating the copy leak back into the engine.
	held.Permissions[0] = "service:*:admin"
	cur, _ := e.GetRole("derived")
	if cur.Permissions[0] != "service:*:write" {
		t.Fatalf("engine state mutated through a copy: %v", cur.Permissions)
	}

	listed := e.ListRoles()
	for _, r := range listed {
		if r.Name == "derived" {
			r.Inherits = append(r.Inherits, "ghost")
		}
	}
	cur, _ = e.GetRole("derived")
	for _, parent := range cur.Inherits {
		if parent == "ghost" {
			t.Fatal("engine state mutated through a listed copy")
		}
	}
}
