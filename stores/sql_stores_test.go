package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/pdp"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLRoleStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLRoleStore(db)
	ctx := context.Background()

	role := &pdp.Role{
		Name:        "auditor",
		Description: "read-only access to audit data",
		Permissions: []string{"audit:*:read"},
		Inherits:    []string{"viewer"},
		Active:      true,
	}
	if err := store.SaveRole(ctx, role); err != nil {
		t.Fatalf("save role: %v", err)
	}

	got, err := store.GetRole(ctx, "auditor")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got.Description != role.Description || !got.Active || got.Protected {
		t.Fatalf("unexpected role: %+v", got)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "audit:*:read" {
		t.Fatalf("permissions not preserved: %v", got.Permissions)
	}
	if len(got.Inherits) != 1 || got.Inherits[0] != "viewer" {
		t.Fatalf("inherits not preserved: %v", got.Inherits)
	}

	role.Description = "updated"
	if err := store.SaveRole(ctx, role); err != nil {
		t.Fatalf("upsert role: %v", err)
	}
	got, err = store.GetRole(ctx, "auditor")
	if err != nil {
		t.Fatalf("get role after upsert: %v", err)
	}
	if got.Description != "updated" {
		t.Fatalf("upsert did not apply: %q", got.Description)
	}

	if err := store.DeleteRole(ctx, "auditor"); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	if _, err := store.GetRole(ctx, "auditor"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestSQLPolicyStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLPolicyStore(db)
	ctx := context.Background()

	policy := &pdp.Policy{
		ID:        "p-1",
		Name:      "deny off-hours",
		Effect:    pdp.EffectDeny,
		Resources: []string{"/api/sensitive/*"},
		Actions:   []string{"*"},
		Priority:  10,
		Active:    true,
		Conditions: []pdp.Condition{
			{Path: "environment.business_hours", Operator: pdp.OpEquals, Value: false},
		},
	}
	if err := store.SavePolicy(ctx, policy); err != nil {
		t.Fatalf("save policy: %v", err)
	}

	got, err := store.GetPolicy(ctx, "p-1")
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if got.Effect != pdp.EffectDeny || got.Priority != 10 {
		t.Fatalf("unexpected policy: %+v", got)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Path != "environment.business_hours" {
		t.Fatalf("conditions not preserved: %+v", got.Conditions)
	}

	low := &pdp.Policy{ID: "p-0", Effect: pdp.EffectAllow, Resources: []string{"*"}, Actions: []string{"*"}, Priority: 1, Active: true}
	if err := store.SavePolicy(ctx, low); err != nil {
		t.Fatalf("save second policy: %v", err)
	}
	list, err := store.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("list policies: %v", err)
	}
	if len(list) != 2 || list[0].ID != "p-0" {
		t.Fatalf("expected priority order, got %+v", list)
	}

	if err := store.DeletePolicy(ctx, "p-1"); err != nil {
		t.Fatalf("delete policy: %v", err)
	}
	if _, err := store.GetPolicy(ctx, "p-1"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestSQLACLStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLACLStore(db)
	ctx := context.Background()

	entry := &pdp.ACLEntry{
		ID:          "acl-1",
		PrincipalID: "user-1",
		Resource:    "doc:readme",
		Actions:     []string{"read"},
		Effect:      pdp.EffectAllow,
		ExpiresAt:   time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	if err := store.GrantACL(ctx, entry); err != nil {
		t.Fatalf("grant acl: %v", err)
	}

	list, err := store.ListACLs(ctx)
	if err != nil {
		t.Fatalf("list acls: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}
	got := list[0]
	if got.PrincipalID != "user-1" || got.Effect != pdp.EffectAllow {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Fatal("expiry not preserved")
	}

	if err := store.RevokeACL(ctx, "acl-1"); err != nil {
		t.Fatalf("revoke acl: %v", err)
	}
	list, err = store.ListACLs(ctx)
	if err != nil {
		t.Fatalf("list after revoke: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}

func TestSQLMembershipStore(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLMembershipStore(db)
	ctx := context.Background()

	if err := store.AssignRole(ctx, "user-1", "editor"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := store.AssignRole(ctx, "user-1", "viewer"); err != nil {
		t.Fatalf("assign second: %v", err)
	}
	// duplicate assignment is a no-op
	if err := store.AssignRole(ctx, "user-1", "editor"); err != nil {
		t.Fatalf("assign duplicate: %v", err)
	}

	roles, err := store.ListRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 || roles[0] != "editor" || roles[1] != "viewer" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	principals, err := store.ListPrincipals(ctx)
	if err != nil {
		t.Fatalf("list principals: %v", err)
	}
	if len(principals) != 1 || principals[0] != "user-1" {
		t.Fatalf("unexpected principals: %v", principals)
	}

	if err := store.RevokeRole(ctx, "user-1", "editor"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	roles, err = store.ListRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("list after revoke: %v", err)
	}
	if len(roles) != 1 || roles[0] != "viewer" {
		t.Fatalf("unexpected roles after revoke: %v", roles)
	}
}

func TestSQLAuditSink(t *testing.T) {
	db := newTestDB(t)
	sink := NewSQLAuditSink(db)
	ctx := context.Background()

	sink.Record(pdp.AuditEvent{
		ID:          "evt-1",
		Type:        pdp.EventDecision,
		Timestamp:   time.Now().UTC(),
		PrincipalID: "user-x",
		Resource:    "doc:1",
		Action:      "read",
		Allowed:     true,
		Reason:      "ok",
	})
	sink.Record(pdp.AuditEvent{
		ID:        "evt-2",
		Type:      pdp.EventConfig,
		Timestamp: time.Now().UTC(),
		Reason:    "role.create",
	})

	events, err := sink.Events(ctx, pdp.AuditFilter{PrincipalID: "user-x"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID != "evt-1" || !events[0].Allowed {
		t.Fatalf("unexpected event: %+v", events[0])
	}

	events, err = sink.Events(ctx, pdp.AuditFilter{Type: pdp.EventConfig})
	if err != nil {
		t.Fatalf("events by type: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt-2" {
		t.Fatalf("unexpected config events: %+v", events)
	}
}
