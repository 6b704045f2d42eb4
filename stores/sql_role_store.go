package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pdp"
)

// SQLRoleStore persists roles in SQL through squealx.
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) SaveRole(ctx context.Context, r *pdp.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	inherits, _ := json.Marshal(r.Inherits)
	q := `INSERT INTO roles(name, description, permissions_json, inherits_json, active, protected, updated_at)
VALUES(:name, :description, :permissions_json, :inherits_json, :active, :protected, :updated_at)
ON CONFLICT(name) DO UPDATE SET description=:description, permissions_json=:permissions_json, inherits_json=:inherits_json, active=:active, protected=:protected, updated_at=:updated_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"name":             r.Name,
		"description":      r.Description,
		"permissions_json": string(perms),
		"inherits_json":    string(inherits),
		"active":           boolToInt(r.Active),
		"protected":        boolToInt(r.Protected),
		"updated_at":       time.Now(),
	})
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, name string) error {
	q := `DELETE FROM roles WHERE name = :name`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"name": name})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, name string) (*pdp.Role, error) {
	q := `SELECT name, description, permissions_json, inherits_json, active, protected FROM roles WHERE name = :name`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("role not found: %s", name)
	}
	return scanRole(r)
}

func (s *SQLRoleStore) ListRoles(ctx context.Context) ([]*pdp.Role, error) {
	q := `SELECT name, description, permissions_json, inherits_json, active, protected FROM roles ORDER BY name`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pdp.Role, 0)
	for r.Next() {
		role, err := scanRole(r)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func scanRole(r interface{ Scan(dest ...any) error }) (*pdp.Role, error) {
	var name, description, permsJSON, inheritsJSON string
	var activeInt, protectedInt int
	if err := r.Scan(&name, &description, &permsJSON, &inheritsJSON, &activeInt, &protectedInt); err != nil {
		return nil, err
	}
	role := &pdp.Role{
		Name:        name,
		Description: description,
		Active:      activeInt != 0,
		Protected:   protectedInt != 0,
	}
	_ = json.Unmarshal([]byte(permsJSON), &role.Permissions)
	_ = json.Unmarshal([]byte(inheritsJSON), &role.Inherits)
	return role, nil
}
