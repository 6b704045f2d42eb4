package stores

import (
	"context"

	"github.com/oarkflow/squealx"
)

// SQLMembershipStore persists principal to role assignments in SQL.
type SQLMembershipStore struct {
	db *squealx.DB
}

func NewSQLMembershipStore(db *squealx.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

func (s *SQLMembershipStore) AssignRole(ctx context.Context, principalID, role string) error {
	q := `INSERT OR IGNORE INTO role_memberships(principal_id, role) VALUES(:principal_id, :role)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"principal_id": principalID, "role": role})
	return err
}

func (s *SQLMembershipStore) RevokeRole(ctx context.Context, principalID, role string) error {
	q := `DELETE FROM role_memberships WHERE principal_id = :principal_id AND role = :role`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"principal_id": principalID, "role": role})
	return err
}

func (s *SQLMembershipStore) ListRoles(ctx context.Context, principalID string) ([]string, error) {
	q := `SELECT role FROM role_memberships WHERE principal_id = :principal_id ORDER BY role`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"principal_id": principalID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var role string
		if err := r.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func (s *SQLMembershipStore) ListPrincipals(ctx context.Context) ([]string, error) {
	q := `SELECT DISTINCT principal_id FROM role_memberships ORDER BY principal_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var id string
		if err := r.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
