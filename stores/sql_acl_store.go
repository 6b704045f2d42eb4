package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pdp"
)

// SQLACLStore persists fine-grained entries in SQL through squealx.
type SQLACLStore struct {
	db *squealx.DB
}

func NewSQLACLStore(db *squealx.DB) *SQLACLStore {
	return &SQLACLStore{db: db}
}

func (s *SQLACLStore) GrantACL(ctx context.Context, e *pdp.ACLEntry) error {
	actions, _ := json.Marshal(e.Actions)
	q := `INSERT INTO acl_entries(id, principal_id, resource, actions_json, effect, expires_at, created_at)
VALUES(:id, :principal_id, :resource, :actions_json, :effect, :expires_at, :created_at)
ON CONFLICT(id) DO UPDATE SET principal_id=:principal_id, resource=:resource, actions_json=:actions_json, effect=:effect, expires_at=:expires_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           e.ID,
		"principal_id": e.PrincipalID,
		"resource":     e.Resource,
		"actions_json": string(actions),
		"effect":       string(e.Effect),
		"expires_at":   sqlNullTimeOrNil(e.ExpiresAt),
		"created_at":   time.Now(),
	})
	return err
}

func (s *SQLACLStore) RevokeACL(ctx context.Context, id string) error {
	q := `DELETE FROM acl_entries WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLACLStore) ListACLs(ctx context.Context) ([]*pdp.ACLEntry, error) {
	q := `SELECT id, principal_id, resource, actions_json, effect, expires_at FROM acl_entries ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pdp.ACLEntry, 0)
	for r.Next() {
		var id, principalID, resource, actionsJSON, effect string
		var expiresRaw interface{}
		if err := r.Scan(&id, &principalID, &resource, &actionsJSON, &effect, &expiresRaw); err != nil {
			return nil, err
		}
		e := &pdp.ACLEntry{
			ID:          id,
			PrincipalID: principalID,
			Resource:    resource,
			Effect:      pdp.Effect(effect),
		}
		_ = json.Unmarshal([]byte(actionsJSON), &e.Actions)
		if expiresRaw != nil {
			e.ExpiresAt = scanTime(expiresRaw)
		}
		out = append(out, e)
	}
	return out, nil
}
