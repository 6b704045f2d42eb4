package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pdp"
)

// SQLPolicyStore persists policies in SQL through squealx. Conditions
// are stored as a JSON column.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) SavePolicy(ctx context.Context, p *pdp.Policy) error {
	resources, _ := json.Marshal(p.Resources)
	actions, _ := json.Marshal(p.Actions)
	conditions, _ := json.Marshal(p.Conditions)
	q := `INSERT INTO policies(id, name, description, effect, resources_json, actions_json, conditions_json, priority, active, updated_at)
VALUES(:id, :name, :description, :effect, :resources_json, :actions_json, :conditions_json, :priority, :active, :updated_at)
ON CONFLICT(id) DO UPDATE SET name=:name, description=:description, effect=:effect, resources_json=:resources_json, actions_json=:actions_json, conditions_json=:conditions_json, priority=:priority, active=:active, updated_at=:updated_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              p.ID,
		"name":            p.Name,
		"description":     p.Description,
		"effect":          string(p.Effect),
		"resources_json":  string(resources),
		"actions_json":    string(actions),
		"conditions_json": string(conditions),
		"priority":        p.Priority,
		"active":          boolToInt(p.Active),
		"updated_at":      time.Now(),
	})
	return err
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	q := `DELETE FROM policies WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*pdp.Policy, error) {
	q := `SELECT id, name, description, effect, resources_json, actions_json, conditions_json, priority, active FROM policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy not found: %s", id)
	}
	return scanPolicy(r)
}

func (s *SQLPolicyStore) ListPolicies(ctx context.Context) ([]*pdp.Policy, error) {
	q := `SELECT id, name, description, effect, resources_json, actions_json, conditions_json, priority, active FROM policies ORDER BY priority, id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pdp.Policy, 0)
	for r.Next() {
		p, err := scanPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPolicy(r interface{ Scan(dest ...any) error }) (*pdp.Policy, error) {
	var id, name, description, effect, resourcesJSON, actionsJSON, conditionsJSON string
	var priority, activeInt int
	if err := r.Scan(&id, &name, &description, &effect, &resourcesJSON, &actionsJSON, &conditionsJSON, &priority, &activeInt); err != nil {
		return nil, err
	}
	p := &pdp.Policy{
		ID:          id,
		Name:        name,
		Description: description,
		Effect:      pdp.Effect(effect),
		Priority:    priority,
		Active:      activeInt != 0,
	}
	_ = json.Unmarshal([]byte(resourcesJSON), &p.Resources)
	_ = json.Unmarshal([]byte(actionsJSON), &p.Actions)
	_ = json.Unmarshal([]byte(conditionsJSON), &p.Conditions)
	return p, nil
}
