package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pdp"
)

// SQLAuditSink persists audit events in SQL. It implements
// pdp.AuditSink; Record already runs off the request path, so the
// insert happens inline on the audit worker.
type SQLAuditSink struct {
	db *squealx.DB
}

func NewSQLAuditSink(db *squealx.DB) *SQLAuditSink {
	return &SQLAuditSink{db: db}
}

func (s *SQLAuditSink) Record(ev pdp.AuditEvent) {
	_ = s.insert(context.Background(), ev)
}

func (s *SQLAuditSink) insert(ctx context.Context, ev pdp.AuditEvent) error {
	meta, _ := json.Marshal(ev.Metadata)
	if ev.Metadata == nil {
		meta = []byte("{}")
	}
	q := `INSERT INTO audit_events(id, type, ts, principal_id, resource, action, allowed, reason, cached, metadata_json)
VALUES(:id, :type, :ts, :principal_id, :resource, :action, :allowed, :reason, :cached, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            ev.ID,
		"type":          ev.Type,
		"ts":            ev.Timestamp,
		"principal_id":  ev.PrincipalID,
		"resource":      ev.Resource,
		"action":        ev.Action,
		"allowed":       boolToInt(ev.Allowed),
		"reason":        ev.Reason,
		"cached":        boolToInt(ev.Cached),
		"metadata_json": string(meta),
	})
	return err
}

// Events queries persisted events, newest first.
func (s *SQLAuditSink) Events(ctx context.Context, filter pdp.AuditFilter) ([]pdp.AuditEvent, error) {
	q := `SELECT id, type, ts, principal_id, resource, action, allowed, reason, cached, metadata_json FROM audit_events
WHERE (:type = '' OR type = :type) AND (:principal_id = '' OR principal_id = :principal_id) AND (:resource = '' OR resource = :resource)
ORDER BY ts DESC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"type":         filter.Type,
		"principal_id": filter.PrincipalID,
		"resource":     filter.Resource,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]pdp.AuditEvent, 0)
	for r.Next() {
		var ev pdp.AuditEvent
		var tsRaw interface{}
		var allowedInt, cachedInt int
		var metaJSON string
		if err := r.Scan(&ev.ID, &ev.Type, &tsRaw, &ev.PrincipalID, &ev.Resource, &ev.Action, &allowedInt, &ev.Reason, &cachedInt, &metaJSON); err != nil {
			return nil, err
		}
		ev.Timestamp = scanTime(tsRaw)
		ev.Allowed = allowedInt != 0
		ev.Cached = cachedInt != 0
		_ = json.Unmarshal([]byte(metaJSON), &ev.Metadata)
		if !filter.Since.IsZero() && ev.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
