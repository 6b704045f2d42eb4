package pdp

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEvaluatorTimeout marks an external evaluator that exceeded its
// configured deadline. The orchestrator converts it, like every other
// evaluation fault, into that evaluator's deny vote.
var ErrEvaluatorTimeout = errors.New("evaluator timed out")

// Evaluator is the single contract every policy engine variant
// implements. The orchestrator dispatches over a fixed registry of
// this interface, never over attribute probing.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, req *Context) (*Decision, error)
}

// splitResource breaks a "type:id" resource string into its parts. A
// bare name is treated as both type and id so plain resource names
// still match typed permissions loosely.
func splitResource(resource string) (string, string) {
	if idx := strings.IndexByte(resource, ':'); idx >= 0 {
		return resource[:idx], resource[idx+1:]
	}
	return resource, resource
}

// RBACEvaluator votes based on the principal's direct permissions and
// the effective permissions of its roles (declared on the principal or
// assigned through the engine).
type RBACEvaluator struct {
	engine *RBACEngine
}

func NewRBACEvaluator(engine *RBACEngine) *RBACEvaluator {
	return &RBACEvaluator{engine: engine}
}

func (e *RBACEvaluator) Name() string { return "rbac" }

func (e *RBACEvaluator) Evaluate(_ context.Context, req *Context) (*Decision, error) {
	p := req.Principal
	resourceType, resourceID := splitResource(req.Resource)

	if checkDirect(p, resourceType, resourceID, req.Action) {
		return &Decision{
			Allowed:   true,
			Reason:    "rbac: direct permission grants " + req.Action,
			Policies:  []string{"rbac:direct"},
			Timestamp: req.Timestamp,
		}, nil
	}

	direct := append([]string(nil), p.Roles...)
	direct = append(direct, e.engine.directRoles(p.ID)...)
	effective := e.engine.EffectiveRolesOf(direct)
	if role, ok := e.engine.grantingRole(effective, resourceType, resourceID, req.Action); ok {
		return &Decision{
			Allowed:   true,
			Reason:    "rbac: role " + role + " grants " + req.Action,
			Policies:  []string{"rbac:" + role},
			Timestamp: req.Timestamp,
		}, nil
	}

	return &Decision{
		Allowed:   false,
		Reason:    "rbac: no permission grants " + req.Action + " on " + req.Resource,
		Timestamp: req.Timestamp,
	}, nil
}

// ABACEvaluator delegates to the policy engine's first-match
// evaluation.
type ABACEvaluator struct {
	engine *ABACEngine
}

func NewABACEvaluator(engine *ABACEngine) *ABACEvaluator {
	return &ABACEvaluator{engine: engine}
}

func (e *ABACEvaluator) Name() string { return "abac" }

func (e *ABACEvaluator) Evaluate(_ context.Context, req *Context) (*Decision, error) {
	return e.engine.Evaluate(req), nil
}

// ACLEvaluator votes from fine-grained per-resource entries. With no
// covering entry it votes deny, keeping the combiner secure by
// default.
type ACLEvaluator struct {
	store *ACLStore
}

func NewACLEvaluator(store *ACLStore) *ACLEvaluator {
	return &ACLEvaluator{store: store}
}

func (e *ACLEvaluator) Name() string { return "acl" }

func (e *ACLEvaluator) Evaluate(_ context.Context, req *Context) (*Decision, error) {
	covered, allowed, entryID := e.store.Check(req.Principal.ID, req.Resource, req.Action)
	if !covered {
		return &Decision{
			Allowed:   false,
			Reason:    "acl: no entry covers " + req.Action + " on " + req.Resource,
			Timestamp: req.Timestamp,
		}, nil
	}
	reason := "acl: entry " + entryID + " denies"
	if allowed {
		reason = "acl: entry " + entryID + " allows"
	}
	return &Decision{
		Allowed:   allowed,
		Reason:    reason,
		Policies:  []string{"acl:" + entryID},
		Timestamp: req.Timestamp,
	}, nil
}

// ExternalFunc is the adapter signature for remote policy engines.
type ExternalFunc func(ctx context.Context, req *Context) (*Decision, error)

// ExternalEvaluator wraps an out-of-process engine. It is the only
// evaluator allowed to suspend; it bounds its own latency with the
// configured timeout, since the orchestrator applies no timeout
// wrapper of its own. A timeout surfaces as an error, which the
// combiner counts as this evaluator's deny vote.
type ExternalEvaluator struct {
	name    string
	fn      ExternalFunc
	timeout time.Duration
}

func NewExternalEvaluator(name string, fn ExternalFunc, timeout time.Duration) *ExternalEvaluator {
	return &ExternalEvaluator{name: name, fn: fn, timeout: timeout}
}

func (e *ExternalEvaluator) Name() string { return e.name }

func (e *ExternalEvaluator) Evaluate(ctx context.Context, req *Context) (*Decision, error) {
	if e.timeout <= 0 {
		return e.fn(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		d   *Decision
		err error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := e.fn(ctx, req)
		ch <- result{d, err}
	}()
	select {
	case r := <-ch:
		return r.d, r.err
	case <-ctx.Done():
		return nil, ErrEvaluatorTimeout
	}
}
