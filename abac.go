package pdp

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oarkflow/pdp/logger"
	"github.com/oarkflow/pdp/utils"
)

// Policy is one ABAC rule. Policies are created and updated through
// the administration API and are read-only on the evaluation path.
type Policy struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Effect      Effect      `json:"effect" yaml:"effect"`
	Resources   []string    `json:"resources,omitempty" yaml:"resources,omitempty"`
	Actions     []string    `json:"actions,omitempty" yaml:"actions,omitempty"`
	Priority    int         `json:"priority" yaml:"priority"`
	Active      bool        `json:"active" yaml:"active"`
	Conditions  []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Validate rejects malformed policies before they reach the store.
func (p *Policy) Validate() error {
	if p == nil || p.ID == "" {
		return &ConfigError{Op: "validate policy", Detail: "missing id", Err: ErrInvalidPolicy}
	}
	switch p.Effect {
	case EffectAllow, EffectDeny, EffectAudit:
	default:
		return &ConfigError{Op: "validate policy", Detail: fmt.Sprintf("policy %s: unknown effect %q", p.ID, p.Effect), Err: ErrInvalidPolicy}
	}
	for _, c := range p.Conditions {
		if err := c.Validate(); err != nil {
			return &ConfigError{Op: "validate policy", Detail: p.ID, Err: err}
		}
	}
	return nil
}

// matches reports whether the policy's resource/action patterns cover
// the request. Empty pattern lists match everything.
func (p *Policy) matches(ctx *Context) bool {
	return utils.MatchAny(ctx.Resource, p.Resources) && utils.MatchAny(ctx.Action, p.Actions)
}

// ABACEngine evaluates an ordered policy list with first-match
// semantics. The list is guarded by its own lock, independent of the
// role graph and caches. Writers never mutate a published slice in
// place; every mutation builds a fresh slice and swaps it in, so
// Evaluate can walk its snapshot outside the lock.
type ABACEngine struct {
	mu            sync.RWMutex
	policies      []*Policy
	defaultEffect Effect
	logger        logger.Logger
}

// NewABACEngine creates an engine with the secure default effect deny.
func NewABACEngine(l logger.Logger) *ABACEngine {
	if l == nil {
		l = logger.NewNullLogger()
	}
	return &ABACEngine{defaultEffect: EffectDeny, logger: l}
}

// SetDefaultEffect overrides the effect applied when no policy matches.
func (e *ABACEngine) SetDefaultEffect(effect Effect) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if effect == EffectAllow {
		e.defaultEffect = EffectAllow
		return
	}
	e.defaultEffect = EffectDeny
}

// DefaultEffect returns the effect applied when no policy matches.
func (e *ABACEngine) DefaultEffect() Effect {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaultEffect
}

// LoadPolicies validates and replaces the whole policy list. The swap
// is atomic: a validation failure leaves the previous list in place.
func (e *ABACEngine) LoadPolicies(policies []*Policy) error {
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	sorted := make([]*Policy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	e.mu.Lock()
	e.policies = sorted
	e.mu.Unlock()
	e.logger.Info("policies loaded", "count", len(sorted))
	return nil
}

// AddPolicy validates and inserts (or replaces) a single policy.
func (e *ABACEngine) AddPolicy(p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]*Policy, len(e.policies), len(e.policies)+1)
	copy(next, e.policies)
	replaced := false
	for i, existing := range next {
		if existing.ID == p.ID {
			next[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, p)
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].Priority < next[j].Priority })
	e.policies = next
	return nil
}

// RemovePolicy deletes by id and reports whether it was present.
func (e *ABACEngine) RemovePolicy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.policies {
		if p.ID == id {
			next := make([]*Policy, 0, len(e.policies)-1)
			next = append(next, e.policies[:i]...)
			next = append(next, e.policies[i+1:]...)
			e.policies = next
			return true
		}
	}
	return false
}

// ListPolicies returns the policies in evaluation order.
func (e *ABACEngine) ListPolicies() []*Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Policy, len(e.policies))
	copy(out, e.policies)
	return out
}

// ValidatePolicies re-validates the loaded list and returns every
// error found, not just the first.
func (e *ABACEngine) ValidatePolicies() []error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var errs []error
	for _, p := range e.policies {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Evaluate filters candidates by pattern, walks them in ascending
// priority order and returns the first matching policy's effect. Each
// policy's conditions are conjunctive. When nothing matches, the
// default effect applies and the decision cites it rather than any
// named policy.
func (e *ABACEngine) Evaluate(ctx *Context) *Decision {
	start := time.Now()
	e.mu.RLock()
	policies := e.policies
	defaultEffect := e.defaultEffect
	e.mu.RUnlock()

	for _, p := range policies {
		if !p.Active || !p.matches(ctx) {
			continue
		}
		if !conditionsHold(p.Conditions, ctx) {
			continue
		}
		d := &Decision{
			Allowed:   p.Effect != EffectDeny,
			Reason:    fmt.Sprintf("policy %s matched with effect %s", p.ID, p.Effect),
			Policies:  []string{p.ID},
			Timestamp: ctx.Timestamp,
			Latency:   time.Since(start),
		}
		if p.Effect == EffectAudit {
			d.Metadata = map[string]any{"audit": true}
		}
		return d
	}

	return &Decision{
		Allowed:   defaultEffect == EffectAllow,
		Reason:    "default-" + string(defaultEffect),
		Timestamp: ctx.Timestamp,
		Latency:   time.Since(start),
	}
}

func conditionsHold(conds []Condition, ctx *Context) bool {
	for _, c := range conds {
		if !c.Evaluate(ctx) {
			return false
		}
	}
	return true
}
