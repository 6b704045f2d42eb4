package pdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/pdp/cache"
	"github.com/oarkflow/pdp/logger"
)

// Vote is one evaluator's contribution to a decision, surfaced by
// Explain.
type Vote struct {
	Evaluator string    `json:"evaluator"`
	Decision  *Decision `json:"decision,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// Explanation pairs the combined decision with every evaluator vote.
type Explanation struct {
	Decision *Decision `json:"decision"`
	Votes    []Vote    `json:"votes"`
}

// PDP is the policy decision point. It owns the engines, the caches
// and the fixed evaluator registry, and combines evaluator votes with
// deny overrides: any denial or fault denies, and allow requires every
// registered evaluator to allow.
type PDP struct {
	rbac *RBACEngine
	abac *ABACEngine
	acl  *ACLStore

	mu         sync.RWMutex
	evaluators []Evaluator
	providers  []AttributeProvider

	caches  *cache.Manager
	hot     *ristretto.Cache
	metrics *Metrics
	log     logger.Logger

	sinks     []AuditSink
	auditCh   chan AuditEvent
	auditDone chan struct{}
	closeOnce sync.Once
}

// Option configures a PDP at construction time.
type Option func(*options)

type options struct {
	log          logger.Logger
	metrics      *Metrics
	cacheConfig  cache.Config
	sinks        []AuditSink
	evaluators   []Evaluator
	providers    []AttributeProvider
	hotCounters  int64
	hotMaxCost   int64
	auditBuffer  int
	defaultABAC  Effect
	haveDefault  bool
	skipDefaults bool
}

// WithLogger sets the structured logger used by the PDP and its
// engines.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCacheConfig overrides cache capacities and TTLs.
func WithCacheConfig(cfg cache.Config) Option {
	return func(o *options) { o.cacheConfig = cfg }
}

// WithAuditSink adds a sink for audit events. Multiple sinks all
// receive every event.
func WithAuditSink(sinks ...AuditSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithAuditBuffer sizes the async audit channel.
func WithAuditBuffer(n int) Option {
	return func(o *options) { o.auditBuffer = n }
}

// WithEvaluators replaces the default rbac+abac registry. The registry
// is fixed for the lifetime of the PDP.
func WithEvaluators(evs ...Evaluator) Option {
	return func(o *options) { o.evaluators = evs }
}

// WithAttributeProvider adds identity sources consulted before
// evaluation to hydrate principal attributes.
func WithAttributeProvider(ps ...AttributeProvider) Option {
	return func(o *options) { o.providers = append(o.providers, ps...) }
}

// WithHotDecisionCache layers a ristretto cache in front of the
// decision cache for read-mostly workloads. It is cleared wholesale on
// any invalidation since ristretto has no tag support.
func WithHotDecisionCache(numCounters, maxCost int64) Option {
	return func(o *options) {
		o.hotCounters = numCounters
		o.hotMaxCost = maxCost
	}
}

// WithDefaultEffect sets the ABAC engine's fallback effect.
func WithDefaultEffect(e Effect) Option {
	return func(o *options) {
		o.defaultABAC = e
		o.haveDefault = true
	}
}

// WithoutBuiltinRoles starts the RBAC engine empty instead of seeding
// the protected role set.
func WithoutBuiltinRoles() Option {
	return func(o *options) { o.skipDefaults = true }
}

// New builds a PDP. With no options it seeds the built-in roles,
// registers the RBAC and ABAC evaluators, logs through the process
// logger and audits to a log sink.
func New(opts ...Option) *PDP {
	o := &options{
		auditBuffer: 1024,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.NewPhusluLogger()
	}

	caches := cache.NewManager(o.cacheConfig)
	var rbac *RBACEngine
	if o.skipDefaults {
		rbac = newRBACEngine(caches, o.log, nil)
	} else {
		rbac = NewRBACEngine(caches, o.log)
	}
	abac := NewABACEngine(o.log)
	if o.haveDefault {
		abac.SetDefaultEffect(o.defaultABAC)
	}
	acl := NewACLStore()

	p := &PDP{
		rbac:      rbac,
		abac:      abac,
		acl:       acl,
		caches:    caches,
		metrics:   o.metrics,
		log:       o.log,
		sinks:     o.sinks,
		providers: o.providers,
		auditCh:   make(chan AuditEvent, o.auditBuffer),
		auditDone: make(chan struct{}),
	}
	if len(p.sinks) == 0 {
		p.sinks = []AuditSink{NewLogSink(o.log)}
	}

	if o.evaluators != nil {
		p.evaluators = o.evaluators
	} else {
		p.evaluators = []Evaluator{
			NewRBACEvaluator(rbac),
			NewABACEvaluator(abac),
		}
	}

	if o.hotCounters > 0 && o.hotMaxCost > 0 {
		hot, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: o.hotCounters,
			MaxCost:     o.hotMaxCost,
			BufferItems: 64,
		})
		if err != nil {
			o.log.Error("hot decision cache disabled", "error", err)
		} else {
			p.hot = hot
		}
	}

	go p.auditWorker()
	return p
}

// RBAC exposes the role engine for direct queries.
func (p *PDP) RBAC() *RBACEngine { return p.rbac }

// ABAC exposes the policy engine for direct queries.
func (p *PDP) ABAC() *ABACEngine { return p.abac }

// ACL exposes the entry store for direct queries.
func (p *PDP) ACL() *ACLStore { return p.acl }

// Caches exposes the cache manager.
func (p *PDP) Caches() *cache.Manager { return p.caches }

// CacheMetrics returns a read-only snapshot of every cache's counters.
func (p *PDP) CacheMetrics() map[string]cache.Stats { return p.caches.Metrics() }

// Authorize decides one request. Resource is expected in "type:id"
// form (for example "service:orders"); a bare name is treated as both
// type and id, so it only matches permissions whose type equals the
// name. The returned decision is always non-nil; the error reports
// evaluator faults, which themselves already forced a deny.
func (p *PDP) Authorize(ctx context.Context, principal *Principal, resource, action string, environment map[string]any) (*Decision, error) {
	start := time.Now()

	if principal == nil || principal.ID == "" {
		d := &Decision{
			Allowed:   false,
			Reason:    "no principal",
			Latency:   time.Since(start),
			Timestamp: start,
		}
		p.audit(EventDecision, &Context{Principal: &Principal{}, Resource: resource, Action: action}, d, false)
		return d, ErrNoPrincipal
	}

	req := &Context{
		Principal:   principal,
		Resource:    resource,
		Action:      action,
		Environment: environment,
		Timestamp:   start,
	}

	key := decisionKey(principal.ID, resource, action)
	if d, ok := p.cachedDecision(key); ok {
		p.metrics.RecordCacheHit()
		out := *d
		out.Latency = time.Since(start)
		p.metrics.RecordDecision(out.Allowed, true, out.Latency)
		p.audit(EventDecision, req, &out, true)
		return &out, nil
	}
	p.metrics.RecordCacheMiss()

	p.enrich(ctx, req)
	d, votes, evalErr := p.evaluate(ctx, req)
	d.Latency = time.Since(start)
	p.metrics.RecordDecision(d.Allowed, false, d.Latency)

	if evalErr == nil {
		p.storeDecision(key, req, d)
	}

	p.audit(EventDecision, req, d, false)
	if d.Allowed && auditFlagged(votes) {
		p.audit(EventPolicyAudit, req, d, false)
	}
	return d, evalErr
}

// BatchAuthorize decides many requests in order. Each result aligns
// with its request; evaluator faults surface in the decisions, not as
// an error.
func (p *PDP) BatchAuthorize(ctx context.Context, requests []AuthRequest) []*Decision {
	out := make([]*Decision, len(requests))
	for i, r := range requests {
		d, _ := p.Authorize(ctx, r.Principal, r.Resource, r.Action, r.Environment)
		out[i] = d
	}
	return out
}

// Explain evaluates a request without consulting or filling the
// decision cache and reports every evaluator's vote.
func (p *PDP) Explain(ctx context.Context, principal *Principal, resource, action string, environment map[string]any) *Explanation {
	start := time.Now()
	if principal == nil || principal.ID == "" {
		return &Explanation{Decision: &Decision{
			Allowed:   false,
			Reason:    "no principal",
			Timestamp: start,
		}}
	}
	req := &Context{
		Principal:   principal,
		Resource:    resource,
		Action:      action,
		Environment: environment,
		Timestamp:   start,
	}
	p.enrich(ctx, req)
	d, votes, _ := p.evaluate(ctx, req)
	d.Latency = time.Since(start)
	return &Explanation{Decision: d, Votes: votes}
}

// evaluate runs the registry and combines votes with deny overrides.
func (p *PDP) evaluate(ctx context.Context, req *Context) (*Decision, []Vote, error) {
	p.mu.RLock()
	registry := p.evaluators
	p.mu.RUnlock()

	if len(registry) == 0 {
		return &Decision{
			Allowed:   false,
			Reason:    "no evaluators registered",
			Timestamp: req.Timestamp,
		}, nil, nil
	}

	votes := make([]Vote, 0, len(registry))
	var firstErr error
	var denial *Decision
	var denier string
	policies := make([]string, 0, 4)
	allowReason := ""

	for _, ev := range registry {
		d, err := p.safeEvaluate(ctx, ev, req)
		vote := Vote{Evaluator: ev.Name(), Decision: d}
		if err != nil {
			vote.Err = err.Error()
			p.metrics.RecordEvaluation(ev.Name(), "error")
			if firstErr == nil {
				firstErr = fmt.Errorf("evaluator %s: %w", ev.Name(), err)
			}
		} else if d != nil && d.Allowed {
			p.metrics.RecordEvaluation(ev.Name(), "allowed")
			policies = append(policies, d.Policies...)
			if allowReason == "" {
				allowReason = d.Reason
			}
		} else {
			p.metrics.RecordEvaluation(ev.Name(), "denied")
			if d == nil {
				d = &Decision{Allowed: false, Reason: ev.Name() + " returned no decision", Timestamp: req.Timestamp}
				vote.Decision = d
			}
			if denial == nil {
				denial = d
				denier = ev.Name()
			}
		}
		votes = append(votes, vote)
	}

	switch {
	case denial != nil:
		out := *denial
		out.Timestamp = req.Timestamp
		if out.Reason == "" {
			out.Reason = denier + " denied"
		}
		return &out, votes, firstErr
	case firstErr != nil:
		return &Decision{
			Allowed:   false,
			Reason:    firstErr.Error(),
			Timestamp: req.Timestamp,
		}, votes, firstErr
	default:
		return &Decision{
			Allowed:   true,
			Reason:    allowReason,
			Policies:  policies,
			Metadata:  mergeAuditMetadata(votes),
			Timestamp: req.Timestamp,
		}, votes, nil
	}
}

// safeEvaluate converts an evaluator panic into an error vote so one
// faulty engine cannot take down the caller.
func (p *PDP) safeEvaluate(ctx context.Context, ev Evaluator, req *Context) (d *Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("panic: %v", r)
			p.log.Error("evaluator panicked", "evaluator", ev.Name(), "panic", r)
		}
	}()
	return ev.Evaluate(ctx, req)
}

// cachedDecision consults the hot cache first, then the tagged
// decision cache.
func (p *PDP) cachedDecision(key string) (*Decision, bool) {
	if p.hot != nil {
		if v, ok := p.hot.Get(key); ok {
			if d, ok := v.(*Decision); ok {
				return d, true
			}
		}
	}
	if v, ok := p.caches.Decisions().Get(key); ok {
		return v.(*Decision), true
	}
	return nil, false
}

// storeDecision caches a decision tagged by principal, resource and
// every role reachable from the principal's assignments (inactive
// roles included), so role mutations evict exactly the entries they
// could change.
func (p *PDP) storeDecision(key string, req *Context, d *Decision) {
	stored := *d
	tags := make([]string, 0, 8)
	tags = append(tags, cache.TagPrincipal(req.Principal.ID))
	tags = append(tags, cache.TagResource(req.Resource))

	direct := append([]string(nil), req.Principal.Roles...)
	direct = append(direct, p.rbac.directRoles(req.Principal.ID)...)
	for _, role := range p.rbac.ReachableRolesOf(direct) {
		tags = append(tags, cache.TagRole(role))
	}

	p.caches.Decisions().Put(key, &stored, 0, tags...)
	if p.hot != nil {
		p.hot.Set(key, &stored, 1)
	}
}

func decisionKey(principalID, resource, action string) string {
	return principalID + "\x00" + resource + "\x00" + action
}

// auditFlagged reports whether any allowing vote requested an audit
// trail.
func auditFlagged(votes []Vote) bool {
	for _, v := range votes {
		if v.Decision != nil && v.Decision.Allowed {
			if flag, ok := v.Decision.Metadata["audit"].(bool); ok && flag {
				return true
			}
		}
	}
	return false
}

func mergeAuditMetadata(votes []Vote) map[string]any {
	if !auditFlagged(votes) {
		return nil
	}
	return map[string]any{"audit": true}
}

// audit enqueues an event without blocking; the channel drops under
// backpressure rather than stalling decisions.
func (p *PDP) audit(eventType string, req *Context, d *Decision, cached bool) {
	ev := newAuditEvent(eventType, req, d, cached)
	select {
	case p.auditCh <- ev:
	default:
		p.metrics.RecordAuditDrop()
		p.log.Debug("audit event dropped", "type", eventType)
	}
}

func (p *PDP) auditWorker() {
	defer close(p.auditDone)
	for ev := range p.auditCh {
		for _, sink := range p.sinks {
			sink.Record(ev)
		}
	}
}

// Close drains and stops the audit worker. The PDP must not be used
// after Close.
func (p *PDP) Close() {
	p.closeOnce.Do(func() {
		close(p.auditCh)
		<-p.auditDone
	})
}
