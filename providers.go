package pdp

import (
	"context"

	"github.com/oarkflow/pdp/cache"
)

// AttributeProvider hydrates principal attributes from an external
// identity source. Results are cached in the identity cache and
// evicted with the principal's tag group.
type AttributeProvider interface {
	Name() string
	Attributes(ctx context.Context, principalID string) (map[string]any, error)
}

// AttributeProviderFunc adapts a function to the interface.
type AttributeProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, principalID string) (map[string]any, error)
}

func (f AttributeProviderFunc) Name() string { return f.ProviderName }

func (f AttributeProviderFunc) Attributes(ctx context.Context, principalID string) (map[string]any, error) {
	return f.Fn(ctx, principalID)
}

// enrich merges provider attributes into a copy of the principal.
// Attributes already present on the request win over provider values.
// A failing provider is logged and skipped rather than denying, since
// condition semantics already treat absent attributes as non-matching.
func (p *PDP) enrich(ctx context.Context, req *Context) {
	if len(p.providers) == 0 {
		return
	}
	cp := *req.Principal
	attrs := make(map[string]any, len(cp.Attrs))
	for k, v := range cp.Attrs {
		attrs[k] = v
	}

	for _, provider := range p.providers {
		fetched, ok := p.providerAttrs(ctx, provider, cp.ID)
		if !ok {
			continue
		}
		for k, v := range fetched {
			if _, exists := attrs[k]; !exists {
				attrs[k] = v
			}
		}
	}

	cp.Attrs = attrs
	req.Principal = &cp
}

func (p *PDP) providerAttrs(ctx context.Context, provider AttributeProvider, principalID string) (map[string]any, bool) {
	key := "attrs:" + provider.Name() + ":" + principalID
	if v, ok := p.caches.Identities().Get(key); ok {
		return v.(map[string]any), true
	}
	attrs, err := provider.Attributes(ctx, principalID)
	if err != nil {
		p.log.Error("attribute provider failed", "provider", provider.Name(), "principal", principalID, "error", err)
		return nil, false
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	p.caches.Identities().Put(key, attrs, 0, cache.TagPrincipal(principalID))
	return attrs, true
}
