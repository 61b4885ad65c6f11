package gateway

import (
	"fmt"
	"sort"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/ports/adapter"
)

var _ adapter.Registry = (*Registry)(nil)

// Registry is the static provider table, keyed by gateway identifier.
type Registry struct {
	gateways map[string]adapter.Gateway
}

func NewRegistry(gws ...adapter.Gateway) *Registry {
	m := make(map[string]adapter.Gateway, len(gws))
	for _, g := range gws {
		m[g.Name()] = g
	}
	return &Registry{gateways: m}
}

func (r *Registry) Get(id string) (adapter.Gateway, error) {
	g, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, id)
	}
	return g, nil
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
