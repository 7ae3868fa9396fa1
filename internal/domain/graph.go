package domain

import "context"

// Adjacent is an outgoing edge from an entity.
type Adjacent struct {
	ToID   string
	Type   string
	Weight float64
}

// GraphLookup resolves aliases and lists adjacency in a tenant's knowledge graph.
type GraphLookup interface {
	// ResolveAliases maps each resolvable hint to its entity id. Unknown hints are omitted.
	ResolveAliases(ctx context.Context, tenantID string, hints []string) (map[string]string, error)
	// Adjacency lists outgoing edges of entityID restricted to edgeTypes.
	Adjacency(ctx context.Context, tenantID, entityID string, edgeTypes []string) ([]Adjacent, error)
}
