package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hybrid-retrieval/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// GraphRepository implements domain.GraphLookup over the graph_aliases and
// graph_edges tables. Resolved aliases are cached per tenant.
type GraphRepository struct {
	db      Querier
	aliases *expirable.LRU[string, string]
}

// NewGraphRepository creates a graph lookup with an alias cache of cacheSize entries.
// A non-positive cacheSize disables caching.
func NewGraphRepository(db Querier, cacheSize int, cacheTTL time.Duration) *GraphRepository {
	r := &GraphRepository{db: db}
	if cacheSize > 0 {
		r.aliases = expirable.NewLRU[string, string](cacheSize, nil, cacheTTL)
	}
	return r
}

func aliasKey(tenantID, alias string) string {
	return tenantID + "\x00" + alias
}

func normalizeAlias(hint string) string {
	return strings.ToLower(strings.TrimSpace(hint))
}

func (r *GraphRepository) ResolveAliases(ctx context.Context, tenantID string, hints []string) (map[string]string, error) {
	resolved := make(map[string]string, len(hints))
	byAlias := make(map[string][]string)
	var missing []string

	for _, hint := range hints {
		alias := normalizeAlias(hint)
		if alias == "" {
			continue
		}
		if r.aliases != nil {
			if id, ok := r.aliases.Get(aliasKey(tenantID, alias)); ok {
				resolved[hint] = id
				continue
			}
		}
		if _, seen := byAlias[alias]; !seen {
			missing = append(missing, alias)
		}
		byAlias[alias] = append(byAlias[alias], hint)
	}
	if len(missing) == 0 {
		return resolved, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT lower(alias), entity_id
		FROM graph_aliases
		WHERE tenant_id = $1 AND lower(alias) = ANY($2)
	`, tenantID, missing)
	if err != nil {
		return nil, &DriverError{Op: "ResolveAliases", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var alias, entityID string
		if err := rows.Scan(&alias, &entityID); err != nil {
			return nil, &DriverError{Op: "ResolveAliases", Err: fmt.Errorf("failed to scan alias: %w", err)}
		}
		for _, hint := range byAlias[alias] {
			resolved[hint] = entityID
		}
		if r.aliases != nil {
			r.aliases.Add(aliasKey(tenantID, alias), entityID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &DriverError{Op: "ResolveAliases", Err: fmt.Errorf("rows error: %w", err)}
	}
	return resolved, nil
}

func (r *GraphRepository) Adjacency(ctx context.Context, tenantID, entityID string, edgeTypes []string) ([]domain.Adjacent, error) {
	if len(edgeTypes) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT to_id, edge_type, weight
		FROM graph_edges
		WHERE tenant_id = $1 AND from_id = $2 AND edge_type = ANY($3)
		ORDER BY weight DESC, to_id ASC
	`, tenantID, entityID, edgeTypes)
	if err != nil {
		return nil, &DriverError{Op: "Adjacency", Err: err}
	}
	defer rows.Close()

	var out []domain.Adjacent
	for rows.Next() {
		var a domain.Adjacent
		if err := rows.Scan(&a.ToID, &a.Type, &a.Weight); err != nil {
			return nil, &DriverError{Op: "Adjacency", Err: fmt.Errorf("failed to scan edge: %w", err)}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &DriverError{Op: "Adjacency", Err: fmt.Errorf("rows error: %w", err)}
	}
	return out, nil
}

var _ domain.GraphLookup = (*GraphRepository)(nil)
