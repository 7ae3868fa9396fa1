package lexical

import (
	"fmt"
	"strings"

	"hybrid-retrieval/internal/domain"
)

// escapeFilterValue escapes a value for use inside a double-quoted Meilisearch filter.
func escapeFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// buildFilter renders plan filters as a Meilisearch filter expression. The tenant
// clause is always first and always present.
func buildFilter(f domain.Filters) string {
	clauses := []string{fmt.Sprintf(`tenant_id = "%s"`, escapeFilterValue(f.TenantID))}
	if f.Source != "" {
		clauses = append(clauses, fmt.Sprintf(`source = "%s"`, escapeFilterValue(f.Source)))
	}
	if f.Type != "" {
		clauses = append(clauses, fmt.Sprintf(`type = "%s"`, escapeFilterValue(f.Type)))
	}
	if f.Author != "" {
		clauses = append(clauses, fmt.Sprintf(`author = "%s"`, escapeFilterValue(f.Author)))
	}
	for _, label := range f.Labels {
		clauses = append(clauses, fmt.Sprintf(`labels = "%s"`, escapeFilterValue(label)))
	}
	if tr := f.TimeRange; tr != nil {
		if !tr.From.IsZero() {
			clauses = append(clauses, fmt.Sprintf("occurred_at >= %d", tr.From.Unix()))
		}
		if !tr.To.IsZero() {
			clauses = append(clauses, fmt.Sprintf("occurred_at <= %d", tr.To.Unix()))
		}
	}
	return strings.Join(clauses, " AND ")
}
