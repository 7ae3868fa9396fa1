package domain

import "time"

// RetrievalMode is the caller-facing retrieval strategy.
type RetrievalMode string

const (
	ModeLexical RetrievalMode = "lexical"
	ModeVector  RetrievalMode = "vector"
	ModeHybrid  RetrievalMode = "hybrid"
)

// RouterMode is the weighting the planner selected for a request.
type RouterMode string

const (
	RouterLexicalWeighted RouterMode = "lexical_weighted"
	RouterVectorWeighted  RouterMode = "vector_weighted"
	RouterBalanced        RouterMode = "balanced"
	RouterLexicalOnly     RouterMode = "lexical_only"
	RouterVectorOnly      RouterMode = "vector_only"
)

// UsesLexical reports whether the lexical source is queried in this mode.
func (m RouterMode) UsesLexical() bool {
	return m != RouterVectorOnly
}

// UsesVector reports whether the vector source is queried in this mode.
func (m RouterMode) UsesVector() bool {
	return m != RouterLexicalOnly
}

// QueryIntent drives which graph relationships are worth following.
type QueryIntent string

const (
	IntentGeneral    QueryIntent = "general"
	IntentOwnership  QueryIntent = "ownership"
	IntentAuthorship QueryIntent = "authorship"
)

// TimeRange bounds candidates by occurrence time. Zero values are open ends.
type TimeRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// IsZero reports whether both ends are open.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Filters scopes a query. TenantID is always set.
type Filters struct {
	TenantID  string     `json:"tenantId"`
	Source    string     `json:"source,omitempty"`
	Type      string     `json:"type,omitempty"`
	Author    string     `json:"author,omitempty"`
	Labels    []string   `json:"labels,omitempty"`
	TimeRange *TimeRange `json:"timeRange,omitempty"`
}

// QueryPlan is built once per request by the planner and treated as read-only afterwards.
type QueryPlan struct {
	RawQuery         string
	Mode             RetrievalMode
	RouterMode       RouterMode
	Filters          Filters
	TopK             int
	IncludeRationale bool
	Intent           QueryIntent
	// EntityHints are alias strings to seed graph traversal with.
	EntityHints []string
}

// TenantID is a shortcut for the mandatory tenant scope.
func (p *QueryPlan) TenantID() string {
	return p.Filters.TenantID
}
