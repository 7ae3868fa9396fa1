package domain

import "time"

// GraphEdge is one relationship traversed while computing a boost.
type GraphEdge struct {
	FromID string  `json:"fromId"`
	ToID   string  `json:"toId"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// GraphRationale is the evidence behind a candidate's graph boost.
type GraphRationale struct {
	Seeds        []string    `json:"seeds"`
	EdgesUsed    []GraphEdge `json:"edgesUsed"`
	BoostApplied float64     `json:"boostApplied"`
}

// Candidate is a retrieval result keyed by chunk or document id.
// Source scores are normalized to [0,1] before fusion.
type Candidate struct {
	ID           string          `json:"id"`
	DocumentID   string          `json:"documentId,omitempty"`
	LexicalScore *float64        `json:"lexicalScore,omitempty"`
	VectorScore  *float64        `json:"vectorScore,omitempty"`
	FusedScore   float64         `json:"fusedScore"`
	GraphBoost   float64         `json:"graphBoost"`
	FinalScore   float64         `json:"finalScore"`
	RerankScore  *float64        `json:"rerankScore,omitempty"`
	Rationale    *GraphRationale `json:"rationale,omitempty"`

	OccurredAt time.Time `json:"occurredAt"`
	Source     string    `json:"source,omitempty"`
	Type       string    `json:"type,omitempty"`
	Title      string    `json:"title,omitempty"`
	Author     string    `json:"author,omitempty"`
	// Mentions are identifiers referenced by the chunk (services, repos, people).
	Mentions []string `json:"mentions,omitempty"`
}

// Aliases returns the metadata strings that may resolve to graph entities.
func (c *Candidate) Aliases() []string {
	out := make([]string, 0, len(c.Mentions)+1)
	if c.Author != "" {
		out = append(out, c.Author)
	}
	return append(out, c.Mentions...)
}

// Less orders candidates by final score desc, then more recent first, then id.
func Less(a, b *Candidate) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.After(b.OccurredAt)
	}
	return a.ID < b.ID
}
