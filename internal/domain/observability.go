package domain

import "time"

// Observability is the per-request trace returned alongside results.
type Observability struct {
	RequestID           string                   `json:"requestId"`
	RouterMode          RouterMode               `json:"routerMode"`
	StageLatencies      map[string]time.Duration `json:"-"`
	StageLatenciesMs    map[string]float64       `json:"stageLatencies"`
	CandidateCounts     map[string]int           `json:"candidateCounts"`
	GraphSeeds          []string                 `json:"graphSeeds"`
	GraphEdgesUsed      int                      `json:"graphEdgesUsed"`
	GraphBoostApplied   int                      `json:"graphBoostApplied"`
	Degraded            bool                     `json:"degraded"`
	DegradedSources     map[string]ErrorKind     `json:"degradedSources,omitempty"`
	GraphBudgetExceeded bool                     `json:"graphBudgetExceeded"`
	RerankSkipped       bool                     `json:"rerankSkipped"`
	RerankFailed        bool                     `json:"rerankFailed"`
}

// NewObservability returns an empty trace for requestID.
func NewObservability(requestID string, mode RouterMode) *Observability {
	return &Observability{
		RequestID:        requestID,
		RouterMode:       mode,
		StageLatencies:   make(map[string]time.Duration),
		StageLatenciesMs: make(map[string]float64),
		CandidateCounts:  make(map[string]int),
	}
}

// RecordStage stores the latency of a finished stage.
func (o *Observability) RecordStage(stage string, d time.Duration) {
	o.StageLatencies[stage] = d
	o.StageLatenciesMs[stage] = float64(d.Microseconds()) / 1000
}

// MarkDegraded notes that source did not contribute.
func (o *Observability) MarkDegraded(source string, kind ErrorKind) {
	o.Degraded = true
	if o.DegradedSources == nil {
		o.DegradedSources = make(map[string]ErrorKind)
	}
	o.DegradedSources[source] = kind
}
