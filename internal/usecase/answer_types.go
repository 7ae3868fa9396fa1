package usecase

import (
	"context"

	"hybrid-retrieval/internal/domain"
)

// AnswerConstraints shape the grounded answer.
type AnswerConstraints struct {
	// GraphRationale grounds citations in graph rationale when set.
	GraphRationale bool
	MaxTokens      int
	Locale         string
}

// AnswerInput is the query plus the constraints of one answer request.
type AnswerInput struct {
	PlanInput
	Constraints AnswerConstraints
}

// AnswerUsecase streams a grounded, cited answer.
type AnswerUsecase interface {
	// Stream validates and plans synchronously, then returns a channel that carries
	// exactly one terminal event before it is closed.
	Stream(ctx context.Context, input AnswerInput) (<-chan AnswerEvent, error)
}

// AnswerState is a step of the answer state machine.
type AnswerState string

const (
	AnswerStatePlanning     AnswerState = "planning"
	AnswerStateRetrieving   AnswerState = "retrieving"
	AnswerStateHydrating    AnswerState = "hydrating"
	AnswerStateSynthesizing AnswerState = "synthesizing"
	AnswerStateStreaming    AnswerState = "streaming"
	AnswerStateDone         AnswerState = "done"
	AnswerStateFailed       AnswerState = "failed"
)

type AnswerEventKind string

const (
	AnswerEventMeta      AnswerEventKind = "meta"
	AnswerEventToken     AnswerEventKind = "token"
	AnswerEventCitation  AnswerEventKind = "citation"
	AnswerEventHeartbeat AnswerEventKind = "heartbeat"
	AnswerEventFinal     AnswerEventKind = "final"
	AnswerEventError     AnswerEventKind = "error"
)

// IsTerminal reports whether no event may follow this one.
func (k AnswerEventKind) IsTerminal() bool {
	return k == AnswerEventFinal || k == AnswerEventError
}

type AnswerEvent struct {
	Kind    AnswerEventKind
	Payload interface{}
}

// SourceRef describes a citable source announced in the meta event.
type SourceRef struct {
	Marker      string                 `json:"marker"`
	CandidateID string                 `json:"candidateId"`
	DocumentID  string                 `json:"documentId,omitempty"`
	Title       string                 `json:"title,omitempty"`
	URL         string                 `json:"url,omitempty"`
	FinalScore  float64                `json:"finalScore"`
	Rationale   *domain.GraphRationale `json:"rationale,omitempty"`
}

type AnswerMeta struct {
	RequestID     string                `json:"requestId"`
	RouterMode    domain.RouterMode     `json:"routerMode"`
	PromptVersion string                `json:"promptVersion"`
	Sources       []SourceRef           `json:"sources"`
	Observability *domain.Observability `json:"observability"`
}

type AnswerCitation struct {
	Marker      string `json:"marker"`
	CandidateID string `json:"candidateId"`
	DocumentID  string `json:"documentId,omitempty"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
}

// FallbackCategory classifies why an answer ended without generation.
type FallbackCategory string

const (
	FallbackNoContext FallbackCategory = "no_context"
	FallbackCancelled FallbackCategory = "cancelled"
)

type AnswerFinal struct {
	RequestID        string           `json:"requestId"`
	State            AnswerState      `json:"state"`
	Answer           string           `json:"answer"`
	Citations        []AnswerCitation `json:"citations"`
	Fallback         bool             `json:"fallback"`
	FallbackCategory FallbackCategory `json:"fallbackCategory,omitempty"`
}

type AnswerHeartbeat struct {
	RequestID string      `json:"requestId"`
	State     AnswerState `json:"state"`
}

type AnswerError struct {
	RequestID string           `json:"requestId"`
	State     AnswerState      `json:"state"`
	Kind      domain.ErrorKind `json:"kind"`
	Message   string           `json:"message"`
}

// AnswerRecorder receives answer outcome measurements.
type AnswerRecorder interface {
	AnswerFinished(state AnswerState, kind domain.ErrorKind)
}
