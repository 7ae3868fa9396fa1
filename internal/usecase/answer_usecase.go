package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase/retrieval"
)

type answerUsecase struct {
	planner       QueryPlanner
	search        SearchUsecase
	hydrator      retrieval.Hydrator
	promptBuilder PromptBuilder
	llmClient     domain.LLMClient
	configs       domain.TenantConfigProvider
	logger        *slog.Logger
	recorder      AnswerRecorder
	defaultLocale string
}

// AnswerOption configures an AnswerUsecase.
type AnswerOption func(*answerUsecase)

// WithAnswerRecorder sets the outcome metrics recorder.
func WithAnswerRecorder(recorder AnswerRecorder) AnswerOption {
	return func(u *answerUsecase) {
		u.recorder = recorder
	}
}

// WithDefaultLocale sets the locale used when the caller gives none.
func WithDefaultLocale(locale string) AnswerOption {
	return func(u *answerUsecase) {
		u.defaultLocale = locale
	}
}

// NewAnswerUsecase wires together the components needed to stream a grounded answer.
func NewAnswerUsecase(
	planner QueryPlanner,
	search SearchUsecase,
	hydrator retrieval.Hydrator,
	promptBuilder PromptBuilder,
	llmClient domain.LLMClient,
	configs domain.TenantConfigProvider,
	logger *slog.Logger,
	opts ...AnswerOption,
) AnswerUsecase {
	u := &answerUsecase{
		planner:       planner,
		search:        search,
		hydrator:      hydrator,
		promptBuilder: promptBuilder,
		llmClient:     llmClient,
		configs:       configs,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *answerUsecase) Stream(ctx context.Context, input AnswerInput) (<-chan AnswerEvent, error) {
	ctx = ensureRequestID(ctx)

	planInput := input.PlanInput
	planInput.IncludeRationale = planInput.IncludeRationale || input.Constraints.GraphRationale
	plan, err := u.planner.Plan(ctx, planInput)
	if err != nil {
		return nil, err
	}

	run := &answerRun{
		u:           u,
		events:      make(chan AnswerEvent, 4),
		requestID:   domain.RequestIDFrom(ctx),
		plan:        plan,
		cfg:         u.configs.ForTenant(plan.TenantID()),
		constraints: input.Constraints,
		state:       AnswerStatePlanning,
		start:       time.Now(),
	}

	go func() {
		defer close(run.events)
		run.execute(ctx)
	}()

	return run.events, nil
}

// answerRun holds the state of one answer stream. It is owned by a single goroutine.
type answerRun struct {
	u           *answerUsecase
	events      chan AnswerEvent
	requestID   string
	plan        *domain.QueryPlan
	cfg         *domain.TenantConfig
	constraints AnswerConstraints
	state       AnswerState
	terminal    bool
	start       time.Time
	heartbeat   *time.Ticker
	idle        *time.Timer
}

var (
	errIdleTimeout  = errors.New("answer stream idle timeout")
	errStreamClosed = errors.New("answer stream already terminated")
)

func (r *answerRun) execute(ctx context.Context) {
	r.transition(ctx, AnswerStateRetrieving)
	out, err := r.u.search.ExecutePlan(ctx, r.plan)
	if err != nil {
		if ctx.Err() != nil {
			r.cancelled(ctx)
			return
		}
		kind := domain.KindOf(err)
		if kind == "" {
			kind = domain.KindSourceFailure
		}
		r.fail(ctx, kind, err)
		return
	}
	if len(out.Candidates) == 0 {
		r.finish(ctx, AnswerFinal{Fallback: true, FallbackCategory: FallbackNoContext})
		return
	}

	r.transition(ctx, AnswerStateHydrating)
	sources, refs, err := r.hydrate(ctx, out)
	if err != nil {
		r.cancelled(ctx)
		return
	}
	if len(sources) == 0 {
		r.fail(ctx, domain.KindHydrationMiss,
			domain.NewError(domain.KindHydrationMiss, "answer.hydrate", fmt.Errorf("none of %d candidates could be hydrated", len(out.Candidates))))
		return
	}

	r.transition(ctx, AnswerStateSynthesizing)
	locale := r.constraints.Locale
	if locale == "" {
		locale = r.u.defaultLocale
	}
	messages, err := r.u.promptBuilder.Build(PromptInput{
		Query:         r.plan.RawQuery,
		Locale:        locale,
		PromptVersion: r.cfg.Answer.PromptVersion,
		Sources:       sources,
	})
	if err != nil {
		r.fail(ctx, domain.KindGenerationFailure, fmt.Errorf("build prompt: %w", err))
		return
	}

	if err := r.send(ctx, AnswerEvent{Kind: AnswerEventMeta, Payload: AnswerMeta{
		RequestID:     r.requestID,
		RouterMode:    r.plan.RouterMode,
		PromptVersion: r.cfg.Answer.PromptVersion,
		Sources:       refs,
		Observability: out.Observability,
	}}); err != nil {
		r.cancelled(ctx)
		return
	}

	maxTokens := r.constraints.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.cfg.Answer.MaxTokens
	}

	genCtx, cancelGen := context.WithCancel(ctx)
	defer cancelGen()

	// The idle timer covers stream setup too: a backend that accepts the
	// connection but never answers must still end the stream.
	r.heartbeat = time.NewTicker(r.cfg.Answer.HeartbeatInterval)
	defer r.heartbeat.Stop()
	r.idle = time.NewTimer(r.cfg.Answer.IdleTimeout)
	defer r.idle.Stop()

	chunkCh, errCh, ok := r.openStream(ctx, genCtx, cancelGen, messages, maxTokens)
	if !ok {
		return
	}

	r.transition(ctx, AnswerStateStreaming)
	r.stream(ctx, cancelGen, chunkCh, errCh, refs)
}

type chatStream struct {
	chunks <-chan domain.LLMStreamChunk
	errs   <-chan error
	err    error
}

// openStream starts generation while heartbeats and the idle timer keep running.
// It reports false once a terminal event has been sent.
func (r *answerRun) openStream(
	ctx, genCtx context.Context,
	cancelGen context.CancelFunc,
	messages []domain.Message,
	maxTokens int,
) (<-chan domain.LLMStreamChunk, <-chan error, bool) {
	opened := make(chan chatStream, 1)
	go func() {
		chunks, errs, err := r.u.llmClient.ChatStream(genCtx, messages, maxTokens)
		opened <- chatStream{chunks: chunks, errs: errs, err: err}
	}()

	for {
		select {
		case <-ctx.Done():
			cancelGen()
			r.cancelled(ctx)
			return nil, nil, false

		case <-r.heartbeat.C:
			if err := r.send(ctx, r.heartbeatEvent()); err != nil {
				r.abort(ctx, cancelGen, err)
				return nil, nil, false
			}

		case <-r.idle.C:
			cancelGen()
			r.failIdle(ctx)
			return nil, nil, false

		case res := <-opened:
			if res.err != nil {
				if ctx.Err() != nil {
					r.cancelled(ctx)
					return nil, nil, false
				}
				r.fail(ctx, domain.KindGenerationFailure, fmt.Errorf("llm chat stream setup failed: %w", res.err))
				return nil, nil, false
			}
			r.idle.Reset(r.cfg.Answer.IdleTimeout)
			return res.chunks, res.errs, true
		}
	}
}

// hydrate resolves the text of every final candidate, reusing what ranking already
// hydrated. Candidates that cannot be hydrated are dropped.
func (r *answerRun) hydrate(ctx context.Context, out *SearchOutput) ([]PromptSource, []SourceRef, error) {
	hydrated := make(map[string]*domain.HydratedChunk, len(out.Candidates))
	var missing []domain.Candidate
	for _, c := range out.Candidates {
		if h, ok := out.Hydrated[c.ID]; ok && h != nil && h.Text != "" {
			hydrated[c.ID] = h
			continue
		}
		missing = append(missing, c)
	}

	if len(missing) > 0 && r.u.hydrator != nil {
		got, err := r.u.hydrator.Hydrate(ctx, r.plan.TenantID(), missing)
		if err != nil {
			return nil, nil, err
		}
		for id, h := range got {
			hydrated[id] = h
		}
	}

	sources := make([]PromptSource, 0, len(hydrated))
	refs := make([]SourceRef, 0, len(hydrated))
	for _, c := range out.Candidates {
		h, ok := hydrated[c.ID]
		if !ok {
			continue
		}
		marker := fmt.Sprintf("S%d", len(sources)+1)
		title := h.Title
		if title == "" {
			title = c.Title
		}
		sources = append(sources, PromptSource{
			Marker:      marker,
			CandidateID: c.ID,
			Title:       title,
			URL:         h.URL,
			OccurredAt:  c.OccurredAt,
			Text:        h.Text,
			Relation:    describeRationale(c.Rationale),
		})
		refs = append(refs, SourceRef{
			Marker:      marker,
			CandidateID: c.ID,
			DocumentID:  c.DocumentID,
			Title:       title,
			URL:         h.URL,
			FinalScore:  c.FinalScore,
			Rationale:   c.Rationale,
		})
	}

	if dropped := len(out.Candidates) - len(sources); dropped > 0 {
		r.u.logger.WarnContext(ctx, "answer_candidates_dropped",
			slog.String("request_id", r.requestID),
			slog.Int("dropped", dropped),
			slog.Int("kept", len(sources)))
	}
	return sources, refs, nil
}

func (r *answerRun) stream(
	ctx context.Context,
	cancelGen context.CancelFunc,
	chunkStream <-chan domain.LLMStreamChunk,
	errStream <-chan error,
	refs []SourceRef,
) {
	var (
		answer    strings.Builder
		scanner   citationScanner
		cited     = make(map[int]bool)
		citations []AnswerCitation
	)

	for {
		select {
		case <-ctx.Done():
			cancelGen()
			r.cancelled(ctx)
			return

		case <-r.heartbeat.C:
			if err := r.send(ctx, r.heartbeatEvent()); err != nil {
				r.abort(ctx, cancelGen, err)
				return
			}

		case <-r.idle.C:
			cancelGen()
			r.failIdle(ctx)
			return

		case chunk, ok := <-chunkStream:
			if !ok {
				select {
				case streamErr, open := <-errStream:
					if open && streamErr != nil {
						r.fail(ctx, domain.KindGenerationFailure, fmt.Errorf("llm stream failed: %w", streamErr))
						return
					}
				default:
				}
				r.complete(ctx, answer.String(), citations)
				return
			}
			r.idle.Reset(r.cfg.Answer.IdleTimeout)

			if chunk.Response != "" {
				answer.WriteString(chunk.Response)
				if err := r.send(ctx, AnswerEvent{Kind: AnswerEventToken, Payload: chunk.Response}); err != nil {
					r.abort(ctx, cancelGen, err)
					return
				}
				for _, n := range scanner.feed(chunk.Response) {
					if n < 1 || n > len(refs) {
						r.u.logger.WarnContext(ctx, "unknown_citation_marker",
							slog.String("request_id", r.requestID),
							slog.Int("marker", n),
							slog.Int("source_count", len(refs)))
						continue
					}
					if cited[n] {
						continue
					}
					cited[n] = true
					ref := refs[n-1]
					citation := AnswerCitation{
						Marker:      ref.Marker,
						CandidateID: ref.CandidateID,
						DocumentID:  ref.DocumentID,
						Title:       ref.Title,
						URL:         ref.URL,
					}
					citations = append(citations, citation)
					if err := r.send(ctx, AnswerEvent{Kind: AnswerEventCitation, Payload: citation}); err != nil {
						r.abort(ctx, cancelGen, err)
						return
					}
				}
			}
			if chunk.Done {
				r.complete(ctx, answer.String(), citations)
				return
			}

		case streamErr, ok := <-errStream:
			if !ok {
				errStream = nil
				continue
			}
			if streamErr == nil {
				continue
			}
			if ctx.Err() != nil {
				r.cancelled(ctx)
				return
			}
			r.fail(ctx, domain.KindGenerationFailure, fmt.Errorf("llm stream failed: %w", streamErr))
			return
		}
	}
}

func (r *answerRun) complete(ctx context.Context, answer string, citations []AnswerCitation) {
	if strings.TrimSpace(answer) == "" {
		r.fail(ctx, domain.KindGenerationFailure,
			domain.NewError(domain.KindGenerationFailure, "answer.stream", errors.New("llm stream produced no data")))
		return
	}
	r.finish(ctx, AnswerFinal{
		Answer:    strings.TrimSpace(answer),
		Citations: citations,
	})
}

func (r *answerRun) transition(ctx context.Context, next AnswerState) {
	r.u.logger.DebugContext(ctx, "answer_state_changed",
		slog.String("request_id", r.requestID),
		slog.String("from", string(r.state)),
		slog.String("to", string(next)))
	r.state = next
}

// send delivers ev unless a terminal event was already sent or the caller is gone.
// While generation is running, a consumer that stalls past the idle timeout ends
// the stream with errIdleTimeout. Terminal events wait at most one idle timeout.
func (r *answerRun) send(ctx context.Context, ev AnswerEvent) error {
	if r.terminal {
		return errStreamClosed
	}

	var idle <-chan time.Time
	if ev.Kind.IsTerminal() {
		wait := time.NewTimer(r.cfg.Answer.IdleTimeout)
		defer wait.Stop()
		idle = wait.C
	} else if r.idle != nil {
		idle = r.idle.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		if ev.Kind.IsTerminal() {
			r.terminal = true
		}
		return errIdleTimeout
	case r.events <- ev:
		if ev.Kind.IsTerminal() {
			r.terminal = true
		}
		return nil
	}
}

func (r *answerRun) heartbeatEvent() AnswerEvent {
	return AnswerEvent{Kind: AnswerEventHeartbeat, Payload: AnswerHeartbeat{RequestID: r.requestID, State: r.state}}
}

// abort ends the stream after a failed send.
func (r *answerRun) abort(ctx context.Context, cancelGen context.CancelFunc, err error) {
	cancelGen()
	if errors.Is(err, errIdleTimeout) {
		r.failIdle(ctx)
		return
	}
	r.cancelled(ctx)
}

func (r *answerRun) failIdle(ctx context.Context) {
	r.fail(ctx, domain.KindGenerationFailure,
		domain.NewError(domain.KindGenerationFailure, "answer.stream", fmt.Errorf("no generation progress for %s", r.cfg.Answer.IdleTimeout)))
}

func (r *answerRun) finish(ctx context.Context, final AnswerFinal) {
	r.transition(ctx, AnswerStateDone)
	final.RequestID = r.requestID
	final.State = AnswerStateDone
	if final.Citations == nil {
		final.Citations = []AnswerCitation{}
	}
	r.send(ctx, AnswerEvent{Kind: AnswerEventFinal, Payload: final})
	r.record(ctx, "")
}

func (r *answerRun) fail(ctx context.Context, kind domain.ErrorKind, err error) {
	r.transition(ctx, AnswerStateFailed)
	r.send(ctx, AnswerEvent{Kind: AnswerEventError, Payload: AnswerError{
		RequestID: r.requestID,
		State:     AnswerStateFailed,
		Kind:      kind,
		Message:   err.Error(),
	}})
	r.u.logger.WarnContext(ctx, "answer_failed",
		slog.String("request_id", r.requestID),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))
	r.record(ctx, kind)
}

// cancelled ends the stream after caller cancellation. The terminal event is only
// delivered if the buffer has room.
func (r *answerRun) cancelled(ctx context.Context) {
	r.transition(ctx, AnswerStateDone)
	if !r.terminal {
		select {
		case r.events <- AnswerEvent{Kind: AnswerEventFinal, Payload: AnswerFinal{
			RequestID:        r.requestID,
			State:            AnswerStateDone,
			Citations:        []AnswerCitation{},
			Fallback:         true,
			FallbackCategory: FallbackCancelled,
		}}:
		default:
		}
		r.terminal = true
	}
	r.record(ctx, "")
}

func (r *answerRun) record(ctx context.Context, kind domain.ErrorKind) {
	if r.u.recorder != nil {
		r.u.recorder.AnswerFinished(r.state, kind)
	}
	r.u.logger.InfoContext(ctx, "answer_completed",
		slog.String("request_id", r.requestID),
		slog.String("state", string(r.state)),
		slog.String("kind", string(kind)),
		slog.Int64("duration_ms", time.Since(r.start).Milliseconds()))
}
