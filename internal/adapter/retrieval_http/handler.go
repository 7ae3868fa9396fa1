package retrieval_http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase"

	"github.com/labstack/echo/v4"
)

// HeaderTenantID optionally carries the tenant; it must agree with the body when both are set.
const HeaderTenantID = "X-Tenant-ID"

type Handler struct {
	searchUsecase usecase.SearchUsecase
	answerUsecase usecase.AnswerUsecase
	logger        *slog.Logger
}

func NewHandler(
	searchUsecase usecase.SearchUsecase,
	answerUsecase usecase.AnswerUsecase,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		searchUsecase: searchUsecase,
		answerUsecase: answerUsecase,
		logger:        logger,
	}
}

// Search returns ranked candidates.
// (POST /v1/search)
func (h *Handler) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Kind: domain.KindValidation})
	}

	tenantID, err := resolveTenant(c, req.TenantID, req.Filters)
	if err != nil {
		return writeError(c, err)
	}
	ctx := domain.WithTenantID(c.Request().Context(), tenantID)
	c.SetRequest(c.Request().WithContext(ctx))

	out, err := h.searchUsecase.Execute(ctx, usecase.PlanInput{
		TenantID:         tenantID,
		Query:            req.Query,
		Filters:          req.Filters,
		TopK:             req.TopK,
		Mode:             req.Mode,
		IncludeRationale: req.IncludeRationale,
		EntityHints:      req.EntityHints,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "search_failed",
			slog.String("kind", string(domain.KindOf(err))),
			slog.String("error", err.Error()))
		return writeError(c, err)
	}

	candidates := out.Candidates
	if candidates == nil {
		candidates = []domain.Candidate{}
	}
	return c.JSON(http.StatusOK, SearchResponse{
		RequestID:     out.Observability.RequestID,
		RouterMode:    out.RouterMode,
		Candidates:    candidates,
		Observability: out.Observability,
	})
}

// Answer streams a cited answer as server-sent events.
// (POST /v1/answer)
func (h *Handler) Answer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Kind: domain.KindValidation})
	}

	tenantID, err := resolveTenant(c, req.TenantID, req.Filters)
	if err != nil {
		return writeError(c, err)
	}
	ctx := domain.WithTenantID(c.Request().Context(), tenantID)
	c.SetRequest(c.Request().WithContext(ctx))

	input := usecase.AnswerInput{
		PlanInput: usecase.PlanInput{
			TenantID:    tenantID,
			Query:       req.Query,
			Filters:     req.Filters,
			TopK:        req.TopK,
			Mode:        req.Mode,
			EntityHints: req.EntityHints,
		},
	}
	if req.Constraints != nil {
		input.Constraints = usecase.AnswerConstraints{
			GraphRationale: req.Constraints.GraphRationale,
			MaxTokens:      req.Constraints.MaxTokens,
			Locale:         req.Constraints.Locale,
		}
	}

	w := c.Response()
	flusher, canFlush := w.Writer.(http.Flusher)
	if !canFlush {
		h.logger.ErrorContext(ctx, "streaming_not_supported")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
	}

	events, err := h.answerUsecase.Stream(ctx, input)
	if err != nil {
		return writeError(c, err)
	}

	w.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			h.logger.InfoContext(ctx, "answer_client_disconnected", slog.String("error", err.Error()))
			// Drain until the usecase observes cancellation and closes the channel.
			for range events {
			}
			return nil
		}
		flusher.Flush()
	}
	return nil
}

type tokenPayload struct {
	Text string `json:"text"`
}

// writeEvent renders one SSE frame.
func writeEvent(w io.Writer, ev usecase.AnswerEvent) error {
	payload := ev.Payload
	if text, ok := payload.(string); ok {
		payload = tokenPayload{Text: text}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

// resolveTenant picks the tenant from the body, then filters, then the header.
func resolveTenant(c echo.Context, bodyTenant string, filters map[string]any) (string, error) {
	const op = "resolveTenant"

	tenantID := strings.TrimSpace(bodyTenant)
	if tenantID == "" {
		if v, ok := filters["tenantId"].(string); ok {
			tenantID = strings.TrimSpace(v)
		}
	}
	header := strings.TrimSpace(c.Request().Header.Get(HeaderTenantID))
	if tenantID == "" {
		return header, nil
	}
	if header != "" && header != tenantID {
		return "", domain.NewValidationError(op, "tenant header %q does not match request tenant", header)
	}
	return tenantID, nil
}
