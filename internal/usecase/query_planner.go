package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"hybrid-retrieval/internal/domain"

	"github.com/go-playground/validator/v10"
)

// PlanInput is the caller-facing request shape shared by Search and Answer.
type PlanInput struct {
	TenantID         string         `validate:"required,max=128"`
	Query            string         `validate:"required,max=2048"`
	Filters          map[string]any `validate:"-"`
	TopK             int            `validate:"gte=0"`
	Mode             string         `validate:"omitempty,oneof=lexical vector hybrid"`
	IncludeRationale bool
	EntityHints      []string `validate:"max=16,dive,required,max=256"`
}

// QueryPlanner turns a raw request into an immutable QueryPlan.
type QueryPlanner interface {
	Plan(ctx context.Context, input PlanInput) (*domain.QueryPlan, error)
}

const maxIdentifierLength = 64

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_./:#@-]+$`)
	ownershipPattern  = regexp.MustCompile(`(?i)\b(who owns|owner of|owners of|owned by|maintainer of|maintainers of|who maintains)\b`)
	authorshipPattern = regexp.MustCompile(`(?i)\b(who wrote|who authored|author of|authors of|authored by|written by)\b`)
)

type queryPlanner struct {
	configs  domain.TenantConfigProvider
	validate *validator.Validate
}

// NewQueryPlanner creates a planner reading topK limits from configs.
func NewQueryPlanner(configs domain.TenantConfigProvider) QueryPlanner {
	return &queryPlanner{
		configs:  configs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (p *queryPlanner) Plan(_ context.Context, input PlanInput) (*domain.QueryPlan, error) {
	const op = "QueryPlanner.Plan"

	input.Query = strings.TrimSpace(input.Query)
	input.TenantID = strings.TrimSpace(input.TenantID)
	if err := p.validate.Struct(input); err != nil {
		return nil, domain.NewValidationError(op, "%s", describeValidation(err))
	}

	filters, err := parseFilters(input.TenantID, input.Filters)
	if err != nil {
		return nil, err
	}

	cfg := p.configs.ForTenant(input.TenantID)
	topK := input.TopK
	if topK == 0 {
		topK = cfg.DefaultTopK
	}
	if topK > cfg.MaxTopK {
		topK = cfg.MaxTopK
	}

	mode := domain.RetrievalMode(input.Mode)
	if mode == "" {
		mode = domain.ModeHybrid
	}

	return &domain.QueryPlan{
		RawQuery:         input.Query,
		Mode:             mode,
		RouterMode:       routeQuery(input.Query, domain.RetrievalMode(input.Mode)),
		Filters:          filters,
		TopK:             topK,
		IncludeRationale: input.IncludeRationale,
		Intent:           inferIntent(input.Query),
		EntityHints:      extractHints(input.Query, input.EntityHints),
	}, nil
}

// routeQuery picks the fusion weighting. An explicit mode always wins.
func routeQuery(query string, override domain.RetrievalMode) domain.RouterMode {
	switch override {
	case domain.ModeLexical:
		return domain.RouterLexicalOnly
	case domain.ModeVector:
		return domain.RouterVectorOnly
	case domain.ModeHybrid:
		return domain.RouterBalanced
	}
	if isIdentifier(query) {
		return domain.RouterLexicalWeighted
	}
	return domain.RouterVectorWeighted
}

func isIdentifier(query string) bool {
	return len(query) <= maxIdentifierLength && identifierPattern.MatchString(query)
}

func inferIntent(query string) domain.QueryIntent {
	switch {
	case ownershipPattern.MatchString(query):
		return domain.IntentOwnership
	case authorshipPattern.MatchString(query):
		return domain.IntentAuthorship
	default:
		return domain.IntentGeneral
	}
}

// extractHints returns explicit hints first, then identifier-like tokens of the query.
func extractHints(query string, explicit []string) []string {
	seen := make(map[string]bool)
	var hints []string
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			return
		}
		seen[h] = true
		hints = append(hints, h)
	}
	for _, h := range explicit {
		add(h)
	}
	for _, tok := range strings.Fields(query) {
		tok = strings.Trim(tok, "?!,;.\"'()[]{}`")
		if looksLikeEntity(tok) {
			add(tok)
		}
	}
	return hints
}

func looksLikeEntity(tok string) bool {
	if len(tok) < 2 || len(tok) > maxIdentifierLength || !identifierPattern.MatchString(tok) {
		return false
	}
	if strings.ContainsAny(tok, "-_/.:#@") {
		return true
	}
	// camelCase or PascalCase with an inner upper-case letter.
	runes := []rune(tok)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
			return true
		}
	}
	return false
}

// parseFilters validates wire filters strictly. Unknown keys and wrong types are errors.
func parseFilters(tenantID string, raw map[string]any) (domain.Filters, error) {
	const op = "QueryPlanner.parseFilters"
	f := domain.Filters{TenantID: tenantID}

	for key, value := range raw {
		switch key {
		case "tenantId":
			s, ok := value.(string)
			if !ok {
				return f, domain.NewValidationError(op, "filter %q must be a string", key)
			}
			if s != tenantID {
				return f, domain.NewValidationError(op, "filter tenantId %q does not match request tenant", s)
			}
		case "source", "type", "author":
			s, ok := value.(string)
			if !ok {
				return f, domain.NewValidationError(op, "filter %q must be a string", key)
			}
			switch key {
			case "source":
				f.Source = s
			case "type":
				f.Type = s
			case "author":
				f.Author = s
			}
		case "labels":
			labels, err := stringList(value)
			if err != nil {
				return f, domain.NewValidationError(op, "filter %q: %v", key, err)
			}
			f.Labels = labels
		case "timeRange":
			tr, err := parseTimeRange(value)
			if err != nil {
				return f, domain.NewValidationError(op, "filter %q: %v", key, err)
			}
			f.TimeRange = tr
		default:
			return f, domain.NewValidationError(op, "unknown filter %q", key)
		}
	}
	return f, nil
}

func stringList(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d must be a string", i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a list of strings")
	}
}

func parseTimeRange(value any) (*domain.TimeRange, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be an object with from/to")
	}
	var tr domain.TimeRange
	for key, raw := range m {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an RFC3339 string", key)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "from":
			tr.From = t
		case "to":
			tr.To = t
		default:
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}
	if !tr.From.IsZero() && !tr.To.IsZero() && tr.From.After(tr.To) {
		return nil, fmt.Errorf("from must not be after to")
	}
	if tr.IsZero() {
		return nil, nil
	}
	return &tr, nil
}

func describeValidation(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
