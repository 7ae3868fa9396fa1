package usecase

import (
	"fmt"
	"strings"
	"time"

	"hybrid-retrieval/internal/domain"
)

// PromptSource is one citable source, numbered [S1]..[Sn] in ranking order.
type PromptSource struct {
	Marker      string
	CandidateID string
	Title       string
	URL         string
	OccurredAt  time.Time
	Text        string
	// Relation is a short graph path explaining why the source was boosted.
	Relation string
}

// PromptInput contains the pieces that feed into the prompt builder.
type PromptInput struct {
	Query         string
	Locale        string
	PromptVersion string
	Sources       []PromptSource
}

// PromptBuilder builds the chat messages sent to the LLM.
type PromptBuilder interface {
	Build(input PromptInput) ([]domain.Message, error)
}

// XMLPromptBuilder creates structured prompts that separate sources, instructions and query.
type XMLPromptBuilder struct {
	additionalInstructions []string
}

// NewXMLPromptBuilder creates a prompt builder with optional extra instructions appended.
func NewXMLPromptBuilder(additionalInstructions ...string) PromptBuilder {
	return &XMLPromptBuilder{
		additionalInstructions: additionalInstructions,
	}
}

// Build renders the Messages for Chat API.
func (b *XMLPromptBuilder) Build(input PromptInput) ([]domain.Message, error) {
	if input.PromptVersion == "" {
		return nil, fmt.Errorf("prompt version is required")
	}
	if len(input.Sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}

	var sysSb strings.Builder
	sysSb.WriteString("<instructions>\n")
	if input.Locale != "" {
		sysSb.WriteString("  <locale>")
		sysSb.WriteString(escape(input.Locale))
		sysSb.WriteString("</locale>\n")
	}

	lines := []string{
		"You answer questions using ONLY the numbered <source> entries provided by the user.",
		"Every factual sentence MUST end with the marker of the source it came from, for example [S1].",
		"Use several markers when a sentence combines sources, for example [S1][S3].",
		"Only use markers that appear in <sources>. Never invent a marker.",
		"If the sources do not answer the question, say so plainly and cite nothing.",
		"Answer in Markdown. Do not wrap the answer in JSON or code fences.",
	}
	for _, inst := range append(lines, b.additionalInstructions...) {
		sysSb.WriteString("  <line>")
		sysSb.WriteString(escape(inst))
		sysSb.WriteString("</line>\n")
	}
	sysSb.WriteString("</instructions>\n")

	var userSb strings.Builder
	userSb.WriteString(fmt.Sprintf("<sources version=\"%s\">\n", escape(input.PromptVersion)))
	for _, src := range input.Sources {
		userSb.WriteString(fmt.Sprintf("  <source marker=\"[%s]\">\n", escape(src.Marker)))
		userSb.WriteString("    <title>")
		userSb.WriteString(escape(src.Title))
		userSb.WriteString("</title>\n")
		if src.URL != "" {
			userSb.WriteString("    <url>")
			userSb.WriteString(escape(src.URL))
			userSb.WriteString("</url>\n")
		}
		if !src.OccurredAt.IsZero() {
			userSb.WriteString("    <occurred_at>")
			userSb.WriteString(src.OccurredAt.UTC().Format(time.RFC3339))
			userSb.WriteString("</occurred_at>\n")
		}
		if src.Relation != "" {
			userSb.WriteString("    <relation>")
			userSb.WriteString(escape(src.Relation))
			userSb.WriteString("</relation>\n")
		}
		userSb.WriteString("    <text>")
		userSb.WriteString(escape(src.Text))
		userSb.WriteString("</text>\n")
		userSb.WriteString("  </source>\n")
	}
	userSb.WriteString("</sources>\n\n")

	userSb.WriteString("<query>\n")
	userSb.WriteString(escape(input.Query))
	userSb.WriteString("\n</query>\n")

	return []domain.Message{
		{Role: "system", Content: sysSb.String()},
		{Role: "user", Content: userSb.String()},
	}, nil
}

// describeRationale renders rationale edges as "a -OWNED_BY-> b".
func describeRationale(r *domain.GraphRationale) string {
	if r == nil || len(r.EdgesUsed) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.EdgesUsed))
	for _, e := range r.EdgesUsed {
		parts = append(parts, fmt.Sprintf("%s -%s-> %s", e.FromID, e.Type, e.ToID))
	}
	return strings.Join(parts, "; ")
}

func escape(value string) string {
	s := strings.TrimSpace(value)
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(s)
}
