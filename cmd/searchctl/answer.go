package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"hybrid-retrieval/internal/adapter/retrieval_http"
	"hybrid-retrieval/internal/usecase"
)

var answerCmd = &cobra.Command{
	Use:   "answer QUERY",
	Short: "Stream a cited answer",
	Long: `Stream a grounded answer. Tokens are printed as they arrive,
followed by the cited sources and the final status.

Examples:
  searchctl answer -t acme "who maintains the billing pipeline?"
  searchctl answer -t acme --locale ja --max-tokens 512 "what changed in checkout last week?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnswer,
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	Name string
	Data []byte
}

// readEvents parses an event stream and calls fn for each complete event.
// Comment lines and unknown fields are ignored.
func readEvents(r io.Reader, fn func(sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		name string
		data []string
	)
	flush := func() error {
		if name == "" && len(data) == 0 {
			return nil
		}
		ev := sseEvent{Name: name, Data: []byte(strings.Join(data, "\n"))}
		if ev.Name == "" {
			ev.Name = "message"
		}
		name, data = "", nil
		return fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

type answerPrinter struct {
	w         io.Writer
	logger    *slog.Logger
	cited     []usecase.AnswerCitation
	final     *usecase.AnswerFinal
	streamErr *usecase.AnswerError
}

func (p *answerPrinter) handle(ev sseEvent) error {
	switch usecase.AnswerEventKind(ev.Name) {
	case usecase.AnswerEventMeta:
		var meta usecase.AnswerMeta
		if err := json.Unmarshal(ev.Data, &meta); err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}
		p.logger.Debug("answer started",
			slog.String("request_id", meta.RequestID),
			slog.String("prompt_version", meta.PromptVersion),
			slog.Int("sources", len(meta.Sources)))
	case usecase.AnswerEventToken:
		var tok struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(ev.Data, &tok); err != nil {
			return fmt.Errorf("decode token: %w", err)
		}
		fmt.Fprint(p.w, tok.Text)
	case usecase.AnswerEventCitation:
		var c usecase.AnswerCitation
		if err := json.Unmarshal(ev.Data, &c); err != nil {
			return fmt.Errorf("decode citation: %w", err)
		}
		p.cited = append(p.cited, c)
	case usecase.AnswerEventFinal:
		p.final = &usecase.AnswerFinal{}
		if err := json.Unmarshal(ev.Data, p.final); err != nil {
			return fmt.Errorf("decode final: %w", err)
		}
	case usecase.AnswerEventError:
		p.streamErr = &usecase.AnswerError{}
		if err := json.Unmarshal(ev.Data, p.streamErr); err != nil {
			return fmt.Errorf("decode error event: %w", err)
		}
	case usecase.AnswerEventHeartbeat:
		p.logger.Debug("heartbeat")
	}
	return nil
}

func (p *answerPrinter) finish() error {
	fmt.Fprintln(p.w)
	if len(p.cited) > 0 {
		fmt.Fprintln(p.w, "\nSources:")
		for _, c := range p.cited {
			fmt.Fprintf(p.w, "  [%s] %s %s\n", c.Marker, c.CandidateID, c.Title)
		}
	}
	switch {
	case p.streamErr != nil:
		return fmt.Errorf("answer failed in %s (%s): %s", p.streamErr.State, p.streamErr.Kind, p.streamErr.Message)
	case p.final == nil:
		return fmt.Errorf("stream ended without a terminal event")
	case p.final.Fallback:
		fmt.Fprintf(p.w, "\nno answer: %s\n", p.final.FallbackCategory)
		return nil
	default:
		fmt.Fprintf(p.w, "\nstatus: %s\n", p.final.State)
		return nil
	}
}

func runAnswer(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := newAPIClient(serverURL, tenantID)
	resp, requestID, err := client.post(ctx, "/v1/answer", retrieval_http.AnswerRequest{
		Query:       strings.Join(args, " "),
		TopK:        topK,
		Mode:        mode,
		EntityHints: entityHints,
		Constraints: &retrieval_http.AnswerConstraints{
			GraphRationale: rationale,
			MaxTokens:      maxTokens,
			Locale:         locale,
		},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	logger.Debug("answer stream opened", slog.String("request_id", requestID))

	p := &answerPrinter{w: cmd.OutOrStdout(), logger: logger}
	if err := readEvents(resp.Body, p.handle); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return p.finish()
}
