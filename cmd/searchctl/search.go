package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"hybrid-retrieval/internal/adapter/retrieval_http"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Run a ranked search",
	Long: `Run a hybrid search and print the ranked candidates.

Examples:
  # Search with the tenant defaults
  searchctl search -t acme "payment retries"

  # Ownership question with graph rationale
  searchctl search -t acme --rationale --entity checkout-service "who owns checkout-service"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := newAPIClient(serverURL, tenantID)
	resp, requestID, err := client.post(ctx, "/v1/search", retrieval_http.SearchRequest{
		Query:            strings.Join(args, " "),
		TopK:             topK,
		Mode:             mode,
		IncludeRationale: rationale,
		EntityHints:      entityHints,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out retrieval_http.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	logger.Debug("search completed",
		slog.String("request_id", requestID),
		slog.String("router_mode", string(out.RouterMode)),
		slog.Int("result_count", len(out.Candidates)))

	printSearch(cmd.OutOrStdout(), &out)
	return nil
}

func printSearch(w io.Writer, out *retrieval_http.SearchResponse) {
	fmt.Fprintf(w, "request %s  mode=%s", out.RequestID, out.RouterMode)
	if out.Observability != nil && out.Observability.Degraded {
		fmt.Fprintf(w, "  degraded")
	}
	fmt.Fprintln(w)
	for i, c := range out.Candidates {
		fmt.Fprintf(w, "%2d. %-40s final=%.4f fused=%.4f boost=%.4f", i+1, c.ID, c.FinalScore, c.FusedScore, c.GraphBoost)
		if c.RerankScore != nil {
			fmt.Fprintf(w, " rerank=%.4f", *c.RerankScore)
		}
		fmt.Fprintln(w)
		if c.Title != "" {
			fmt.Fprintf(w, "    %s\n", c.Title)
		}
		if c.Rationale != nil {
			for _, e := range c.Rationale.EdgesUsed {
				fmt.Fprintf(w, "    via %s -%s-> %s\n", e.FromID, e.Type, e.ToID)
			}
		}
	}
}
