package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	verbose   bool
	serverURL string
	tenantID  string
	timeout   time.Duration

	// Query flags
	topK        int
	mode        string
	rationale   bool
	entityHints []string

	// Answer flags
	maxTokens int
	locale    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "searchctl",
	Short:   "Query the hybrid retrieval service",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RETRIEVAL_URL", "http://localhost:9020"), "retrieval service base URL")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", os.Getenv("RETRIEVAL_TENANT"), "tenant id")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall request timeout")

	for _, cmd := range []*cobra.Command{searchCmd, answerCmd} {
		cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (0 uses the tenant default)")
		cmd.Flags().StringVar(&mode, "mode", "", "retrieval mode: lexical, vector or hybrid")
		cmd.Flags().StringSliceVar(&entityHints, "entity", nil, "entity hint, repeatable")
	}
	searchCmd.Flags().BoolVar(&rationale, "rationale", false, "include graph rationale")
	answerCmd.Flags().BoolVar(&rationale, "rationale", false, "ground citations in graph rationale")
	answerCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "generation token limit")
	answerCmd.Flags().StringVar(&locale, "locale", "", "answer locale")

	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(configCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
