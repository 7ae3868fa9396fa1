package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hybrid-retrieval/internal/infra/tenantconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Tenant configuration tools",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a tenant configuration file",
	Long: `Parse and validate a tenant configuration file the same way the
server does on startup and reload. Exits non-zero when the file would be
rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := tenantconfig.ValidateFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d tenant overrides)\n", args[0], count)
		return nil
	},
}
