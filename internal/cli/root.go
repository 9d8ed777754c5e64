package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recmerge",
	Short: "Merge duplicate CRM records and rewire their references",
	Long: `recmerge consolidates two duplicate contacts or partners into one record.
It compares the pair field by field, proposes a default for every field,
lets you override any of them, and then moves every reference held by the
losing record onto the winner in a single all-or-nothing operation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides RECMERGE_DB_PATH)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("porcelain", false, "Stable machine-readable output")
}
