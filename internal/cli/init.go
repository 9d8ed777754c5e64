package cli

import (
	"fmt"

	"github.com/lherron/recmerge/internal/cli/appctx"
	"github.com/lherron/recmerge/internal/config"
	"github.com/lherron/recmerge/internal/db"
	"github.com/lherron/recmerge/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database",
	Long: `Initialize creates the SQLite database, runs pending migrations and
registers the collections named in the configuration.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	app, err := appctx.Bootstrap(cmd, appctx.Options{NeedsDB: false, LogWriter: cmd.ErrOrStderr()})
	if err != nil {
		return exitError(ExitGeneral, err)
	}

	database, err := db.Open(app.Config.DBPath)
	if err != nil {
		return exitError(ExitGeneral, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(ExitGeneral, fmt.Errorf("failed to run migrations: %w", err))
	}
	for _, name := range applied {
		app.Logger.Info().Str("migration", name).Msg("applied migration")
	}

	if err := registerCollections(cmd, app.Config, database); err != nil {
		return exitError(ExitGeneral, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized database at %s\n", app.Config.DBPath)
	return nil
}

func registerCollections(cmd *cobra.Command, cfg *config.Config, database *db.DB) error {
	var names []string
	for _, e := range cfg.Entities {
		names = append(names, e.Collection)
		if e.ProfileCollection != "" {
			names = append(names, e.ProfileCollection)
		}
	}
	for _, s := range cfg.Singletons {
		names = append(names, s.Collection)
	}
	for name := range cfg.ForeignKeys {
		names = append(names, name)
	}

	s := store.NewSQLiteStore(database)
	for _, name := range names {
		if err := s.EnsureCollection(cmd.Context(), name); err != nil {
			return fmt.Errorf("failed to register collection %s: %w", name, err)
		}
	}
	return nil
}
