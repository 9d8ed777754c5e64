package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/lherron/recmerge/internal/cli/appctx"
	"github.com/lherron/recmerge/internal/config"
	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/id"
	"github.com/lherron/recmerge/internal/merge"
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <collection> [json]",
	Short: "Insert or replace one record",
	Long: `Put writes a single JSON object into a collection. The object is read
from the argument, or from stdin when omitted. A missing id is assigned a
fresh UUID, and missing createdAt/updatedAt are stamped with the current time.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runPut),
}

var getCmd = &cobra.Command{
	Use:   "get <collection> <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(2),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runGet),
}

var lsCmd = &cobra.Command{
	Use:   "ls [collection]",
	Short: "List collections, or the records in one collection",
	Args:  cobra.MaximumNArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runLs),
}

var importCmd = &cobra.Command{
	Use:   "import <collection> [file]",
	Short: "Bulk load records from a JSON array or NDJSON",
	Long: `Import reads records from a file (or stdin when omitted or "-"). The input
is either a JSON array of objects or newline-delimited JSON objects. Records
are written in batches of the configured batch size.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runImport),
}

func init() {
	rootCmd.AddCommand(putCmd, getCmd, lsCmd, importCmd)
}

func runPut(app *appctx.App, cmd *cobra.Command, args []string) error {
	var raw []byte
	if len(args) == 2 {
		raw = []byte(args[1])
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return exitError(ExitGeneral, fmt.Errorf("failed to read stdin: %w", err))
		}
		raw = b
	}

	rec, err := decodeObject(raw)
	if err != nil {
		return exitError(ExitUsage, err)
	}
	stampRecord(rec, time.Now())

	if err := app.Store.Put(cmd.Context(), args[0], rec); err != nil {
		return exitError(ExitGeneral, err)
	}
	app.Logger.Debug().Str("collection", args[0]).Str("id", rec.ID()).Msg("record written")
	fmt.Fprintln(cmd.OutOrStdout(), rec.ID())
	return nil
}

func runGet(app *appctx.App, cmd *cobra.Command, args []string) error {
	rec, err := app.Store.Get(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	r, err := newRenderer(cmd, app.Config.Output)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, formatValue(rec[k])})
	}
	return r.Render(rec, []string{"FIELD", "VALUE"}, rows)
}

type collectionStat struct {
	Name    string `json:"name" yaml:"name"`
	Live    int    `json:"live" yaml:"live"`
	Deleted int    `json:"deleted" yaml:"deleted"`
}

func runLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := newRenderer(cmd, app.Config.Output)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		names, err := app.Store.Collections(ctx)
		if err != nil {
			return err
		}
		stats := make([]collectionStat, 0, len(names))
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			live, deleted, err := app.Store.Count(ctx, name)
			if err != nil {
				return err
			}
			stats = append(stats, collectionStat{Name: name, Live: live, Deleted: deleted})
			rows = append(rows, []string{name, fmt.Sprint(live), fmt.Sprint(deleted)})
		}
		return r.Render(stats, []string{"COLLECTION", "LIVE", "DELETED"}, rows)
	}

	collection := args[0]
	recs, err := app.Store.GetAll(ctx, collection)
	if err != nil {
		return err
	}
	fields := displayFieldsFor(app.Config, collection)
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		updated := ""
		if ms := rec.UpdatedAt(); ms > 0 {
			updated = time.UnixMilli(ms).UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{rec.ID(), merge.DisplayName(rec, fields), updated})
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	return r.Render(recs, []string{"ID", "NAME", "UPDATED"}, rows)
}

func runImport(app *appctx.App, cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 2 {
		path = args[1]
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return exitError(ExitGeneral, err)
	}
	defer in.Close()

	recs, err := decodeRecords(in)
	if err != nil {
		return exitError(ExitUsage, err)
	}
	now := time.Now()
	for _, rec := range recs {
		stampRecord(rec, now)
	}

	batch := app.Config.BatchSize
	for start := 0; start < len(recs); start += batch {
		end := min(start+batch, len(recs))
		if err := app.Store.BulkPut(cmd.Context(), args[0], recs[start:end]); err != nil {
			return exitError(ExitGeneral, fmt.Errorf("import stopped after %d records: %w", start, err))
		}
	}
	app.Logger.Info().Str("collection", args[0]).Int("records", len(recs)).Msg("import complete")
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records into %s\n", len(recs), args[0])
	return nil
}

func displayFieldsFor(cfg *config.Config, collection string) []string {
	for _, e := range cfg.Entities {
		if e.Collection == collection {
			return e.DisplayFields
		}
	}
	return nil
}

// stampRecord fills id and timestamps left unset by the caller
func stampRecord(rec domain.Record, now time.Time) {
	if rec.ID() == "" {
		rec[domain.FieldID] = id.NewRecordID()
	}
	ms := domain.NowMillis(now)
	if !rec.Has(domain.FieldCreatedAt) {
		rec[domain.FieldCreatedAt] = ms
	}
	if !rec.Has(domain.FieldUpdatedAt) {
		rec[domain.FieldUpdatedAt] = rec[domain.FieldCreatedAt]
	}
}

func decodeObject(raw []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(bytes.TrimSpace(raw), &rec); err != nil {
		return nil, fmt.Errorf("invalid record JSON: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("invalid record JSON: expected an object")
	}
	return rec, nil
}

// decodeRecords accepts a JSON array of objects or NDJSON
func decodeRecords(r io.Reader) ([]domain.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var recs []domain.Record
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		for i, rec := range recs {
			if rec == nil {
				return nil, fmt.Errorf("element %d is not an object", i)
			}
		}
		return recs, nil
	}

	var recs []domain.Record
	for n, line := range strings.Split(string(trimmed), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := decodeObject([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
