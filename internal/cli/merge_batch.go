package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lherron/recmerge/internal/bulk"
	"github.com/lherron/recmerge/internal/cli/appctx"
	"github.com/lherron/recmerge/internal/merge"
	"github.com/lherron/recmerge/internal/render"
)

var mergeBatchCmd = &cobra.Command{
	Use:   "merge-batch <kind> [file]",
	Short: "Merge a list of duplicate pairs",
	Long: `Merge-batch reads one pair per line ("idA idB" or "idA,idB") from a file or
stdin and merges each with the computed defaults, A as base and winner.
Blank lines and lines starting with # are ignored. Every pair is its own
all-or-nothing merge; a failed pair never affects pairs already merged.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMergeBatch),
}

var (
	batchJobs            int
	batchContinueOnError bool
)

func init() {
	rootCmd.AddCommand(mergeBatchCmd)

	mergeBatchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", 1, "Merges to run at once")
	mergeBatchCmd.Flags().BoolVar(&batchContinueOnError, "continue-on-error", false, "Keep going after a failed pair")
	mergeBatchCmd.Flags().StringVar(&mergeTieBreak, "tie-break", "", "Tie-break when updatedAt is equal: prefer-a, prefer-b, prefer-older")
	mergeBatchCmd.Flags().BoolVar(&mergeMetrics, "metrics", false, "Print merge metrics to stderr")
}

// readPairs parses "idA idB" lines into "idA idB" items
func readPairs(r io.Reader) ([]string, error) {
	var items []string
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected two ids, got %q", n, line)
		}
		items = append(items, fields[0]+" "+fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pairs: %w", err)
	}
	return items, nil
}

func runMergeBatch(app *appctx.App, cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 2 {
		path = args[1]
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return exitError(ExitGeneral, err)
	}
	defer in.Close()

	items, err := readPairs(in)
	if err != nil {
		return exitError(ExitUsage, err)
	}

	reg := prometheus.NewRegistry()
	orch, err := newOrchestrator(app, reg)
	if err != nil {
		return err
	}

	kind := args[0]
	op := &bulk.Operation{
		Jobs:            batchJobs,
		ContinueOnError: batchContinueOnError,
		Logger:          app.Logger,
	}
	result := op.Execute(cmd.Context(), items, func(ctx context.Context, item string) error {
		idA, idB, _ := strings.Cut(item, " ")
		_, err := orch.Commit(ctx, kind, idA, idB, merge.CommitOptions{})
		return err
	})

	if mergeMetrics {
		if merr := writeMetrics(cmd.ErrOrStderr(), reg); merr != nil {
			app.Logger.Warn().Err(merr).Msg("failed to gather metrics")
		}
	}

	r, err := newRenderer(cmd, app.Config.Output)
	if err != nil {
		return err
	}
	if r.Format() != render.FormatTable {
		if err := r.Render(result, nil, nil); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(result.Items))
		for _, it := range result.Items {
			rows = append(rows, []string{it.Item, string(it.Status), it.Error})
		}
		if err := r.RenderTable([]string{"PAIR", "STATUS", "ERROR"}, rows); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		result.PrintSummary(cmd.OutOrStdout())
	}

	if result.Failed > 0 {
		return exitError(ExitMergeFailed, fmt.Errorf("%d of %d merges failed", result.Failed, result.TotalItems))
	}
	return nil
}
