package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/recmerge/internal/cli/appctx"
	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/events"
)

var historyCmd = &cobra.Command{
	Use:   "history [merge-id]",
	Short: "List committed merges, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runHistory),
}

var (
	historyKind   string
	historyLimit  int
	historyEvents bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Only merges of this entity kind")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
	historyCmd.Flags().BoolVar(&historyEvents, "events", false, "Show the raw event log instead of the journal")
}

func runHistory(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := newRenderer(cmd, app.Config.Output)
	if err != nil {
		return err
	}

	if historyEvents {
		evts, err := events.NewWriter(app.DB.DB).Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(evts))
		for _, e := range evts {
			resID, payload := "", ""
			if e.ResourceID != nil {
				resID = *e.ResourceID
			}
			if e.Payload != nil {
				payload = *e.Payload
			}
			rows = append(rows, []string{e.Timestamp.Format(time.RFC3339), e.EventType, e.ResourceType, resID, payload})
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return r.Render(evts, []string{"TIME", "EVENT", "TYPE", "ID", "PAYLOAD"}, rows)
	}

	journal := events.NewJournal(app.DB.DB)
	if len(args) == 1 {
		entry, err := journal.Get(ctx, args[0])
		if err != nil {
			return err
		}
		rows := [][]string{
			{"merge_id", entry.MergeID},
			{"kind", entry.Kind},
			{"winner", entry.WinnerID},
			{"loser", entry.LoserID},
			{"committed", entry.CommittedAt.Format(time.RFC3339)},
			{"fields_changed", strings.Join(entry.FieldsChanged, ", ")},
			{"rewired", formatRewired(entry.Rewired)},
		}
		return r.Render(entry, []string{"KEY", "VALUE"}, rows)
	}

	entries, err := journal.List(ctx, historyKind, historyLimit)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		total := 0
		for _, n := range e.Rewired {
			total += n
		}
		rows = append(rows, []string{
			e.MergeID,
			e.Kind,
			e.WinnerID,
			e.LoserID,
			fmt.Sprint(len(e.FieldsChanged)),
			fmt.Sprint(total),
			e.CommittedAt.Format(time.RFC3339),
		})
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}
	return r.Render(entries, []string{"MERGE", "KIND", "WINNER", "LOSER", "FIELDS", "REWIRED", "COMMITTED"}, rows)
}

func formatRewired(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
