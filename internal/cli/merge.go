package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lherron/recmerge/internal/cli/appctx"
	"github.com/lherron/recmerge/internal/events"
	"github.com/lherron/recmerge/internal/merge"
	"github.com/lherron/recmerge/internal/render"
)

var planCmd = &cobra.Command{
	Use:   "plan <kind> <idA> <idB>",
	Short: "Compare two records and show the proposed defaults",
	Long: `Plan loads both records, lists every field where they differ together with
the default source and the reason it was chosen, and counts the rows that a
merge would rewire. Nothing is written.`,
	Args: cobra.ExactArgs(3),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runPlan),
}

var previewCmd = &cobra.Command{
	Use:   "preview <kind> <idA> <idB>",
	Short: "Show the merged record without writing it",
	Args:  cobra.ExactArgs(3),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runPreview),
}

var mergeCmd = &cobra.Command{
	Use:   "merge <kind> <idA> <idB>",
	Short: "Merge two records and rewire every reference to the loser",
	Long: `Merge composes the winning record from the defaults plus any selections,
moves every reference held by the loser onto the winner and removes the
loser. Either every write lands or none does.

Selections come from a YAML file (--selections) and from --pick/--set flags:

  recmerge merge contact c1 c2 --pick email=b --set stage="Closed Won"`,
	Args: cobra.ExactArgs(3),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMerge),
}

var (
	planAll bool

	mergeSelections string
	mergePicks      []string
	mergeSets       []string
	mergeBase       string
	mergeWinner     string
	mergeTieBreak   string
	mergeDryRun     bool
	mergeMetrics    bool
)

func init() {
	rootCmd.AddCommand(planCmd, previewCmd, mergeCmd)

	planCmd.Flags().BoolVar(&planAll, "all", false, "Show equal fields too")
	planCmd.Flags().StringVar(&mergeTieBreak, "tie-break", "", "Tie-break when updatedAt is equal: prefer-a, prefer-b, prefer-older")
	planCmd.Flags().StringVar(&mergeBase, "base", "", "Base side: a or b")

	for _, c := range []*cobra.Command{previewCmd, mergeCmd} {
		c.Flags().StringVar(&mergeSelections, "selections", "", "YAML file with base, winner and per-field selections")
		c.Flags().StringArrayVar(&mergePicks, "pick", nil, "Pick a side for a field (field=a|b)")
		c.Flags().StringArrayVar(&mergeSets, "set", nil, "Set a custom value for a field (field=value)")
		c.Flags().StringVar(&mergeBase, "base", "", "Base side: a or b")
		c.Flags().StringVar(&mergeTieBreak, "tie-break", "", "Tie-break when updatedAt is equal: prefer-a, prefer-b, prefer-older")
	}
	mergeCmd.Flags().StringVar(&mergeWinner, "winner", "", "Side whose id survives (defaults to base)")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Preview only")
	mergeCmd.Flags().BoolVar(&mergeMetrics, "metrics", false, "Print merge metrics to stderr")
}

func newOrchestrator(app *appctx.App, reg prometheus.Registerer) (*merge.Orchestrator, error) {
	name := mergeTieBreak
	if name == "" {
		name = app.Config.TieBreak
	}
	tb, err := merge.TieBreakerByName(name)
	if err != nil {
		return nil, exitError(ExitUsage, err)
	}
	return merge.NewOrchestrator(app.Store, merge.Options{
		Config:   app.Config,
		TieBreak: tb,
		Logger:   app.Logger,
		Metrics:  merge.NewMetrics(reg),
		Notifier: events.NewWriter(app.DB.DB),
		Journal:  events.NewJournal(app.DB.DB),
	}), nil
}

type fieldView struct {
	Field   string          `json:"field" yaml:"field"`
	Label   string          `json:"label" yaml:"label"`
	Type    string          `json:"type" yaml:"type"`
	A       any             `json:"a,omitempty" yaml:"a,omitempty"`
	B       any             `json:"b,omitempty" yaml:"b,omitempty"`
	Equal   bool            `json:"equal" yaml:"equal"`
	Default *merge.Decision `json:"default,omitempty" yaml:"default,omitempty"`
}

type planView struct {
	Kind   string              `json:"kind" yaml:"kind"`
	A      string              `json:"a" yaml:"a"`
	B      string              `json:"b" yaml:"b"`
	Base   merge.Side          `json:"base" yaml:"base"`
	Fields []fieldView         `json:"fields" yaml:"fields"`
	Rewire []merge.RewireCount `json:"rewire" yaml:"rewire"`
}

func runPlan(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(app, nil)
	if err != nil {
		return err
	}
	sess, err := orch.Plan(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if mergeBase != "" {
		side, err := merge.ParseSide(mergeBase)
		if err != nil {
			return exitError(ExitUsage, err)
		}
		sess.SetBase(side)
	}
	sess.ResolveReferences(ctx)

	winner := sess.Record(sess.Base())
	plan, err := orch.PlanRewire(ctx, args[0], winner.ID(), sess.Record(sess.Base().Other()).ID())
	if err != nil {
		return err
	}

	view := planView{
		Kind:   sess.Kind,
		A:      sess.DisplayName(merge.SideA),
		B:      sess.DisplayName(merge.SideB),
		Base:   sess.Base(),
		Rewire: plan.Summary(),
	}
	defaults := sess.Defaults()
	var rows [][]string
	for _, d := range sess.Diffs() {
		if d.Field.Hidden || (d.Equal && !planAll) {
			continue
		}
		fv := fieldView{
			Field: d.Field.Key,
			Label: d.Field.Label,
			Type:  string(d.Field.Type),
			A:     d.ValueA,
			B:     d.ValueB,
			Equal: d.Equal,
		}
		source, reason := "", ""
		if dec, ok := defaults[d.Field.Key]; ok {
			fv.Default = &dec
			source, reason = string(dec.Source), dec.Reason
		}
		view.Fields = append(view.Fields, fv)
		rows = append(rows, []string{
			d.Field.Label,
			sess.DisplayValue(d.Field.Key, d.ValueA),
			sess.DisplayValue(d.Field.Key, d.ValueB),
			source,
			reason,
		})
	}

	r, err := newRenderer(cmd, app.Config.Output)
	if err != nil {
		return err
	}
	if r.Format() != render.FormatTable {
		return r.Render(view, nil, nil)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "A: %s\nB: %s\nBase: %s\n\n", view.A, view.B, view.Base)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No differing fields.")
	} else if err := r.RenderTable([]string{"FIELD", "A", "B", "DEFAULT", "REASON"}, rows); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return renderRewire(r, out, view.Rewire)
}

func runPreview(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	choices, err := loadChoices(mergeSelections, mergePicks, mergeSets, mergeBase, "")
	if err != nil {
		return exitError(ExitUsage, err)
	}
	orch, err := newOrchestrator(app, nil)
	if err != nil {
		return err
	}
	sess, err := orch.Plan(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if choices.Base != "" {
		sess.SetBase(choices.Base)
	}
	sess.ResolveReferences(ctx)

	res, err := sess.Preview(choices.Selections)
	if err != nil {
		return err
	}
	plan, err := orch.PlanRewire(ctx, args[0], res.WinnerID, res.LoserID)
	if err != nil {
		return err
	}
	res.RewireSummary = plan.Summary()

	return renderResult(cmd, app, sess, res)
}

func runMerge(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if mergeDryRun {
		return runPreview(app, cmd, args)
	}
	choices, err := loadChoices(mergeSelections, mergePicks, mergeSets, mergeBase, mergeWinner)
	if err != nil {
		return exitError(ExitUsage, err)
	}

	reg := prometheus.NewRegistry()
	orch, err := newOrchestrator(app, reg)
	if err != nil {
		return err
	}
	res, err := orch.Commit(ctx, args[0], args[1], args[2], merge.CommitOptions{
		Selections: choices.Selections,
		Base:       choices.Base,
		Winner:     choices.Winner,
	})
	if mergeMetrics {
		if merr := writeMetrics(cmd.ErrOrStderr(), reg); merr != nil {
			app.Logger.Warn().Err(merr).Msg("failed to gather metrics")
		}
	}
	if err != nil {
		return err
	}

	r, err := newRenderer(cmd, app.Config.Output)
	if err != nil {
		return err
	}
	if r.Format() != render.FormatTable {
		return r.Render(res, nil, nil)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Merged %s into %s (merge %s)\n", res.LoserID, res.WinnerID, res.MergeID)
	if len(res.FieldsChanged) > 0 {
		fmt.Fprintf(out, "Fields changed: %s\n", strings.Join(res.FieldsChanged, ", "))
	}
	fmt.Fprintln(out)
	return renderRewire(r, out, res.RewireSummary)
}

func renderResult(cmd *cobra.Command, app *appctx.App, sess *merge.Session, res *merge.Result) error {
	r, err := newRenderer(cmd, app.Config.Output)
	if err != nil {
		return err
	}
	if r.Format() != render.FormatTable {
		return r.Render(res, nil, nil)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Preview: %s survives, %s is removed\n\n", res.WinnerID, res.LoserID)

	changed := make(map[string]bool, len(res.FieldsChanged))
	for _, k := range res.FieldsChanged {
		changed[k] = true
	}
	var rows [][]string
	for _, f := range sess.Catalog() {
		if f.Hidden {
			continue
		}
		v, ok := f.Get(res.Merged)
		if !ok && !changed[f.Key] {
			continue
		}
		mark := ""
		if changed[f.Key] {
			mark = "*"
		}
		rows = append(rows, []string{mark, f.Label, sess.DisplayValue(f.Key, v)})
	}
	if err := r.RenderTable([]string{"", "FIELD", "VALUE"}, rows); err != nil {
		return err
	}

	if changed["notes"] {
		base := sess.Record(sess.Base())
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(formatValue(base["notes"])),
			B:        difflib.SplitLines(formatValue(res.Merged["notes"])),
			FromFile: "notes (" + base.ID() + ")",
			ToFile:   "notes (merged)",
			Context:  2,
		}
		if text, err := difflib.GetUnifiedDiffString(diff); err == nil && text != "" {
			fmt.Fprintf(out, "\n%s", text)
		}
	}
	fmt.Fprintln(out)
	return renderRewire(r, out, res.RewireSummary)
}

func renderRewire(r *render.Renderer, out io.Writer, summary []merge.RewireCount) error {
	if len(summary) == 0 {
		fmt.Fprintln(out, "No references to rewire.")
		return nil
	}
	rows := make([][]string, 0, len(summary))
	for _, c := range summary {
		rows = append(rows, []string{c.Collection, fmt.Sprint(c.Count)})
	}
	return r.RenderTable([]string{"COLLECTION", "ROWS"}, rows)
}

// writeMetrics prints every gathered sample as name{labels} value
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s_count %d\n%s_sum %g\n", name, h.GetSampleCount(), name, h.GetSampleSum())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetGauge().GetValue())
			}
		}
	}
	return nil
}
