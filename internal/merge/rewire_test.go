package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/store"
	"github.com/lherron/recmerge/internal/testutil"
)

func newPlanner(s store.Store) *Planner {
	cfg := testConfig()
	return &Planner{
		Store:       s,
		Entity:      contactEntity(),
		Singletons:  cfg.Singletons,
		ForeignKeys: cfg.ForeignKeys,
		Now:         fixedClock,
	}
}

func TestPlannerRewiresReferences(t *testing.T) {
	s := store.NewMemoryStore()
	testutil.Seed(t, s, crmFixture())
	before := testutil.Snapshot(t, s)

	plan, err := newPlanner(s).Plan(context.Background(), "c1", "c2")
	require.NoError(t, err)

	var collections []string
	for _, e := range plan.Entries {
		collections = append(collections, e.Collection)
	}
	assert.Equal(t, []string{"deals", "notes", "notifications", "tasks"}, collections,
		"entity and profile collections are skipped, order is by name")

	tasks := entryFor(plan, "tasks")
	require.NotNil(t, tasks)
	assert.Equal(t, []string{"t1"}, tasks.ReassignedIDs)
	assert.Equal(t, "c1", tasks.Updates[0]["contactId"])
	assert.NotContains(t, tasks.Updates[0], "updatedAt", "updatedAt is only bumped when present")
	assert.Equal(t, "c2", tasks.RevertSnapshot[0]["contactId"])

	notes := entryFor(plan, "notes")
	require.NotNil(t, notes)
	assert.Equal(t, fixedNow.UnixMilli(), notes.Updates[0]["updatedAt"])

	deals := entryFor(plan, "deals")
	require.NotNil(t, deals)
	assert.Equal(t, []string{"d1", "d2"}, deals.ReassignedIDs)
	assert.Equal(t, []any{"c1"}, deals.Updates[0]["contactIds"], "array keys drop the duplicate winner")
	assert.Equal(t, []any{"c1", "c3"}, deals.Updates[1]["contactIds"])

	assert.Equal(t, before, testutil.Snapshot(t, s), "planning never writes")
}

func TestPlannerSingletonCollapse(t *testing.T) {
	s := store.NewMemoryStore()
	testutil.Seed(t, s, crmFixture())

	plan, err := newPlanner(s).Plan(context.Background(), "c1", "c2")
	require.NoError(t, err)

	e := entryFor(plan, "notifications")
	require.NotNil(t, e)
	assert.ElementsMatch(t, []PlanDelete{
		{OldID: "followup:c2", NewID: "followup:c1"},
		{OldID: "birthday:c2", NewID: "birthday:c1"},
	}, e.Deletes)
	assert.Equal(t, []string{"birthday:c1"}, e.CreatedIDs)
	assert.ElementsMatch(t, []string{"followup:c1", "followup:c2", "birthday:c2"}, recordIDs(e.RevertSnapshot))

	byID := make(map[string]domain.Record)
	for _, u := range e.Updates {
		byID[u.ID()] = u
	}
	followup := byID["followup:c1"]
	require.NotNil(t, followup)
	assert.Equal(t, "Call back", followup["message"], "empty existing value is filled from the incoming row")
	assert.Equal(t, float64(100), followup["createdAt"], "earliest creation time wins")
	assert.Equal(t, "c1", followup["ownerId"])

	birthday := byID["birthday:c1"]
	require.NotNil(t, birthday)
	assert.Equal(t, "c1", birthday["ownerId"])
	assert.Equal(t, float64(40), birthday["createdAt"])
}

func TestPlannerNothingToDo(t *testing.T) {
	s := store.NewMemoryStore()
	testutil.Seed(t, s, crmFixture())

	plan, err := newPlanner(s).Plan(context.Background(), "c1", "nobody")
	require.NoError(t, err)
	assert.Empty(t, plan.Entries)
	assert.Empty(t, plan.Summary())
}

func TestPlanValidate(t *testing.T) {
	plan := &Plan{Entries: []PlanEntry{{Collection: "tasks", Updates: []domain.Record{{"id": "t1"}}}}}
	assert.NoError(t, plan.Validate([]string{"tasks"}))

	err := plan.Validate([]string{"notes"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidPlan))

	bad := &Plan{Entries: []PlanEntry{{Collection: "bad name"}}}
	var planErr *domain.InvalidPlanError
	require.ErrorAs(t, bad.Validate([]string{"bad name"}), &planErr)
	assert.Equal(t, "bad name", planErr.Collection)
}

func TestRewireRow(t *testing.T) {
	row := domain.Record{"id": "x", "contactId": "old", "partnerId": "other"}
	out, touched := rewireRow(row, []string{"contactId", "partnerId"}, "new", "old")
	require.True(t, touched)
	assert.Equal(t, "new", out["contactId"])
	assert.Equal(t, "other", out["partnerId"])
	assert.Equal(t, "old", row["contactId"], "input row is not mutated")

	_, touched = rewireRow(row, []string{"partnerId"}, "new", "old")
	assert.False(t, touched)
}
