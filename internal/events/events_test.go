package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/id"
	"github.com/lherron/recmerge/internal/merge"
	"github.com/lherron/recmerge/internal/testutil"
)

func TestWriter_MergeCommitted(t *testing.T) {
	database, _ := testutil.TempDB(t)
	w := NewWriter(database.DB)
	ctx := context.Background()

	res := &merge.Result{
		MergeID:       id.NewMergeID(),
		Kind:          "contact",
		WinnerID:      "c1",
		LoserID:       "c2",
		RewireSummary: []merge.RewireCount{{Collection: "tasks", Count: 3}},
	}
	testutil.AssertNoError(t, w.MergeCommitted(ctx, res))

	events, err := w.Recent(ctx, 10)
	testutil.AssertNoError(t, err)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.EventType != EventMergeCommitted || e.ResourceType != "contact" || *e.ResourceID != "c1" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be parsed")
	}

	var payload struct {
		WinnerID      string `json:"winnerId"`
		LoserID       string `json:"loserId"`
		RewireSummary []struct {
			Collection string `json:"collection"`
			Count      int    `json:"count"`
		} `json:"rewireSummary"`
	}
	if err := json.Unmarshal([]byte(*e.Payload), &payload); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if payload.LoserID != "c2" || len(payload.RewireSummary) != 1 || payload.RewireSummary[0].Count != 3 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestJournal_RecordListGet(t *testing.T) {
	database, _ := testutil.TempDB(t)
	j := NewJournal(database.DB)
	ctx := context.Background()

	first := domain.JournalEntry{
		MergeID:       id.NewMergeID(),
		Kind:          "contact",
		WinnerID:      "c1",
		LoserID:       "c2",
		FieldsChanged: []string{"stage", "tags"},
		Rewired:       map[string]int{"tasks": 2},
		CommittedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	time.Sleep(2 * time.Millisecond)
	second := domain.JournalEntry{
		MergeID:     id.NewMergeID(),
		Kind:        "partner",
		WinnerID:    "p1",
		LoserID:     "p2",
		CommittedAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	testutil.AssertNoError(t, j.RecordMerge(ctx, first))
	testutil.AssertNoError(t, j.RecordMerge(ctx, second))

	all, err := j.List(ctx, "", 0)
	testutil.AssertNoError(t, err)
	if len(all) != 2 || all[0].MergeID != second.MergeID {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if len(all[0].FieldsChanged) != 0 || len(all[0].Rewired) != 0 {
		t.Errorf("expected empty fields and rewired for second entry, got %+v", all[0])
	}

	contacts, err := j.List(ctx, "contact", 10)
	testutil.AssertNoError(t, err)
	if len(contacts) != 1 || contacts[0].Rewired["tasks"] != 2 {
		t.Fatalf("unexpected contact entries: %+v", contacts)
	}

	got, err := j.Get(ctx, first.MergeID)
	testutil.AssertNoError(t, err)
	if !got.CommittedAt.Equal(first.CommittedAt) || got.FieldsChanged[1] != "tags" {
		t.Errorf("unexpected entry: %+v", got)
	}

	if _, err := j.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
