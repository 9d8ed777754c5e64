package merge

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/recmerge/internal/domain"
)

var mergeTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func compose(t *testing.T, a, b domain.Record, base, winner Side, overrides Selections) (domain.Record, []string) {
	t.Helper()
	catalog := Catalog(a, b)
	defaults := Resolver{}.Defaults(Diff(catalog, a, b), a, b)
	out, changed, err := Compose(ComposeInput{
		A:          a,
		B:          b,
		Catalog:    catalog,
		Base:       base,
		Winner:     winner,
		Selections: DefaultSelections(defaults).Overlay(overrides),
		OtherName:  "Other Person",
		Now:        mergeTime,
	})
	require.NoError(t, err)
	return out, changed
}

func TestComposeScenario(t *testing.T) {
	a := domain.Record{"id": "1", "email": "a@x.com", "stage": "APPLICATION", "tags": []any{"vip"}, "updatedAt": float64(100)}
	b := domain.Record{"id": "2", "email": "", "stage": "processing", "tags": []any{"Hot"}, "updatedAt": float64(200)}

	out, changed := compose(t, a, b, SideA, SideA, nil)

	assert.Equal(t, "1", out.ID())
	assert.Equal(t, "a@x.com", out["email"])
	assert.Equal(t, "processing", out["stage"])
	assert.Equal(t, []any{"vip", "Hot"}, out["tags"])
	assert.Equal(t, mergeTime.UnixMilli(), out["updatedAt"])
	assert.ElementsMatch(t, []string{"stage", "tags"}, changed)
}

func TestComposeNoConflictPassthrough(t *testing.T) {
	rec := func(id string) domain.Record {
		return domain.Record{
			"id":        id,
			"firstName": "Ann",
			"email":     "ann@x.com",
			"stage":     "lead",
			"tags":      []any{"vip"},
			"notes":     "Met at open house",
			"timeline":  []any{map[string]any{"at": float64(1), "text": "created"}},
			"extras":    map[string]any{"source": "web"},
			"createdAt": float64(10),
			"updatedAt": float64(20),
		}
	}
	a, b := rec("1"), rec("2")

	out, changed := compose(t, a, b, SideA, SideA, nil)
	assert.Empty(t, changed)

	delete(out, "updatedAt")
	want := a.Clone()
	delete(want, "updatedAt")
	assert.Equal(t, want, out)
}

func TestComposeTagUnion(t *testing.T) {
	a := domain.Record{"id": "1", "tags": []any{"VIP", "referral"}}
	b := domain.Record{"id": "2", "tags": []any{"vip", "Hot"}}

	out, _ := compose(t, a, b, SideA, SideA, nil)
	assert.Equal(t, []any{"VIP", "referral", "Hot"}, out["tags"])
}

func TestComposeNotes(t *testing.T) {
	t.Run("differing notes combine", func(t *testing.T) {
		a := domain.Record{"id": "1", "notes": "Prefers email."}
		b := domain.Record{"id": "2", "notes": "Call after 5pm."}

		out, changed := compose(t, a, b, SideA, SideA, nil)
		notes := out.String("notes")
		assert.True(t, strings.HasPrefix(notes, "Prefers email."), "base notes first")
		assert.Contains(t, notes, "Call after 5pm.")
		assert.Contains(t, notes, NotesSeparator("Other Person", mergeTime))
		assert.Contains(t, changed, "notes")
	})

	t.Run("identical notes stay single", func(t *testing.T) {
		a := domain.Record{"id": "1", "notes": "Same text"}
		b := domain.Record{"id": "2", "notes": "Same text"}

		out, changed := compose(t, a, b, SideA, SideA, nil)
		assert.Equal(t, "Same text", out["notes"])
		assert.NotContains(t, changed, "notes")
	})

	t.Run("base side goes first", func(t *testing.T) {
		a := domain.Record{"id": "1", "notes": "from A"}
		b := domain.Record{"id": "2", "notes": "from B"}

		out, _ := compose(t, a, b, SideB, SideB, nil)
		assert.True(t, strings.HasPrefix(out.String("notes"), "from B"))
		assert.Equal(t, "2", out.ID())
	})
}

func TestComposeTimelineConcatenates(t *testing.T) {
	shared := map[string]any{"at": float64(1), "text": "created"}
	a := domain.Record{"id": "1", "timeline": []any{shared, map[string]any{"at": float64(3), "text": "called"}}}
	b := domain.Record{"id": "2", "timeline": []any{shared, map[string]any{"at": float64(2), "text": "emailed"}}}

	out, _ := compose(t, a, b, SideA, SideA, nil)
	timeline, ok := out["timeline"].([]any)
	require.True(t, ok)
	require.Len(t, timeline, 3)
	assert.Equal(t, "called", timeline[1].(map[string]any)["text"])
	assert.Equal(t, "emailed", timeline[2].(map[string]any)["text"])
}

func TestComposeSelections(t *testing.T) {
	a := domain.Record{"id": "1", "firstName": "Ann", "city": "Austin", "extras": map[string]any{"source": "web"}, "updatedAt": float64(5)}
	b := domain.Record{"id": "2", "firstName": "Anne", "zip": "78701", "extras": map[string]any{"source": "referral"}, "updatedAt": float64(1)}

	out, _ := compose(t, a, b, SideA, SideA, Selections{
		"firstName":     {Source: SourceCustom, Value: "Annie"},
		"city":          {Source: SourceB},
		"extras.source": {Source: SourceB},
	})
	assert.Equal(t, "Annie", out["firstName"])
	assert.NotContains(t, out, "city", "selecting a side without the field removes it")
	assert.Equal(t, "78701", out["zip"], "empty base falls back to the other side")
	assert.Equal(t, "referral", out.Extras()["source"])
}

func TestComposeCanonicalizesOutput(t *testing.T) {
	a := domain.Record{"id": "1", "stage": "Pre-Approved", "phone": "(555) 123-4567", "state": "texas", "loanType": "fha loan"}
	b := domain.Record{"id": "2"}

	out, changed := compose(t, a, b, SideA, SideA, nil)
	assert.Equal(t, "preapproved", out["stage"])
	assert.Equal(t, "5551234567", out["phone"])
	assert.Equal(t, "TX", out["state"])
	assert.Equal(t, "FHA", out["loanType"])
	assert.Empty(t, changed, "canonicalization alone is not a change")
}

func TestComposeTimestampsAndWinner(t *testing.T) {
	a := domain.Record{"id": "1", "createdAt": float64(500), "updatedAt": float64(600)}
	b := domain.Record{"id": "2", "createdAt": float64(100), "updatedAt": float64(700)}

	out, _ := compose(t, a, b, SideA, SideB, nil)
	assert.Equal(t, "2", out.ID(), "winner supplies the id")
	assert.Equal(t, int64(100), out.CreatedAt())
	assert.Equal(t, mergeTime.UnixMilli(), out.UpdatedAt())
}

func TestComposeRejectsBadSelections(t *testing.T) {
	a := domain.Record{"id": "1", "tags": []any{"x"}}
	b := domain.Record{"id": "2"}
	catalog := Catalog(a, b)

	tests := []struct {
		name string
		sel  Selections
	}{
		{"unknown field", Selections{"nope": {Source: SourceA}}},
		{"unknown source", Selections{"email": {Source: "C"}}},
		{"custom on tags", Selections{"tags": {Source: SourceCustom, Value: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Compose(ComposeInput{A: a, B: b, Catalog: catalog, Selections: tt.sel, Now: mergeTime})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidSelection))
		})
	}
}
