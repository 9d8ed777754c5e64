package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRecord_Int(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{name: "float64", value: float64(1700000000000), want: 1700000000000},
		{name: "int", value: 42, want: 42},
		{name: "json number", value: json.Number("99"), want: 99},
		{name: "numeric string", value: " 7 ", want: 7},
		{name: "text", value: "soon", want: 0},
		{name: "missing", value: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{"n": tt.value}
			if got := r.Int("n"); got != tt.want {
				t.Errorf("Int() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecord_CloneIsDeep(t *testing.T) {
	orig := Record{
		"id":     "c1",
		"tags":   []any{"vip"},
		"extras": map[string]any{"source": "web"},
	}
	clone := orig.Clone()
	clone["tags"].([]any)[0] = "changed"
	clone["extras"].(map[string]any)["source"] = "changed"

	if orig["tags"].([]any)[0] != "vip" {
		t.Error("clone shares tags slice with original")
	}
	if orig.Extras()["source"] != "web" {
		t.Error("clone shares extras map with original")
	}
	if !reflect.DeepEqual(orig.Clone(), orig) {
		t.Error("clone differs from original")
	}
}

func TestIsEmpty(t *testing.T) {
	empties := []any{nil, "", "   ", []any{}, []string{}, map[string]any{}}
	for _, v := range empties {
		if !IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = false, want true", v)
		}
	}
	meaningful := []any{"x", false, float64(0), []any{"a"}, map[string]any{"k": 1}}
	for _, v := range meaningful {
		if IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = true, want false", v)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &NotFoundError{Collection: "contacts", ID: "1"}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}

	err = &InvalidPlanError{Collection: "bad name", Reason: "invalid collection name"}
	if !errors.Is(err, ErrInvalidPlan) {
		t.Error("InvalidPlanError should match ErrInvalidPlan")
	}

	cause := errors.New("disk full")
	applyErr := &ApplyError{MergeID: "m1", Err: cause, RollbackErr: errors.New("locked")}
	if !errors.Is(applyErr, ErrMergeFailed) {
		t.Error("ApplyError should match ErrMergeFailed")
	}
	if !errors.Is(applyErr, cause) {
		t.Error("ApplyError should unwrap to the original failure")
	}
	if !strings.Contains(applyErr.Error(), "disk full") || !strings.Contains(applyErr.Error(), "locked") {
		t.Errorf("ApplyError message should report both errors, got %q", applyErr.Error())
	}
}
