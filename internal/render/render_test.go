package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "JSON", want: FormatJSON},
		{in: " yaml ", want: FormatYAML},
		{in: "tsv", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Format: FormatTable})
	err := r.RenderTable([]string{"FIELD", "A"}, [][]string{{"email", "a@x.com"}, {"stage", "Lead"}})
	if err != nil {
		t.Fatalf("RenderTable: %v", err)
	}
	want := "FIELD  A\n" +
		"-----  -------\n" +
		"email  a@x.com\n" +
		"stage  Lead\n"
	if buf.String() != want {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestRenderTable_PorcelainAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Porcelain: true, MaxCellWidth: 2})
	if err := r.RenderTable([]string{"ID"}, nil); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty rows, got %q", buf.String())
	}

	if err := r.RenderTable([]string{"ID", "NAME"}, [][]string{{"c1", "Ann Lee"}}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "ID\tNAME\nc1\tAnn Lee\n" {
		t.Errorf("porcelain output should be untruncated tab-separated, got %q", buf.String())
	}
}

func TestRender_DispatchesOnFormat(t *testing.T) {
	data := map[string]any{"id": "c1"}

	var js bytes.Buffer
	if err := NewRenderer(&js, Options{Format: FormatJSON}).Render(data, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"id": "c1"`) {
		t.Errorf("unexpected json: %s", js.String())
	}

	var ym bytes.Buffer
	if err := NewRenderer(&ym, Options{Format: FormatYAML}).Render(data, nil, nil); err != nil {
		t.Fatal(err)
	}
	if ym.String() != "id: c1\n" {
		t.Errorf("unexpected yaml: %q", ym.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("line1\nline2", 0); got != "line1 line2" {
		t.Errorf("Truncate should flatten newlines, got %q", got)
	}
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("Truncate should count runes, got %q", got)
	}
}
