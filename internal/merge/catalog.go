package merge

import (
	"sort"
	"strings"

	"github.com/lherron/recmerge/internal/domain"
)

// baseline is the hand-maintained field list, always first and in this order
var baseline = []FieldDescriptor{
	{Key: "firstName", Label: "First name", Type: TypeText, AllowCustomText: true},
	{Key: "lastName", Label: "Last name", Type: TypeText, AllowCustomText: true},
	{Key: "company", Label: "Company", Type: TypeText, AllowCustomText: true},
	{Key: "email", Label: "Email", Type: TypeEmail, AllowCustomText: true},
	{Key: "phone", Label: "Phone", Type: TypePhone, AllowCustomText: true},
	{Key: "stage", Label: "Stage", Type: TypeStage, AllowCustomText: true},
	{Key: "loanType", Label: "Loan program", Type: TypeLoanProgram, AllowCustomText: true},
	{Key: "loanAmount", Label: "Loan amount", Type: TypeNumber, AllowCustomText: true},
	{Key: "rate", Label: "Rate", Type: TypeNumber, AllowCustomText: true},
	{Key: "closingDate", Label: "Closing date", Type: TypeDate, AllowCustomText: true},
	{Key: "address", Label: "Address", Type: TypeText, AllowCustomText: true},
	{Key: "city", Label: "City", Type: TypeText, AllowCustomText: true},
	{Key: "state", Label: "State", Type: TypeState, AllowCustomText: true},
	{Key: "zip", Label: "ZIP", Type: TypeText, AllowCustomText: true},
	{Key: "partnerId", Label: "Partner", Type: TypeReference},
	{Key: "referralPartnerId", Label: "Referral partner", Type: TypeReference},
	{Key: "tags", Label: "Tags", Type: TypeTags},
	{Key: "notes", Label: "Notes", Type: TypeNotes, AllowCustomText: true},
	{Key: "timeline", Label: "Timeline", Type: TypeTimeline},
	{Key: "importBatchId", Label: "Import batch", Type: TypeText, Hidden: true},
}

// reserved keys are never offered for merging. They are bookkeeping or
// owned by other subsystems.
var reserved = map[string]bool{
	domain.FieldID:        true,
	domain.FieldCreatedAt: true,
	domain.FieldUpdatedAt: true,
	domain.FieldDeletedAt: true,
	domain.FieldExtras:    true,
	"stageHistory":        true,
	"stageEnteredAt":      true,
	"automations":         true,
	"documents":           true,
}

// IsReserved reports whether key is excluded from the catalog
func IsReserved(key string) bool {
	return reserved[key]
}

// BaselineField returns the baseline descriptor for key
func BaselineField(key string) (FieldDescriptor, bool) {
	for _, d := range baseline {
		if d.Key == key {
			return d, true
		}
	}
	return FieldDescriptor{}, false
}

// Catalog returns the ordered field list for a pair of records: baseline
// fields, then other top-level keys alphabetically, then extras keys
// alphabetically. The result depends only on the records' contents.
func Catalog(a, b domain.Record) []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(baseline)+len(a)+len(b))
	out = append(out, baseline...)

	known := make(map[string]bool, len(baseline))
	for _, d := range baseline {
		known[d.Key] = true
	}

	var dynamic []string
	seen := make(map[string]bool)
	for _, rec := range []domain.Record{a, b} {
		for k := range rec {
			if known[k] || reserved[k] || seen[k] || strings.HasPrefix(k, extrasPrefix) {
				continue
			}
			seen[k] = true
			dynamic = append(dynamic, k)
		}
	}
	sort.Strings(dynamic)
	for _, k := range dynamic {
		out = append(out, FieldDescriptor{
			Key:             k,
			Label:           labelFor(k),
			Type:            inferType(a[k], b[k]),
			AllowCustomText: true,
		})
	}

	var nested []string
	seen = make(map[string]bool)
	for _, rec := range []domain.Record{a, b} {
		for k := range rec.Extras() {
			if !seen[k] {
				seen[k] = true
				nested = append(nested, k)
			}
		}
	}
	sort.Strings(nested)
	for _, k := range nested {
		out = append(out, FieldDescriptor{
			Key:   extrasPrefix + k,
			Label: labelFor(k),
			Type:  TypeNested,
		})
	}

	for i := range out {
		if out[i].Type == TypeNested || out[i].Type == TypeTags || out[i].Type == TypeTimeline || out[i].Type == TypeBoolean {
			out[i].AllowCustomText = false
		}
	}
	return out
}

// inferType picks a type for a dynamic key from A's value, falling back to B's
func inferType(a, b any) FieldType {
	v := a
	if domain.IsEmpty(v) {
		v = b
	}
	switch t := v.(type) {
	case bool:
		return TypeBoolean
	case float64, int, int64:
		return TypeNumber
	case []string:
		return TypeTags
	case []any:
		for _, item := range t {
			if _, ok := item.(string); !ok {
				return TypeTimeline
			}
		}
		return TypeTags
	case map[string]any:
		return TypeNested
	default:
		return TypeText
	}
}

// labelFor turns camelCase or snake_case keys into "Title case" labels
func labelFor(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteRune(' ')
			b.WriteRune(r + ('a' - 'A'))
		case i == 0 && r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
