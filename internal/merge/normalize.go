package merge

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lherron/recmerge/internal/canonical"
	"github.com/lherron/recmerge/internal/domain"
)

// NormalizerFor returns the comparison normalizer for a field type
func NormalizerFor(t FieldType) NormalizeFunc {
	switch t {
	case TypeEmail:
		return normalizeText
	case TypePhone:
		return func(v any) string { return CanonicalPhone(stringify(v)) }
	case TypeStage:
		return func(v any) string { return CanonicalStage(stringify(v)) }
	case TypeLoanProgram:
		return func(v any) string { return strings.ToLower(CanonicalLoanProgram(stringify(v))) }
	case TypeState:
		return func(v any) string { return CanonicalState(stringify(v)) }
	case TypeTags:
		return normalizeTags
	case TypeDate:
		return normalizeDate
	case TypeNumber:
		return normalizeNumber
	case TypeReference:
		return func(v any) string { return strings.TrimSpace(stringify(v)) }
	case TypeBoolean, TypeTimeline, TypeNested:
		return normalizeNested
	default:
		return normalizeText
	}
}

func normalizeText(v any) string {
	return strings.ToLower(strings.TrimSpace(stringify(v)))
}

// normalizeTags compares tag lists as a sorted, lowercased, deduped string
func normalizeTags(v any) string {
	tags := UnionTags(v)
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = strings.ToLower(t)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// normalizeDate reduces dates to YYYY-MM-DD. Numbers are epoch milliseconds.
// Unparsable values compare as trimmed text.
func normalizeDate(v any) string {
	switch t := v.(type) {
	case float64, int, int64:
		ms, _ := domain.AsInt(t)
		return time.UnixMilli(ms).UTC().Format("2006-01-02")
	}
	s := strings.TrimSpace(stringify(v))
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	return s
}

// normalizeNumber compares numerically when the value parses, ignoring
// currency symbols and thousands separators
func normalizeNumber(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	s := strings.TrimSpace(stringify(v))
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "", "%", "").Replace(s)
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}

func normalizeNested(v any) string {
	return canonical.String(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return canonical.String(v)
	}
}

// CanonicalPhone keeps digits, 'x' (extension) and '+'
func CanonicalPhone(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || r == 'x' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Stages are the pipeline slugs in order
var Stages = []string{
	"lead",
	"contacted",
	"application",
	"preapproved",
	"processing",
	"underwriting",
	"approved",
	"cleared-to-close",
	"funded",
	"post-close",
	"lost",
}

var stageSynonyms = map[string]string{
	"new":              "lead",
	"prospect":         "lead",
	"app":              "application",
	"applied":          "application",
	"pre-approved":     "preapproved",
	"pre-approval":     "preapproved",
	"preapproval":      "preapproved",
	"uw":               "underwriting",
	"ctc":              "cleared-to-close",
	"clear-to-close":   "cleared-to-close",
	"clear-close":      "cleared-to-close",
	"closed":           "funded",
	"won":              "funded",
	"postclose":        "post-close",
	"post-closing":     "post-close",
	"dead":             "lost",
	"closed-lost":      "lost",
	"in-processing":    "processing",
	"in-underwriting":  "underwriting",
	"conditional":      "approved",
	"approved-w-conds": "approved",
}

// CanonicalStage lowercases s into a slug and folds known synonyms
func CanonicalStage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "-", "_", "-", "/", "-").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if canon, ok := stageSynonyms[s]; ok {
		return canon
	}
	return s
}

// loanPrograms maps folded keys to display names
var loanPrograms = map[string]string{
	"conventional": "Conventional",
	"conv":         "Conventional",
	"conforming":   "Conventional",
	"fha":          "FHA",
	"va":           "VA",
	"usda":         "USDA",
	"rural":        "USDA",
	"jumbo":        "Jumbo",
	"non qm":       "Non-QM",
	"nonqm":        "Non-QM",
	"heloc":        "HELOC",
	"reverse":      "Reverse",
	"hecm":         "Reverse",
}

var loanNoiseWords = map[string]bool{
	"loan":     true,
	"loans":    true,
	"program":  true,
	"mortgage": true,
}

// CanonicalLoanProgram folds loan program synonyms ("fha loan" -> "FHA").
// Unknown programs are returned trimmed.
func CanonicalLoanProgram(s string) string {
	trimmed := strings.TrimSpace(s)
	folded := strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(strings.ToLower(trimmed))
	var words []string
	for _, w := range strings.Fields(folded) {
		if !loanNoiseWords[w] {
			words = append(words, w)
		}
	}
	if name, ok := loanPrograms[strings.Join(words, " ")]; ok {
		return name
	}
	return trimmed
}

var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"district of columbia": "DC", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI",
	"south carolina": "SC", "south dakota": "SD", "tennessee": "TN", "texas": "TX",
	"utah": "UT", "vermont": "VT", "virginia": "VA", "washington": "WA",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY", "puerto rico": "PR",
}

// CanonicalState returns the two-letter uppercase code for a US state
func CanonicalState(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	if code, ok := stateCodes[strings.Join(strings.Fields(strings.ToLower(s)), " ")]; ok {
		return code
	}
	return s
}

// UnionTags flattens tag values into one list, deduped case-insensitively
// with the first-seen casing kept. Strings are split on commas.
func UnionTags(values ...any) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, tag)
	}
	for _, v := range values {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				add(stringify(item))
			}
		case []string:
			for _, item := range t {
				add(item)
			}
		case string:
			for _, item := range strings.Split(t, ",") {
				add(item)
			}
		}
	}
	return out
}

// Canonicalize rewrites a value into its stored canonical form for types that
// have one. Other types are returned unchanged.
func Canonicalize(t FieldType, v any) any {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return v
	}
	switch t {
	case TypeStage:
		return CanonicalStage(s)
	case TypePhone:
		return CanonicalPhone(s)
	case TypeState:
		return CanonicalState(s)
	case TypeLoanProgram:
		return CanonicalLoanProgram(s)
	default:
		return v
	}
}
