package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/lherron/recmerge/internal/merge"
	"gopkg.in/yaml.v3"
)

// selectionFile is the YAML document accepted by --selections:
//
//	base: b
//	winner: a
//	fields:
//	  email: b
//	  stage:
//	    source: custom
//	    value: Closed Won
type selectionFile struct {
	Base   string               `yaml:"base"`
	Winner string               `yaml:"winner"`
	Fields map[string]yaml.Node `yaml:"fields"`
}

// commitChoices is everything a user may choose for one merge
type commitChoices struct {
	Base       merge.Side
	Winner     merge.Side
	Selections merge.Selections
}

func parseSource(s string) (merge.Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return merge.SourceA, nil
	case "b":
		return merge.SourceB, nil
	case "custom":
		return merge.SourceCustom, nil
	default:
		return "", fmt.Errorf("invalid source %q: must be a, b or custom", s)
	}
}

func parseSelectionFile(data []byte) (*commitChoices, error) {
	var doc selectionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid selections file: %w", err)
	}

	out := &commitChoices{Selections: merge.Selections{}}
	if doc.Base != "" {
		side, err := merge.ParseSide(doc.Base)
		if err != nil {
			return nil, err
		}
		out.Base = side
	}
	if doc.Winner != "" {
		side, err := merge.ParseSide(doc.Winner)
		if err != nil {
			return nil, err
		}
		out.Winner = side
	}

	for key, node := range doc.Fields {
		switch node.Kind {
		case yaml.ScalarNode:
			src, err := parseSource(node.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			out.Selections[key] = merge.Selection{Source: src}
		case yaml.MappingNode:
			var raw struct {
				Source string `yaml:"source"`
				Value  any    `yaml:"value"`
			}
			if err := node.Decode(&raw); err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			src, err := parseSource(raw.Source)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			out.Selections[key] = merge.Selection{Source: src, Value: raw.Value}
		default:
			return nil, fmt.Errorf("field %s: expected a source name or a mapping", key)
		}
	}
	return out, nil
}

// loadChoices merges the --selections file with --pick, --set, --base and
// --winner flags. Flags win over the file.
func loadChoices(path string, picks, sets []string, base, winner string) (*commitChoices, error) {
	choices := &commitChoices{Selections: merge.Selections{}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read selections: %w", err)
		}
		if choices, err = parseSelectionFile(data); err != nil {
			return nil, err
		}
	}

	for _, p := range picks {
		key, src, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --pick %q: expected field=a|b", p)
		}
		source, err := parseSource(src)
		if err != nil {
			return nil, fmt.Errorf("invalid --pick %q: %w", p, err)
		}
		choices.Selections[key] = merge.Selection{Source: source}
	}
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected field=value", s)
		}
		choices.Selections[key] = merge.Selection{Source: merge.SourceCustom, Value: value}
	}

	if base != "" {
		side, err := merge.ParseSide(base)
		if err != nil {
			return nil, err
		}
		choices.Base = side
	}
	if winner != "" {
		side, err := merge.ParseSide(winner)
		if err != nil {
			return nil, err
		}
		choices.Winner = side
	}
	return choices, nil
}
