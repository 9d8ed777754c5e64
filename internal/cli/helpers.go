package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/render"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitGeneral     = 1
	ExitUsage       = 2
	ExitNotFound    = 3
	ExitMergeFailed = 4
)

// ExitError carries the process exit code for err
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, domain.ErrMergeFailed):
		return ExitMergeFailed
	case errors.Is(err, domain.ErrSameRecord),
		errors.Is(err, domain.ErrInvalidSelection),
		errors.Is(err, domain.ErrInvalidPlan),
		errors.Is(err, domain.ErrMergeInProgress):
		return ExitUsage
	}
	return ExitGeneral
}

func newRenderer(cmd *cobra.Command, output string) (*render.Renderer, error) {
	format, err := render.ParseFormat(output)
	if err != nil {
		return nil, exitError(ExitUsage, err)
	}
	porcelain, _ := cmd.Flags().GetBool("porcelain")
	return render.NewRenderer(cmd.OutOrStdout(), render.Options{
		Format:       format,
		Porcelain:    porcelain,
		MaxCellWidth: 48,
	}), nil
}

// openInput returns stdin for "" or "-", otherwise the named file
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// formatValue renders a record value for a table cell
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
