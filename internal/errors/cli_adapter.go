package errors

import (
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	dhe, ok := As(err)
	if !ok {
		return 1
	}
	switch dhe.Category {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryConfig:
		return 7
	case CategoryNetwork, CategoryVCS, CategoryNotification:
		return 8
	case CategoryInternal:
		return 10
	case CategoryBuild, CategoryFileSystem:
		return 11
	case CategoryStorage, CategoryTask:
		return 12
	default:
		return 1
	}
}

// HandleError prints the error and exits with the mapped code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.verbose {
		a.logger.Error("command failed", slog.String("error", err.Error()))
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", a.FormatError(err))
	os.Exit(a.ExitCodeFor(err))
}

// FormatError renders a user-facing message, including context when verbose.
func (a *CLIErrorAdapter) FormatError(err error) string {
	dhe, ok := As(err)
	if !ok {
		return err.Error()
	}
	msg := dhe.Message
	if dhe.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, dhe.Cause)
	}
	if a.verbose && len(dhe.Context) > 0 {
		msg = fmt.Sprintf("%s %v", msg, map[string]any(dhe.Context))
	}
	return msg
}
