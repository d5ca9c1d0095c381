package tui

import (
	"fmt"
	"slices"
)

// ViewState is the view type of seam state.
const ViewState = "state"

// RefreshFunc reloads the payload of a view. A nil RefreshFunc makes the
// view static.
type RefreshFunc func() (any, error)

// Run starts the TUI for viewType.
func Run(viewType string, data any, refresh RefreshFunc) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunStateTUI(data, refresh)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewState}
}
