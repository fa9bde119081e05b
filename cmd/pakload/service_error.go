// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/pakload/pakload/internal/issue"
)

// ServiceError is a command failure tied to an issue page. Commands return
// it when the user can act on the cause; Execute prints the page after the
// error itself.
type ServiceError struct {
	Err     error
	IssueID issue.Id
}

// newServiceError wraps err with the help page id. err must not be nil.
func newServiceError(err error, issueID issue.Id) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{Err: err, IssueID: issueID}
}

func (e *ServiceError) Error() string { return e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

// issueStyle picks the glamour style for issue pages from NO_COLOR and
// the terminal background.
func issueStyle() string {
	if os.Getenv("NO_COLOR") != "" {
		return "notty"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// renderServiceError writes the issue page of svcErr and reports whether
// anything was written. Unknown ids and render failures print nothing.
func renderServiceError(w io.Writer, svcErr *ServiceError, style string) bool {
	if svcErr == nil || svcErr.IssueID == 0 {
		return false
	}
	page := issue.Get(svcErr.IssueID)
	if page == nil {
		return false
	}
	rendered, err := page.Render(style)
	if err != nil {
		slog.Warn("failed to render issue page", "issue", svcErr.IssueID, "error", err)
		return false
	}
	fmt.Fprint(w, rendered)
	return true
}
