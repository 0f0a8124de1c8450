package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/process"
	"github.com/Iron-Ham/kiln/internal/ui"
)

// RenderError prints err for the user. Diagnostics get a box with their
// title, content and suggestion. Other user-facing errors print their
// message styled by severity. Anything else is shown as a failure, and a
// failed command also shows the tail of its output.
func RenderError(w io.Writer, err error) {
	if err == nil {
		return
	}

	var diag *errors.DiagnosticError
	if errors.As(err, &diag) {
		var body strings.Builder
		body.WriteString(ui.ErrorTitle.Render(diag.Title))
		if diag.Content != "" {
			body.WriteString("\n\n" + diag.Content)
		}
		if diag.Suggestion != "" {
			body.WriteString("\n\n" + ui.Suggestion.Render(diag.Suggestion))
		}
		fmt.Fprintln(w, ui.ErrorBox.Render(body.String()))
		return
	}

	if errors.IsUserFacing(err) {
		switch severity := errors.GetSeverity(err); {
		case severity == errors.SeverityWarning:
			fmt.Fprintln(w, ui.Warning.Render(ui.IconSkipped+" "+err.Error()))
		case severity >= errors.SeverityError:
			fmt.Fprintln(w, ui.Error.Render(ui.IconFailed+" "+err.Error()))
		default:
			fmt.Fprintln(w, ui.Muted.Render(err.Error()))
		}
		return
	}

	fmt.Fprintln(w, ui.Error.Render(ui.IconFailed+" "+err.Error()))

	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		writeTail(w, "stdout", exitErr.Stdout)
		writeTail(w, "stderr", exitErr.Stderr)
	}
}

func writeTail(w io.Writer, name string, data []byte) {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return
	}
	fmt.Fprintln(w, ui.Muted.Render("── "+name+" ──"))
	fmt.Fprintln(w, text)
}
