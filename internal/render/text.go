package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"quotesearch/internal/domain"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	speakerColor = color.New(color.FgYellow, color.Bold)
	scoreColor   = color.New(color.FgGreen)
	idColor      = color.New(color.Faint)
)

// Text writes a terminal listing. Colors follow fatih/color's NoColor
// detection.
func Text(w io.Writer, result domain.Result) error {
	if result.Empty() {
		_, err := fmt.Fprintln(w, NoMatchesMessage)
		return err
	}

	scope := ""
	if result.Namespace != "" {
		scope = fmt.Sprintf(" in %q", result.Namespace)
	}
	headerColor.Fprintf(w, "Found %d matches for %q%s\n\n", len(result.Matches), result.Query, scope)

	for i, r := range Rows(result.Matches) {
		fmt.Fprintf(w, "%2d. ", i+1)
		speakerColor.Fprint(w, r.Speaker)
		fmt.Fprint(w, " ")
		scoreColor.Fprintf(w, "(%.2f)", r.Score)
		fmt.Fprint(w, " ")
		idColor.Fprintln(w, r.ID)
		if _, err := fmt.Fprintf(w, "    %s\n", r.Quote); err != nil {
			return err
		}
	}
	return nil
}
