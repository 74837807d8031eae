package render

import (
	"encoding/json"
	"io"

	"quotesearch/internal/domain"
)

type jsonResult struct {
	Query     string `json:"query"`
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
	Matches   []Row  `json:"matches"`
	Message   string `json:"message,omitempty"`
}

// JSON writes the result as a JSON document. Empty results carry count 0 and
// the "No matches found" message.
func JSON(w io.Writer, result domain.Result) error {
	out := jsonResult{
		Query:     result.Query,
		Namespace: result.Namespace,
		Count:     len(result.Matches),
		Matches:   Rows(result.Matches),
	}
	if result.Empty() {
		out.Message = NoMatchesMessage
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
