package render

import (
	"html/template"
	"io"

	"quotesearch/internal/domain"
)

var resultsTemplate = template.Must(template.New("results").Parse(
	`{{if .Rows}}<table class="results">
<caption>Results for &ldquo;{{.Query}}&rdquo;</caption>
<thead><tr><th>Speaker</th><th>Quote</th><th>Score</th></tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{.Speaker}}</td><td>{{.Quote}}</td><td>{{printf "%.2f" .Score}}</td></tr>
{{end}}</tbody>
</table>
{{else}}<p class="no-results">` + NoMatchesMessage + `</p>
{{end}}`))

// HTML writes an HTML fragment: a results table, or a "No matches found"
// paragraph. Query and corpus text are escaped.
func HTML(w io.Writer, query string, matches []domain.Match) error {
	return resultsTemplate.Execute(w, struct {
		Query string
		Rows  []Row
	}{
		Query: query,
		Rows:  Rows(matches),
	})
}
