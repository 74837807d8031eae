// Package render turns retrieval matches into HTML, JSON or terminal text.
// Every renderer is a pure function of its input; missing metadata is
// replaced by placeholders and never drops a row.
package render

import (
	"fmt"
	"strings"

	"quotesearch/internal/domain"
)

const (
	SpeakerPlaceholder = "Unknown"
	QuotePlaceholder   = "No quote found"
	NoMatchesMessage   = "No matches found"
)

// Format names an output representation.
type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat accepts html, json and text, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHTML, FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// ContentType returns the HTTP media type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "text/html; charset=utf-8"
	}
}

// Row is a match with placeholders applied.
type Row struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Speaker   string  `json:"-"`
	Character string  `json:"character,omitempty"`
	Author    string  `json:"author,omitempty"`
	Quote     string  `json:"quote"`
	Category  string  `json:"category,omitempty"`
}

// Rows converts matches in order. The speaker is the character, else the
// author, else SpeakerPlaceholder.
func Rows(matches []domain.Match) []Row {
	rows := make([]Row, 0, len(matches))
	for _, m := range matches {
		r := Row{
			ID:        m.ID,
			Score:     m.Score,
			Character: m.Field(domain.MetaCharacter),
			Author:    m.Field(domain.MetaAuthor),
			Quote:     m.Field(domain.MetaQuote),
			Category:  m.Field(domain.MetaCategory),
		}

		switch {
		case strings.TrimSpace(r.Character) != "":
			r.Speaker = r.Character
		case strings.TrimSpace(r.Author) != "":
			r.Speaker = r.Author
		default:
			r.Speaker = SpeakerPlaceholder
		}
		if strings.TrimSpace(r.Quote) == "" {
			r.Quote = QuotePlaceholder
		}

		rows = append(rows, r)
	}
	return rows
}
