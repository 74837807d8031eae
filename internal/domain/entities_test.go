package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseTopK(t *testing.T) {
	tests := []struct {
		raw      string
		expected int
	}{
		{"", DefaultTopK},
		{"3", 3},
		{" 12 ", 12},
		{"0", DefaultTopK},
		{"-4", DefaultTopK},
		{"five", DefaultTopK},
		{"2.5", DefaultTopK},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			if got := ParseTopK(tc.raw, DefaultTopK); got != tc.expected {
				t.Errorf("ParseTopK(%q) = %d, expected %d", tc.raw, got, tc.expected)
			}
		})
	}
}

func TestRecordInput_EmbedText(t *testing.T) {
	in := RecordInput{Metadata: map[string]string{MetaQuote: "D'oh!"}}
	if got := in.EmbedText(); got != "D'oh!" {
		t.Errorf("expected quote fallback, got %q", got)
	}

	in.Text = "explicit"
	if got := in.EmbedText(); got != "explicit" {
		t.Errorf("expected explicit text, got %q", got)
	}
}

func TestMatch_FieldNilMetadata(t *testing.T) {
	var m Match
	if got := m.Field(MetaCharacter); got != "" {
		t.Errorf("expected empty field, got %q", got)
	}
}

func TestErrorKinds(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", ErrIndexUnavailable)
	err := fmt.Errorf("retrieve: %w", Unavailable("vector index unavailable", cause))

	if KindOf(err) != KindServiceUnavailable {
		t.Errorf("expected service unavailable, got %v", KindOf(err))
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if DetailOf(err) != "vector index unavailable" {
		t.Errorf("unexpected detail %q", DetailOf(err))
	}

	if KindOf(errors.New("plain")) != 0 {
		t.Error("expected zero kind for untyped error")
	}
	if DetailOf(errors.New("secret")) != "internal error" {
		t.Error("untyped errors must not leak their text")
	}
	if KindOf(BadRequest("text is required")) != KindBadRequest {
		t.Error("expected bad request kind")
	}
}
