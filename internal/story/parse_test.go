package story

import (
	"errors"
	"testing"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTitle string
		wantBody  string
		wantErr   bool
	}{
		{
			name:      "title first",
			raw:       "**The Brave Fox**\n\nOnce upon a time.",
			wantTitle: "The Brave Fox",
			wantBody:  "Once upon a time.",
		},
		{
			name:      "title in the middle",
			raw:       "Intro line.\n**Night Sky**\nStars everywhere.",
			wantTitle: "Night Sky",
			wantBody:  "Intro line.\n\nStars everywhere.",
		},
		{
			name:      "only first span is the title",
			raw:       "**One**\nA **bold** move.",
			wantTitle: "One",
			wantBody:  "A **bold** move.",
		},
		{
			name:      "title trimmed",
			raw:       "**  Spaced  **\nBody",
			wantTitle: "Spaced",
			wantBody:  "Body",
		},
		{
			name:      "multibyte",
			raw:       "**Über Straße**\nGrüße aus München.",
			wantTitle: "Über Straße",
			wantBody:  "Grüße aus München.",
		},
		{name: "no marker", raw: "Just a story without a title.", wantErr: true},
		{name: "empty title", raw: "****\nBody text", wantErr: true},
		{name: "blank title", raw: "**   **\nBody text", wantErr: true},
		{name: "empty body", raw: "  **Title only**  \n", wantErr: true},
		{name: "span across lines", raw: "**Broken\ntitle**\nBody", wantErr: true},
		{name: "unterminated", raw: "**Title\nBody", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body, err := ExtractTitle(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("ExtractTitle(%q) error = %v, want ErrParse", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractTitle(%q): %v", tt.raw, err)
			}
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestNormalizeSuggestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "json fence",
			raw:  "```json\n[{\"title\":\"a\",\"message\":\"b\"}]\n```",
			want: `[{"title":"a","message":"b"}]`,
		},
		{
			name: "plain fence",
			raw:  "```\n[]\n```",
			want: "[]",
		},
		{
			name: "escaped newlines and quotes",
			raw:  `[{\"title\":\"a\",\n\"message\":\"b\"}]`,
			want: "[{\"title\":\"a\",\n\"message\":\"b\"}]",
		},
		{
			name: "escaped fence",
			raw:  "```json\\n[]\\n```",
			want: "[]",
		},
		{
			name: "untouched",
			raw:  `[{"title":"a","message":"b"}]`,
			want: `[{"title":"a","message":"b"}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSuggestions(tt.raw); got != tt.want {
				t.Errorf("NormalizeSuggestions(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseSuggestions(t *testing.T) {
	got, err := ParseSuggestions("```json\n[\n {\"title\": \"The Cave\", \"message\": \"Explore the cave.\"},\n {\"title\": \"The Sea\", \"message\": \"Sail away.\", \"extra\": 1}\n]\n```")
	if err != nil {
		t.Fatalf("ParseSuggestions: %v", err)
	}
	want := []Suggestion{
		{Title: "The Cave", Message: "Explore the cave."},
		{Title: "The Sea", Message: "Sail away."},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d suggestions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	empty, err := ParseSuggestions("[]")
	if err != nil {
		t.Fatalf("ParseSuggestions([]): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ParseSuggestions([]) = %v, want empty", empty)
	}
}

func TestParseSuggestions_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "Here are some ideas: go to the sea."},
		{"empty", ""},
		{"null", "null"},
		{"object", `{"title":"a","message":"b"}`},
		{"truncated", `[{"title":"a","message":"b"}`},
		{"trailing data", `[{"title":"a","message":"b"}] and more`},
		{"two arrays", `[] []`},
		{"trailing bracket", `[]]`},
		{"missing message", `[{"title":"a"}]`},
		{"blank title", `[{"title":"  ","message":"b"}]`},
		{"null element", `[null]`},
		{"wrong type", `[{"title":1,"message":"b"}]`},
		{"array of strings", `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSuggestions(tt.raw)
			if !errors.Is(err, ErrParse) {
				t.Fatalf("ParseSuggestions(%q) = %v, %v; want ErrParse", tt.raw, got, err)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	tests := []struct {
		in        string
		wantWords int
		wantChars int
	}{
		{"", 0, 0},
		{"   ", 0, 0},
		{"one", 1, 3},
		{"  two  words ", 2, 10},
		{"line one\nline\ttwo", 4, 17},
		{"Grüße aus München", 3, 17},
	}
	for _, tt := range tests {
		if got := CountWords(tt.in); got != tt.wantWords {
			t.Errorf("CountWords(%q) = %d, want %d", tt.in, got, tt.wantWords)
		}
		if got := CountCharacters(tt.in); got != tt.wantChars {
			t.Errorf("CountCharacters(%q) = %d, want %d", tt.in, got, tt.wantChars)
		}
	}
}
