package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrParse means an assistant reply did not match the expected shape.
var ErrParse = errors.New("unparseable reply")

// titlePattern matches the first bold span on a single line.
var titlePattern = regexp.MustCompile(`\*\*(.*?)\*\*`)

// ExtractTitle splits a story reply into its title and body. The title
// is the first **bold** span; the body is the reply with that span
// removed, trimmed. A reply without a span, or with an empty title or
// body, is an [ErrParse].
func ExtractTitle(raw string) (title, body string, err error) {
	loc := titlePattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return "", "", fmt.Errorf("%w: no title marker", ErrParse)
	}
	title = strings.TrimSpace(raw[loc[2]:loc[3]])
	body = strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
	switch {
	case title == "":
		return "", "", fmt.Errorf("%w: empty title", ErrParse)
	case body == "":
		return "", "", fmt.Errorf("%w: empty body", ErrParse)
	}
	return title, body, nil
}

// suggestionCleaner undoes the escaping and code fences models wrap
// around JSON replies. Order matters: escapes first, then fences.
var suggestionCleaner = []struct{ old, new string }{
	{`\n`, "\n"},
	{`\"`, `"`},
	{"\n```", ""},
	{"```\n", ""},
	{"```json\n", ""},
}

// NormalizeSuggestions strips escape sequences and Markdown code fences
// from a suggestion reply.
func NormalizeSuggestions(raw string) string {
	s := raw
	for _, r := range suggestionCleaner {
		s = strings.ReplaceAll(s, r.old, r.new)
	}
	return s
}

// ParseSuggestions decodes a suggestion reply: a JSON array of objects
// each carrying a non-empty title and message. Anything else, including
// trailing data after the array, is an [ErrParse].
func ParseSuggestions(raw string) ([]Suggestion, error) {
	s := strings.TrimSpace(NormalizeSuggestions(raw))
	if !strings.HasPrefix(s, "[") {
		return nil, fmt.Errorf("%w: suggestions are not a JSON array", ErrParse)
	}

	var items []struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: decode suggestions: %w", ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after suggestions", ErrParse)
	}

	out := make([]Suggestion, 0, len(items))
	for i, it := range items {
		title := strings.TrimSpace(it.Title)
		msg := strings.TrimSpace(it.Message)
		if title == "" || msg == "" {
			return nil, fmt.Errorf("%w: suggestion %d missing title or message", ErrParse, i)
		}
		out = append(out, Suggestion{Title: title, Message: msg})
	}
	return out, nil
}

// CountWords returns the number of whitespace-delimited words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// CountCharacters returns the number of characters (runes) in s after
// trimming surrounding whitespace.
func CountCharacters(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
