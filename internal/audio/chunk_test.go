package audio

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{name: "empty", text: "", max: 10, want: nil},
		{name: "fits", text: "short", max: 10, want: []string{"short"}},
		{name: "exact fit", text: "0123456789", max: 10, want: []string{"0123456789"}},
		{name: "no limit", text: "abc\ndef", max: 0, want: []string{"abc\ndef"}},
		{
			name: "cuts at newline",
			text: "aaaa\nbbbb\ncccc",
			max:  8,
			want: []string{"aaaa", "bbbb", "cccc"},
		},
		{
			name: "prefers last newline in window",
			text: "aa\nbb\ncccccc",
			max:  7,
			want: []string{"aa\nbb", "cccccc"},
		},
		{
			name: "newline exactly at window end",
			text: "abcd\nefgh",
			max:  4,
			want: []string{"abcd", "efgh"},
		},
		{
			name: "hard cut without newline",
			text: "abcdefghij",
			max:  4,
			want: []string{"abcd", "efgh", "ij"},
		},
		{
			name: "newline at window start is not used",
			text: "\nabcdefg",
			max:  3,
			want: []string{"\nab", "cde", "fg"},
		},
		{
			name: "multibyte runes",
			text: "äöüß\nñéèê",
			max:  4,
			want: []string{"äöüß", "ñéèê"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.max)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitText(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("chunk[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitText_RoundTrip(t *testing.T) {
	paragraphs := []string{
		"Once upon a time there was a fox.",
		"It lived at the edge of a forest.",
		"Every night it looked at the stars.",
		"One day it decided to travel.",
		"Ünïcödé paragraphs count in runes.",
	}
	text := strings.Join(paragraphs, "\n")

	for max := 40; max <= 200; max += 7 {
		chunks := SplitText(text, max)
		if got := strings.Join(chunks, "\n"); got != text {
			t.Errorf("max=%d: rejoined %q, want %q", max, got, text)
		}
		for i, c := range chunks {
			if n := utf8.RuneCountInString(c); n > max {
				t.Errorf("max=%d: chunk %d has %d runes", max, i, n)
			}
		}
	}
}

func TestSplitText_NoNewlines(t *testing.T) {
	text := strings.Repeat("abcdefghij", 25)
	for _, max := range []int{1, 7, 10, 64, 249} {
		chunks := SplitText(text, max)
		if got := strings.Join(chunks, ""); got != text {
			t.Errorf("max=%d: concatenation differs from input", max)
		}
		for i, c := range chunks[:len(chunks)-1] {
			if len(c) != max {
				t.Errorf("max=%d: chunk %d length %d, want %d", max, i, len(c), max)
			}
		}
		if last := chunks[len(chunks)-1]; len(last) == 0 || len(last) > max {
			t.Errorf("max=%d: last chunk length %d", max, len(last))
		}
	}
}
