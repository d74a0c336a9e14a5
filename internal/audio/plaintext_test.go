package audio

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{
			name: "plain paragraphs",
			md:   "First paragraph.\n\nSecond paragraph.",
			want: "First paragraph.\nSecond paragraph.",
		},
		{
			name: "emphasis and heading",
			md:   "# The Fox\n\nThe **brave** fox ran *far*.",
			want: "The Fox\nThe brave fox ran far.",
		},
		{
			name: "soft wrap joins lines",
			md:   "A line that\nwraps here.",
			want: "A line that wraps here.",
		},
		{
			name: "links keep label",
			md:   "See [the map](https://example.com) and <https://example.org>.",
			want: "See the map and https://example.org.",
		},
		{
			name: "list items",
			md:   "- one\n- two",
			want: "one\ntwo",
		},
		{
			name: "code block kept",
			md:   "```\nsay hi\n```\n\nAfter.",
			want: "say hi\nAfter.",
		},
		{
			name: "empty",
			md:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.md); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.md, got, tt.want)
			}
		})
	}
}
