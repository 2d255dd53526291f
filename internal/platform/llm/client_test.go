package llm

import "testing"

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare_json_untouched",
			in:   `{"keywords": []}`,
			want: `{"keywords": []}`,
		},
		{
			name: "fenced_json",
			in:   "```json\n{\"keywords\": []}\n```",
			want: `{"keywords": []}`,
		},
		{
			name: "fenced_without_language",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "surrounding_whitespace",
			in:   "  \n```json\n{}\n```\n  ",
			want: "{}",
		},
		{
			name: "multiline_body_preserved",
			in:   "```json\n{\n\"a\": 1\n}\n```",
			want: "{\n\"a\": 1\n}",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFences(tc.in); got != tc.want {
				t.Fatalf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate(short, 10) = %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc" {
		t.Fatalf("truncate(abcdef, 3) = %q", got)
	}
	// A cut inside a multi-byte rune drops the partial bytes.
	if got := truncate("héllo", 2); got != "h" {
		t.Fatalf("truncate mid-rune = %q, want h", got)
	}
}
