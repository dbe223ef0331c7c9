package repos

import (
	"strings"
	"testing"
)

func TestFTSLiteralQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: "coupon", want: `"coupon"`},
		{in: "black friday", want: `"black" "friday"`},
		{in: `half "off"`, want: `"half" """off"""`},
		{in: "OR", want: `"OR"`},
	}
	for _, tc := range cases {
		if got := ftsLiteralQuery(tc.in); got != tc.want {
			t.Fatalf("ftsLiteralQuery(%q) => %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	if got := excerpt("  short\n\ntext ", 50); got != "short text" {
		t.Fatalf("unexpected excerpt %q", got)
	}
	long := strings.Repeat("word ", 100)
	got := excerpt(long, 40)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if len([]rune(got)) > 41 {
		t.Fatalf("excerpt too long: %d runes", len([]rune(got)))
	}
}
