package valkey

import "testing"

func TestKeyJoinsUnderPrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{"postbot:", []string{"session", "7"}, "postbot:session:7"},
		{"", []string{"session", "*"}, "session:*"},
	}
	for _, tc := range cases {
		c := &Client{keyPrefix: tc.prefix}
		if got := c.Key(tc.parts...); got != tc.want {
			t.Fatalf("Key(%q) with prefix %q = %q, want %q", tc.parts, tc.prefix, got, tc.want)
		}
	}
}
