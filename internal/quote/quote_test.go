package quote

import "testing"

func TestIdentifier(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"", `""`},
		{"t1", "t1"},
		{"order", `"order"`},
		{"ORDER", `"ORDER"`},
		{"select", `"select"`},
		{"col_1", "col_1"},
		{"col-1", `"col-1"`},
		{`weird"name`, `"weird""name"`},
		{"_leading", "_leading"},
		{"a1b2", "a1b2"},
	}

	for _, c := range cases {
		if got := Identifier(c.name); got != c.want {
			t.Errorf("Identifier(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestIdentifierKeywordsAreSorted(t *testing.T) {
	for i := 1; i < len(keywords); i++ {
		if keywords[i-1] >= keywords[i] {
			t.Fatalf("keywords not strictly sorted at %d: %q >= %q", i, keywords[i-1], keywords[i])
		}
	}
}
