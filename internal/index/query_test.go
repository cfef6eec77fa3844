package index

import (
	"reflect"
	"testing"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"needle", []string{"needle"}},
		{"  two   words ", []string{"two", "words"}},
		{`say "hi" NEAR(x)`, []string{"say", "hi", "NEAR(x"}},
		{"title:foo* ^bar", []string{"title:foo", "bar"}},
		{`""`, []string{}},
	}
	for _, tt := range tests {
		if got := terms(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("terms(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFTSMatch(t *testing.T) {
	if got := ftsMatch([]string{"graph", "lin"}); got != `"graph" "lin"*` {
		t.Errorf("ftsMatch = %q", got)
	}
}

func TestLikePattern(t *testing.T) {
	if got := likePattern(`50%_off\`); got != `%50\%\_off\\%` {
		t.Errorf("likePattern = %q", got)
	}
}
