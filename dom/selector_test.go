package dom

import "testing"

func TestCompileAndMatch(t *testing.T) {
	t.Parallel()
	d := MustParse(`<meta name="twitter-site-verification" content="k"/>` +
		`<svg id="loading-x-anim-2"></svg><svg id="other"></svg><SVG id="loading-x-anim-3"></SVG>` +
		`<meta name="" content="empty"/>`)

	tests := []struct {
		name string
		sel  string
		want int
	}{
		{"tag", "svg", 3},
		{"tag_case_insensitive", "SvG", 3},
		{"star", "*", 6},
		{"equals_unquoted", "meta[name=twitter-site-verification]", 1},
		{"equals_single_quoted", "meta[name='twitter-site-verification']", 1},
		{"equals_double_quoted", `meta[name="twitter-site-verification"]`, 1},
		{"equals_no_match", "meta[name=twitter]", 0},
		{"prefix", "svg[id^=loading-x-anim]", 2},
		{"prefix_star", "*[id^='loading']", 2},
		{"empty_value_is_tag_only", "meta[name='']", 2},
		{"descendant_combinator", "div svg", 0},
		{"class_selector", ".cls", 0},
		{"bad_attr_operator", "svg[id~=x]", 0},
		{"unterminated", "svg[id=x", 0},
		{"blank", "", 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := len(d.FindAll(tc.sel)); got != tc.want {
				t.Fatalf("FindAll(%q) = %d matches, want %d (compiled %s)", tc.sel, got, tc.want, Compile(tc.sel))
			}
		})
	}
}

func TestEmptyAttributeNeverMatchesFilter(t *testing.T) {
	d := MustParse(`<meta name content="x"/>`)
	if _, ok := d.Find("meta[name^=a]"); ok {
		t.Fatalf("valueless attribute matched a prefix filter")
	}
	if _, ok := d.Find("meta[content=x]"); !ok {
		t.Fatalf("meta[content=x] did not match")
	}
}

func TestZeroSelectorMatchesNothing(t *testing.T) {
	d := MustParse(`<a></a>`)
	var s Selector
	if s.Match(d, Root) {
		t.Fatalf("zero Selector matched root")
	}
	if got := s.String(); got != "<never>" {
		t.Fatalf("String() = %q", got)
	}
}
