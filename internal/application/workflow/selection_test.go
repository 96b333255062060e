package workflow

import "testing"

func TestParseSelection(t *testing.T) {
	cases := []struct {
		in   string
		want Selection
	}{
		{"1", Selection{Kind: SelectIndex, Index: 0}},
		{"  2 ", Selection{Kind: SelectIndex, Index: 1}},
		{"First", Selection{Kind: SelectIndex, Index: 0}},
		{"the 2nd one please", Selection{Kind: SelectIndex, Index: 1}},
		{"#1", Selection{Kind: SelectIndex, Index: 0}},
		{"one", Selection{Kind: SelectIndex, Index: 0}},
		{"two", Selection{Kind: SelectIndex, Index: 1}},
		{"both!", Selection{Kind: SelectIndex, Index: 0, Both: true}},
		{"neither", Selection{Kind: SelectRemake}},
		{"none of them, regenerate", Selection{Kind: SelectRemake}},
		{"redo", Selection{Kind: SelectRemake}},
		{"1 or 2, can't decide", Selection{Kind: SelectRemake, Feedback: "1 or 2, can't decide"}},
		{"more drums", Selection{Kind: SelectRemake, Feedback: "more drums"}},
	}
	for _, tc := range cases {
		if got := ParseSelection(tc.in); got != tc.want {
			t.Fatalf("ParseSelection(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
