package workflow

import "strings"

// SelectionKind classifies a reply to the version choice.
type SelectionKind int

const (
	SelectIndex SelectionKind = iota
	SelectRemake
)

// Selection is the parsed reply to the version choice.
type Selection struct {
	Kind     SelectionKind
	Index    int
	Both     bool
	Feedback string
}

var (
	firstWords  = map[string]bool{"1": true, "1st": true, "first": true, "#1": true}
	secondWords = map[string]bool{"2": true, "2nd": true, "second": true, "#2": true}
	remakeWords = map[string]bool{"neither": true, "none": true, "regenerate": true, "again": true, "remake": true, "redo": true}
)

// ParseSelection interprets a reply to the version choice. Anything that is
// not a clear choice is treated as feedback for a new attempt.
func ParseSelection(text string) Selection {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch normalized {
	case "one":
		return Selection{Kind: SelectIndex, Index: 0}
	case "two":
		return Selection{Kind: SelectIndex, Index: 1}
	}

	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == '\n' || r == '\t'
	})
	var first, second, both, remake bool
	for _, w := range words {
		switch {
		case firstWords[w]:
			first = true
		case secondWords[w]:
			second = true
		case w == "both":
			both = true
		case remakeWords[w]:
			remake = true
		}
	}

	switch {
	case remake:
		return Selection{Kind: SelectRemake}
	case both:
		return Selection{Kind: SelectIndex, Index: 0, Both: true}
	case first && !second:
		return Selection{Kind: SelectIndex, Index: 0}
	case second && !first:
		return Selection{Kind: SelectIndex, Index: 1}
	}
	return Selection{Kind: SelectRemake, Feedback: strings.TrimSpace(text)}
}
