package patch

import "time"

// englishVariants never pair with each other
var englishVariants = map[string]struct{}{
	"en":     {},
	"simple": {},
}

type matrixState int

const (
	seekLanguagesMarker matrixState = iota
	consumeExclusions
	consumeItems
)

// itemSet keeps insertion order and tracks whether every occurrence of an item was removed
type itemSet struct {
	order []string
	kept  map[string]bool
}

func newItemSet() *itemSet {
	return &itemSet{kept: make(map[string]bool)}
}

func (s *itemSet) add(item string, removed bool) {
	kept, seen := s.kept[item]
	if !seen {
		s.order = append(s.order, item)
	}
	s.kept[item] = kept || !removed
}

func (s *itemSet) contains(item string) bool {
	_, ok := s.kept[item]
	return ok
}

// removed reports whether the item only appeared on removed lines
func (s *itemSet) removed(item string) bool {
	kept, ok := s.kept[item]
	return ok && !kept
}

// ParseCapabilityMatrix collects the exclusion list and the item list and
// emits every ordered pair (a, b) with a != b, b not excluded, and a and b
// not both English variants. A pair is Removed when either item's line was
// removed in this patch.
func ParseCapabilityMatrix(engine string, lines []string, ts time.Time) Result {
	result := Result{Dialect: CapabilityMatrix}

	exclusions := newItemSet()
	items := newItemSet()
	state := seekLanguagesMarker

	for i := 1; i < len(lines); i++ {
		line := lines[i]

		switch stripMarker(line) {
		case notAsTargetMarker:
			state = consumeExclusions
			continue
		case languagesMarker:
			state = consumeItems
			continue
		}

		item, removed, ok := matchValue(line)
		if !ok {
			// Another top-level key closes the current list
			if _, isKey := matchKey(line); isKey {
				state = seekLanguagesMarker
			}
			continue
		}

		switch state {
		case consumeExclusions:
			exclusions.add(item, removed)
		case consumeItems:
			items.add(item, removed)
		}
	}

	for _, a := range items.order {
		for _, b := range items.order {
			if a == b {
				continue
			}
			// A removed exclusion no longer applies after this commit
			if exclusions.contains(b) && !exclusions.removed(b) {
				continue
			}
			if isEnglishVariant(a) && isEnglishVariant(b) {
				continue
			}
			result.Records = append(result.Records,
				newRecord(engine, a, b, ts, items.removed(a) || items.removed(b)))
		}
	}

	return result
}

func isEnglishVariant(item string) bool {
	_, ok := englishVariants[item]
	return ok
}
