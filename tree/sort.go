package tree

import (
	"slices"
	"strings"

	"github.com/jesspatton/testexplorer/config"
)

// Sorted returns a copy of nodes ordered for display. With no order the
// adapter's order is kept.
func Sorted(nodes []*Node, order config.SortOrder) []*Node {
	out := append([]*Node(nil), nodes...)

	var cmp func(a, b *Node) int
	switch order {
	case config.SortByLabel:
		cmp = compareLabel
	case config.SortByLocation:
		cmp = compareLocation
	case config.SortByLabelWithSuitesFirst:
		cmp = suitesFirst(compareLabel)
	case config.SortByLocationWithSuitesFirst:
		cmp = suitesFirst(compareLocation)
	default:
		return out
	}

	slices.SortStableFunc(out, cmp)
	return out
}

func compareLabel(a, b *Node) int {
	return naturalCompare(a.Label(), b.Label())
}

// compareLocation orders located nodes before unlocated ones, then by file,
// line and label.
func compareLocation(a, b *Node) int {
	switch {
	case a.file != "" && b.file != "":
		if c := strings.Compare(a.file, b.file); c != 0 {
			return c
		}
	case a.file != "":
		return -1
	case b.file != "":
		return 1
	}

	switch {
	case a.line != nil && b.line != nil:
		if c := *a.line - *b.line; c != 0 {
			return c
		}
	case a.line != nil:
		return -1
	case b.line != nil:
		return 1
	}

	return compareLabel(a, b)
}

func suitesFirst(cmp func(a, b *Node) int) func(a, b *Node) int {
	return func(a, b *Node) int {
		aSuite, bSuite := a.kind == KindSuite, b.kind == KindSuite
		switch {
		case aSuite && !bSuite:
			return -1
		case !aSuite && bSuite:
			return 1
		}
		return cmp(a, b)
	}
}

// naturalCompare compares strings case-insensitively, treating runs of
// digits as numbers so "test 2" sorts before "test 10".
func naturalCompare(a, b string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	i, j := 0, 0
	for i < len(la) && j < len(lb) {
		ca, cb := la[i], lb[j]
		if isDigit(ca) && isDigit(cb) {
			si := i
			for i < len(la) && isDigit(la[i]) {
				i++
			}
			sj := j
			for j < len(lb) && isDigit(lb[j]) {
				j++
			}
			na := strings.TrimLeft(la[si:i], "0")
			nb := strings.TrimLeft(lb[sj:j], "0")
			if len(na) != len(nb) {
				return len(na) - len(nb)
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			return int(ca) - int(cb)
		}
		i++
		j++
	}

	if c := (len(la) - i) - (len(lb) - j); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
