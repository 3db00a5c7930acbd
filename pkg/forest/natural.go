package forest

import (
	"sort"
	"strings"
)

// NaturalSort orders strings case-insensitively with embedded integers
// compared numerically, so "v2" sorts before "v10".
func NaturalSort(items []string) {
	sort.SliceStable(items, func(i, j int) bool {
		return naturalLess(items[i], items[j])
	})
}

func naturalLess(a, b string) bool {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		if isDigit(a[ai]) && isDigit(b[bi]) {
			aj, bj := ai, bi
			for aj < len(a) && isDigit(a[aj]) {
				aj++
			}
			for bj < len(b) && isDigit(b[bj]) {
				bj++
			}
			av := strings.TrimLeft(a[ai:aj], "0")
			bv := strings.TrimLeft(b[bi:bj], "0")
			switch {
			case len(av) != len(bv):
				return len(av) < len(bv)
			case av != bv:
				return av < bv
			}
			ai, bi = aj, bj
			continue
		}
		ac, bc := lowerByte(a[ai]), lowerByte(b[bi])
		if ac != bc {
			return ac < bc
		}
		ai++
		bi++
	}
	return len(a)-ai < len(b)-bi
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
