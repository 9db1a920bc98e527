package diagnostics

import "sort"

// Suggest returns up to 5 names from registered within maxDistance edits
// of requested, closest first, for the miss-diagnostics typo hint. No
// fuzzy-matching library covers this narrow a need, so this is a plain
// Levenshtein distance — see DESIGN.md for the standard-library justification.
func Suggest(requested string, registered []string, maxDistance int) []string {
	type scored struct {
		name string
		dist int
	}
	var candidates []scored
	for _, name := range registered {
		if name == requested {
			continue
		}
		d := levenshtein(requested, name)
		if d <= maxDistance {
			candidates = append(candidates, scored{name, d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	const maxSuggestions = 5
	out := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, c.name)
	}
	return out
}

// levenshtein computes the classic edit distance between a and b using
// a two-row dynamic-programming table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			deletion := prev[j] + 1
			insertion := curr[j-1] + 1
			substitution := prev[j-1] + cost
			curr[j] = min3(deletion, insertion, substitution)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
