package eskip

import "regexp"

// predicateBoundaryRegexp matches a comma immediately followed by an
// identifier and "=", i.e. the start of a new predicate shortcut, so that
// ParseRoute can split "uri,Pred1=a,b,Pred2=c" without being confused by the
// commas inside a predicate's own argument list.
//
// Go's regexp package (RE2) does not support lookahead assertions, so the
// boundary is matched as ",Name=" in full; splitPredicateBoundaries below
// only consumes the comma itself, leaving "Name=" attached to the next part.
func predicateBoundaryRegexp() *regexp.Regexp {
	return regexp.MustCompile(`,[A-Za-z_][A-Za-z0-9_]*=`)
}

// splitPredicateBoundaries splits s at every boundary matched by re,
// consuming only the leading comma of each match so the rest of the match
// (the "Name=" text) stays in the following part.
func splitPredicateBoundaries(s string, re *regexp.Regexp) []string {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}

	parts := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		parts = append(parts, s[prev:loc[0]])
		prev = loc[0] + 1
	}
	parts = append(parts, s[prev:])

	return parts
}
