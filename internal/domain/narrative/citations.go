package narrative

import "regexp"

var citationPattern = regexp.MustCompile(`\[Source: [^|\]]+ \| [A-Za-z_]+=[^\]\s]+\]`)

// ExtractCitations returns the distinct citation brackets in text, in order
// of first appearance.
func ExtractCitations(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range citationPattern.FindAllString(text, -1) {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
