package textsplitter

import (
	"math"
	"strings"
)

// Complexity is a descriptive score: control flow keywords weigh 2,
// declarations 3, braces 1 and parentheses 0.5, plus log2 of the line count.
func Complexity(content string) int {
	if content == "" {
		return 0
	}
	controlFlow := len(controlFlowPattern.FindAllStringIndex(content, -1))
	declarations := len(declarationPattern.FindAllStringIndex(content, -1))
	braces := strings.Count(content, "{") + strings.Count(content, "}")
	parens := strings.Count(content, "(") + strings.Count(content, ")")
	lines := strings.Count(content, "\n") + 1

	score := float64(controlFlow)*2 +
		float64(declarations)*3 +
		float64(braces) +
		float64(parens)*0.5 +
		math.Log2(float64(lines)+1)
	return int(math.Round(score))
}
