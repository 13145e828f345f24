package textsplitter

import (
	"context"
	"regexp"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

var (
	declarationPattern = regexp.MustCompile(
		`\b(func|function|def|class|struct|interface|type|const|var|let|fn|impl|enum|trait|module|namespace|package|import|export|public|private|protected|static)\b`)
	controlFlowPattern = regexp.MustCompile(
		`\b(if|else|elif|for|foreach|while|do|switch|case|select|match|try|catch|except|finally|when|unless)\b`)
	jumpPattern = regexp.MustCompile(`\b(return|break|continue|goto|throw|raise|yield|defer)\b`)
)

var (
	commentPrefixes = []string{"//", "/*", "*", "#", "--", "<!--", `"""`, "'''", ";;"}
	commentOpeners  = []string{"//", "/*", "<!--", `"""`, "'''"}
	loneClosers     = map[string]struct{}{"}": {}, ")": {}, "]": {}, "},": {}, "),": {}, "],": {}, "})": {}, "end": {}}
	terminators     = map[string]struct{}{";": {}, "};": {}, ");": {}, "});": {}, "];": {}}
	preprocessor    = []string{"#include", "#define", "#if", "#else", "#endif", "#pragma", "#undef", "#import", "#region", "#endregion"}
)

const (
	declarationBonus = 15
	controlFlowBonus = 10
	jumpBonus        = 5
	commentFactor    = 0.3
	blankLineScore   = 1
)

func isCommentLine(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return isHashComment(trimmed)
	}
	for _, prefix := range commentPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func isHashComment(trimmed string) bool {
	for _, directive := range preprocessor {
		if strings.HasPrefix(trimmed, directive) {
			return false
		}
	}
	return !strings.HasPrefix(trimmed, "#!")
}

func isCommentOpener(trimmed string) bool {
	if strings.HasPrefix(trimmed, "#") {
		return isHashComment(trimmed)
	}
	for _, prefix := range commentOpeners {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// lineScore weighs a line by its length, the keyword classes it contains and
// its bracket density. Comments are damped and blank lines score a constant.
func lineScore(line string) float64 {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return blankLineScore
	}

	score := float64(len(line))
	if declarationPattern.MatchString(trimmed) {
		score += declarationBonus
	}
	if controlFlowPattern.MatchString(trimmed) {
		score += controlFlowBonus
	}
	if jumpPattern.MatchString(trimmed) {
		score += jumpBonus
	}
	score += float64(strings.Count(trimmed, "{") + strings.Count(trimmed, "}"))
	score += 0.5 * float64(strings.Count(trimmed, "(")+strings.Count(trimmed, ")")+
		strings.Count(trimmed, "[")+strings.Count(trimmed, "]"))

	if isCommentLine(trimmed) {
		score *= commentFactor
	}
	return score
}

// runSemantic cuts at natural boundaries: closing brackets, statement
// terminators, blank lines and comment openers, once enough lines are
// buffered. A running score bounds the chunk before the byte ceiling does.
func (sc *scanner) runSemantic(ctx context.Context) ([]schema.Chunk, error) {
	budget := scoreBudgetRatio * float64(sc.opts.MaxChunkSize)
	prevComment := false

	for i, line := range sc.lines {
		if !sc.guard(ctx, i) {
			return sc.chunks, nil
		}

		trimmed := strings.TrimSpace(line)
		score := lineScore(line)
		comment := isCommentLine(trimmed)

		if sc.fresh() > 0 {
			switch {
			case sc.score+score > budget,
				sc.projected(i) > sc.opts.MaxChunkSize,
				sc.buffered() >= sc.opts.MaxLinesPerChunk,
				isCommentOpener(trimmed) && !prevComment && sc.fresh() >= minLinesForComment:
				sc.cut()
			}
		}

		sc.push(i, score)
		prevComment = comment

		if sc.boundaryAfter(trimmed) {
			sc.cut()
		}
	}
	return sc.finish(), nil
}

// boundaryAfter reports whether the just-pushed line closes a unit.
func (sc *scanner) boundaryAfter(trimmed string) bool {
	fresh := sc.fresh()
	if trimmed == "" {
		return fresh > minLinesForBlank
	}
	if _, ok := terminators[trimmed]; ok {
		return fresh > minLinesForEnd
	}
	if _, ok := loneClosers[trimmed]; ok {
		return fresh > minLinesForClose
	}
	return false
}
