package textsplitter

import (
	"context"
	"regexp"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

// tagPattern matches an opening, closing or self-closing element tag.
// Declarations and processing instructions (<!, <?) never match.
var tagPattern = regexp.MustCompile(`<(/?)[A-Za-z][\w:.-]*(?:\s[^<>]*?)?(/?)>`)

var markupLanguages = map[string]struct{}{
	"html": {}, "xml": {}, "xhtml": {}, "svg": {}, "vue": {}, "svelte": {}, "jsx": {}, "tsx": {},
}

// tracksTags is false for code where angle brackets are mostly generics or
// comparisons.
func tracksTags(language, filePath string) bool {
	if _, ok := markupLanguages[strings.ToLower(language)]; ok {
		return true
	}
	return !schema.IsCodeFile(language, filePath)
}

func bracketDelta(line string) int {
	delta := 0
	for _, r := range line {
		switch r {
		case '(', '{', '[':
			delta++
		case ')', '}', ']':
			delta--
		}
	}
	return delta
}

func tagDelta(line string) int {
	delta := 0
	for _, m := range tagPattern.FindAllStringSubmatch(line, -1) {
		switch {
		case m[1] == "/":
			delta--
		case m[2] == "/":
		default:
			delta++
		}
	}
	return delta
}

// runBracket cuts only where both bracket depth and tag depth return to zero,
// unless a line or size ceiling forces the cut first.
func (sc *scanner) runBracket(ctx context.Context) ([]schema.Chunk, error) {
	tags := tracksTags(sc.language, sc.filePath)
	ceiling := sc.opts.ToleratedSize()
	depth, tagDepth := 0, 0

	for i, line := range sc.lines {
		if !sc.guard(ctx, i) {
			return sc.chunks, nil
		}

		if sc.fresh() > 0 &&
			(sc.buffered() >= sc.opts.MaxLinesPerChunk || sc.projected(i) > ceiling) {
			sc.cut()
		}
		sc.push(i, 0)

		depth = max(0, depth+bracketDelta(line))
		if tags {
			tagDepth = max(0, tagDepth+tagDelta(line))
		}
		if depth == 0 && tagDepth == 0 && sc.fresh() >= minLinesForBalance {
			sc.cut()
		}
	}
	return sc.finish(), nil
}
