package textsplitter

import (
	"fmt"
	"unicode"

	"github.com/sevigo/chunkguard/schema"
)

const (
	minSignificanceRatio = 0.25
	minSignificantChars  = 3
)

// ValidateOptions accepts nil, meaning the splitter defaults.
func ValidateOptions(opts *schema.ChunkingOptions) error {
	if opts == nil {
		return nil
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("validate split options: %w", err)
	}
	return nil
}

// HasSignificantContent reports whether at least a quarter of the visible
// characters are letters or digits.
func HasSignificantContent(content string) bool {
	significant, visible := analyzeContentCharacters(content)
	if visible == 0 {
		return false
	}
	ratio := float64(significant) / float64(visible)
	return ratio >= minSignificanceRatio && significant >= minSignificantChars
}

func analyzeContentCharacters(content string) (int, int) {
	var significant, visible int
	for _, r := range content {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			significant++
		}
	}
	return significant, visible
}
