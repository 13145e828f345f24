package guard

import (
	"math"
	"regexp"
	"strings"

	"github.com/sevigo/chunkguard/schema"
	"github.com/sevigo/chunkguard/strategy"
	"github.com/sevigo/chunkguard/textsplitter"
)

const maxComplexity = 10

var (
	importPattern   = regexp.MustCompile(`(?m)^\s*(import\b|from\s+\S+\s+import\b|#include\b|using\s+[\w.]+;|require\(|use\s+[\w:]+;)`)
	exportPattern   = regexp.MustCompile(`(?m)^\s*(export\b|module\.exports|pub\s+(fn|struct|enum|mod|trait)\b)`)
	functionPattern = regexp.MustCompile(`(?m)\b(func|function|def|fn)\b\s*[\w.]*\s*\(|=>\s*\{`)
	classPattern    = regexp.MustCompile(`(?m)^\s*(export\s+)?(abstract\s+)?(public\s+)?(class|interface|trait)\s+\w+|^type\s+\w+\s+(struct|interface)\b`)
)

var xmlLanguages = map[string]struct{}{
	"xml": {}, "html": {}, "svg": {}, "xhtml": {}, "vue": {},
}

// ProcessingContext is the feature bag derived from a file before a
// strategy is chosen.
type ProcessingContext struct {
	FilePath     string                 `json:"filePath"`
	Language     string                 `json:"language"`
	Detection    schema.DetectionResult `json:"detection"`
	Size         int                    `json:"size"`
	LineCount    int                    `json:"lineCount"`
	IsCode       bool                   `json:"isCode"`
	IsMarkdown   bool                   `json:"isMarkdown"`
	IsXML        bool                   `json:"isXml"`
	HasImports   bool                   `json:"hasImports"`
	HasExports   bool                   `json:"hasExports"`
	HasFunctions bool                   `json:"hasFunctions"`
	HasClasses   bool                   `json:"hasClasses"`
	// Complexity is log2 of the raw complexity score over ten, clamped to 0-10.
	Complexity int `json:"complexity"`
}

func NewProcessingContext(filePath, content string, det schema.DetectionResult) ProcessingContext {
	lang := strings.ToLower(det.Language)
	_, xml := xmlLanguages[lang]
	pc := ProcessingContext{
		FilePath:   filePath,
		Language:   det.Language,
		Detection:  det,
		Size:       len(content),
		LineCount:  strings.Count(content, "\n") + 1,
		IsMarkdown: schema.IsMarkdown(lang, filePath),
		IsXML:      xml,
	}
	if content == "" {
		pc.LineCount = 0
	}
	pc.IsCode = schema.IsCodeFile(lang, filePath)
	if pc.IsCode {
		pc.HasImports = importPattern.MatchString(content)
		pc.HasExports = exportPattern.MatchString(content)
		pc.HasFunctions = functionPattern.MatchString(content)
		pc.HasClasses = classPattern.MatchString(content)
	}
	pc.Complexity = boundedComplexity(content)
	return pc
}

func boundedComplexity(content string) int {
	raw := textsplitter.Complexity(content)
	if raw <= 0 {
		return 0
	}
	score := int(math.Round(math.Log2(1 + float64(raw)/10)))
	return min(maxComplexity, max(0, score))
}

// Hints converts the context into strategy selection hints.
func (p ProcessingContext) Hints() strategy.Hints {
	return strategy.Hints{
		IsCode:     p.IsCode,
		IsMarkdown: p.IsMarkdown,
		IsXML:      p.IsXML,
		Complexity: p.Complexity,
		Size:       p.Size,
	}
}
