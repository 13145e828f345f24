package guard

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/cases"

	"github.com/sevigo/chunkguard/parsers"
	"github.com/sevigo/chunkguard/schema"
)

// LanguageBinary is reported for content that is not text.
const LanguageBinary = "binary"

// Detector names the language of a file.
type Detector interface {
	Detect(filePath, content string) schema.DetectionResult
}

var interpreters = map[string]string{
	"python":  "python",
	"python3": "python",
	"node":    "javascript",
	"deno":    "typescript",
	"bash":    "shell",
	"sh":      "shell",
	"zsh":     "shell",
	"ruby":    "ruby",
	"perl":    "perl",
	"php":     "php",
	"lua":     "lua",
	"Rscript": "r",
}

// mimeLanguages maps detected MIME types onto language names, most specific
// first.
var mimeLanguages = []struct {
	mime     string
	language string
}{
	{"application/json", "json"},
	{"text/html", "html"},
	{"text/xml", "xml"},
	{"text/x-python", "python"},
	{"text/x-shellscript", "shell"},
	{"text/x-php", "php"},
	{"text/javascript", "javascript"},
	{"text/x-lua", "lua"},
	{"text/x-perl", "perl"},
}

var (
	goPackagePattern = regexp.MustCompile(`(?m)^package\s+\w+\s*$`)
	goFuncPattern    = regexp.MustCompile(`(?m)^func\s`)
	pythonDefPattern = regexp.MustCompile(`(?m)^\s*(def|class)\s+\w+.*:\s*$`)
	headingPattern   = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
)

// DefaultDetector tries the file name first, then a shebang, then the
// content itself.
type DefaultDetector struct {
	registry parsers.ParserRegistry
}

var _ Detector = (*DefaultDetector)(nil)

// NewDetector uses the registry's language table when registry is non-nil.
func NewDetector(registry parsers.ParserRegistry) *DefaultDetector {
	return &DefaultDetector{registry: registry}
}

func (d *DefaultDetector) Detect(filePath, content string) schema.DetectionResult {
	if filePath != "" {
		if lang := d.byPath(filePath); lang != schema.LanguageUnknown {
			return schema.DetectionResult{Language: lang, Confidence: 0.9, Method: schema.DetectionMethodExtension}
		}
	}
	if lang, ok := d.byShebang(content); ok {
		return schema.DetectionResult{Language: lang, Confidence: 0.8, Method: schema.DetectionMethodShebang}
	}
	if IsBinary(content) {
		return schema.DetectionResult{Language: LanguageBinary, Confidence: 0.9, Method: schema.DetectionMethodContent}
	}
	if lang, ok := d.byContent(content); ok {
		return schema.DetectionResult{Language: lang, Confidence: 0.6, Method: schema.DetectionMethodContent}
	}
	return schema.DetectionResult{Language: schema.LanguageUnknown, Method: schema.DetectionMethodDefault}
}

func (d *DefaultDetector) byPath(filePath string) string {
	var lang string
	if d.registry != nil {
		lang = d.registry.LanguageForFile(filePath)
	} else {
		lang = parsers.LanguageForFile(filePath)
	}
	if lang == "" {
		return schema.LanguageUnknown
	}
	// a Caser is stateful, so one per call
	return cases.Fold().String(lang)
}

func (d *DefaultDetector) byShebang(content string) (string, bool) {
	if !strings.HasPrefix(content, "#!") {
		return "", false
	}
	first, _, _ := strings.Cut(content, "\n")
	fields := strings.Fields(strings.TrimPrefix(first, "#!"))
	if len(fields) == 0 {
		return "", false
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		if len(fields) < 2 {
			return "", false
		}
		interp = fields[1]
	}
	if lang, ok := interpreters[interp]; ok {
		return lang, true
	}
	// python3.12, ruby2.7 and similar versioned names
	trimmed := strings.TrimRight(interp, "0123456789.")
	lang, ok := interpreters[trimmed]
	return lang, ok
}

func (d *DefaultDetector) byContent(content string) (string, bool) {
	mime := mimetype.Detect([]byte(content))
	for _, m := range mimeLanguages {
		if mime.Is(m.mime) {
			return m.language, true
		}
	}

	switch {
	case goPackagePattern.MatchString(content) && goFuncPattern.MatchString(content):
		return "go", true
	case pythonDefPattern.MatchString(content):
		return "python", true
	case headingPattern.MatchString(content):
		return "markdown", true
	}
	return "", false
}

// IsBinary reports content whose detected type does not descend from
// text/plain.
func IsBinary(content string) bool {
	if content == "" {
		return false
	}
	for m := mimetype.Detect([]byte(content)); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return false
		}
	}
	return true
}
