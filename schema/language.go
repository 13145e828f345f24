package schema

import (
	"path/filepath"
	"strings"
)

var codeLanguages = map[string]struct{}{
	"go": {}, "javascript": {}, "typescript": {}, "python": {}, "java": {},
	"c": {}, "cpp": {}, "csharp": {}, "rust": {}, "ruby": {}, "php": {},
	"kotlin": {}, "swift": {}, "scala": {}, "lua": {}, "shell": {},
	"terraform": {}, "sql": {}, "dart": {}, "objectivec": {}, "perl": {},
	"r": {}, "elixir": {}, "haskell": {}, "vue": {}, "tsx": {}, "jsx": {},
	"protobuf": {},
}

// IsCodeLanguage reports whether language belongs to the known code set.
func IsCodeLanguage(language string) bool {
	_, ok := codeLanguages[strings.ToLower(language)]
	return ok
}

// IsMarkdown reports markdown by language name or by file extension.
func IsMarkdown(language, filePath string) bool {
	lang := strings.ToLower(language)
	if lang == "markdown" || lang == "md" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filePath))
	return ext == ".md" || ext == ".markdown"
}

// IsCodeFile classifies a file as code: a known code language that is not markdown.
func IsCodeFile(language, filePath string) bool {
	return IsCodeLanguage(language) && !IsMarkdown(language, filePath)
}
