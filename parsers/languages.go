package parsers

import (
	"path/filepath"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

var extensionLanguages = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".jsx":   "jsx",
	".ts":    "typescript",
	".tsx":   "tsx",
	".py":    "python",
	".java":  "java",
	".kt":    "kotlin",
	".scala": "scala",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rs":    "rust",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".lua":   "lua",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".sql":   "sql",
	".dart":  "dart",
	".m":     "objectivec",
	".pl":    "perl",
	".r":     "r",
	".ex":    "elixir",
	".exs":   "elixir",
	".hs":    "haskell",
	".vue":   "vue",
	".tf":    "terraform",
	".hcl":   "terraform",
	".md":    "markdown",
	".mdx":   "markdown",
	".html":  "html",
	".htm":   "html",
	".xml":   "xml",
	".svg":   "svg",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".proto": "protobuf",
	".txt":   "text",
	".rst":   "text",
	".csv":   "csv",
}

var fileNameLanguages = map[string]string{
	"makefile":    "make",
	"dockerfile":  "dockerfile",
	"jenkinsfile": "groovy",
}

// LanguageForFile maps a path to a language name using its extension or base
// name. Unknown files map to schema.LanguageUnknown.
func LanguageForFile(path string) string {
	if lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	if lang, ok := fileNameLanguages[strings.ToLower(filepath.Base(path))]; ok {
		return lang
	}
	return schema.LanguageUnknown
}

// KnownExtensions lists every extension in the static table.
func KnownExtensions() []string {
	exts := make([]string, 0, len(extensionLanguages))
	for ext := range extensionLanguages {
		exts = append(exts, ext)
	}
	return exts
}
