package schema

// DetectionResult is what a language detector reports for a file.
type DetectionResult struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

const (
	DetectionMethodExtension = "extension"
	DetectionMethodShebang   = "shebang"
	DetectionMethodContent   = "content"
	DetectionMethodDefault   = "default"
)

// LanguageUnknown is reported when nothing matched.
const LanguageUnknown = "unknown"
