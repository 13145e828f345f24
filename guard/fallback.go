package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/sevigo/chunkguard/protection"
	"github.com/sevigo/chunkguard/schema"
	"github.com/sevigo/chunkguard/textsplitter"
)

// FallbackDecision names the recovery strategy for a failed file.
type FallbackDecision struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// FallbackEngine picks a recovery strategy from a failure and whatever
// detection had produced before it.
type FallbackEngine interface {
	DetermineFallbackStrategy(filePath string, err error, det *schema.DetectionResult) FallbackDecision
}

// RuleFallbackEngine classifies errors by sentinel and by message: memory
// and timeout failures go to the line algorithm, parse failures to bracket
// balancing, everything else to generic splitting.
type RuleFallbackEngine struct{}

var _ FallbackEngine = RuleFallbackEngine{}

func (RuleFallbackEngine) DetermineFallbackStrategy(filePath string, err error, det *schema.DetectionResult) FallbackDecision {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}

	switch {
	case errors.Is(err, ErrMemoryPressure) || strings.Contains(msg, "memory"):
		return FallbackDecision{Strategy: string(schema.ChunkTypeLine), Reason: "memory pressure: " + errMessage(err)}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrInitTimeout) ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return FallbackDecision{Strategy: string(schema.ChunkTypeLine), Reason: "timeout: " + errMessage(err)}
	case errors.Is(err, textsplitter.ErrAlgorithmPanicked) || strings.Contains(msg, "parse") || strings.Contains(msg, "syntax"):
		return FallbackDecision{Strategy: string(schema.ChunkTypeBracket), Reason: "parse failure: " + errMessage(err)}
	case errors.Is(err, protection.ErrOperationBlocked):
		return FallbackDecision{Strategy: string(schema.ChunkTypeLine), Reason: "blocked: " + errMessage(err)}
	case det == nil || det.Language == "" || det.Language == schema.LanguageUnknown:
		return FallbackDecision{Strategy: string(schema.ChunkTypeGeneric), Reason: "unknown language for " + filePath + ": " + errMessage(err)}
	default:
		return FallbackDecision{Strategy: string(schema.ChunkTypeGeneric), Reason: errMessage(err)}
	}
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
