package protection

import (
	"log/slog"
	"time"

	"github.com/sevigo/chunkguard/memguard"
)

// Config selects the built-in interceptors of a default chain. Zero values
// leave the corresponding interceptor out.
type Config struct {
	MemoryLimitMB int           `koanf:"memory_limit_mb" validate:"gte=0"`
	MaxErrors     int           `koanf:"max_errors" validate:"gte=0"`
	ResetInterval time.Duration `koanf:"reset_interval" validate:"gte=0"`
	MaxFileSize   int64         `koanf:"max_file_size" validate:"gte=0"`
	// RateLimit uses the "<limit>-<period>" format, e.g. "100-S".
	RateLimit string `koanf:"rate_limit"`
}

// DefaultChain is a chain plus the error threshold interceptor in it, which
// callers need for recording errors.
type DefaultChain struct {
	Chain          *Chain
	ErrorThreshold *ErrorThresholdInterceptor
}

// NewDefaultChain builds the memory, error threshold, file size and rate
// limit interceptors from cfg. The error threshold interceptor is always
// present.
func NewDefaultChain(cfg Config, sample memguard.Sampler, logger *slog.Logger) (DefaultChain, error) {
	errs := NewErrorThresholdInterceptor(cfg.MaxErrors, cfg.ResetInterval, logger)
	interceptors := []Interceptor{errs}

	if cfg.MemoryLimitMB > 0 {
		interceptors = append(interceptors, NewMemoryInterceptor(cfg.MemoryLimitMB, sample))
	}
	if cfg.MaxFileSize > 0 {
		interceptors = append(interceptors, NewFileSizeInterceptor(cfg.MaxFileSize))
	}
	if cfg.RateLimit != "" {
		rl, err := NewRateLimitInterceptorFromFormat(cfg.RateLimit)
		if err != nil {
			return DefaultChain{}, err
		}
		interceptors = append(interceptors, rl)
	}
	return DefaultChain{Chain: NewChain(interceptors...), ErrorThreshold: errs}, nil
}
