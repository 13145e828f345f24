package protection

import (
	"context"
	"fmt"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/sevigo/chunkguard/schema"
)

// RateLimitKey is the metadata entry a context uses to pick its rate limit
// bucket. Without it the operation type is the key.
const RateLimitKey = "rate_limit_key"

// RateLimitInterceptor limits how often an operation may run, per key, using
// an in-memory token store.
type RateLimitInterceptor struct {
	info
	limiter *limiter.Limiter
}

var _ Interceptor = (*RateLimitInterceptor)(nil)

func NewRateLimitInterceptor(rate limiter.Rate, opts ...Option) *RateLimitInterceptor {
	return &RateLimitInterceptor{
		info:    newInfo("rate_limit", PriorityRateLimit, "Limits how often an operation may run", opts),
		limiter: limiter.New(memory.NewStore(), rate),
	}
}

// NewRateLimitInterceptorFromFormat accepts rates like "100-S" or "1000-M".
func NewRateLimitInterceptorFromFormat(formatted string, opts ...Option) (*RateLimitInterceptor, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return NewRateLimitInterceptor(rate, opts...), nil
}

func (r *RateLimitInterceptor) IsAvailable() bool { return r.limiter != nil }

func (r *RateLimitInterceptor) IsApplicable(pc *schema.ProtectionContext) bool {
	return pc != nil && rateKey(pc) != ""
}

func rateKey(pc *schema.ProtectionContext) string {
	if key, ok := pc.Metadata[RateLimitKey].(string); ok && key != "" {
		return key
	}
	return pc.OperationType
}

func (r *RateLimitInterceptor) Intercept(ctx context.Context, pc *schema.ProtectionContext) (schema.ProtectionDecision, error) {
	key := rateKey(pc)
	lctx, err := r.limiter.Get(ctx, key)
	if err != nil {
		return schema.ProtectionDecision{}, fmt.Errorf("rate limit lookup for %s: %w", key, err)
	}
	if !lctx.Reached {
		return schema.Allow("rate limit not reached").WithMetadata("remaining", lctx.Remaining), nil
	}
	return schema.Deny(fmt.Sprintf("rate limit of %d reached for %s", lctx.Limit, key), "").
		WithMetadata("reset", lctx.Reset), nil
}
