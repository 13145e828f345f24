// Package protection gates chunking work behind an ordered chain of
// admission checks and a coordinator that fails open when the chain itself
// breaks.
package protection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sevigo/chunkguard/schema"
)

var (
	// ErrOperationBlocked is returned by ExecuteWithProtection when a check
	// denies the operation and no fallback was given.
	ErrOperationBlocked = errors.New("protection: operation blocked")
	ErrNilInterceptor   = errors.New("protection: interceptor is nil")
)

// Interceptor is one admission check. Lower priorities run first.
type Interceptor interface {
	Name() string
	Priority() int
	Description() string
	// IsAvailable reports whether the interceptor's own dependencies are healthy.
	IsAvailable() bool
	// IsApplicable reports whether the interceptor should evaluate pc at all.
	IsApplicable(pc *schema.ProtectionContext) bool
	Intercept(ctx context.Context, pc *schema.ProtectionContext) (schema.ProtectionDecision, error)
}

// Chain evaluates interceptors in ascending priority. Interceptors with the
// same priority keep their insertion order.
type Chain struct {
	mu           sync.RWMutex
	interceptors []Interceptor
}

func NewChain(interceptors ...Interceptor) *Chain {
	c := &Chain{}
	for _, i := range interceptors {
		if i != nil {
			c.interceptors = append(c.interceptors, i)
		}
	}
	c.sort()
	return c
}

func (c *Chain) sort() {
	slices.SortStableFunc(c.interceptors, func(a, b Interceptor) int {
		return a.Priority() - b.Priority()
	})
}

// Add inserts an interceptor, replacing one with the same name.
func (c *Chain) Add(i Interceptor) error {
	if i == nil {
		return ErrNilInterceptor
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = slices.DeleteFunc(c.interceptors, func(existing Interceptor) bool {
		return existing.Name() == i.Name()
	})
	c.interceptors = append(c.interceptors, i)
	c.sort()
	return nil
}

// Remove drops the interceptor with the given name and reports whether one
// was found.
func (c *Chain) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.interceptors)
	c.interceptors = slices.DeleteFunc(c.interceptors, func(i Interceptor) bool {
		return i.Name() == name
	})
	return len(c.interceptors) != before
}

// Interceptors returns the interceptors in evaluation order.
func (c *Chain) Interceptors() []Interceptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.interceptors)
}

// Execute runs the applicable interceptors. The first deny is returned as is;
// an interceptor error stops the chain and is returned wrapped. When all
// allow, the aggregate decision lists the evaluated interceptor names.
func (c *Chain) Execute(ctx context.Context, pc *schema.ProtectionContext) (schema.ProtectionDecision, error) {
	evaluated := make([]string, 0)
	for _, i := range c.Interceptors() {
		if !i.IsAvailable() || !i.IsApplicable(pc) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return schema.ProtectionDecision{}, err
		}

		decision, err := i.Intercept(ctx, pc)
		if err != nil {
			return schema.ProtectionDecision{}, fmt.Errorf("interceptor %s: %w", i.Name(), err)
		}
		evaluated = append(evaluated, i.Name())
		if !decision.Allow {
			return decision.WithMetadata("interceptor", i.Name()), nil
		}
	}
	return schema.Allow("all interceptors allowed").WithMetadata("evaluated", evaluated), nil
}
