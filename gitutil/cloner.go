// Package gitutil checks out remote repositories for loading.
package gitutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Checkout is a temporary clone. Cleanup removes it.
type Checkout struct {
	Path    string
	Commit  string
	Cleanup func()
}

type Option func(*Cloner)

// WithBranch clones a single branch instead of the remote HEAD.
func WithBranch(branch string) Option {
	return func(c *Cloner) {
		c.branch = branch
	}
}

// WithDepth sets the clone depth; zero fetches the full history.
func WithDepth(depth int) Option {
	return func(c *Cloner) {
		c.depth = depth
	}
}

// Cloner handles the temporary cloning of remote Git repositories.
type Cloner struct {
	logger *slog.Logger
	branch string
	depth  int
}

func NewCloner(logger *slog.Logger, opts ...Option) *Cloner {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cloner{logger: logger.With("component", "git_cloner"), depth: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone checks out repoURL into a temporary directory.
func (c *Cloner) Clone(ctx context.Context, repoURL string) (Checkout, error) {
	tempPath, err := os.MkdirTemp("", "chunkguard-repo-*")
	if err != nil {
		return Checkout{}, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup := func() {
		c.logger.Debug("Cleaning up temporary repository", "path", tempPath)
		_ = os.RemoveAll(tempPath)
	}

	c.logger.InfoContext(ctx, "Cloning repository", "url", repoURL, "path", tempPath, "branch", c.branch)

	opts := &git.CloneOptions{
		URL:   repoURL,
		Depth: c.depth,
	}
	if c.branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(c.branch)
		opts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, tempPath, false, opts)
	if err != nil {
		cleanup()
		return Checkout{}, fmt.Errorf("failed to clone repo '%s': %w", repoURL, err)
	}

	checkout := Checkout{Path: tempPath, Cleanup: cleanup}
	if head, err := repo.Head(); err == nil {
		checkout.Commit = head.Hash().String()
	}
	c.logger.InfoContext(ctx, "Repository cloned", "url", repoURL, "commit", checkout.Commit)
	return checkout, nil
}
