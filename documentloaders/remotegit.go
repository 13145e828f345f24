package documentloaders

import (
	"context"
	"log/slog"

	"github.com/sevigo/chunkguard/gitutil"
	"github.com/sevigo/chunkguard/schema"
)

// RemoteGitRepoLoader shallow-clones a repository into a temporary
// directory and loads it with a GitLoader.
type RemoteGitRepoLoader struct {
	RepoURL string
	Logger  *slog.Logger
	Options []GitLoaderOption
	Clone   []gitutil.Option
}

func NewRemoteGitRepoLoader(repoURL string, logger *slog.Logger, opts ...GitLoaderOption) *RemoteGitRepoLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteGitRepoLoader{
		RepoURL: repoURL,
		Logger:  logger,
		Options: opts,
	}
}

func (l *RemoteGitRepoLoader) Load(ctx context.Context) ([]schema.Document, error) {
	checkout, err := gitutil.NewCloner(l.Logger, l.Clone...).Clone(ctx, l.RepoURL)
	if err != nil {
		return nil, err
	}
	defer checkout.Cleanup()

	opts := append([]GitLoaderOption{WithLogger(l.Logger)}, l.Options...)
	local, err := NewGit(checkout.Path, opts...)
	if err != nil {
		return nil, err
	}

	documents, err := local.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range documents {
		documents[i].Metadata["original_source_url"] = l.RepoURL
		if checkout.Commit != "" {
			documents[i].Metadata["commit"] = checkout.Commit
		}
	}
	return documents, nil
}
