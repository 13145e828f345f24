// Package documentloaders reads files from local or remote repositories and
// command output into documents, optionally splitting them into chunks.
package documentloaders

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sevigo/chunkguard/guard"
	"github.com/sevigo/chunkguard/schema"
	"github.com/sevigo/chunkguard/textsplitter"
)

// DefaultMaxFileSize skips files above 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultExcludes are skipped unless WithExclude replaces them.
var DefaultExcludes = []string{
	"**/.git/**", "**/.svn/**", "**/.hg/**",
	"**/vendor/**", "**/node_modules/**", "**/__pycache__/**",
	"**/.idea/**", "**/.vscode/**",
}

// Loader defines the interface for loading documents from various sources.
type Loader interface {
	Load(ctx context.Context) ([]schema.Document, error)
}

// LoadAndSplit loads documents and passes them through splitter.
func LoadAndSplit(ctx context.Context, l Loader, splitter textsplitter.DocumentSplitter) ([]schema.Document, error) {
	docs, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	if splitter == nil {
		return docs, nil
	}
	return splitter.SplitDocuments(ctx, docs)
}

// GitLoader walks a repository checkout on the local file system. Without a
// splitter every readable file becomes one document; with one, the files are
// split and each chunk becomes a document.
type GitLoader struct {
	path        string
	splitter    textsplitter.DocumentSplitter
	excludes    []string
	maxFileSize int64
	skipBinary  bool
	logger      *slog.Logger
}

type GitLoaderOption func(*GitLoader)

func WithLogger(logger *slog.Logger) GitLoaderOption {
	return func(g *GitLoader) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSplitter chunks every loaded file.
func WithSplitter(s textsplitter.DocumentSplitter) GitLoaderOption {
	return func(g *GitLoader) {
		g.splitter = s
	}
}

// WithExclude replaces the default doublestar exclude patterns. Patterns are
// matched against slash separated paths relative to the repository root.
func WithExclude(patterns ...string) GitLoaderOption {
	return func(g *GitLoader) {
		g.excludes = patterns
	}
}

// WithMaxFileSize skips larger files; zero disables the cap.
func WithMaxFileSize(n int64) GitLoaderOption {
	return func(g *GitLoader) {
		g.maxFileSize = n
	}
}

func WithSkipBinary(skip bool) GitLoaderOption {
	return func(g *GitLoader) {
		g.skipBinary = skip
	}
}

func NewGit(path string, opts ...GitLoaderOption) (*GitLoader, error) {
	g := &GitLoader{
		path:        path,
		excludes:    DefaultExcludes,
		maxFileSize: DefaultMaxFileSize,
		skipBinary:  true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, pattern := range g.excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	g.logger = g.logger.With("component", "git_loader")
	return g, nil
}

// Load walks the repository. Unreadable entries are skipped with a warning;
// only a failing root or a cancelled context abort the walk.
func (g *GitLoader) Load(ctx context.Context) ([]schema.Document, error) {
	g.logger.InfoContext(ctx, "Starting repository load", "path", g.path)

	var documents []schema.Document
	var skipped int
	err := filepath.WalkDir(g.path, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == g.path {
				return err
			}
			g.logger.WarnContext(ctx, "Skipping unreadable path", "path", path, "error", err)
			return nil
		}

		rel, relErr := filepath.Rel(g.path, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && g.excludedDir(rel) {
				g.logger.DebugContext(ctx, "Skipping excluded directory", "path", rel)
				return filepath.SkipDir
			}
			return nil
		}
		if g.excluded(rel) {
			skipped++
			return nil
		}

		doc, ok := g.readFile(ctx, path, rel, d)
		if !ok {
			skipped++
			return nil
		}
		documents = append(documents, doc)
		return nil
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "Repository walk failed", "path", g.path, "error", err)
		return nil, err
	}

	g.logger.InfoContext(ctx, "Repository load completed",
		"path", g.path, "files", len(documents), "skipped", skipped)

	if g.splitter == nil {
		return documents, nil
	}
	chunks, err := g.splitter.SplitDocuments(ctx, documents)
	if err != nil {
		return nil, fmt.Errorf("split repository files: %w", err)
	}
	g.logger.InfoContext(ctx, "Repository files split", "files", len(documents), "chunks", len(chunks))
	return chunks, nil
}

func (g *GitLoader) readFile(ctx context.Context, path, rel string, d fs.DirEntry) (schema.Document, bool) {
	info, err := d.Info()
	if err != nil {
		g.logger.WarnContext(ctx, "Could not get file info, skipping", "path", rel, "error", err)
		return schema.Document{}, false
	}
	if !info.Mode().IsRegular() {
		return schema.Document{}, false
	}
	if g.maxFileSize > 0 && info.Size() > g.maxFileSize {
		g.logger.DebugContext(ctx, "Skipping large file", "path", rel, "size", info.Size(), "max", g.maxFileSize)
		return schema.Document{}, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		g.logger.WarnContext(ctx, "Cannot read file, skipping", "path", rel, "error", err)
		return schema.Document{}, false
	}
	if g.skipBinary && guard.IsBinary(string(data)) {
		g.logger.DebugContext(ctx, "Skipping binary file", "path", rel)
		return schema.Document{}, false
	}

	return schema.NewDocument(string(data), map[string]any{
		"source":    rel,
		"file_size": info.Size(),
		"mod_time":  info.ModTime(),
	}), true
}

func (g *GitLoader) excluded(rel string) bool {
	for _, pattern := range g.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// excludedDir also prunes a directory when a pattern excludes everything
// beneath it, e.g. "**/vendor/**" for "pkg/vendor".
func (g *GitLoader) excludedDir(rel string) bool {
	if g.excluded(rel) {
		return true
	}
	for _, pattern := range g.excludes {
		base, ok := strings.CutSuffix(pattern, "/**")
		if !ok {
			continue
		}
		if match, _ := doublestar.Match(base, rel); match {
			return true
		}
	}
	return false
}
