package documentloaders_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/documentloaders"
	"github.com/sevigo/chunkguard/gitutil"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
)

// recordingSplitter returns one document per input, tagged with its source.
type recordingSplitter struct {
	sources []string
}

func (r *recordingSplitter) SplitDocuments(_ context.Context, docs []schema.Document) ([]schema.Document, error) {
	out := make([]schema.Document, 0, len(docs))
	for _, d := range docs {
		source, _ := d.Metadata["source"].(string)
		r.sources = append(r.sources, source)
		out = append(out, schema.NewDocument(d.PageContent, map[string]any{"source": source, "chunk_index": 0}))
	}
	return out, nil
}

func materialize(t *testing.T, files fstest.MapFS) string {
	t.Helper()
	dir := t.TempDir()
	err := fs.WalkDir(files, ".", func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		target := filepath.Join(dir, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, readErr := files.ReadFile(path)
		require.NoError(t, readErr)
		require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err)
	return dir
}

func sources(docs []schema.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Metadata["source"].(string))
	}
	sort.Strings(out)
	return out
}

var repoFiles = fstest.MapFS{
	"src/main.go":          {Data: []byte("package main\n\nfunc main() {}\n")},
	"README.md":            {Data: []byte("# Title\n\nSome text.\n")},
	"assets/logo.png":      {Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")},
	".git/config":          {Data: []byte("[core]\n")},
	"pkg/vendor/dep/x.go":  {Data: []byte("package dep\n")},
	"docs/big.txt":         {Data: []byte("0123456789012345678901234567890123456789")},
	"empty_dir":            {Mode: fs.ModeDir},
	"testdata/fixture.txt": {Data: []byte("fixture\n")},
}

func TestGitLoader_Load(t *testing.T) {
	dir := materialize(t, repoFiles)
	log, _ := logger.NewTestLogger(t)

	t.Run("Should skip excluded, binary and oversized files", func(t *testing.T) {
		loader, err := documentloaders.NewGit(dir,
			documentloaders.WithLogger(log),
			documentloaders.WithMaxFileSize(32))
		require.NoError(t, err)

		docs, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"README.md", "src/main.go", "testdata/fixture.txt"}, sources(docs))

		for _, d := range docs {
			if d.Metadata["source"] == "src/main.go" {
				assert.Equal(t, "package main\n\nfunc main() {}\n", d.PageContent)
				assert.EqualValues(t, len(d.PageContent), d.Metadata["file_size"])
			}
		}
	})

	t.Run("Should apply custom exclude patterns", func(t *testing.T) {
		loader, err := documentloaders.NewGit(dir,
			documentloaders.WithLogger(log),
			documentloaders.WithExclude("**/.git/**", "testdata/**", "**/*.md"),
			documentloaders.WithSkipBinary(false),
			documentloaders.WithMaxFileSize(0))
		require.NoError(t, err)

		docs, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"assets/logo.png", "docs/big.txt", "pkg/vendor/dep/x.go", "src/main.go"}, sources(docs))
	})

	t.Run("Should pass files through the splitter", func(t *testing.T) {
		splitter := &recordingSplitter{}
		loader, err := documentloaders.NewGit(dir,
			documentloaders.WithLogger(log),
			documentloaders.WithSplitter(splitter))
		require.NoError(t, err)

		docs, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, docs, len(splitter.sources))
		assert.Contains(t, splitter.sources, "src/main.go")
	})

	t.Run("Should reject invalid patterns", func(t *testing.T) {
		_, err := documentloaders.NewGit(dir, documentloaders.WithExclude("[unclosed"))
		require.Error(t, err)
	})

	t.Run("Should fail for a missing root", func(t *testing.T) {
		loader, err := documentloaders.NewGit(filepath.Join(dir, "missing"), documentloaders.WithLogger(log))
		require.NoError(t, err)
		_, err = loader.Load(context.Background())
		require.Error(t, err)
	})

	t.Run("Should stop on a cancelled context", func(t *testing.T) {
		loader, err := documentloaders.NewGit(dir, documentloaders.WithLogger(log))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = loader.Load(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestCLICommandLoader_Load(t *testing.T) {
	docs, err := documentloaders.LoadAndSplit(context.Background(),
		documentloaders.NewCLICommandLoader("echo", "hello").As("hello.txt"), &recordingSplitter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello\n", docs[0].PageContent)
	assert.Equal(t, "hello.txt", docs[0].Metadata["source"])

	_, err = documentloaders.NewCLICommandLoader("false").Load(context.Background())
	require.Error(t, err)
}

// initRepo creates a one-commit repository with go-git.
func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestRemoteGitRepoLoader_Load(t *testing.T) {
	src, commit := initRepo(t)
	log, _ := logger.NewTestLogger(t)

	loader := documentloaders.NewRemoteGitRepoLoader(src, log)
	loader.Clone = []gitutil.Option{gitutil.WithDepth(0)}

	docs, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "main.go", docs[0].Metadata["source"])
	assert.Equal(t, src, docs[0].Metadata["original_source_url"])
	assert.Equal(t, commit, docs[0].Metadata["commit"])
}
