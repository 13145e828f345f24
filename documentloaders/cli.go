package documentloaders

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/sevigo/chunkguard/schema"
)

// CLICommandLoader runs a command and uses its stdout as the document content.
type CLICommandLoader struct {
	Command string
	Args    []string
	// SourceName is stored as the document source. Naming it like a file,
	// e.g. "main.go" for `git show HEAD:main.go`, lets the splitter detect
	// the language from the extension.
	SourceName string
}

func NewCLICommandLoader(command string, args ...string) *CLICommandLoader {
	return &CLICommandLoader{Command: command, Args: args}
}

// As sets the source name.
func (l *CLICommandLoader) As(sourceName string) *CLICommandLoader {
	l.SourceName = sourceName
	return l
}

func (l *CLICommandLoader) Load(ctx context.Context) ([]schema.Document, error) {
	command := filepath.Base(l.Command)
	cmd := exec.CommandContext(ctx, command, l.Args...)
	output, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, fmt.Errorf("command '%s' failed: %w\nstderr: %s", l.Command, err, string(ee.Stderr))
		}
		return nil, err
	}
	source := l.SourceName
	if source == "" {
		source = fmt.Sprintf("output of command '%s'", l.Command)
	}
	doc := schema.NewDocument(string(output), map[string]any{
		"source":  source,
		"command": l.Command,
	})
	return []schema.Document{doc}, nil
}
