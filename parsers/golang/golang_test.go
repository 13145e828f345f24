package golang_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/parsers/golang"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
)

const testGoFileContent = `package main

import (
	"fmt"
)

const AppVersion = "1.0.0"
var Debug = false

// UserService defines operations for a user.
type UserService interface {
	GetUser(id int) string
}

// Person represents a person with a name and age.
type Person struct {
	Name string
	Age  int
}

// SayHello is a method on the Person struct.
func (p *Person) SayHello() {
	fmt.Printf("Hello, my name is %s\n", p.Name)
}

// GetAge returns the person's age.
func (p *Person) GetAge() int {
	return p.Age
}

// CreatePerson is a factory function.
func CreatePerson(name string, age int) *Person {
	return &Person{Name: name, Age: age}
}

func main() {
	p := CreatePerson("Alice", 30)
	p.SayHello()
}
`

func TestGoPlugin_Split(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	plugin := golang.NewGoPlugin(log)

	chunks, err := plugin.Split(context.Background(), testGoFileContent, "go", "test.go", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 9)

	byIdentifier := make(map[string]schema.Chunk, len(chunks))
	for i, c := range chunks {
		byIdentifier[c.Metadata.Identifier] = c
		assert.Equal(t, "go", c.Metadata.Language)
		assert.Equal(t, "test.go", c.Metadata.FilePath)
		assert.Equal(t, "go_ast", c.Metadata.Strategy)
		if i > 0 {
			assert.Greater(t, c.Metadata.StartLine, chunks[i-1].Metadata.EndLine, "chunks are in source order")
		}
	}

	header := byIdentifier["package main"]
	assert.Equal(t, schema.ChunkTypeDeclaration, header.Metadata.Type)
	assert.Equal(t, 1, header.Metadata.StartLine)
	assert.Equal(t, 5, header.Metadata.EndLine)
	assert.Equal(t, "fmt", header.Metadata.Extra["imports"])

	person := byIdentifier["Person"]
	assert.Equal(t, schema.ChunkTypeType, person.Metadata.Type)
	assert.True(t, strings.HasPrefix(person.Content, "// Person represents"), "doc comment is part of the chunk")
	assert.Equal(t, "struct", person.Metadata.Extra["structure_type"])
	assert.Equal(t, "2", person.Metadata.Extra["field_count"])

	method := byIdentifier["(p *Person) SayHello"]
	assert.Equal(t, schema.ChunkTypeFunction, method.Metadata.Type)
	assert.Equal(t, "true", method.Metadata.Extra["is_method"])
	assert.Equal(t, "*Person", method.Metadata.Extra["receiver"])
	assert.Equal(t, 21, method.Metadata.StartLine)
	assert.Equal(t, 24, method.Metadata.EndLine)

	factory := byIdentifier["CreatePerson"]
	assert.Equal(t, "func CreatePerson(name string, age int) *Person", factory.Metadata.Extra["signature"])
	assert.Equal(t, "public", factory.Metadata.Extra["visibility"])

	assert.Equal(t, "private", byIdentifier["main"].Metadata.Extra["visibility"])
	assert.Equal(t, "constant", byIdentifier["AppVersion"].Metadata.Extra["kind"])
	assert.Equal(t, "variable", byIdentifier["Debug"].Metadata.Extra["kind"])
	assert.Equal(t, "interface", byIdentifier["UserService"].Metadata.Extra["structure_type"])
}

func TestGoPlugin_SplitManyFunctions(t *testing.T) {
	plugin := golang.NewGoPlugin(nil)

	var content strings.Builder
	content.WriteString("package main\n\nimport \"fmt\"\n")
	for i := range 15 {
		content.WriteString(fmt.Sprintf(`
// function%d prints a line.
func function%d() {
	fmt.Println("line of content to simulate real code")
}
`, i, i))
	}

	chunks, err := plugin.Split(context.Background(), content.String(), "", "large.go", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 16)
	for _, c := range chunks[1:] {
		assert.Equal(t, schema.ChunkTypeFunction, c.Metadata.Type)
		assert.Equal(t, 4, c.Metadata.LineCount)
		assert.Equal(t, "go", c.Metadata.Language)
	}
}

func TestGoPlugin_Handling(t *testing.T) {
	plugin := golang.NewGoPlugin(nil)

	t.Run("should handle file types correctly", func(t *testing.T) {
		assert.True(t, plugin.CanHandle("file.go"))
		assert.True(t, plugin.CanHandle("file_test.go"))
		assert.False(t, plugin.CanHandle("file.txt"))
		assert.True(t, plugin.SupportsLanguage("Go"))
		assert.False(t, plugin.SupportsLanguage("python"))
	})

	t.Run("should fail on invalid content", func(t *testing.T) {
		_, err := plugin.Split(context.Background(), "package main\nfunc broken{", "go", "broken.go", nil)
		require.Error(t, err)
	})

	t.Run("should honour cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := plugin.Split(ctx, testGoFileContent, "go", "test.go", nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestGoPlugin_SplitKeepsTextBetweenDeclarations(t *testing.T) {
	plugin := golang.NewGoPlugin(nil)

	var content strings.Builder
	content.WriteString("//go:build linux\n\n// Copyright notice, not a package doc.\n\npackage main\n")
	for i := range 20 {
		content.WriteString(fmt.Sprintf("\n// ---- section %d ----\n\nfunc step%d() {}\n", i, i))
	}
	content.WriteString("\n// trailing note\n")
	source := content.String()

	chunks, err := plugin.Split(context.Background(), source, "go", "main.go", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 22)

	var rebuilt []string
	covered := make(map[int]bool)
	lines := strings.Split(source, "\n")
	for i, c := range chunks {
		if i > 0 {
			assert.Greater(t, c.Metadata.StartLine, chunks[i-1].Metadata.EndLine)
		}
		assert.Equal(t, strings.Join(lines[c.Metadata.StartLine-1:c.Metadata.EndLine], "\n"), c.Content)
		for n := c.Metadata.StartLine; n <= c.Metadata.EndLine; n++ {
			covered[n] = true
		}
		rebuilt = append(rebuilt, nonBlank(c.Content)...)
	}
	assert.Equal(t, nonBlank(source), rebuilt)
	for n, line := range lines {
		if strings.TrimSpace(line) != "" {
			assert.True(t, covered[n+1], "line %d %q is not in any chunk", n+1, line)
		}
	}

	header := chunks[0]
	assert.Equal(t, 1, header.Metadata.StartLine)
	assert.Equal(t, "true", header.Metadata.Extra["leading_text"])

	step := chunks[1]
	assert.Equal(t, "step0", step.Metadata.Identifier)
	assert.True(t, strings.HasPrefix(step.Content, "// ---- section 0 ----"))

	trailing := chunks[len(chunks)-1]
	assert.Equal(t, "// trailing note", trailing.Content)
	assert.Equal(t, "trailing_text", trailing.Metadata.Extra["kind"])
	assert.Equal(t, schema.ChunkTypeDeclaration, trailing.Metadata.Type)
}

func nonBlank(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
