package protobuf_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/parsers/protobuf"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
)

const userProto = `// Copyright header.

syntax = "proto3";

package demo.v1;

import "google/protobuf/timestamp.proto";

option go_package = "example.com/demo/v1";

// User is a registered account.
message User {
  string id = 1;
  string name = 2;
  map<string, string> labels = 3;
  oneof contact {
    string email = 4;
    string phone = 5;
  }
  message Address {
    string city = 1;
  }
}

// ---- enums ----

enum Role {
  ROLE_UNSPECIFIED = 0;
  ROLE_ADMIN = 1;
}

service UserService {
  rpc GetUser(GetUserRequest) returns (User);
  rpc WatchUsers(WatchRequest) returns (stream User);
}

// end of file
`

func newPlugin(t *testing.T) *protobuf.ProtobufPlugin {
	t.Helper()
	log, _ := logger.NewTestLogger(t)
	return protobuf.NewProtobufPlugin(log)
}

func TestProtobufPlugin_BasicInfo(t *testing.T) {
	plugin := newPlugin(t)
	assert.Equal(t, "protobuf", plugin.Language())
	assert.Equal(t, "protobuf_ast", plugin.Name())
	assert.True(t, plugin.CanHandle("api/user.PROTO"))
	assert.False(t, plugin.CanHandle("user.go"))
	assert.True(t, plugin.SupportsLanguage("proto"))
	assert.False(t, plugin.SupportsLanguage("yaml"))
}

func TestProtobufPlugin_Split(t *testing.T) {
	chunks, err := newPlugin(t).Split(context.Background(), userProto, "", "api/user.proto", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	tests := []struct {
		identifier string
		typ        schema.ChunkType
		kind       string
		start, end int
	}{
		{"package demo.v1", schema.ChunkTypeDeclaration, "header", 1, 9},
		{"User", schema.ChunkTypeType, "message", 11, 23},
		{"Role", schema.ChunkTypeType, "enum", 25, 30},
		{"UserService", schema.ChunkTypeBlock, "service", 32, 35},
		{"", schema.ChunkTypeDeclaration, "trailing_text", 37, 37},
	}
	for i, tt := range tests {
		c := chunks[i]
		assert.Equal(t, tt.identifier, c.Metadata.Identifier)
		assert.Equal(t, tt.typ, c.Metadata.Type, tt.identifier)
		assert.Equal(t, tt.kind, c.Metadata.Extra["kind"], tt.identifier)
		assert.Equal(t, tt.start, c.Metadata.StartLine, tt.identifier)
		assert.Equal(t, tt.end, c.Metadata.EndLine, tt.identifier)
		assert.Equal(t, "protobuf", c.Metadata.Language)
		assert.Equal(t, "protobuf_ast", c.Metadata.Strategy)
	}

	header := chunks[0].Metadata.Extra
	assert.Equal(t, "proto3", header["syntax"])
	assert.Equal(t, "google/protobuf/timestamp.proto", header["imports"])
	assert.Equal(t, "true", header["leading_text"])

	user := chunks[1]
	assert.True(t, strings.HasPrefix(user.Content, "// User is a registered account."))
	assert.Equal(t, "5", user.Metadata.Extra["field_count"])
	assert.Equal(t, "User.Address", user.Metadata.Extra["nested"])
	assert.Equal(t, "contact", user.Metadata.Extra["oneofs"])

	assert.Equal(t, "2", chunks[2].Metadata.Extra["value_count"])

	svc := chunks[3].Metadata.Extra
	assert.Equal(t, "2", svc["rpc_count"])
	assert.Equal(t, "rpc GetUser(GetUserRequest) returns (User); rpc WatchUsers(WatchRequest) returns (stream User)", svc["rpcs"])
}

func TestProtobufPlugin_KeepsEveryLine(t *testing.T) {
	chunks, err := newPlugin(t).Split(context.Background(), userProto, "protobuf", "user.proto", nil)
	require.NoError(t, err)

	var rebuilt []string
	for i, c := range chunks {
		if i > 0 {
			assert.Greater(t, c.Metadata.StartLine, chunks[i-1].Metadata.EndLine)
		}
		rebuilt = append(rebuilt, nonBlank(c.Content)...)
	}
	assert.Equal(t, nonBlank(userProto), rebuilt)
}

func TestProtobufPlugin_Errors(t *testing.T) {
	plugin := newPlugin(t)

	_, err := plugin.Split(context.Background(), "syntax = \"proto3\";\nmessage Broken {\n", "protobuf", "broken.proto", nil)
	require.Error(t, err)

	_, err = plugin.Split(context.Background(), "syntax = \"proto3\";\n\npackage empty.v1;\n", "protobuf", "empty.proto", nil)
	require.ErrorIs(t, err, protobuf.ErrNoDefinitions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = plugin.Split(ctx, userProto, "protobuf", "user.proto", nil)
	require.ErrorIs(t, err, context.Canceled)
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
