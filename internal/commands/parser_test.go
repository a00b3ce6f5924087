// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TOKENIZER TESTS
// =============================================================================

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{`a "b c" d`, []string{"a", "b c", "d"}},
		{`a\ b`, []string{"a b"}},
		{`'single quoted' x`, []string{"single quoted", "x"}},
		{`"it's fine"`, []string{"it's fine"}},
		{`'say "hi"'`, []string{`say "hi"`}},
		{`"escaped \" quote"`, []string{`escaped " quote`}},
		{`--title="버그 수정"`, []string{"--title=버그 수정"}},
		{`"unterminated rest of line`, []string{"unterminated rest of line"}},
		{"  spaced\t\ttabs\n", []string{"spaced", "tabs"}},
		{`trailing\`, []string{"trailing"}},
		{`""`, nil},
		{"", nil},
	}

	for _, tc := range tests {
		got := Tokenize(tc.input)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %#v, want %#v", tc.input, got, tc.want)
		}
	}
}

// =============================================================================
// COERCION TESTS
// =============================================================================

func TestCoerce(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"true", true},
		{"FALSE", false},
		{"True", true},
		{"42", float64(42)},
		{"-7", float64(-7)},
		{"3.14", 3.14},
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{`[1,"x"]`, []any{float64(1), "x"}},
		{"not json{", "not json{"},
		{"{broken}", "{broken}"},
		{"1e5", "1e5"},
		{".5", ".5"},
		{"gpt-4", "gpt-4"},
		{"", ""},
	}

	for _, tc := range tests {
		got := Coerce(tc.input)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Coerce(%q) = %#v, want %#v", tc.input, got, tc.want)
		}
	}
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestParse_AgentCommand(t *testing.T) {
	cmd := Parse("@git:status")
	require.NotNil(t, cmd)

	assert.Equal(t, PrefixAt, cmd.Prefix)
	assert.Equal(t, "git", cmd.AgentID)
	assert.Equal(t, "status", cmd.Name)
	assert.Empty(t, cmd.Args)
	assert.Empty(t, cmd.Flags)
	assert.Equal(t, "@git:status", cmd.RawInput)
}

func TestParse_LongFlagsWithQuotedUnicode(t *testing.T) {
	cmd := Parse(`@jira:issue --title="버그 수정" --priority=high`)
	require.NotNil(t, cmd)

	assert.Equal(t, "jira", cmd.AgentID)
	assert.Equal(t, "issue", cmd.Name)
	assert.Empty(t, cmd.Args)
	assert.Equal(t, map[string]any{"title": "버그 수정", "priority": "high"}, cmd.Flags)
}

func TestParse_SlashCommandDefaultsToCore(t *testing.T) {
	cmd := Parse("/model gpt-4")
	require.NotNil(t, cmd)

	assert.Equal(t, PrefixSlash, cmd.Prefix)
	assert.Equal(t, CoreAgent, cmd.AgentID)
	assert.Equal(t, "model", cmd.Name)
	assert.Equal(t, []any{"gpt-4"}, cmd.Args)
	assert.Empty(t, cmd.Flags)
}

func TestParse_SlashCommandWithNamespace(t *testing.T) {
	cmd := Parse("/git:log 5")
	require.NotNil(t, cmd)

	assert.Equal(t, "git", cmd.AgentID)
	assert.Equal(t, "log", cmd.Name)
	assert.Equal(t, []any{float64(5)}, cmd.Args)
	assert.Equal(t, []string{"5"}, cmd.RawArgs)
}

func TestParse_RawArgsAlignWithArgs(t *testing.T) {
	cmd := Parse("/model 1.10 -v 3.0")
	require.NotNil(t, cmd)

	assert.Equal(t, []any{1.1}, cmd.Args)
	assert.Equal(t, []string{"1.10"}, cmd.RawArgs)
	assert.Equal(t, map[string]any{"v": float64(3)}, cmd.Flags)
}

func TestParse_NameKeepsLaterColons(t *testing.T) {
	cmd := Parse("@k8s:get:pods")
	require.NotNil(t, cmd)

	assert.Equal(t, "k8s", cmd.AgentID)
	assert.Equal(t, "get:pods", cmd.Name)
}

func TestParse_Flags(t *testing.T) {
	cmd := Parse(`@git:commit -m "fix bug" --amend --depth=3 -v file.go`)
	require.NotNil(t, cmd)

	assert.Equal(t, []any{"file.go"}, cmd.Args)
	assert.Equal(t, map[string]any{
		"m":     "fix bug",
		"amend": true,
		"depth": float64(3),
		"v":     true,
	}, cmd.Flags)
}

func TestParse_EmptyFlagName(t *testing.T) {
	cmd := Parse("/git:log -- file.go")
	require.NotNil(t, cmd)
	assert.Equal(t, []any{"file.go"}, cmd.Args)
	assert.Equal(t, map[string]any{"": true}, cmd.Flags)

	cmd = Parse("/git:log --=7")
	require.NotNil(t, cmd)
	assert.Empty(t, cmd.Args)
	assert.Empty(t, cmd.RawArgs)
	assert.Equal(t, map[string]any{"": float64(7)}, cmd.Flags)
}

func TestParse_ShortFlagBeforeFlagIsBoolean(t *testing.T) {
	cmd := Parse("@git:log -a -b")
	require.NotNil(t, cmd)

	assert.Equal(t, map[string]any{"a": true, "b": true}, cmd.Flags)
	assert.Empty(t, cmd.Args)
}

func TestParse_JSONArgument(t *testing.T) {
	cmd := Parse(`@api:call '{"id":7}'`)
	require.NotNil(t, cmd)

	require.Len(t, cmd.Args, 1)
	assert.Equal(t, map[string]any{"id": float64(7)}, cmd.Args[0])
}

func TestParse_NotACommand(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"hello world",
		"hello /help",
		"email me @ noon",
		"@알려줘",
		"@explain this code",
		"@:status",
		"@git:",
		"@git: status",
		"/",
		"/:model",
		"/core:",
	}

	for _, input := range inputs {
		if cmd := Parse(input); cmd != nil {
			t.Errorf("Parse(%q) = %+v, want nil", input, cmd)
		}
	}
}

func TestParse_SingleSlashTokenIsCore(t *testing.T) {
	for _, input := range []string{"/help", "/models", "  /help  ", "//help"} {
		cmd := Parse(input)
		require.NotNil(t, cmd, input)
		assert.Equal(t, CoreAgent, cmd.AgentID, input)
	}

	cmd := Parse("//help")
	require.NotNil(t, cmd)
	assert.Equal(t, "/help", cmd.Name)
}

func TestParse_NormalizesNames(t *testing.T) {
	// "e" followed by a combining acute accent
	cmd := Parse("@cafe\u0301:list")
	require.NotNil(t, cmd)
	assert.Equal(t, "caf\u00e9", cmd.AgentID)
}

func TestIsCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/help", true},
		{"/model qwen", true},
		{"  /help", true},
		{"@git:status", true},
		{"@git status", false},
		{"hello", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsCommand(tc.input); got != tc.want {
			t.Errorf("IsCommand(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestCommand_QualifiedName(t *testing.T) {
	assert.Equal(t, "@git:status", Parse("@git:status").QualifiedName())
	assert.Equal(t, "/core:model", Parse("/model x").QualifiedName())
}
