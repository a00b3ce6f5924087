// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec tests use POSIX tools")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestBuildArgv(t *testing.T) {
	argv := BuildArgv(
		[]string{"jira-cli", "issue"},
		[]any{"PROJ", float64(42), true, map[string]any{"a": float64(1)}},
		map[string]any{"title": "버그 수정", "verbose": true, "draft": false, "priority": float64(2.5)},
	)

	assert.Equal(t, []string{
		"jira-cli", "issue",
		"PROJ", "42", "true", `{"a":1}`,
		"--draft=false", "--priority=2.5", "--title=버그 수정", "--verbose",
	}, argv)
}

func TestExecPlugin_Execute(t *testing.T) {
	requireShell(t)

	m := &Manifest{
		ID:      "echo",
		Enabled: true,
		Env:     map[string]string{"GREETING": "hello"},
		Commands: []CommandDescriptor{
			{CommandSpec: commands.CommandSpec{Name: "say"}, Argv: []string{"sh", "-c", `echo "$GREETING $*"`, "sh"}},
			{CommandSpec: commands.CommandSpec{Name: "fail"}, Argv: []string{"sh", "-c", "echo broken >&2; exit 3"}},
		},
	}
	p := NewExecPlugin(m, "")

	got, err := p.Execute(context.Background(), "say", []any{"world"}, map[string]any{"loud": true})
	require.NoError(t, err)
	assert.Equal(t, "hello world --loud", got)

	_, err = p.Execute(context.Background(), "fail", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "echo:fail failed")
	assert.Contains(t, err.Error(), "broken")

	_, err = p.Execute(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, commands.ErrCommandNotFound)
}

func TestExecPlugin_Timeout(t *testing.T) {
	requireShell(t)

	m := &Manifest{
		ID:       "slow",
		Enabled:  true,
		Timeout:  1,
		Commands: []CommandDescriptor{{CommandSpec: commands.CommandSpec{Name: "wait"}, Argv: []string{"sleep", "5"}}},
	}
	_, err := NewExecPlugin(m, "").Execute(context.Background(), "wait", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecPlugin_RequiresEnv(t *testing.T) {
	m := &Manifest{
		ID:          "jira",
		Enabled:     true,
		RequiresEnv: []string{"JIRA_API_TOKEN", "JIRA_URL"},
		Commands:    []CommandDescriptor{{CommandSpec: commands.CommandSpec{Name: "issue"}, Argv: []string{"true"}}},
	}
	env := map[string]string{"JIRA_URL": "https://example.atlassian.net"}
	p := NewExecPlugin(m, "")
	p.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	assert.False(t, p.Initialized())
	_, err := p.Execute(context.Background(), "issue", nil, nil)
	require.ErrorIs(t, err, commands.ErrAuthRequired)
	assert.Contains(t, err.Error(), "JIRA_API_TOKEN")
	assert.NotContains(t, err.Error(), "JIRA_URL")

	env["JIRA_API_TOKEN"] = "secret"
	assert.True(t, p.Initialized())
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = b.Write([]byte("defgh"))
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", b.String())
}
