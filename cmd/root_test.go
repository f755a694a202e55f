package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/algomgr/internal/builtin"
	"github.com/zjrosen/algomgr/internal/config"
	"github.com/zjrosen/algomgr/internal/journal"
)

// executeCommand runs a fresh root command with args and returns the
// captured output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// isolate points HOME and the working directory at a temp dir so no user
// config is discovered.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("ALGOMGR_ALGORITHMS_RETAINED", "")
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()
	require.Equal(t, "algomgr", root.Use)

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "describe", "run", "serve", "monitor", "history", "init", "retain"} {
		require.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestList_Table(t *testing.T) {
	isolate(t)
	out, err := executeCommand(t, "list")
	require.NoError(t, err)
	require.Contains(t, out, "NAME")
	require.Contains(t, out, "Sleep")
	require.Contains(t, out, "1,2")
}

func TestList_JSONAndYAML(t *testing.T) {
	isolate(t)

	out, err := executeCommand(t, "list", "-o", "json")
	require.NoError(t, err)
	var entries []algorithmEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, len(builtin.Constructors())-1, "Echo has two versions")
	require.Equal(t, "Echo", entries[2].Name)
	require.Equal(t, []int{1, 2}, entries[2].Versions)

	out, err = executeCommand(t, "list", "-o", "yaml")
	require.NoError(t, err)
	var fromYAML []algorithmEntry
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	require.Equal(t, entries, fromYAML)

	_, err = executeCommand(t, "list", "-o", "xml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestDescribe(t *testing.T) {
	isolate(t)

	out, err := executeCommand(t, "describe", "Sum", "--raw")
	require.NoError(t, err)
	require.Contains(t, out, "# Sum v1")
	require.Contains(t, out, "| values |  | yes |")

	out, err = executeCommand(t, "describe", "Echo", "--version", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Echo v1")
	require.NotContains(t, out, "repeat")

	_, err = executeCommand(t, "describe", "Nope")
	require.Error(t, err)
}

func TestRun_RequiresCapacity(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "journal:\n  enabled: false\n")

	_, err := executeCommand(t, "--config", path, "run", "Sum", "--set", "values=1")
	require.ErrorIs(t, err, config.ErrInvalidCapacity)

	out, err := executeCommand(t, "--config", path, "--retained", "2", "run", "Sum", "--set", "values=1,2,3")
	require.NoError(t, err)
	require.Contains(t, out, "result=6")
	require.Contains(t, out, "done")
}

func TestRun_Modes(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "algorithms:\n  retained: 3\n")

	out, err := executeCommand(t, "--config", path, "run", "Echo", "--set", "message=hey", "--set", "repeat=2", "--async", "--direct")
	require.NoError(t, err)
	require.Contains(t, out, "hey hey")
	require.Contains(t, out, "direct")

	out, err = executeCommand(t, "--config", path, "run", "Sleep", "--set", "duration=20ms", "-q")
	require.NoError(t, err)
	require.NotContains(t, out, "progress")
	require.Contains(t, out, "completed")
}

func TestRun_Errors(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "algorithms:\n  retained: 3\n")

	_, err := executeCommand(t, "--config", path, "run", "Fail")
	require.ErrorIs(t, err, builtin.ErrRequestedFailure)

	_, err = executeCommand(t, "--config", path, "run", "Sum", "--set", "values")
	require.ErrorContains(t, err, "NAME=VALUE")

	_, err = executeCommand(t, "--config", path, "run", "Sum", "--set", "nope=1")
	require.Error(t, err)
}

func TestHistory(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "journal.db")
	path := writeConfig(t, dir, "algorithms:\n  retained: 3\njournal:\n  enabled: true\n  path: "+db+"\n")

	_, err := executeCommand(t, "--config", path, "run", "Sum", "--set", "values=4,5")
	require.NoError(t, err)
	_, err = executeCommand(t, "--config", path, "run", "Fail")
	require.Error(t, err)

	out, err := executeCommand(t, "--config", path, "history", "-o", "json")
	require.NoError(t, err)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "Fail", entries[0].Name)
	require.Contains(t, entries[0].Error, "requested failure")
	require.Equal(t, "Sum", entries[1].Name)

	out, err = executeCommand(t, "--config", path, "history", "--limit", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Fail v1")
	require.NotContains(t, out, "Sum v1")
}

func TestHistory_Disabled(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "algorithms:\n  retained: 3\n")

	_, err := executeCommand(t, "--config", path, "history")
	require.ErrorIs(t, err, ErrJournalDisabled)
}

func TestInit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.yaml")

	out, err := executeCommand(t, "init", path)
	require.NoError(t, err)
	require.Contains(t, out, path)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, config.DefaultRetained, cfg.Algorithms.Retained)

	_, err = executeCommand(t, "init", path)
	require.ErrorContains(t, err, "already exists")
	_, err = executeCommand(t, "init", path, "--force")
	require.NoError(t, err)

	_, err = executeCommand(t, "init", "--local")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, ".algomgr", "config.yaml"))
}

func TestRetain(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))

	_, err := executeCommand(t, "--config", path, "retain", "7")
	require.NoError(t, err)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Algorithms.Retained)

	_, err = executeCommand(t, "--config", path, "retain", "0")
	require.ErrorIs(t, err, config.ErrInvalidCapacity)
	_, err = executeCommand(t, "--config", path, "retain", "many")
	require.ErrorIs(t, err, config.ErrInvalidCapacity)
}

func TestServe_StopsWithContext(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "algorithms:\n  retained: 3\n")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", path, "serve", "--addr", "127.0.0.1:0"})
	require.NoError(t, root.ExecuteContext(ctx))
	require.Contains(t, out.String(), "retaining 3")
}

func TestParseSets(t *testing.T) {
	got, err := parseSets([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, got)

	_, err = parseSets([]string{"=1"})
	require.Error(t, err)
}
