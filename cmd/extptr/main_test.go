package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const quietConfig = "[heap]\nauto-collect = false\n[log]\nverbosity = 0\n"

// busyConfig keeps a background collector firing during every command.
const busyConfig = "[heap]\ncollect-interval = \"1ms\"\n[log]\nverbosity = 0\n"

func run(t *testing.T, args ...string) string {
	t.Helper()
	return runWith(t, quietConfig, args...)
}

func runWith(t *testing.T, config string, args ...string) string {
	t.Helper()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "extptr.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(config), 0644))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	require.NoError(t, app.Run(append([]string{"extptr", "--config", cfg}, args...)))
	return out.String()
}

func TestDemo(t *testing.T) {
	out := run(t, "demo")

	require.Contains(t, out, "from value: 1")
	require.Contains(t, out, "expected an external pointer to string")
	require.Contains(t, out, "mutated:    2")
	require.Contains(t, out, "collected:  0 external pointers left, address <nil>")
}

func TestCollect(t *testing.T) {
	out := run(t, "collect", "--count", "20", "--keep", "5")

	require.Contains(t, out, "allocated 20, kept 5, dropped 15")
	require.Contains(t, out, "live external pointers: 5")
}

func TestCollectRejectsKeepAboveCount(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"extptr", "collect", "--count", "1", "--keep", "2"})
	require.Error(t, err)
}

func TestDumpAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.cbor")

	out := run(t, "dump", "--out", path)
	require.Contains(t, out, "wrote 5 external pointers")
	require.FileExists(t, path)

	out = run(t, "inspect", path)
	require.Contains(t, out, "external pointers: 5")
	require.True(t, strings.Contains(out, "3  int64"), out)
	require.Contains(t, out, "2  string")
	require.Contains(t, out, "last collection: 4 finalized")
}

func TestCommandsWithBackgroundCollector(t *testing.T) {
	for i := 0; i < 20; i++ {
		out := runWith(t, busyConfig, "demo")
		require.Contains(t, out, "from value: 1")
		require.Contains(t, out, "mutated:    2")

		out = runWith(t, busyConfig, "collect", "--count", "200", "--keep", "20")
		require.Contains(t, out, "allocated 200, kept 20, dropped 180")
		require.Contains(t, out, "live external pointers: 20")
	}

	path := filepath.Join(t.TempDir(), "heap.cbor")
	runWith(t, busyConfig, "dump", "--out", path)
	out := run(t, "inspect", path)
	require.Contains(t, out, "external pointers: 5")
	require.Contains(t, out, "2  string")
}

func TestVerboseLogsToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "extptr.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[heap]\nauto-collect = false\n[log]\nfile = \"extptr.log\"\n"), 0644))

	app := newApp()
	app.Writer = &bytes.Buffer{}
	require.NoError(t, app.Run([]string{"extptr", "--config", cfg, "--verbose", "collect", "--count", "3", "--keep", "1"}))

	// Restore the quiet default for the other tests.
	require.NoError(t, newApp().Run([]string{"extptr", "--config", writeQuiet(t), "collect", "--count", "0", "--keep", "0"}))
	require.FileExists(t, filepath.Join(dir, "extptr.log"))
}

func writeQuiet(t *testing.T) string {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "extptr.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(quietConfig), 0644))
	return cfg
}
