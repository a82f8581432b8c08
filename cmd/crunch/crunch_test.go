package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/configcrunch/internal/config"
	"github.com/kingrea/configcrunch/internal/logging"
)

const shopYAML = `project:
  name: shop
  registry: registry.local
  services:
    web:
      $ref: /service/web
      port: 8080
`

const webYAML = `service:
  image: "{{ (parent).registry }}/nginx"
  port: 80
  tags: [base]
`

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "shop.yml", shopYAML)
	writeFile(t, dir, "repository/service/web.yml", webYAML)
	return dir
}

func runCrunch(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	projectDir, configPath, lookupPaths, logLevel, helpersDir = ".", "", nil, "", ""
	loadNoVars, loadFreeze, loadOutput = false, false, ""
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--dir", dir, "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()

	out, err := runCrunch(t, dir, "init")

	require.NoError(t, err)
	assert.Contains(t, out, ".configcrunch.yaml")
	assert.FileExists(t, filepath.Join(dir, ".configcrunch.yaml"))
}

func TestLoadPrintsResolvedYAML(t *testing.T) {
	dir := newProject(t)

	out, err := runCrunch(t, dir, "load", "shop.yml")

	require.NoError(t, err)
	assert.Contains(t, out, "image: registry.local/nginx")
	assert.Contains(t, out, "port: 8080")
	assert.NotContains(t, out, "$ref")
}

func TestLoadJSONWithoutVariables(t *testing.T) {
	dir := newProject(t)

	out, err := runCrunch(t, dir, "load", "--no-vars", "--freeze", "-o", "json", "shop.yml")

	require.NoError(t, err)
	assert.Contains(t, out, `"image": "{{ (parent).registry }}/nginx"`)
}

func TestLoadMergesMultipleFiles(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "override.yml", "project:\n  name: outlet\n")

	out, err := runCrunch(t, dir, "load", "shop.yml", "override.yml")

	require.NoError(t, err)
	assert.Contains(t, out, "name: outlet")
	assert.Contains(t, out, "image: registry.local/nginx")
}

func TestLoadLookupFlagOverridesConfig(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "other/service/web.yml", "service:\n  image: other\n")

	out, err := runCrunch(t, dir, "--lookup", "repository", "--lookup", "other", "load", "shop.yml")

	require.NoError(t, err)
	assert.Contains(t, out, "image: other")
}

func TestLoadMissingReferenceFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shop.yml", "project:\n  name: shop\n  $ref: /project/missing\n")

	_, err := runCrunch(t, dir, "load", "shop.yml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "referenced document not found")
}

func TestValidateReport(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "broken.yml", "project:\n  registry: x\n")

	out, err := runCrunch(t, dir, "validate", "shop.yml", "broken.yml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents invalid")
	assert.Contains(t, out, "OK shop.yml (project)")
	assert.Contains(t, out, "FAIL broken.yml")
	assert.Contains(t, out, "name is required")
}

func TestRenderTemplate(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "summary.tmpl", "{{ .name }} runs {{ len .services }} service(s)\n")

	out, err := runCrunch(t, dir, "render", "shop.yml", "summary.tmpl")

	require.NoError(t, err)
	assert.Equal(t, "shop runs 1 service(s)\n", out)
}

func TestRenderUsesHelperScripts(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "helpers/upper.go", `package main

import "strings"

func Helpers() map[string]any {
	return map[string]any{"upper": strings.ToUpper}
}
`)
	writeFile(t, dir, "summary.tmpl", "{{ upper .name }}")

	out, err := runCrunch(t, dir, "--helpers", "helpers", "render", "shop.yml", "summary.tmpl")

	require.NoError(t, err)
	assert.Equal(t, "SHOP", out)
}

func TestTypesListsConfiguredTypes(t *testing.T) {
	out, err := runCrunch(t, t.TempDir(), "types")

	require.NoError(t, err)
	assert.Equal(t, "project\n  services: map of service\n  required: name\nservice\n", out)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchReloadsOnRepositoryChange(t *testing.T) {
	dir := newProject(t)
	projectDir, configPath, lookupPaths, logLevel, helpersDir = dir, "", nil, "error", ""
	loadNoVars, loadFreeze, loadOutput = false, false, ""
	a, err := newApp(loadCmd)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- a.runWatch(ctx, loadCmd, []string{"shop.yml"}, out) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "image: registry.local/nginx\n")
	}, 5*time.Second, 20*time.Millisecond)

	writeFile(t, dir, "repository/service/web.yml", strings.Replace(webYAML, "/nginx", "/nginx-v2", 1))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "image: registry.local/nginx-v2")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestIsDocumentFile(t *testing.T) {
	assert.True(t, isDocumentFile("a/b.yml"))
	assert.True(t, isDocumentFile("a/b.yaml"))
	assert.False(t, isDocumentFile("a/b.yml.swp"))
}

func TestWatchTreeAddsNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "service", "team", "legacy")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	logger, err := logging.New(&config.Config{Log: config.LogConfig{Level: "error", Format: "text"}}, io.Discard)
	require.NoError(t, err)
	a := &app{logger: logger}

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	a.watchTree(watcher, filepath.Join(dir, "service"))

	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "service"),
		filepath.Join(dir, "service", "team"),
		nested,
	}, watcher.WatchList())
}

func TestWatchTreeLogsMissingDirectory(t *testing.T) {
	var logs bytes.Buffer
	logger, err := logging.New(&config.Config{Log: config.LogConfig{Level: "warn", Format: "text"}}, &logs)
	require.NoError(t, err)
	a := &app{logger: logger}
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	a.watchTree(watcher, filepath.Join(t.TempDir(), "gone"))

	assert.Empty(t, watcher.WatchList())
	assert.Contains(t, logs.String(), "cannot walk new directory")
}
