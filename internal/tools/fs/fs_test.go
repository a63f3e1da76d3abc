package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alex/internal/tools"
)

func newTestToolset(t *testing.T) (*Toolset, string) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"alex", "tests", "schema", "secrets"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "alex", "graph.py"),
		[]byte("def route(state):\n    return state\n"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "secrets", "keys.txt"), []byte("hidden"), 0o644))

	ts, err := NewToolset(root, nil)
	require.NoError(t, err)
	return ts, root
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	return m
}

func TestReadFile(t *testing.T) {
	ts, _ := newTestToolset(t)

	out, err := ts.readFile(context.Background(), map[string]any{"path": "alex/graph.py"})
	require.NoError(t, err)

	result := decode(t, out)
	assert.Equal(t, true, result["success"])
	assert.Contains(t, result["content"], "def route")
	assert.Equal(t, float64(2), result["lines"])
}

func TestReadFileOutsideAllowedPaths(t *testing.T) {
	ts, _ := newTestToolset(t)

	_, err := ts.readFile(context.Background(), map[string]any{"path": "secrets/keys.txt"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrPathNotAllowed))
}

func TestReadFileMissing(t *testing.T) {
	ts, _ := newTestToolset(t)

	_, err := ts.readFile(context.Background(), map[string]any{"path": "alex/absent.py"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrFileNotFound))
}

func TestWriteFileCreatesAndModifies(t *testing.T) {
	ts, root := newTestToolset(t)

	out, err := ts.writeFile(context.Background(), map[string]any{
		"path":    "alex/new_module.py",
		"content": "x = 1\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "created", decode(t, out)["action"])

	out, err = ts.writeFile(context.Background(), map[string]any{
		"path":    "alex/new_module.py",
		"content": "x = 2\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "modified", decode(t, out)["action"])

	data, err := os.ReadFile(filepath.Join(root, "alex", "new_module.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 2\n", string(data))
}

func TestWriteFileSandboxPolicy(t *testing.T) {
	ts, root := newTestToolset(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"path traversal", map[string]any{"path": "../outside.py", "content": "x"}},
		{"deep traversal", map[string]any{"path": "alex/../../outside.py", "content": "x"}},
		{"outside allow list", map[string]any{"path": "secrets/new.py", "content": "x"}},
		{"disallowed extension", map[string]any{"path": "alex/binary.exe", "content": "x"}},
		{"protected by name", map[string]any{"path": "alex/config.py", "content": "x"}},
		{"protected default confirmation", map[string]any{
			"path": "alex/config.py", "content": "x", "require_confirmation": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.writeFile(context.Background(), tt.args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tools.ErrPathNotAllowed))
		})
	}

	// Nothing escaped the sandbox.
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "outside.py")); err == nil {
		t.Fatal("traversal write reached the parent directory")
	}
}

func TestWriteProtectedFileWithExplicitOverride(t *testing.T) {
	ts, _ := newTestToolset(t)

	out, err := ts.writeFile(context.Background(), map[string]any{
		"path":                 "alex/config.py",
		"content":              "DEBUG = False\n",
		"require_confirmation": false,
	})
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, out)["success"])
}

func TestListDirectory(t *testing.T) {
	ts, _ := newTestToolset(t)

	out, err := ts.listDirectory(context.Background(), map[string]any{"path": "alex"})
	require.NoError(t, err)
	result := decode(t, out)
	assert.Equal(t, float64(1), result["count"])

	// Root listing hides entries outside the allow list.
	out, err = ts.listDirectory(context.Background(), map[string]any{})
	require.NoError(t, err)
	for _, raw := range decode(t, out)["items"].([]any) {
		item := raw.(map[string]any)
		assert.NotContains(t, item["path"], "secrets")
	}
}

func TestListDirectoryRecursive(t *testing.T) {
	ts, root := newTestToolset(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alex", "nodes"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "alex", "nodes", "classify.py"), []byte("pass\n"), 0o644))

	out, err := ts.listDirectory(context.Background(), map[string]any{
		"path": "alex", "recursive": true,
	})
	require.NoError(t, err)

	var paths []string
	for _, raw := range decode(t, out)["items"].([]any) {
		paths = append(paths, raw.(map[string]any)["path"].(string))
	}
	assert.Contains(t, paths, "alex/graph.py")
	assert.Contains(t, paths, "alex/nodes/classify.py")
}

func TestSearchCode(t *testing.T) {
	ts, root := newTestToolset(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "alex", "memory.py"),
		[]byte("def retrieve():\n    pass\n\ndef route(x):\n    pass\n"), 0o644))

	out, err := ts.searchCode(context.Background(), map[string]any{"pattern": "def route"})
	require.NoError(t, err)
	result := decode(t, out)
	assert.Equal(t, float64(2), result["count"], "default *.py pattern covers both files")
	assert.Equal(t, false, result["truncated"])
}

func TestSearchCodeMaxResults(t *testing.T) {
	ts, _ := newTestToolset(t)

	out, err := ts.searchCode(context.Background(), map[string]any{
		"pattern":     ".",
		"max_results": float64(1),
	})
	require.NoError(t, err)
	result := decode(t, out)
	assert.Equal(t, float64(1), result["count"])
	assert.Equal(t, true, result["truncated"])
}

func TestSearchCodeInvalidPattern(t *testing.T) {
	ts, _ := newTestToolset(t)

	_, err := ts.searchCode(context.Background(), map[string]any{"pattern": "("})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrInvalidPattern))

	_, err = ts.searchCode(context.Background(), map[string]any{
		"pattern": "x", "file_pattern": "[",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrInvalidPattern))
}

func TestSandboxResolve(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	_, rel, err := sandbox.Resolve("alex/graph.py")
	require.NoError(t, err)
	assert.Equal(t, "alex/graph.py", rel)

	for _, bad := range []string{"..", "../x", "alex/../../x", "../../etc/passwd"} {
		if _, _, err := sandbox.Resolve(bad); !errors.Is(err, tools.ErrPathNotAllowed) {
			t.Errorf("Resolve(%q) = %v, want ErrPathNotAllowed", bad, err)
		}
	}
}

func TestIsProtected(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	assert.True(t, sandbox.IsProtected(".env"))
	assert.True(t, sandbox.IsProtected("alex/config.py"))
	assert.True(t, sandbox.IsProtected("web/.env"))
	assert.False(t, sandbox.IsProtected("alex/graph.py"))
}
