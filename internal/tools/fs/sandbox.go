// Package fs provides the sandboxed filesystem and git tools used by
// the self-modification responder. Every path is resolved against a
// single project root and checked against allow-lists before any
// filesystem access happens.
package fs

import (
	"fmt"
	"path/filepath"
	"strings"

	"alex/internal/tools"
)

// DefaultAllowedPaths are the subtrees open to tool access, relative
// to the project root.
var DefaultAllowedPaths = []string{
	"alex/",
	"internal/",
	"cmd/",
	"tests/",
	"web/",
	"schema/",
	"scripts/",
}

// DefaultProtectedFiles may be written only when the caller explicitly
// passes require_confirmation=false.
var DefaultProtectedFiles = []string{
	"cloudbuild.yaml",
	"SESSION_STATE.md",
	"alex/config.py",
	"internal/config/config.go",
	"schema/schema.sql",
	".env",
	".env.example",
}

// DefaultAllowedExtensions limit what write_file may touch.
var DefaultAllowedExtensions = []string{
	".go", ".py", ".js", ".ts", ".tsx", ".jsx",
	".html", ".css", ".scss",
	".json", ".yaml", ".yml", ".toml",
	".md", ".txt", ".rst",
	".sh", ".bash",
	".sql",
}

// Sandbox resolves and validates tool paths against one project root.
type Sandbox struct {
	root         string
	allowedPaths []string
	protected    []string
	extensions   map[string]bool
}

// NewSandbox builds a sandbox rooted at projectRoot with the default
// policy lists.
func NewSandbox(projectRoot string) (*Sandbox, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	exts := make(map[string]bool, len(DefaultAllowedExtensions))
	for _, ext := range DefaultAllowedExtensions {
		exts[ext] = true
	}
	return &Sandbox{
		root:         root,
		allowedPaths: DefaultAllowedPaths,
		protected:    DefaultProtectedFiles,
		extensions:   exts,
	}, nil
}

// Root returns the absolute project root.
func (s *Sandbox) Root() string { return s.root }

// Resolve turns a tool-supplied relative path into an absolute path
// inside the root plus its cleaned relative form. Escaping the root
// fails with ErrPathNotAllowed.
func (s *Sandbox) Resolve(path string) (abs, rel string, err error) {
	abs = filepath.Clean(filepath.Join(s.root, path))
	rel, relErr := filepath.Rel(s.root, abs)
	if relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: path escapes project root: %s", tools.ErrPathNotAllowed, path)
	}
	return abs, filepath.ToSlash(rel), nil
}

// Allowed reports whether the cleaned relative path sits under one of
// the allow-listed subtrees.
func (s *Sandbox) Allowed(rel string) bool {
	for _, prefix := range s.allowedPaths {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

// CheckReadable resolves a path and enforces the subtree allow-list.
func (s *Sandbox) CheckReadable(path string) (string, string, error) {
	abs, rel, err := s.Resolve(path)
	if err != nil {
		return "", "", err
	}
	if !s.Allowed(rel) {
		return "", "", fmt.Errorf("%w: path not in allowed directories: %s", tools.ErrPathNotAllowed, path)
	}
	return abs, rel, nil
}

// CheckWritable applies the full write policy. Protected files pass
// only when requireConfirmation is false, which callers must set
// deliberately.
func (s *Sandbox) CheckWritable(path string, requireConfirmation bool) (string, string, error) {
	abs, rel, err := s.CheckReadable(path)
	if err != nil {
		return "", "", err
	}
	if !s.extensions[strings.ToLower(filepath.Ext(rel))] {
		return "", "", fmt.Errorf("%w: file extension not allowed: %s", tools.ErrPathNotAllowed, path)
	}
	if s.IsProtected(rel) && requireConfirmation {
		return "", "", fmt.Errorf("%w: file is protected and requires explicit confirmation: %s",
			tools.ErrPathNotAllowed, path)
	}
	return abs, rel, nil
}

// IsProtected matches the relative path against the protected list,
// either exactly or by trailing component.
func (s *Sandbox) IsProtected(rel string) bool {
	for _, p := range s.protected {
		if rel == p || strings.HasSuffix(rel, "/"+p) {
			return true
		}
	}
	return false
}
