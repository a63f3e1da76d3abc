package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"alex/internal/tools"
)

const (
	gitShortTimeout = 10 * time.Second
	gitLongTimeout  = 30 * time.Second

	defaultFilePattern = "*.py"
	defaultMaxResults  = 50
	maxMatchLineLen    = 200
)

// Toolset binds the filesystem tools to one sandbox.
type Toolset struct {
	sandbox *Sandbox
	log     *zap.Logger
}

// NewToolset builds the filesystem tool surface over projectRoot.
func NewToolset(projectRoot string, log *zap.Logger) (*Toolset, error) {
	sandbox, err := NewSandbox(projectRoot)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Toolset{sandbox: sandbox, log: log.Named("fs_tools")}, nil
}

// Catalog returns the filesystem and git tools for registration.
func (ts *Toolset) Catalog() []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "read_file",
			Description: "Read the contents of a file in the codebase. Use this to understand existing code before making changes.",
			Category:    tools.CategoryFilesystem,
			Execute:     ts.readFile,
			Schema: tools.Schema{
				Required: []string{"path"},
				Properties: map[string]tools.Property{
					"path": {Type: "string", Description: "Relative path to the file, for example 'internal/memory/store.go'."},
				},
			},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file. Creates new files or replaces existing ones. Always read the file first before modifying.",
			Category:    tools.CategoryFilesystem,
			Execute:     ts.writeFile,
			Schema: tools.Schema{
				Required: []string{"path", "content"},
				Properties: map[string]tools.Property{
					"path":                 {Type: "string", Description: "Relative path to the file."},
					"content":              {Type: "string", Description: "Complete content to write."},
					"create_dirs":          {Type: "boolean", Description: "Create parent directories when missing.", Default: true},
					"require_confirmation": {Type: "boolean", Description: "Set to false to allow writing protected files.", Default: true},
				},
			},
		},
		{
			Name:        "list_directory",
			Description: "List files and directories. Use this to explore the codebase structure.",
			Category:    tools.CategoryFilesystem,
			Execute:     ts.listDirectory,
			Schema: tools.Schema{
				Properties: map[string]tools.Property{
					"path":      {Type: "string", Description: "Relative directory path; empty for the project root."},
					"recursive": {Type: "boolean", Description: "List all files recursively.", Default: false},
				},
			},
		},
		{
			Name:        "search_code",
			Description: "Search for a regex pattern in code files.",
			Category:    tools.CategoryFilesystem,
			Execute:     ts.searchCode,
			Schema: tools.Schema{
				Required: []string{"pattern"},
				Properties: map[string]tools.Property{
					"pattern":      {Type: "string", Description: "Regex pattern to search for."},
					"path":         {Type: "string", Description: "Directory to search in; empty for the whole project."},
					"file_pattern": {Type: "string", Description: "Glob pattern for file names.", Default: defaultFilePattern},
					"max_results":  {Type: "integer", Description: "Maximum number of matches.", Default: defaultMaxResults},
				},
			},
		},
		{
			Name:        "git_status",
			Description: "Show modified, added, and deleted files in the working tree.",
			Category:    tools.CategoryGit,
			Execute:     ts.gitStatus,
			Schema:      tools.Schema{Properties: map[string]tools.Property{}},
		},
		{
			Name:        "git_commit",
			Description: "Commit changes with a descriptive message. Use after making file changes.",
			Category:    tools.CategoryGit,
			Execute:     ts.gitCommit,
			Schema: tools.Schema{
				Required: []string{"message"},
				Properties: map[string]tools.Property{
					"message": {Type: "string", Description: "Commit message describing the changes."},
					"files": {Type: "array", Description: "Specific files to commit; commits everything when omitted.",
						Items: &tools.PropertyItems{Type: "string"}},
				},
			},
		},
	}
}

func (ts *Toolset) readFile(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	abs, rel, err := ts.sandbox.CheckReadable(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", tools.ErrFileNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", tools.ErrIOFailure, path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: not a file: %s", tools.ErrIOFailure, path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", tools.ErrIOFailure, path, err)
	}

	content := string(data)
	return marshal(map[string]any{
		"success":    true,
		"path":       rel,
		"content":    content,
		"size_bytes": len(data),
		"lines":      len(strings.Split(strings.TrimRight(content, "\n"), "\n")),
	})
}

func (ts *Toolset) writeFile(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	createDirs := boolArg(args, "create_dirs", true)
	requireConfirmation := boolArg(args, "require_confirmation", true)

	abs, rel, err := ts.sandbox.CheckWritable(path, requireConfirmation)
	if err != nil {
		return "", err
	}

	action := "modified"
	if _, statErr := os.Stat(abs); errors.Is(statErr, os.ErrNotExist) {
		action = "created"
	}

	if createDirs {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return "", fmt.Errorf("%w: create directories for %s: %v", tools.ErrIOFailure, path, err)
		}
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", tools.ErrIOFailure, path, err)
	}

	ts.log.Info("file written", zap.String("path", rel), zap.String("action", action))
	return marshal(map[string]any{
		"success":    true,
		"path":       rel,
		"action":     action,
		"size_bytes": len(content),
		"lines":      len(strings.Split(strings.TrimRight(content, "\n"), "\n")),
	})
}

func (ts *Toolset) listDirectory(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	recursive := boolArg(args, "recursive", false)

	abs := ts.sandbox.Root()
	rel := "."
	if path != "" {
		var err error
		abs, rel, err = ts.sandbox.CheckReadable(path)
		if err != nil {
			return "", err
		}
	}

	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", tools.ErrFileNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", tools.ErrIOFailure, path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: not a directory: %s", tools.ErrIOFailure, path)
	}

	type item struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int64  `json:"size,omitempty"`
	}
	var items []item

	if recursive {
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil || d.IsDir() {
				return nil
			}
			entryRel, relErr := filepath.Rel(ts.sandbox.Root(), p)
			if relErr != nil {
				return nil
			}
			entryRel = filepath.ToSlash(entryRel)
			if !ts.sandbox.Allowed(entryRel) {
				return nil
			}
			if fi, infoErr := d.Info(); infoErr == nil {
				items = append(items, item{Path: entryRel, Type: "file", Size: fi.Size()})
			}
			return nil
		})
	} else {
		var entries []os.DirEntry
		entries, err = os.ReadDir(abs)
		for _, entry := range entries {
			entryRel, relErr := filepath.Rel(ts.sandbox.Root(), filepath.Join(abs, entry.Name()))
			if relErr != nil {
				continue
			}
			entryRel = filepath.ToSlash(entryRel)
			if entry.IsDir() {
				if ts.sandbox.Allowed(entryRel + "/") {
					items = append(items, item{Path: entryRel, Type: "directory"})
				}
			} else if ts.sandbox.Allowed(entryRel) {
				fi, infoErr := entry.Info()
				if infoErr != nil {
					continue
				}
				items = append(items, item{Path: entryRel, Type: "file", Size: fi.Size()})
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: list %s: %v", tools.ErrIOFailure, path, err)
	}

	// Directories sort ahead of files, then by path.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type == "directory"
		}
		return items[i].Path < items[j].Path
	})

	return marshal(map[string]any{
		"success": true,
		"path":    rel,
		"items":   items,
		"count":   len(items),
	})
}

func (ts *Toolset) searchCode(_ context.Context, args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	path, _ := args["path"].(string)
	filePattern, _ := args["file_pattern"].(string)
	if filePattern == "" {
		filePattern = defaultFilePattern
	}
	maxResults := defaultMaxResults
	if raw, ok := args["max_results"].(float64); ok && raw > 0 {
		maxResults = int(raw)
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return "", fmt.Errorf("%w: %v", tools.ErrInvalidPattern, err)
	}
	if _, err := filepath.Match(filePattern, "probe"); err != nil {
		return "", fmt.Errorf("%w: bad file pattern %q", tools.ErrInvalidPattern, filePattern)
	}

	searchRoot := ts.sandbox.Root()
	if path != "" {
		searchRoot, _, err = ts.sandbox.CheckReadable(path)
		if err != nil {
			return "", err
		}
	}

	type match struct {
		File    string `json:"file"`
		Line    int    `json:"line"`
		Content string `json:"content"`
	}
	var results []match
	filesSearched := 0

	walkErr := filepath.WalkDir(searchRoot, func(p string, d fs.DirEntry, inner error) error {
		if inner != nil || d.IsDir() {
			return nil
		}
		if len(results) >= maxResults {
			return filepath.SkipAll
		}
		if ok, _ := filepath.Match(filePattern, d.Name()); !ok {
			return nil
		}
		rel, relErr := filepath.Rel(ts.sandbox.Root(), p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !ts.sandbox.Allowed(rel) {
			return nil
		}

		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		filesSearched++
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				snippet := strings.TrimSpace(line)
				if len(snippet) > maxMatchLineLen {
					snippet = snippet[:maxMatchLineLen]
				}
				results = append(results, match{File: rel, Line: i + 1, Content: snippet})
				if len(results) >= maxResults {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("%w: search: %v", tools.ErrIOFailure, walkErr)
	}

	return marshal(map[string]any{
		"success":        true,
		"pattern":        pattern,
		"results":        results,
		"count":          len(results),
		"files_searched": filesSearched,
		"truncated":      len(results) >= maxResults,
	})
}

func (ts *Toolset) gitStatus(ctx context.Context, _ map[string]any) (string, error) {
	out, err := ts.git(ctx, gitShortTimeout, "status", "--porcelain")
	if err != nil {
		return "", err
	}

	type change struct {
		Status string `json:"status"`
		File   string `json:"file"`
	}
	var changes []change
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if len(line) > 3 {
			changes = append(changes, change{
				Status: strings.TrimSpace(line[:2]),
				File:   line[3:],
			})
		}
	}

	return marshal(map[string]any{
		"success":     true,
		"changes":     changes,
		"has_changes": len(changes) > 0,
	})
}

func (ts *Toolset) gitCommit(ctx context.Context, args map[string]any) (string, error) {
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message", tools.ErrMissingRequiredArg)
	}

	if rawFiles, ok := args["files"].([]any); ok && len(rawFiles) > 0 {
		addArgs := []string{"add"}
		for _, raw := range rawFiles {
			file, _ := raw.(string)
			if _, _, err := ts.sandbox.CheckReadable(file); err != nil {
				return "", fmt.Errorf("cannot commit file outside allowed paths: %s", file)
			}
			addArgs = append(addArgs, file)
		}
		if _, err := ts.git(ctx, gitShortTimeout, addArgs...); err != nil {
			return "", err
		}
	} else {
		if _, err := ts.git(ctx, gitShortTimeout, "add", "-A"); err != nil {
			return "", err
		}
	}

	out, err := ts.git(ctx, gitLongTimeout, "commit", "-m", message)
	if err != nil {
		if strings.Contains(strings.ToLower(out), "nothing to commit") {
			return marshal(map[string]any{"success": true, "message": "Nothing to commit", "sha": nil})
		}
		return "", err
	}

	sha, err := ts.git(ctx, gitShortTimeout, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}

	ts.log.Info("committed", zap.String("sha", strings.TrimSpace(sha)))
	return marshal(map[string]any{
		"success": true,
		"message": message,
		"sha":     strings.TrimSpace(sha),
	})
}

// git runs one git subcommand in the project root with a deadline.
func (ts *Toolset) git(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = ts.sandbox.Root()
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("%w: git %s", tools.ErrTimeout, args[0])
	}
	if err != nil {
		return string(out), fmt.Errorf("%w: git %s: %v: %s", tools.ErrIOFailure, args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func boolArg(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
