package toolhost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/opencode-ai/agentcore/internal/policy"
)

// fsReadHandler implements fs.read.
type fsReadHandler struct{}

func (fsReadHandler) Name() string { return "fs.read" }

func (fsReadHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	path, _ := call.Args["path"].(string)
	if err := pe.CheckPath(path); err != nil {
		return false, err.Error(), nil
	}
	return true, "", nil
}

func (fsReadHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	full := resolveWithin(toolCtx.WorkDir, in.Path)
	data, err := os.ReadFile(full)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: string(data)}, nil
}

// fsWriteHandler implements fs.write.
type fsWriteHandler struct{}

func (fsWriteHandler) Name() string { return "fs.write" }

func (fsWriteHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	path, _ := call.Args["path"].(string)
	if err := pe.CheckPath(path); err != nil {
		return false, err.Error(), nil
	}
	return pe.RequiresApproval(call) == false, "", nil
}

func (fsWriteHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	full := resolveWithin(toolCtx.WorkDir, in.Path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	if err := os.WriteFile(full, []byte(in.Content), 0o644); err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}, nil
}

// fsEditHandler implements fs.edit: a single literal find/replace, the
// smallest unit patch.stage's diff machinery doesn't already cover.
type fsEditHandler struct{}

func (fsEditHandler) Name() string { return "fs.edit" }

func (fsEditHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	path, _ := call.Args["path"].(string)
	if err := pe.CheckPath(path); err != nil {
		return false, err.Error(), nil
	}
	return false, "", nil // edits always require approval, see spec §4.2(a)
}

func (fsEditHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Path      string `json:"path"`
		OldString string `json:"oldString"`
		NewString string `json:"newString"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	full := resolveWithin(toolCtx.WorkDir, in.Path)
	data, err := os.ReadFile(full)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	before := string(data)
	count := strings.Count(before, in.OldString)
	if count == 0 {
		return &Result{Success: false, Output: "oldString not found in file"}, nil
	}
	if count > 1 {
		return &Result{Success: false, Output: fmt.Sprintf("oldString is not unique: %d occurrences", count)}, nil
	}
	after := strings.Replace(before, in.OldString, in.NewString, 1)
	if err := os.WriteFile(full, []byte(after), 0o644); err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	additions, deletions := summarizeEdit(before, after)
	return &Result{Success: true, Output: fmt.Sprintf("edit applied (+%d -%d)", additions, deletions)}, nil
}

// fsListHandler implements fs.list.
type fsListHandler struct{}

func (fsListHandler) Name() string { return "fs.list" }

func (fsListHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	path, _ := call.Args["path"].(string)
	if path != "" {
		if err := pe.CheckPath(path); err != nil {
			return false, err.Error(), nil
		}
	}
	return true, "", nil
}

func (fsListHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Path string `json:"path"`
	}
	_ = marshalArgs(call.Args, &in)
	full := resolveWithin(toolCtx.WorkDir, in.Path)
	entries, err := os.ReadDir(full)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Result{Success: true, Output: strings.Join(names, "\n")}, nil
}

// fsGlobHandler implements fs.glob.
type fsGlobHandler struct{}

func (fsGlobHandler) Name() string { return "fs.glob" }

func (fsGlobHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (fsGlobHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Pattern string `json:"pattern"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	matches, err := doublestar.Glob(os.DirFS(toolCtx.WorkDir), in.Pattern)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	sort.Strings(matches)
	return &Result{Success: true, Output: SearchOutput{Results: toHits(matches)}}, nil
}

func toHits(paths []string) []SearchHit {
	hits := make([]SearchHit, len(paths))
	for i, p := range paths {
		hits[i] = SearchHit{Path: p}
	}
	return hits
}

// fsGrepHandler implements fs.grep: a pure-Go line scan over glob-matched
// files, avoiding a dependency on an external ripgrep binary.
type fsGrepHandler struct{}

func (fsGrepHandler) Name() string { return "fs.grep" }

func (fsGrepHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (fsGrepHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Pattern string `json:"pattern"`
		Glob    string `json:"glob"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	globPattern := in.Glob
	if globPattern == "" {
		globPattern = "**/*"
	}
	matches, err := doublestar.Glob(os.DirFS(toolCtx.WorkDir), globPattern)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}

	var hits []SearchHit
	for _, rel := range matches {
		full := filepath.Join(toolCtx.WorkDir, rel)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, in.Pattern) {
				hits = append(hits, SearchHit{Path: rel, Line: i + 1, Snippet: line})
			}
		}
	}
	return &Result{Success: true, Output: SearchOutput{Results: hits}}, nil
}

// resolveWithin joins rel onto root and cleans it. CheckPath has already
// rejected traversal segments during Propose, so by Execute time this is
// just path joining, not a second security boundary.
func resolveWithin(root, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(root, rel)
}
