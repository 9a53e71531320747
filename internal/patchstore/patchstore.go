// Package patchstore implements the patch store (C4): staging and applying
// unified diffs with target-path validation against the caller's declared
// file list.
package patchstore

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/agentcore/internal/apperror"
)

// vcsMetadataDirs are directories whose contents are never a valid patch
// target; writing into them would corrupt the workspace's VCS state.
var vcsMetadataDirs = map[string]bool{".git": true, ".hg": true, ".svn": true}

// Patch is the durable record of a staged unified diff.
type Patch struct {
	PatchID             string   `json:"patchID"`
	UnifiedDiff         string   `json:"unifiedDiff"`
	DeclaredTargetFiles []string `json:"declaredTargetFiles"`
	TargetFiles         []string `json:"targetFiles"`
	Applied             bool     `json:"applied"`
	CreatedAt           int64    `json:"createdAt"`
	Conflicts           []string `json:"conflicts,omitempty"`
}

// Store holds staged patches in memory, keyed by id. A production
// deployment would persist these as events through the event store; the
// patch body itself is reproducible from the LLM's tool call, so staging
// here is a working cache rather than a second source of truth.
type Store struct {
	mu      sync.Mutex
	patches map[string]*Patch
}

func New() *Store {
	return &Store{patches: make(map[string]*Patch)}
}

// Stage parses diff's unified-diff headers to collect target paths,
// validates them against declaredTargets, and records the patch. It
// performs no filesystem writes.
func (s *Store) Stage(diff string, declaredTargets []string, now int64) (*Patch, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, apperror.New(apperror.KindPatchInvalid, "empty diff")
	}

	targets, err := ParseTargets(diff)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPatchInvalid, "malformed diff headers", err)
	}
	if len(targets) == 0 {
		return nil, apperror.New(apperror.KindPatchInvalid, "diff has no target file markers")
	}

	declared := make(map[string]bool, len(declaredTargets))
	for _, d := range declaredTargets {
		declared[d] = true
	}
	for _, t := range targets {
		if err := validateTargetPath(t); err != nil {
			return nil, apperror.Wrap(apperror.KindPatchInvalid, "invalid target path "+t, err)
		}
		if !declared[t] {
			return nil, apperror.New(apperror.KindPatchInvalid, fmt.Sprintf("diff targets undeclared file: %s", t))
		}
	}

	p := &Patch{
		PatchID:             ulid.Make().String(),
		UnifiedDiff:         diff,
		DeclaredTargetFiles: declaredTargets,
		TargetFiles:         targets,
		CreatedAt:           now,
	}

	s.mu.Lock()
	s.patches[p.PatchID] = p
	s.mu.Unlock()

	return p, nil
}

// validateTargetPath rejects absolute paths, traversal, and anything under
// VCS metadata directories.
func validateTargetPath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths are not allowed: %s", path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return fmt.Errorf("path traversal is not allowed: %s", path)
		}
		if vcsMetadataDirs[seg] {
			return fmt.Errorf("path under VCS metadata directory is not allowed: %s", path)
		}
	}
	return nil
}

// Apply atomically applies a previously staged patch against workspace via
// git's own apply primitive, whose all-or-nothing behavior means a failing
// diff never touches the working tree. On failure it reports applied=false
// with per-file conflicts attributed by re-checking each file's hunks on
// its own.
func (s *Store) Apply(workspace, patchID string) (bool, []string, error) {
	s.mu.Lock()
	p, ok := s.patches[patchID]
	s.mu.Unlock()
	if !ok {
		return false, nil, apperror.New(apperror.KindPatchInvalid, "unknown patch id "+patchID)
	}
	if p.Applied {
		return false, nil, apperror.New(apperror.KindPatchInvalid, "patch already applied")
	}

	if err := gitApply(workspace, p.UnifiedDiff, false); err != nil {
		hunksByFile, splitErr := SplitByFile(p.UnifiedDiff)
		if splitErr != nil {
			return false, nil, apperror.Wrap(apperror.KindPatchInvalid, "split diff by file", splitErr)
		}
		conflicts := conflictsPerFile(workspace, p.TargetFiles, hunksByFile)
		if len(conflicts) == 0 {
			// git rejected the diff as a whole but no single file's hunk
			// failed in isolation: report the whole-diff error verbatim.
			conflicts = []string{err.Error()}
		}
		s.mu.Lock()
		p.Conflicts = conflicts
		s.mu.Unlock()
		return false, conflicts, nil
	}

	s.mu.Lock()
	p.Applied = true
	s.mu.Unlock()

	return true, nil, nil
}

// gitApply shells out to the workspace's git to apply diff. check runs a
// dry run (--check) that never touches the working tree.
func gitApply(workspace, diff string, check bool) error {
	args := []string{"apply", "--whitespace=nowarn"}
	if check {
		args = append(args, "--check")
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = workspace
	cmd.Stdin = strings.NewReader(diff)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// conflictsPerFile dry-runs each file's own hunk body after a whole-diff
// apply failed, so callers can report which specific targets did not apply
// cleanly instead of a single opaque error.
func conflictsPerFile(workspace string, targets []string, hunksByFile map[string]string) []string {
	var conflicts []string
	for _, target := range targets {
		hunkText, ok := hunksByFile[target]
		if !ok {
			continue
		}
		if err := gitApply(workspace, hunkText, true); err != nil {
			conflicts = append(conflicts, target+": "+err.Error())
		}
	}
	return conflicts
}

// Get returns a previously staged patch.
func (s *Store) Get(patchID string) (*Patch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patches[patchID]
	return p, ok
}
