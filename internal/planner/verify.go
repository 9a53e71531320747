package planner

import (
	"os"
	"path/filepath"
)

// WorkspaceVerifier implements VerificationDefaulter by detecting a
// workspace's build-file marker (go.mod, package.json, Cargo.toml,
// pyproject.toml) and returning that language's idiomatic format-check and
// test commands, the same per-extension default idea the workspace's own
// code formatter uses for choosing gofmt/prettier/black/rustfmt.
type WorkspaceVerifier struct {
	Root string
}

// marker pairs a build-file name with the commands to run when it is found.
// Checked in order; the first match wins.
var markers = []struct {
	file     string
	commands []string
}{
	{"go.mod", []string{"gofmt -l .", "go vet ./...", "go test ./..."}},
	{"package.json", []string{"npx prettier --check .", "npm test"}},
	{"Cargo.toml", []string{"cargo fmt --check", "cargo test"}},
	{"pyproject.toml", []string{"black --check .", "pytest"}},
}

// DefaultVerification returns the workspace's idiomatic verification
// commands, or nil if no recognized build file is present.
func (v WorkspaceVerifier) DefaultVerification() []string {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(v.Root, m.file)); err == nil {
			return m.commands
		}
	}
	return nil
}
