package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWorkspaceVerifier_Go(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")

	cmds := WorkspaceVerifier{Root: dir}.DefaultVerification()
	assert.Equal(t, []string{"gofmt -l .", "go vet ./...", "go test ./..."}, cmds)
}

func TestWorkspaceVerifier_Node(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "package.json")

	cmds := WorkspaceVerifier{Root: dir}.DefaultVerification()
	assert.Equal(t, []string{"npx prettier --check .", "npm test"}, cmds)
}

func TestWorkspaceVerifier_PrefersEarlierMarker(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	touch(t, dir, "package.json")

	cmds := WorkspaceVerifier{Root: dir}.DefaultVerification()
	assert.Equal(t, []string{"gofmt -l .", "go vet ./...", "go test ./..."}, cmds)
}

func TestWorkspaceVerifier_NoMarker(t *testing.T) {
	dir := t.TempDir()

	cmds := WorkspaceVerifier{Root: dir}.DefaultVerification()
	assert.Nil(t, cmds)
}
