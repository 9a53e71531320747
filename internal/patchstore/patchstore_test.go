package patchstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `--- a/hello.txt
+++ b/hello.txt
@@ -1,2 +1,2 @@
-hello
+hello world
 second line
`

func TestParseTargets(t *testing.T) {
	targets, err := ParseTargets(sampleDiff)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello.txt"}, targets)
}

func TestParseTargets_DevNullCreate(t *testing.T) {
	diff := "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1 @@\n+hello\n"
	targets, err := ParseTargets(diff)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt"}, targets)
}

func TestStage_RejectsEmptyDiff(t *testing.T) {
	s := New()
	_, err := s.Stage("", []string{"a.txt"}, 0)
	assert.Error(t, err)
}

func TestStage_RejectsUndeclaredTarget(t *testing.T) {
	s := New()
	_, err := s.Stage(sampleDiff, []string{"other.txt"}, 0)
	assert.Error(t, err)
}

func TestStage_RejectsAbsoluteAndVCSPaths(t *testing.T) {
	s := New()
	absDiff := "--- a/etc/passwd\n+++ b//etc/passwd\n@@ -1 +1 @@\n-x\n+y\n"
	_, err := s.Stage(absDiff, []string{"/etc/passwd"}, 0)
	assert.Error(t, err)

	gitDiff := "--- a/.git/config\n+++ b/.git/config\n@@ -1 +1 @@\n-x\n+y\n"
	_, err = s.Stage(gitDiff, []string{".git/config"}, 0)
	assert.Error(t, err)
}

func TestStage_AcceptsDeclaredTarget(t *testing.T) {
	s := New()
	p, err := s.Stage(sampleDiff, []string{"hello.txt"}, 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello.txt"}, p.TargetFiles)
	assert.False(t, p.Applied)
}

func TestApply_ModifiesExactlyTargetFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello\nsecond line\n"), 0o644))

	s := New()
	p, err := s.Stage(sampleDiff, []string{"hello.txt"}, 0)
	require.NoError(t, err)

	applied, conflicts, err := s.Apply(dir, p.PatchID)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	assert.True(t, applied)

	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
}

func TestApply_ConflictReportsWithoutPartialWrite(t *testing.T) {
	dir := t.TempDir()
	// File content does not match the diff's expected context, so the
	// patch cannot apply cleanly.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("totally different\n"), 0o644))

	s := New()
	p, err := s.Stage(sampleDiff, []string{"hello.txt"}, 0)
	require.NoError(t, err)

	applied, conflicts, err := s.Apply(dir, p.PatchID)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NotEmpty(t, conflicts)

	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "totally different\n", string(data), "workspace must be untouched after a failed apply")
}
