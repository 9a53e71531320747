package toolhost

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// summarizeEdit computes a line-level addition/deletion count for a single
// file edit, for inclusion in fs.edit's result output. It never produces an
// applyable patch body; patchstore.Stage/Apply owns that path.
func summarizeEdit(before, after string) (additions, deletions int) {
	if before == after {
		return 0, 0
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}
	return additions, deletions
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
