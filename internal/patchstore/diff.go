package patchstore

import (
	"fmt"
	"strings"
)

// ParseTargets scans a unified diff's "--- a/PATH" / "+++ b/PATH" header
// lines and returns the set of target paths, stripping the conventional
// "a/" / "b/" prefixes and treating "/dev/null" as "no target" (a pure
// file deletion or creation contributes only its surviving side).
func ParseTargets(diff string) ([]string, error) {
	seen := make(map[string]bool)
	var targets []string

	lines := strings.Split(diff, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "--- ") {
			continue
		}
		if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
			return nil, fmt.Errorf("line %d: \"---\" header without matching \"+++\" header", i+1)
		}

		oldPath := stripDiffPrefix(strings.TrimPrefix(line, "--- "))
		newPath := stripDiffPrefix(strings.TrimPrefix(lines[i+1], "+++ "))

		target := newPath
		if target == "" {
			target = oldPath
		}
		if target == "" {
			continue // both sides /dev/null: nothing to validate
		}
		if !seen[target] {
			seen[target] = true
			targets = append(targets, target)
		}
		i++ // consumed the +++ line too
	}

	return targets, nil
}

// stripDiffPrefix removes the a/ or b/ prefix git-style diffs use, any
// trailing tab-separated timestamp, and maps /dev/null to "".
func stripDiffPrefix(field string) string {
	field = strings.TrimSpace(field)
	if idx := strings.IndexByte(field, '\t'); idx >= 0 {
		field = field[:idx]
	}
	if field == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(field, "a/") {
		return field[2:]
	}
	if strings.HasPrefix(field, "b/") {
		return field[2:]
	}
	return field
}

// SplitByFile partitions a multi-file unified diff into per-file bodies
// keyed by target path, each body starting at its own "--- "/"+++ " header
// pair, so a failed whole-diff apply can be re-run one file at a time to
// attribute which target actually conflicted.
func SplitByFile(diff string) (map[string]string, error) {
	lines := strings.Split(diff, "\n")
	result := make(map[string]string)

	var currentTarget string
	var body []string

	flush := func() {
		if currentTarget != "" && len(body) > 0 {
			result[currentTarget] = strings.Join(body, "\n") + "\n"
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") {
			flush()
			oldPath := stripDiffPrefix(strings.TrimPrefix(line, "--- "))
			newPath := stripDiffPrefix(strings.TrimPrefix(lines[i+1], "+++ "))
			currentTarget = newPath
			if currentTarget == "" {
				currentTarget = oldPath
			}
			body = []string{line, lines[i+1]}
			i++
			continue
		}
		if currentTarget != "" {
			body = append(body, line)
		}
	}
	flush()

	return result, nil
}
