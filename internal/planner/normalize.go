package planner

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// knownTools is every canonical tool name a plan step may reference, used
// both as the default-by-intent source of truth and as the correction
// target set for fuzzy colloquial-name matching.
var knownTools = []string{
	"fs.read", "fs.write", "fs.edit", "fs.list", "fs.glob", "fs.grep",
	"git.status", "git.diff", "git.show",
	"bash.run",
	"web.search", "web.fetch",
	"patch.stage", "patch.apply",
	"index.query",
}

// aliasNormalize maps colloquial tool names to their canonical form.
var aliasNormalize = map[string]string{
	"bash":   "bash.run",
	"shell":  "bash.run",
	"sh":     "bash.run",
	"grep":   "fs.grep",
	"search": "fs.grep",
	"read":   "fs.read",
	"cat":    "fs.read",
	"write":  "fs.write",
	"edit":   "fs.edit",
	"list":   "fs.list",
	"ls":     "fs.list",
	"glob":   "fs.glob",
	"status": "git.status",
	"diff":   "git.diff",
	"show":   "git.show",
	"fetch":  "web.fetch",
	"query":  "index.query",
	"patch":  "patch.stage",
	"apply":  "patch.apply",
}

// fuzzyMatchThreshold is the maximum edit distance accepted when
// correcting a planner-emitted tool name that isn't an exact alias.
const fuzzyMatchThreshold = 2

// normalizeToolName maps a colloquial or slightly-misspelled tool name to
// its canonical form. Names that are already canonical pass through
// unchanged; names with no close match pass through unchanged too, so a
// genuinely novel tool name isn't silently discarded.
func normalizeToolName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return name
	}
	for _, t := range knownTools {
		if t == name {
			return t
		}
	}
	if canonical, ok := aliasNormalize[name]; ok {
		return canonical
	}

	best := name
	bestDist := fuzzyMatchThreshold + 1
	for _, t := range knownTools {
		d := levenshtein.ComputeDistance(name, t)
		if d < bestDist {
			bestDist = d
			best = t
		}
	}
	if bestDist <= fuzzyMatchThreshold {
		return best
	}
	return name
}

// inferIntent derives a step's intent from its title keywords when the
// LLM omits it, falling back to the first tool, then "task".
func inferIntent(title string, tools []string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "verify"), strings.Contains(lower, "test"):
		return IntentVerify
	case strings.Contains(lower, "doc"):
		return IntentDocs
	case strings.Contains(lower, "git"), strings.Contains(lower, "branch"), strings.Contains(lower, "commit"):
		return IntentGit
	case strings.Contains(lower, "search"), strings.Contains(lower, "find"), strings.Contains(lower, "analy"):
		return IntentSearch
	case strings.Contains(lower, "edit"), strings.Contains(lower, "implement"), strings.Contains(lower, "fix"), strings.Contains(lower, "refactor"):
		return IntentEdit
	}

	if len(tools) > 0 {
		switch {
		case strings.HasPrefix(tools[0], "git."):
			return IntentGit
		case tools[0] == "bash.run":
			return IntentVerify
		}
	}

	return IntentTask
}

// defaultToolsForIntent returns the default tool set for an intent when
// the LLM omitted tools for a step.
func defaultToolsForIntent(intent string) []string {
	switch intent {
	case IntentSearch:
		return []string{"index.query", "fs.grep", "fs.read"}
	case IntentEdit:
		return []string{"fs.edit", "patch.stage"}
	case IntentVerify:
		return []string{"bash.run"}
	case IntentGit:
		return []string{"git.status", "git.diff"}
	case IntentDocs:
		return []string{"fs.edit"}
	case IntentRecover:
		return []string{"fs.grep", "fs.read"}
	default:
		return []string{"fs.list"}
	}
}

// dedupe removes duplicate entries, preserving first-seen order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
