// Package policy implements the policy gate (C2): path and command
// allow-listing, secret redaction, and the approval-required decision for
// every proposed tool call.
package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ReadOnlyTools bypass approval entirely: filesystem reads and search, git
// inspection, web fetch/search, retrieval query, and planning helpers.
var ReadOnlyTools = map[string]bool{
	"fs.read":       true,
	"fs.list":       true,
	"fs.glob":       true,
	"fs.grep":       true,
	"git.status":    true,
	"git.diff":      true,
	"git.show":      true,
	"web.search":    true,
	"web.fetch":     true,
	"index.query":   true,
	"mcp_search":    true,
	"user_question": true,
}

// approvalRequiredFamilies are tool families that always require approval
// regardless of the ReadOnlyTools bypass, per spec §4.2 (a).
var approvalRequiredFamilies = map[string]bool{
	"fs.write":    true,
	"fs.edit":     true,
	"bash.run":    true,
	"patch.apply": true,
}

// Config holds the configurable parts of the policy: the secret-path deny
// list and the shell command allow-list.
type Config struct {
	// DeniedPathPrefixes are path segments that are always rejected even
	// when nested deep in an otherwise-permitted directory, e.g. ".ssh".
	DeniedPathPrefixes []string
	// AllowedCommands lists the token-prefix sequences that check_command
	// permits, e.g. [["git", "status"], ["npm", "test"]].
	AllowedCommands [][]string
}

// DefaultConfig returns the conservative default: deny the conventional
// credential directories, allow nothing until the caller configures it.
func DefaultConfig() Config {
	return Config{
		DeniedPathPrefixes: []string{".ssh", ".aws", ".gnupg"},
	}
}

// Engine is the policy engine instance. It is stateless beyond its Config,
// so a single Engine can be shared across sessions.
type Engine struct {
	cfg Config
}

// New creates a policy Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

var secretRedactPattern = regexp.MustCompile(`(?i)(api_key|secret|token|password)=([^\s&]+)`)

// Redact rewrites "(api_key|secret|token|password)=VALUE" occurrences to
// mask the value, case-insensitively, leaving everything else untouched.
func (e *Engine) Redact(text string) string {
	return secretRedactPattern.ReplaceAllString(text, "${1}=REDACTED")
}

// CheckPath rejects any path containing a ".." traversal segment or
// overlapping a denied-secrets prefix.
func (e *Engine) CheckPath(relPath string) error {
	cleaned := filepath.ToSlash(filepath.Clean(relPath))
	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".." {
			return fmt.Errorf("policy_denied: path %q contains a traversal segment", relPath)
		}
	}
	for _, denied := range e.cfg.DeniedPathPrefixes {
		if pathContainsSegment(cleaned, denied) {
			return fmt.Errorf("policy_denied: path %q overlaps denied prefix %q", relPath, denied)
		}
	}
	return nil
}

func pathContainsSegment(path, segment string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// CheckCommand splits cmdline into shell calls via a real shell tokenizer
// and accepts the command only if every call's prefix tokens match some
// allow-list entry's tokens.
func (e *Engine) CheckCommand(cmdline string) error {
	calls, err := ParseShellCalls(cmdline)
	if err != nil {
		return fmt.Errorf("policy_denied: cannot parse command: %w", err)
	}
	if len(calls) == 0 {
		return fmt.Errorf("policy_denied: empty command")
	}
	for _, call := range calls {
		if !e.commandAllowed(call) {
			return fmt.Errorf("policy_denied: command %q is not allow-listed", strings.Join(call, " "))
		}
	}
	return nil
}

func (e *Engine) commandAllowed(tokens []string) bool {
	for _, allowed := range e.cfg.AllowedCommands {
		if len(allowed) > len(tokens) {
			continue
		}
		match := true
		for i, t := range allowed {
			if tokens[i] != t {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// ParseShellCalls tokenizes cmdline with mvdan.cc/sh's bash parser and
// returns one token slice per simple command invoked (covering pipelines
// and ";"-separated sequences, so "git status && rm -rf /" is checked call
// by call rather than as one opaque string).
func ParseShellCalls(cmdline string) ([][]string, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(cmdline), "")
	if err != nil {
		return nil, err
	}

	var calls [][]string
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			var tokens []string
			for _, w := range call.Args {
				tokens = append(tokens, wordLiteral(w))
			}
			if len(tokens) > 0 {
				calls = append(calls, tokens)
			}
		}
		return true
	})
	return calls, nil
}

func wordLiteral(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// ToolCall is the minimal shape RequiresApproval needs; toolhost.Call
// satisfies it structurally.
type ToolCall interface {
	ToolName() string
	NeedsApproval() bool
}

// RequiresApproval implements the C2 rule: approval is required when the
// tool family is flagged, or the call itself carries requires_approval.
// A small closed set of read-only tools always bypasses approval.
func (e *Engine) RequiresApproval(call ToolCall) bool {
	name := call.ToolName()
	if ReadOnlyTools[name] {
		return false
	}
	if approvalRequiredFamilies[name] {
		return true
	}
	return call.NeedsApproval()
}
