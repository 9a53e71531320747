package toolhost

import (
	"context"
	"os/exec"
	"strings"

	"github.com/opencode-ai/agentcore/internal/policy"
)

// gitHandler implements the read-only git.* family by shelling out to the
// system git binary, the same way the teacher's bash tool shells out for
// everything else — a vendored VCS library is unnecessary weight for three
// inspection commands that are always read-only.
type gitHandler struct {
	subcommand string
}

func (g gitHandler) Name() string { return "git." + g.subcommand }

func (g gitHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil // git.status/diff/show are read-only, never need approval
}

func (g gitHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	args := []string{g.subcommand}
	switch g.subcommand {
	case "show":
		var in struct {
			Ref string `json:"ref"`
		}
		_ = marshalArgs(call.Args, &in)
		if in.Ref != "" {
			args = append(args, in.Ref)
		}
	case "diff":
		var in struct {
			Path string `json:"path"`
		}
		_ = marshalArgs(call.Args, &in)
		if in.Path != "" {
			args = append(args, "--", in.Path)
		}
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = toolCtx.WorkDir
	out, err := cmd.CombinedOutput()
	success := err == nil
	output := strings.TrimRight(string(out), "\n")
	if err != nil && output == "" {
		output = err.Error()
	}
	return &Result{Success: success, Output: output}, nil
}

var gitHandlers = []Handler{
	gitHandler{subcommand: "status"},
	gitHandler{subcommand: "diff"},
	gitHandler{subcommand: "show"},
}
