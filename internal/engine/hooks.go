package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentcore/internal/toolhost"
	"github.com/opencode-ai/agentcore/internal/toolloop"
)

// Phase identifies which side of a tool call a hook fires on.
type Phase string

const (
	PhaseBeforeTool Phase = "pretooluse"
	PhaseAfterTool  Phase = "posttooluse"
)

const defaultHookTimeout = 30 * time.Second

// HookRun is the outcome of running a single hook script.
type HookRun struct {
	Path     string
	Success  bool
	TimedOut bool
	ExitCode int
	Output   string
}

// HookRuntime executes a workspace's configured hook scripts as
// subprocesses around tool calls, passing call context through environment
// variables and collecting their combined stdout and stderr as additional
// context.
type HookRuntime struct {
	workspace   string
	beforePaths []string
	afterPaths  []string
	timeout     time.Duration
	log         zerolog.Logger
}

// NewHookRuntime builds a runtime over the given before/after hook script
// paths. A nil or empty list for either phase means no hooks fire there.
func NewHookRuntime(workspace string, beforePaths, afterPaths []string, log zerolog.Logger) *HookRuntime {
	return &HookRuntime{
		workspace:   workspace,
		beforePaths: beforePaths,
		afterPaths:  afterPaths,
		timeout:     defaultHookTimeout,
		log:         log.With().Str("component", "hooks").Logger(),
	}
}

// Before satisfies toolloop.BeforeToolHook.
func (r *HookRuntime) Before(ctx context.Context, call toolhost.Call) (toolloop.HookResult, error) {
	argsJSON, _ := json.Marshal(call.Args)
	ctxData := hookContext{
		phase:      PhaseBeforeTool,
		workspace:  r.workspace,
		toolName:   call.Name,
		toolArgs:   string(argsJSON),
		toolResult: "",
	}
	runs := r.run(ctx, r.beforePaths, ctxData)
	return toHookResult(runs), nil
}

// After satisfies toolloop.AfterToolHook.
func (r *HookRuntime) After(ctx context.Context, call toolhost.Call, result *toolhost.Result) (toolloop.HookResult, error) {
	argsJSON, _ := json.Marshal(call.Args)
	var resultJSON []byte
	if result != nil {
		resultJSON, _ = json.Marshal(result.Output)
	}
	ctxData := hookContext{
		phase:      PhaseAfterTool,
		workspace:  r.workspace,
		toolName:   call.Name,
		toolArgs:   string(argsJSON),
		toolResult: string(resultJSON),
	}
	runs := r.run(ctx, r.afterPaths, ctxData)
	return toHookResult(runs), nil
}

type hookContext struct {
	phase      Phase
	workspace  string
	toolName   string
	toolArgs   string
	toolResult string
}

// run executes every configured hook path for one phase, in order, and
// collects their results. A hook that times out is killed and marked
// failed; any non-zero exit (including a timeout kill) makes toHookResult
// block the call, with the failing hooks' file names as the reason.
func (r *HookRuntime) run(ctx context.Context, paths []string, hc hookContext) []HookRun {
	runs := make([]HookRun, 0, len(paths))
	for _, path := range paths {
		runs = append(runs, r.runOne(ctx, path, hc))
	}
	return runs
}

func (r *HookRuntime) runOne(ctx context.Context, path string, hc hookContext) HookRun {
	cmd := buildHookCommand(ctx, path)
	cmd.Dir = r.workspace
	cmd.Env = append(os.Environ(),
		"AGENTCORE_HOOK_PHASE="+string(hc.phase),
		"AGENTCORE_WORKSPACE="+hc.workspace,
		"AGENTCORE_TOOL_NAME="+hc.toolName,
		"AGENTCORE_TOOL_ARGS_JSON="+hc.toolArgs,
		"AGENTCORE_TOOL_RESULT_JSON="+hc.toolResult,
	)

	var out bytes.Buffer
	cmd.Stdin = nil
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("hook failed to start")
		return HookRun{Path: path, Success: false, ExitCode: -1}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		exitCode := 0
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		return HookRun{Path: path, Success: err == nil, ExitCode: exitCode, Output: out.String()}
	case <-time.After(r.timeout):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return HookRun{Path: path, Success: false, TimedOut: true, ExitCode: -1, Output: out.String()}
	}
}

// buildHookCommand dispatches to an interpreter by file extension, matching
// how a workspace's hook scripts are typically authored without requiring
// an executable bit on every platform.
func buildHookCommand(ctx context.Context, path string) *exec.Cmd {
	switch filepath.Ext(path) {
	case ".ps1":
		if pwsh, err := exec.LookPath("pwsh"); err == nil {
			return exec.CommandContext(ctx, pwsh, "-ExecutionPolicy", "Bypass", "-File", path)
		}
		return exec.CommandContext(ctx, "powershell", "-ExecutionPolicy", "Bypass", "-File", path)
	case ".sh":
		return exec.CommandContext(ctx, "sh", path)
	case ".py":
		return exec.CommandContext(ctx, "python3", path)
	default:
		return exec.CommandContext(ctx, path)
	}
}

// toHookResult folds a phase's hook runs into the verdict the tool loop
// acts on: any failed run blocks the call, and every run's non-empty
// combined stdout and stderr becomes additional transcript context.
func toHookResult(runs []HookRun) toolloop.HookResult {
	var result toolloop.HookResult
	var blockedBy []string
	for _, run := range runs {
		trimmed := strings.TrimSpace(run.Output)
		if trimmed != "" {
			result.AdditionalContext = append(result.AdditionalContext, trimmed)
		}
		if !run.Success {
			blockedBy = append(blockedBy, filepath.Base(run.Path))
		}
	}
	if len(blockedBy) > 0 {
		result.Block = true
		result.BlockReason = fmt.Sprintf("hook(s) failed: %s", strings.Join(blockedBy, ", "))
	}
	return result
}
