package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/agentcore/internal/agent"
	"github.com/opencode-ai/agentcore/internal/config"
	"github.com/opencode-ai/agentcore/internal/engine"
	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/llm"
	"github.com/opencode-ai/agentcore/internal/logging"
	"github.com/opencode-ai/agentcore/internal/planner"
	"github.com/opencode-ai/agentcore/internal/policy"
	"github.com/opencode-ai/agentcore/internal/project"
	"github.com/opencode-ai/agentcore/internal/provider"
	"github.com/opencode-ai/agentcore/internal/router"
	"github.com/opencode-ai/agentcore/internal/toolhost"
	"github.com/opencode-ai/agentcore/internal/toolloop"
	"github.com/opencode-ai/agentcore/pkg/types"
)

var (
	runModel   string
	runSession string
	runTask    bool
	runDir     string
	runSystem  string
	runYes     bool
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run one prompt through an agentcore session",
	Long: `Run starts or continues a session and drives one prompt through the
tool-use loop.

Examples:
  agentcore run "explain this function"
  agentcore run --task "add input validation to the handler"
  agentcore run --session sess_01 "keep going"`,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().BoolVar(&runTask, "task", false, "Run the full planner/verification sequence instead of a one-shot chat")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
	runCmd.Flags().StringVar(&runSystem, "system", "", "System prompt")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Auto-approve every tool call")
}

func runAgent(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	if message == "" {
		return fmt.Errorf("message required. Usage: agentcore run \"your message\"")
	}

	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if runModel != "" {
		appConfig.Model = runModel
	}

	ctx := context.Background()

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	cache := llm.NewCache(paths.StoragePath())
	offpeak := llm.NewOffPeakScheduler(offPeakConfigFrom(appConfig))
	llmClient := llm.NewClient(providerReg, cache, offpeak, logging.Logger)

	store := eventstore.New(paths.StoragePath())
	policyEngine := policy.New(policy.DefaultConfig())

	verifier := planner.WorkspaceVerifier{Root: workDir}
	plan := planner.New(llmClient, verifier, llm.ChatRequest{Provider: providerID(appConfig.Model), Model: modelID(appConfig.Model)})

	rt := router.New(router.DefaultConfig())
	agentRegistry := agent.NewRegistry()

	// spawn_task's worker is the engine's own SubagentRunner, which in turn
	// needs the engine to spawn child sessions through; register it onto
	// the host once the engine exists rather than threading the cycle
	// through construction.
	host := toolhost.NewDefaultHost(toolhost.Deps{Todos: engine.NewEventTodoStore(store)})

	eng := engine.New(engine.Config{
		WorkspaceRoot: workDir,
		Provider:      providerID(appConfig.Model),
		Model:         modelID(appConfig.Model),
		MaxTurns:      40,
		Tools:         defaultToolInfos(),
		ReadOnlyTools: readOnlyToolInfos(),
		Router:        rt,
		Approve:       stdinApproval(runYes),
	}, store, policyEngine, host, llmClient, plan, logging.Logger)

	toolhost.SetSubagentWorker(host, engine.NewSubagentRunner(eng, agentRegistry))

	sessionID := runSession
	if sessionID == "" {
		sessionID, err = eng.CreateSession(ctx, currentCommit(workDir))
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}

	proj, err := project.FromDirectory(workDir)
	if err != nil {
		fmt.Printf("session %s\n", sessionID)
	} else {
		fmt.Printf("session %s (project %s)\n", sessionID, proj.ID)
	}

	var result *toolloop.Result
	if runTask {
		result, err = eng.RunTask(ctx, sessionID, runSystem, message)
	} else {
		result, err = eng.RunChat(ctx, sessionID, runSystem, message, false)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Println(result.Text)
	return nil
}

func stdinApproval(autoApprove bool) toolloop.ApprovalFunc {
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, call toolhost.Call, invocationID string) (bool, error) {
		if autoApprove {
			return true, nil
		}
		fmt.Printf("approve %s %v? [y/N] ", call.Name, call.Args)
		line, _ := reader.ReadString('\n')
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y"), nil
	}
}

// currentCommit returns the workspace's HEAD commit, or "" outside a git
// repository; the engine treats an empty baseline as "nothing to
// checkpoint yet" rather than an error.
func currentCommit(workDir string) string {
	out, err := exec.Command("git", "-C", workDir, "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// offPeakConfigFrom translates the user-facing off-peak config block into
// llm.OffPeakConfig; a missing block leaves off-peak deferral disabled.
func offPeakConfigFrom(cfg *types.Config) llm.OffPeakConfig {
	if cfg.OffPeak == nil {
		return llm.OffPeakConfig{}
	}
	return llm.OffPeakConfig{
		Enabled:         cfg.OffPeak.Enabled,
		Start:           cfg.OffPeak.StartHour,
		End:             cfg.OffPeak.EndHour,
		DeferNonUrgent:  cfg.OffPeak.DeferNonUrgent,
		MaxDeferSeconds: cfg.OffPeak.MaxDeferSeconds,
	}
}

func providerID(model string) string {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) == 2 {
		return parts[0]
	}
	return ""
}

func modelID(model string) string {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return model
}

// defaultToolInfos lists the mutating and read-only built-in tools
// registered by toolhost.NewDefaultHost.
func defaultToolInfos() []*schema.ToolInfo {
	names := []string{
		"fs.read", "fs.write", "fs.edit", "fs.list", "fs.glob", "fs.grep",
		"git.status", "git.diff", "git.show",
		"bash.run",
		"web.fetch", "web.search",
		"index.query",
		"patch.stage", "patch.apply",
		"task.read", "task.write",
		"spawn_task", "user_question", "extended_thinking", "mcp_search",
	}
	return toolInfosFor(names)
}

func readOnlyToolInfos() []*schema.ToolInfo {
	names := []string{
		"fs.read", "fs.list", "fs.glob", "fs.grep",
		"git.status", "git.diff", "git.show",
		"web.fetch", "web.search",
		"index.query",
		"task.read",
	}
	return toolInfosFor(names)
}

func toolInfosFor(names []string) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, &schema.ToolInfo{Name: n})
	}
	return infos
}
