package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/miniclaw/miniclaw/internal/agent"
	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/config"
	"github.com/miniclaw/miniclaw/internal/provider"
	"github.com/miniclaw/miniclaw/internal/session"
	"github.com/miniclaw/miniclaw/internal/timeline"
	"github.com/miniclaw/miniclaw/internal/tools"
	"github.com/miniclaw/miniclaw/internal/trace"
)

// runtime holds the components shared by the agent and gateway commands.
type runtime struct {
	cfg      *config.Config
	executor *tools.Executor
	loop     *agent.Loop
	sessions *session.Store
	timeline *timeline.TimelineService
	trace    *trace.Publisher
	bus      *bus.MessageBus
	runner   *agent.Runner
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newExecutor builds the tool executor for cfg, creating the workspace.
func newExecutor(cfg *config.Config) (*tools.Executor, error) {
	if err := config.EnsureDir(cfg.Paths.Workspace); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	exec := tools.NewExecutor(cfg.Paths.Workspace, cfg.Tools.ShellTimeout)
	exec.AllowPathEscape = cfg.Tools.AllowPathEscape
	if cfg.Tools.MaxOutputChars > 0 {
		exec.MaxOutput = cfg.Tools.MaxOutputChars
	}
	return exec, nil
}

// buildRuntime wires provider, loop, sessions, timeline and trace export.
// Timeline and trace failures are logged and the component is skipped.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	prov, err := provider.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	exec, err := newExecutor(cfg)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewStore(cfg.Paths.Sessions)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		executor: exec,
		sessions: sessions,
		bus:      bus.NewMessageBus(),
		loop: agent.NewLoop(agent.LoopOptions{
			Provider:      prov,
			Executor:      exec,
			Workspace:     cfg.Paths.Workspace,
			Model:         prov.DefaultModel(),
			MaxIterations: cfg.Model.MaxIterations,
			MaxTokens:     cfg.Model.MaxTokens,
			Temperature:   cfg.Model.Temperature,
		}),
	}

	if cfg.Timeline.Enabled {
		rt.timeline, err = openTimeline(cfg)
		if err != nil {
			slog.Warn("Timeline disabled", "path", cfg.Timeline.DBPath, "error", err)
		}
	}
	if cfg.Trace.Enabled {
		rt.trace, err = trace.NewPublisher(cfg.Trace.Brokers, cfg.Trace.Topic, trace.Security{
			Protocol:  cfg.Trace.SecurityProtocol,
			Mechanism: cfg.Trace.SASLMechanism,
			Username:  cfg.Trace.SASLUsername,
			Password:  cfg.Trace.SASLPassword,
			CAFile:    cfg.Trace.CAFile,
			CertFile:  cfg.Trace.CertFile,
			KeyFile:   cfg.Trace.KeyFile,
		})
		if err != nil {
			slog.Warn("Trace export disabled", "error", err)
		}
	}

	opts := agent.RunnerOptions{
		Loop:     rt.loop,
		Sessions: rt.sessions,
		Bus:      rt.bus,
		Timeline: rt.timeline,
	}
	if rt.trace != nil {
		opts.Trace = rt.trace
	}
	rt.runner = agent.NewRunner(opts)
	return rt, nil
}

func openTimeline(cfg *config.Config) (*timeline.TimelineService, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Timeline.DBPath), 0755); err != nil {
		return nil, err
	}
	return timeline.NewTimelineService(cfg.Timeline.DBPath)
}

func (rt *runtime) Close() {
	if rt.trace != nil {
		if err := rt.trace.Close(); err != nil {
			slog.Warn("Trace publisher close failed", "error", err)
		}
	}
	if rt.timeline != nil {
		if err := rt.timeline.Close(); err != nil {
			slog.Warn("Timeline close failed", "error", err)
		}
	}
}
