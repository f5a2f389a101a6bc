package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/miniclaw/miniclaw/internal/agent"
	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/channels"
	"github.com/miniclaw/miniclaw/internal/config"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the chat gateway (enabled channels, turn runner, delivery)",
	RunE:  runGateway,
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	manager := buildChannels(cfg, rt.bus)
	if len(manager.Channels()) == 0 {
		return &config.ConfigurationError{Message: "no channel enabled (set channels.telegram, channels.slack or channels.whatsapp)"}
	}

	out := cmd.OutOrStdout()
	printHeader(out, "🚪 miniclaw gateway")
	fmt.Fprintf(out, "Model:     %s\n", rt.loop.Model())
	fmt.Fprintf(out, "Workspace: %s\n", rt.loop.Workspace())
	fmt.Fprintf(out, "Channels:  %v\n", manager.Channels())
	fmt.Fprintf(out, "Timeline:  %s\n", check(rt.timeline != nil))
	fmt.Fprintf(out, "Trace:     %s\n", check(rt.trace != nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	runBackground := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Gateway component stopped", "component", name, "error", err)
			}
		}()
	}

	if rt.timeline != nil {
		worker := agent.NewDeliveryWorker(rt.timeline, rt.bus)
		rt.bus.OnDelivery(worker.Report)
		runBackground("delivery", worker.Run)
	}
	runBackground("dispatch", rt.bus.DispatchOutbound)
	runBackground("runner", rt.runner.Run)

	if err := manager.StartAll(ctx); err != nil {
		stop()
		wg.Wait()
		return err
	}
	slog.Info("Gateway running", "channels", manager.Channels())

	<-ctx.Done()
	slog.Info("Shutting down gateway")
	manager.StopAll()
	wg.Wait()
	return nil
}

// buildChannels registers every enabled channel with a manager.
func buildChannels(cfg *config.Config, b *bus.MessageBus) *channels.Manager {
	manager := channels.NewManager(b)
	pause := cfg.Channels.ChunkPause
	if cfg.Channels.Telegram.Enabled {
		manager.Register(channels.NewTelegramChannel(cfg.Channels.Telegram, pause, b))
	}
	if cfg.Channels.Slack.Enabled {
		manager.Register(channels.NewSlackChannel(cfg.Channels.Slack, pause, b))
	}
	if cfg.Channels.WhatsApp.Enabled {
		manager.Register(channels.NewWhatsAppChannel(cfg.Channels.WhatsApp, pause, b))
	}
	return manager
}
