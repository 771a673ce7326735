package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"aura/pkg/agent"
	"aura/pkg/api"
	"aura/pkg/channels"
	_ "aura/pkg/channels/autoload" // Register channel factories
	"aura/pkg/config"
	"aura/pkg/gateway"
	"aura/pkg/handler"
	"aura/pkg/llm"
	_ "aura/pkg/llm/autoload" // Register LLM providers
	"aura/pkg/monitor"
	"aura/pkg/scheduler"
	"aura/pkg/session"
	"aura/pkg/tools"
	"aura/pkg/tools/builtin"
)

func main() {
	monitor.PrintBanner()

	cfg, sys, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	monitor.SetupSlog(sys.LogLevel)
	log.Println("==========================================")

	client, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		log.Fatalf("❌ Failed to init LLM client: %v", err)
	}

	registry := tools.NewRegistry(sys.ModulesDir, cfg.AllowedChats)
	if sys.EnableTools {
		registry.Bind(
			&builtin.ClockModule{},
			&builtin.WebModule{},
			&builtin.MemoryModule{},
			&builtin.RemindersModule{},
			&builtin.SystemModule{},
		)
		registry.Reload()
		slog.Info("Tool registry ready", "tools", registry.Count())
	}

	ag := agent.New(client, registry, cfg.SystemPrompt, sys)
	orch := session.NewOrchestrator(ag, client, sys)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if sys.EnableTools {
		go func() {
			debounce := time.Duration(sys.WatchDebounceMs) * time.Millisecond
			if err := tools.Watch(ctx, registry, sys.ModulesDir, debounce); err != nil {
				slog.Warn("Module watcher unavailable", "error", err)
			}
		}()
	}

	// The gateway pointer is captured by the scheduler's fire callback
	// before Build(); jobs can only be scheduled after channels start,
	// so the assignment always happens first.
	var gw *gateway.GatewayManager

	sched := scheduler.New(func(chatID, prompt string) {
		sctx := api.SessionContext{
			ChannelID: "telegram",
			ChatID:    chatID,
			Username:  "scheduler",
		}
		if err := gw.SendReply(sctx, "⏰ Scheduled Task: "+prompt); err != nil {
			slog.Error("Failed to announce scheduled task", "chat_id", chatID, "error", err)
		}
		orch.Process(context.Background(), sctx, prompt, gw)
	})

	registry.SetGlobalContext(map[string]any{
		tools.CtxScheduler: sched,
		tools.CtxRegistry:  registry,
	})

	gw, err = gateway.NewGatewayBuilder().
		WithSystemConfig(sys).
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(channels.CreateFromConfig(cfg.Channels, sys)...).
		WithHandler(handler.NewChatHandler(orch, registry)).
		Build()
	if err != nil {
		log.Fatalf("Failed to build gateway: %v", err)
	}

	<-ctx.Done()
	log.Println("Received shutdown signal. Stopping services...")

	sched.Stop()
	gw.StopAll()
	log.Println("Bye!")
}
