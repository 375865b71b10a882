package daemon

import (
	"log/slog"
	"time"

	"loom/internal/agent"
	"loom/internal/breaker"
	"loom/internal/config"
	"loom/internal/intake"
	"loom/internal/notifications"
	"loom/internal/orchestrator"
	"loom/internal/progress"
	"loom/internal/retry"
	"loom/internal/services/engine"
	"loom/internal/store"
	"loom/internal/timeline"
)

// Build wires a complete daemon from configuration: store, engine client,
// capability adapters, orchestrator, and notifier.
func Build(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	recorder := timeline.New(st, logger)
	breakers := breaker.NewRegistry(breaker.Settings{
		Threshold: cfg.Breaker.FailureThreshold,
		Cooldown:  time.Duration(cfg.Breaker.CooldownMs) * time.Millisecond,
	})
	engineClient := engine.NewFromConfig(cfg)

	runner := agent.NewRunner(st, breakers, recorder, logger, cfg.Workflow.QAAutoApprove)
	for _, role := range []store.AgentRole{store.RoleStrategist, store.RoleCopywriter, store.RoleProducer, store.RoleQA} {
		runner.Register(agent.NewEngineAdapter(role, engineClient))
	}

	notifier := notifications.NewService(cfg)
	orch := orchestrator.New(st, runner, retry.FromConfig(cfg), recorder, notifier, logger)

	return New(Options{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Orchestrator: orch,
		Intake:       intake.New(st, logger),
		Tracker:      progress.New(st),
		Recorder:     recorder,
		Notifier:     notifier,
		Engine:       engineClient,
		Breakers:     breakers,
	})
}
