package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swarm/agent"
	"swarm/config"
	"swarm/llm"
	"swarm/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SWARM_CONFIG"))
	if err != nil {
		fmt.Printf("Warning: failed to load config, using defaults: %v\n", err)
		cfg = config.Default()
	}

	llmManager := llm.NewManager()
	for purpose, llmCfg := range cfg.LLM {
		llmManager.RegisterConfig(llm.Purpose(purpose), llmCfg)
	}
	if cfg.StubResponses || len(llmManager.ListRegistered()) == 0 {
		llmManager.SetStubResponses(true)
		fmt.Println("[Main] No LLM clients configured, running with stub responses")
	}

	var metrics *agent.Metrics
	if cfg.Manager.MetricsEnabled {
		registry := prometheus.NewRegistry()
		metrics = agent.NewMetrics(registry)
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(":9090", nil); err != nil {
				fmt.Printf("[Main] Metrics server stopped: %v\n", err)
			}
		}()
	}

	manager := agent.NewManager(llmManager, agent.ManagerOptions{
		Workers:         cfg.Manager.Workers,
		DispatchTimeout: cfg.Manager.DispatchTimeout.Std(),
		RetryBackoff:    cfg.Manager.RetryBackoff.Std(),
		MonitorInterval: cfg.Manager.MonitorInterval.Std(),
		Metrics:         metrics,
	})

	agentOpts := agent.Options{
		MaxConcurrentTasks: cfg.Agents.MaxConcurrentTasks,
		MaxTaskDuration:    cfg.Agents.MaxTaskDuration.Std(),
		MemorySize:         cfg.Agents.MemorySize,
	}

	researcher := agent.NewResearchAgent("scout", llmManager, agentOpts)
	researcher.SetFetcher(web.NewFetcher(cfg.Web.Timeout.Std(), cfg.Web.MaxBodySize))
	creative := agent.NewCreativeAgent("muse", llmManager, agentOpts)
	technical := agent.NewTechnicalAgent("fixer", llmManager, agentOpts)
	coordinator := agent.NewCoordinatorAgent("lead", llmManager, agentOpts)

	for _, a := range []*agent.Agent{researcher.Agent, creative.Agent, technical.Agent, coordinator.Agent} {
		if err := a.Start(); err != nil {
			fmt.Printf("Error: could not start agent %q: %v\n", a.Name(), err)
			os.Exit(1)
		}
		if err := manager.RegisterAgent(a); err != nil {
			fmt.Printf("Error: could not register agent %q: %v\n", a.Name(), err)
			os.Exit(1)
		}
	}

	if err := manager.Start(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer manager.Stop()

	header := color.New(color.FgCyan, color.Bold)
	ok := color.New(color.FgGreen)

	header.Println("== Task dispatch ==")
	manager.SubmitTask(agent.NewTask("Summarize recent changes to the build pipeline"))
	urgent := agent.NewTask("Triage the failing deploy")
	urgent.Priority = agent.PriorityCritical
	urgent.RequiredCapabilities = []agent.Capability{"debugging"}
	manager.SubmitTask(urgent)

	header.Println("== Team meeting ==")
	team, err := manager.CreateTeam("product-pod",
		[]*agent.Agent{researcher.Agent, creative.Agent, technical.Agent},
		agent.StrategyCapabilityBased)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for name, view := range team.TeamMeeting(ctx, "What should the next release focus on?") {
		fmt.Printf("  %s: %s\n", name, view)
	}

	header.Println("== Collaboration ==")
	collabTask := agent.NewTask("Design the onboarding flow")
	collab, err := manager.OrchestrateCollaboration(collabTask,
		[]*agent.Agent{creative.Agent, technical.Agent})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, name := range []string{"muse", "fixer", "muse"} {
		a, _ := manager.GetAgent(name)
		contribution, err := a.Think(ctx, fmt.Sprintf("Contribute to: %s", collabTask.Description), nil)
		if err != nil {
			fmt.Printf("  %s could not contribute: %v\n", name, err)
			continue
		}
		collab.AddContribution(ctx, name, contribution)
	}
	fmt.Printf("  status: %s\n", collab.Status())
	if collab.Status() == agent.CollaborationCompleted {
		ok.Printf("  result: %s\n", collab.Result())
	}

	// give the dispatcher a moment to drain the queue
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}

	header.Println("== System status ==")
	status := manager.SystemStatus()
	fmt.Printf("  agents: %d  queued: %d  processed: %d  memory: %.2f%%\n",
		len(status.Agents), status.QueueSize, status.TasksProcessed, status.SystemMemoryUsage)
	for name, agentStatus := range status.Agents {
		fmt.Printf("  %-8s %-8s active=%d completed=%d failed=%d\n",
			name, agentStatus.State, agentStatus.ActiveTasks, agentStatus.CompletedTasks, agentStatus.FailedTasks)
	}

	health := manager.HealthCheck()
	if health.Healthy {
		ok.Println("All agents healthy")
	} else {
		color.New(color.FgYellow).Println("Some agents reported unhealthy")
	}
}
