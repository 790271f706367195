package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"weatherdine/internal/adapter/gateway"
	"weatherdine/internal/infra/config"
	"weatherdine/internal/usecase/scheduling"
)

func runServe(args []string) error {
	fs := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := boot(ctx, bootOptions{agents: true})
	if err != nil {
		return err
	}
	defer cleanup()
	cfg, log := a.cfg, a.log

	if !cfg.Gateway.Enabled && !cfg.Scheduler.Enabled {
		return fmt.Errorf("nothing to serve: enable gateway or scheduler in %s", configPath())
	}

	g, ctx := errgroup.WithContext(ctx)

	// 1. Scheduler
	if cfg.Scheduler.Enabled {
		tasks, err := scheduledTasks(cfg.Scheduler)
		if err != nil {
			return err
		}
		sched := scheduling.NewScheduler(a.workflows, a.bus, log)
		for _, t := range tasks {
			if !a.workflows.Has(t.Workflow) {
				return fmt.Errorf("scheduled task %q: unknown workflow %q", t.Name, t.Workflow)
			}
			if err := sched.AddTask(t); err != nil {
				return err
			}
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer sched.Stop()
		for _, info := range sched.Tasks() {
			log.Info("task scheduled", "task", info.Name, "workflow", info.Workflow, "next", info.Next)
		}
	}

	// 2. Gateway
	if cfg.Gateway.Enabled {
		srv := gateway.NewServer(a.bus, newAuthenticator(cfg.Gateway.Auth), cfg.Gateway.Addr, log,
			gateway.WithAllowedOrigins(cfg.Gateway.AllowedOrigins...),
			gateway.WithReadLimit(cfg.Gateway.MaxFrameBytes),
		)
		deps := gateway.HandlerDeps{
			Agents:    a.agents,
			Workflows: a.workflows,
			Tools:     a.tools,
			Bus:       a.bus,
			Logger:    log,
		}
		gateway.RegisterDefaultHandlers(srv, deps)
		gateway.RegisterRESTHandlers(srv, deps)
		g.Go(func() error { return srv.Start(ctx) })
	}

	log.Info("weatherdine serving", "version", version, "gateway", cfg.Gateway.Enabled, "scheduler", cfg.Scheduler.Enabled)
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err = g.Wait()
	log.Info("shutting down")
	return err
}

// scheduledTasks converts configured tasks, encoding each input map as the
// workflow's JSON input.
func scheduledTasks(cfg config.SchedulerConfig) ([]scheduling.ScheduledTask, error) {
	tasks := make([]scheduling.ScheduledTask, 0, len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		var input json.RawMessage
		if len(t.Input) > 0 {
			data, err := json.Marshal(t.Input)
			if err != nil {
				return nil, fmt.Errorf("scheduled task %q: encode input: %w", t.Name, err)
			}
			input = data
		}
		tasks = append(tasks, scheduling.ScheduledTask{
			Name:     t.Name,
			Schedule: t.Schedule,
			Workflow: t.Workflow,
			Input:    input,
		})
	}
	return tasks, nil
}

// newAuthenticator returns static token auth when configured, open access
// otherwise.
func newAuthenticator(cfg config.AuthConfig) gateway.Authenticator {
	if cfg.Type != "static" {
		return gateway.OpenAuth{}
	}
	entries := make([]gateway.TokenEntry, len(cfg.Tokens))
	for i, t := range cfg.Tokens {
		entries[i] = gateway.TokenEntry{Token: t.Token, Name: t.Name}
	}
	return gateway.NewStaticTokenAuth(entries)
}
