// Package agent wires the metadata store, the update sources, the shared
// scheduler and the local API server into one process.
//
// Component ownership: the agent owns the store, which outlives every
// updater and the server; updaters and the server hold non-owning
// references. Each updater owns its background goroutine; the server owns
// its listener. Failures stay isolated: one updater's validation failure or
// hung query never affects the others or the server.
package agent

import (
	"context"
	"log/slog"

	gce "cloud.google.com/go/compute/metadata"
	"golang.org/x/sync/errgroup"

	"github.com/etsangsplk/metadata-agent/internal/apiserver"
	"github.com/etsangsplk/metadata-agent/internal/config"
	"github.com/etsangsplk/metadata-agent/internal/health"
	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/sources/docker"
	"github.com/etsangsplk/metadata-agent/internal/sources/instance"
	"github.com/etsangsplk/metadata-agent/internal/sources/kubernetes"
	"github.com/etsangsplk/metadata-agent/internal/store"
	"github.com/etsangsplk/metadata-agent/internal/updater"
)

// Agent is the assembled metadata correlation agent.
type Agent struct {
	cfg      *config.Config
	cfgPath  string
	store    *store.Store
	checker  *health.Checker
	sched    *Scheduler
	server   *apiserver.Server
	updaters []*updater.Updater
	logger   *slog.Logger
}

// New assembles an agent from cfg. Sources with a zero poll period are not
// constructed at all; a docker client construction failure skips only the
// docker source.
func New(cfg *config.Config, cfgPath string, logger *slog.Logger) (*Agent, error) {
	logger = logging.Default(logger)

	st := store.New(logger)
	checker := health.NewChecker(logger)

	sched, err := newScheduler(logger)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:     cfg,
		cfgPath: cfgPath,
		store:   st,
		checker: checker,
		sched:   sched,
		logger:  logger.With("component", "agent"),
	}

	if cfg.InstancePollSeconds > 0 {
		a.updaters = append(a.updaters, instance.New(cfg, st, logger))
	}
	if cfg.DockerPollSeconds > 0 {
		du, err := docker.New(cfg, st, logger)
		if err != nil {
			a.logger.Error("docker source unavailable", "error", err)
			checker.Set("updater/docker", false)
		} else {
			a.updaters = append(a.updaters, du)
		}
	}
	if cfg.KubernetesPollSeconds > 0 {
		a.updaters = append(a.updaters, kubernetes.New(cfg, st, logger))
	}

	a.server = apiserver.New(st, checker, apiserver.Config{
		Host:    cfg.ServerHost,
		Port:    cfg.ServerPort,
		Workers: cfg.ServerWorkers,
		Verbose: cfg.Verbose,
		Logger:  logger,
	})

	return a, nil
}

// Store exposes the shared store for tests and embedding.
func (a *Agent) Store() *store.Store { return a.store }

// Server exposes the API server, e.g. for its bound address.
func (a *Agent) Server() *apiserver.Server { return a.server }

// Updaters returns the constructed updaters.
func (a *Agent) Updaters() []*updater.Updater { return a.updaters }

// resolveZone fills cfg.InstanceZone from the metadata server when no
// override is configured. Resolved once before the updaters start, so every
// source stamping a location label (docker, instance) shares the same zone.
// Off-GCE with no override the zone stays empty.
func resolveZone(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	if cfg.InstanceZone != "" || !gce.OnGCE() {
		return
	}
	zone, err := gce.ZoneWithContext(ctx)
	if err != nil {
		logger.Warn("instance zone unavailable, location labels will be empty", "error", err)
		return
	}
	cfg.InstanceZone = zone
	logger.Info("resolved instance zone", "zone", zone)
}

// Run starts everything and blocks until ctx is cancelled or the server
// fails. Shutdown is staged: the server drains first, then the updaters are
// stopped and joined, then the scheduler.
func (a *Agent) Run(ctx context.Context) error {
	resolveZone(ctx, a.cfg, a.logger)

	if a.cfg.PurgeSeconds > 0 {
		if err := a.sched.AddPeriodic("store-purge", a.cfg.PurgePeriod(), a.store.PurgeDeleted); err != nil {
			return err
		}
	}
	a.sched.Start()

	for _, u := range a.updaters {
		name := "updater/" + u.Name()
		if err := u.Start(); err != nil {
			// Validation failure: the updater stays idle, everything else
			// keeps running.
			a.checker.Set(name, false)
			continue
		}
		a.checker.Set(name, true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	if a.cfgPath != "" {
		g.Go(func() error {
			return a.cfg.Watch(gctx, a.cfgPath, a.logger)
		})
	}

	a.logger.Info("agent running",
		"updaters", len(a.updaters), "jobs", a.sched.Jobs())

	err := g.Wait()

	for _, u := range a.updaters {
		u.Stop()
	}
	if serr := a.sched.Stop(); serr != nil {
		a.logger.Warn("scheduler shutdown", "error", serr)
	}

	a.logger.Info("agent stopped")
	return err
}
