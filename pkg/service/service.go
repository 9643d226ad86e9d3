package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/discoverer/pkg/checker"
	"github.com/cuemby/discoverer/pkg/config"
	"github.com/cuemby/discoverer/pkg/events"
	"github.com/cuemby/discoverer/pkg/ipc"
	"github.com/cuemby/discoverer/pkg/log"
	"github.com/cuemby/discoverer/pkg/metrics"
	"github.com/cuemby/discoverer/pkg/persistence"
	"github.com/cuemby/discoverer/pkg/proxygroup"
	"github.com/cuemby/discoverer/pkg/queue"
	"github.com/cuemby/discoverer/pkg/resultstore"
	"github.com/cuemby/discoverer/pkg/scheduler"
	"github.com/cuemby/discoverer/pkg/worker"
)

// defaultUsageStatsSampleInterval is how often the worker TimeKeeper pool
// samples busy fractions for USAGE_STATS (spec.md §4.4 step 7, §6).
const defaultUsageStatsSampleInterval = 5 * time.Second

// Config bundles everything a Service needs at startup. Only RuleSource
// and Collaborator are required; everything else defaults to a sane
// standalone configuration.
type Config struct {
	WorkerCount int // fixed-size worker pool (spec.md §5), default 4

	Rules  persistence.RuleSource
	Collab persistence.Collaborator

	Timeouts config.CheckTimeoutGetter // default config.NewStaticTimeouts()
	Macros   config.UserMacroResolver  // default config.NoopMacroResolver{}

	Agent checker.AgentDispatcher // AGENT check dispatch; nil disables AGENT checks
	DNS   checker.DNSResolver     // default checker.DefaultDNSResolver

	// DiscovererSocketPath, if non-empty, binds the Discoverer IPC
	// service (spec.md §4.7, §6 first table). Empty disables it; the
	// scheduler then just sleeps on a plain timer.
	DiscovererSocketPath string

	// ProxyGroupSocketPath, if non-empty, binds the ProxyGroupManager
	// IPC service (spec.md §4.7, §6 second table) and starts its
	// receiver goroutine.
	ProxyGroupSocketPath string

	PollInterval             time.Duration // scheduler's IPC poll/sleep bound
	DefaultDelay             time.Duration // reschedule interval after a scheduling failure
	UsageStatsSampleInterval time.Duration // worker busy-fraction sampling cadence
}

// Service owns every component spec.md §2 names and is the single value
// cmd/discoverer constructs and runs, replacing the original's global
// dmanager singleton (spec.md §9).
type Service struct {
	Queue   *queue.Queue
	Store   *resultstore.Store
	Events  *events.Broker
	Proxies *proxygroup.Cache
	Pool    *worker.Pool

	scheduler  *scheduler.Scheduler
	collector  *metrics.Collector
	discoverer *ipc.DiscovererService
	pgManager  *ipc.ProxyGroupManagerService

	workers []*worker.Worker
	wg      sync.WaitGroup

	logger zerolog.Logger
}

// New constructs every component but starts nothing; call Start.
func New(cfg Config) (*Service, error) {
	if cfg.Rules == nil || cfg.Collab == nil {
		return nil, fmt.Errorf("service: Rules and Collab are required")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = config.NewStaticTimeouts()
	}
	if cfg.Macros == nil {
		cfg.Macros = config.NoopMacroResolver{}
	}
	if cfg.DNS == nil {
		cfg.DNS = checker.DefaultDNSResolver
	}
	if cfg.UsageStatsSampleInterval <= 0 {
		cfg.UsageStatsSampleInterval = defaultUsageStatsSampleInterval
	}

	q := queue.New()
	store := resultstore.New()
	evt := events.NewBroker()
	proxies := proxygroup.New(cfg.Macros, evt)
	pool := worker.NewPool()

	svc := &Service{
		Queue:   q,
		Store:   store,
		Events:  evt,
		Proxies: proxies,
		Pool:    pool,
		logger:  log.WithComponent("service"),
	}

	deps := checker.Deps{DNS: cfg.DNS, Agent: cfg.Agent, SNMPv3Gate: q}
	for i := 0; i < cfg.WorkerCount; i++ {
		w := worker.New(worker.Config{
			ID:          fmt.Sprintf("worker-%d", i),
			Queue:       q,
			Store:       store,
			CheckerDeps: deps,
		})
		pool.Register(w.ID(), w.TimeKeeper())
		svc.workers = append(svc.workers, w)
	}

	var ipcServer scheduler.IPCServer
	if cfg.DiscovererSocketPath != "" {
		d, err := ipc.NewDiscovererService(cfg.DiscovererSocketPath, q, pool)
		if err != nil {
			return nil, fmt.Errorf("service: bind discoverer ipc: %w", err)
		}
		svc.discoverer = d
		ipcServer = d
	}

	if cfg.ProxyGroupSocketPath != "" {
		pg, err := ipc.NewProxyGroupManagerService(cfg.ProxyGroupSocketPath, proxies)
		if err != nil {
			return nil, fmt.Errorf("service: bind proxygroupmanager ipc: %w", err)
		}
		svc.pgManager = pg
	}

	svc.scheduler = scheduler.New(scheduler.Config{
		Queue:        q,
		Store:        store,
		Rules:        cfg.Rules,
		Collab:       cfg.Collab,
		Timeouts:     cfg.Timeouts,
		Macros:       cfg.Macros,
		Events:       evt,
		IPC:          ipcServer,
		PollInterval: cfg.PollInterval,
		DefaultDelay: cfg.DefaultDelay,
	})

	svc.collector = metrics.NewCollector(q, store)

	metrics.RegisterComponent("queue", true, "")
	metrics.RegisterComponent("resultstore", true, "")
	metrics.RegisterComponent("ipc", cfg.DiscovererSocketPath != "" || cfg.ProxyGroupSocketPath != "", "")

	svc.Pool.StartSampling(cfg.UsageStatsSampleInterval, func(workerID string, fraction float64) {
		metrics.WorkerBusyFraction.WithLabelValues(workerID).Set(fraction)
	})

	return svc, nil
}

// Start launches the worker pool, the scheduler, the metrics collector,
// and the ProxyGroupManager IPC receiver goroutine. The Discoverer IPC
// service is served inline by the scheduler's own loop (spec.md §4.5 step
// 7), so it has no separate goroutine here.
func (s *Service) Start() {
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker.Worker) {
			defer s.wg.Done()
			w.Run()
		}(w)
	}

	s.Events.Start()
	s.scheduler.Start()
	s.collector.Start()

	if s.pgManager != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pgManager.Run()
		}()
	}

	s.logger.Info().Int("workers", len(s.workers)).Msg("discoverer service started")
}

// Stop shuts down every component and waits for the worker pool and the
// ProxyGroupManager receiver goroutine to exit (spec.md §5 "Shutdown
// deadline for worker join is implementation-defined").
func (s *Service) Stop() {
	s.scheduler.Stop()
	if s.discoverer != nil {
		s.discoverer.Close()
	}
	if s.pgManager != nil {
		s.pgManager.Stop()
	}
	s.collector.Stop()
	s.Pool.StopSampling()

	for _, w := range s.workers {
		w.Stop()
	}
	s.wg.Wait()
	s.Events.Stop()

	s.logger.Info().Msg("discoverer service stopped")
}
