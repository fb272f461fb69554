// Package control wires the coordinator together and owns its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/burnrelay/internal/allocation"
	"github.com/vietddude/burnrelay/internal/api"
	"github.com/vietddude/burnrelay/internal/auth"
	"github.com/vietddude/burnrelay/internal/bridge"
	"github.com/vietddude/burnrelay/internal/burn"
	"github.com/vietddude/burnrelay/internal/classifier"
	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/core/worker"
	"github.com/vietddude/burnrelay/internal/crosschain"
	"github.com/vietddude/burnrelay/internal/events"
	"github.com/vietddude/burnrelay/internal/executor"
	"github.com/vietddude/burnrelay/internal/health"
	"github.com/vietddude/burnrelay/internal/infra/chain"
	"github.com/vietddude/burnrelay/internal/infra/chain/evm"
	"github.com/vietddude/burnrelay/internal/infra/chain/solana"
	"github.com/vietddude/burnrelay/internal/infra/lifi"
	redisclient "github.com/vietddude/burnrelay/internal/infra/redis"
	"github.com/vietddude/burnrelay/internal/infra/rpc"
	"github.com/vietddude/burnrelay/internal/infra/signer"
	"github.com/vietddude/burnrelay/internal/infra/storage"
	"github.com/vietddude/burnrelay/internal/infra/storage/memory"
	"github.com/vietddude/burnrelay/internal/infra/storage/postgres"
	"github.com/vietddude/burnrelay/internal/planner"
	"github.com/vietddude/burnrelay/internal/quote"
)

const defaultProviderTimeout = 10 * time.Second

// App holds every long-lived component of the coordinator.
type App struct {
	cfg    *config.AppConfig
	clock  clock.Clock
	log    *slog.Logger
	db     *postgres.DB
	redis  *redisclient.Client
	nats   *events.NATSPublisher
	store  storage.BurnRepository
	chains chain.Registry
	events *events.Multi

	Burns    *burn.Service
	Server   *api.Server
	resumer  *worker.Resumer
	monitor  *health.Monitor
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	serveErr chan error
}

// New builds the application from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{
		cfg:      cfg,
		clock:    clock.New(),
		log:      slog.Default().With("component", "control"),
		serveErr: make(chan error, 1),
	}
	if err := a.build(ctx); err != nil {
		a.closeInfra()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	// 1. Storage
	store, db, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.store, a.db = store, db

	// 2. Redis, required when leases or the cache live there
	needRedis := cfg.Execution.LeaseBackend == "redis" || cfg.Classifier.CacheBackend == "redis"
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		switch {
		case err == nil:
			a.redis = rc
			a.log.Info("Connected to Redis")
		case needRedis:
			return fmt.Errorf("failed to connect redis: %w", err)
		default:
			a.log.Warn("Failed to connect to Redis, continuing without it", "error", err)
		}
	} else if needRedis {
		return errors.New("redis backend selected but redis.url is empty")
	}

	// 3. Chains
	a.chains = BuildChains(cfg)

	// 4. Quotes and bridge
	quotes := quote.NewService(cfg, map[domain.ChainFamily]quote.Provider{
		domain.FamilyEVM:    quote.NewLiFiProvider(lifi.NewClient(cfg.Quote.LiFiURL, cfg.Quote.APIKey, cfg.Quote.RequestTimeout)),
		domain.FamilySolana: quote.NewJupiterProvider(cfg.Quote.JupiterURL, cfg.Quote.RequestTimeout),
	}, a.clock)

	var bridgeProvider bridge.Provider
	if cfg.Bridge.URL != "" {
		bridgeProvider = bridge.NewLiFi(lifi.NewClient(cfg.Bridge.URL, cfg.Bridge.APIKey, cfg.Bridge.RequestTimeout), cfg, a.clock)
	} else {
		a.log.Warn("No bridge configured, cross-chain legs are disabled")
	}

	// 5. Classification, allocation and planning
	var cache classifier.Cache = classifier.NewMemoryCache(a.clock)
	if cfg.Classifier.CacheBackend == "redis" {
		cache = redisclient.NewClassificationCache(a.redis)
	}
	cls := classifier.New(cfg, a.chains, cache, a.clock)
	if cfg.Classifier.CheckLiquidity {
		cls.SetLiquidityChecker(quotes)
	}

	calc, err := allocation.NewCalculator(cfg.Allocation)
	if err != nil {
		return fmt.Errorf("allocation tables: %w", err)
	}
	router := crosschain.NewRouter(cfg, bridgeProvider)
	builder := planner.NewBuilder(cfg, quotes, bridgeProvider, a.clock)

	// 6. Events
	broadcaster := events.NewBroadcaster()
	a.events = events.NewMulti(events.NewLogEmitter(slog.Default()), broadcaster)
	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS)
		if err != nil {
			a.log.Warn("Failed to connect to NATS, events stay local", "error", err)
		} else {
			a.nats = pub
			a.events.Add(pub)
		}
	}

	// 7. Execution
	exec := executor.New(executor.Deps{
		Store:  a.store,
		Chains: a.chains,
		Signer: signer.NewRemote(cfg.Signer, a.clock),
		Bridge: bridgeProvider,
		Quotes: quotes,
		Events: a.events,
		Config: cfg,
		Clock:  a.clock,
	})

	var lease burn.Lease = burn.NewMemoryLease(cfg.Execution.LeaseTTL, a.clock)
	if cfg.Execution.LeaseBackend == "redis" {
		lease = burn.NewRedisLease(a.redis, leaseOwner(), cfg.Execution.LeaseTTL)
	}

	a.Burns = burn.NewService(burn.Deps{
		Config:     cfg,
		Classifier: cls,
		Allocator:  calc,
		Router:     router,
		Planner:    builder,
		Runner:     exec,
		Store:      a.store,
		Lease:      lease,
		Events:     a.events,
		Clock:      a.clock,
	})
	a.resumer = worker.NewResumer(cfg.Execution, a.store, a.Burns, a.clock)

	// 8. Admin sessions
	var revocations auth.Revocations
	if a.redis != nil {
		revocations = redisclient.NewSessionRevocations(a.redis)
	}
	authn := auth.NewAuthenticator(cfg.Admin, revocations, a.clock)

	// 9. Health and HTTP
	a.monitor = health.NewMonitor(a.heads(), a.healthChecks(), a.Burns, a.clock)
	a.Server = api.NewServer(api.Deps{
		Config:  cfg,
		Burns:   a.Burns,
		Auth:    authn,
		Events:  broadcaster,
		Monitor: a.monitor,
	})
	return nil
}

// OpenStore opens the configured burn store. db is nil for the memory
// backend; otherwise the caller closes it.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (storage.BurnRepository, *postgres.DB, error) {
	backend := cfg.Execution.StoreBackend
	if backend == "" && cfg.Database.URL != "" {
		backend = "postgres"
	}
	if backend != "postgres" {
		slog.Warn("Using in-memory storage, records are lost on restart")
		return memory.NewBurnRepo(), nil, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	slog.Info("Using PostgreSQL storage")
	return postgres.NewBurnRepo(db, cfg.Execution.ConflictRetries), db, nil
}

// BuildChains creates one adapter per configured chain, each over its own
// failover RPC client.
func BuildChains(cfg *config.AppConfig) chain.Registry {
	reg := make(chain.Registry, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		router := rpc.NewRouter()
		for _, p := range ch.Providers {
			timeout := p.Timeout
			if timeout <= 0 {
				timeout = defaultProviderTimeout
			}
			router.AddProvider(string(ch.ID), rpc.NewHTTPProvider(p.Name, p.URL, timeout))
		}
		client := rpc.NewClient(string(ch.ID), router, rpc.DefaultRetryConfig)

		switch ch.Family {
		case domain.FamilySolana:
			tokens := solana.NewTokenList(ch.TokenListURL, defaultProviderTimeout)
			reg[ch.ID] = solana.NewSolanaAdapter(ch.ID, client, ch.Commitment, tokens)
		default:
			reg[ch.ID] = evm.NewEVMAdapter(ch.ID, client, ch.Confirmations)
		}
		slog.Info("Chain adapter ready", "chain", ch.ID, "family", ch.Family, "providers", len(ch.Providers))
	}
	return reg
}

func (a *App) heads() map[domain.ChainID]health.HeadFetcher {
	out := make(map[domain.ChainID]health.HeadFetcher, len(a.chains))
	for id, ad := range a.chains {
		out[id] = ad
	}
	return out
}

func (a *App) healthChecks() []health.Check {
	var checks []health.Check
	if a.db != nil {
		checks = append(checks, health.Check{Name: "postgres", Critical: true, Ping: a.db.Health})
	}
	if a.redis != nil {
		checks = append(checks, health.Check{
			Name:     "redis",
			Critical: a.cfg.Execution.LeaseBackend == "redis",
			Ping:     a.redis.Ping,
		})
	}
	if a.nats != nil {
		checks = append(checks, health.Check{Name: "nats", Ping: a.nats.Health})
	}
	return checks
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "burnrelay"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Store exposes the burn store for one-shot commands.
func (a *App) Store() storage.BurnRepository {
	return a.store
}

// Start launches the resumer and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.db != nil {
		a.db.StartMetricsCollector(runCtx)
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.resumer.Start(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.Server.Run(runCtx); err != nil {
			a.log.Error("HTTP server stopped", "error", err)
			a.serveErr <- err
		}
	}()

	a.log.Info("Coordinator started", "chains", len(a.chains), "port", a.cfg.Server.Port)
	return nil
}

// Errors reports fatal errors of running components.
func (a *App) Errors() <-chan error {
	return a.serveErr
}

// Stop shuts down in reverse order of Start. In-flight plans keep their
// stored state and are resumed on the next start.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for workers: %w", ctx.Err()))
	}

	if a.Burns != nil {
		if err := a.Burns.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping executions: %w", err))
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event sinks: %w", err))
		}
	}
	a.closeInfra()
	a.log.Info("Coordinator stopped")
	return errors.Join(errs...)
}

func (a *App) closeInfra() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
