package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/txmanager/internal/core/config"
	"github.com/vietddude/txmanager/internal/core/worker"
	"github.com/vietddude/txmanager/internal/health"
	"github.com/vietddude/txmanager/internal/infra/chain/evm"
	redisclient "github.com/vietddude/txmanager/internal/infra/redis"
	"github.com/vietddude/txmanager/internal/infra/rpc"
	"github.com/vietddude/txmanager/internal/infra/storage"
	"github.com/vietddude/txmanager/internal/infra/storage/bolt"
	"github.com/vietddude/txmanager/internal/infra/storage/memory"
	"github.com/vietddude/txmanager/internal/infra/storage/postgres"
	"github.com/vietddude/txmanager/internal/journal"
	"github.com/vietddude/txmanager/internal/manager"
	"github.com/vietddude/txmanager/internal/nonce"
	"github.com/vietddude/txmanager/internal/proxy"
)

// Service owns the transaction manager and everything running around it.
type Service struct {
	cfg          *config.AppConfig
	rpcClient    *rpc.Client
	chain        *evm.Client
	manager      *manager.Manager
	journalRepo  storage.JournalRepository
	recorder     *journal.Recorder
	sweeper      *worker.Sweeper
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	db           *postgres.DB
	redisClient  *redisclient.Client

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewService creates a Service with all dependencies initialized.
func NewService(ctx context.Context, cfg *config.AppConfig) (*Service, error) {
	s := &Service{cfg: cfg, log: slog.Default().With("component", "service")}

	// 1. RPC providers and chain client
	var err error
	s.rpcClient, s.chain, err = NewChainClient(cfg)
	if err != nil {
		return nil, err
	}

	// 2. Redis
	if cfg.UsesRedis() {
		s.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
	}

	// 3. Nonce allocator
	var nonces nonce.Allocator
	switch cfg.Nonce.Backend {
	case "redis":
		key := redisclient.NonceKey(cfg.Chain.ID, cfg.Chain.From)
		nonces = nonce.NewRedisAllocator(s.redisClient, s.chain, cfg.Chain.From, key)
	default:
		nonces = nonce.NewMemoryAllocator(s.chain, cfg.Chain.From)
	}
	s.log.Info("Nonce allocator ready", "backend", cfg.Nonce.Backend, "from", cfg.Chain.From)

	// 4. Manager
	s.manager = manager.New(s.chain, nonces, proxy.NewExecutor(s.chain, cfg.Chain.ProxyAddress), manager.Config{
		PollInterval: cfg.Chain.PollInterval,
		DropTimeout:  cfg.Chain.DropTimeout,
		Retention:    cfg.Tracker.Retention,
	})

	// 5. Journal
	s.journalRepo, s.db, err = OpenJournal(ctx, cfg)
	if err != nil {
		s.closeClients()
		return nil, err
	}
	var emitters []journal.Emitter
	if s.journalRepo != nil {
		emitters = append(emitters, journal.NewRepoEmitter(s.journalRepo, cfg.Journal.Backend))
	}
	if cfg.Journal.Stream != "" {
		emitters = append(emitters, journal.NewStreamEmitter(
			s.redisClient,
			redisclient.StreamKey(cfg.Journal.Stream),
			cfg.Journal.StreamMaxLen,
		))
	}
	if len(emitters) > 0 {
		s.recorder = journal.NewRecorder(emitters...)
		s.manager.OnNewTransaction(s.recorder.Observe)
	}

	// 6. Sweeper
	s.sweeper = worker.NewSweeper(
		s.manager.Tracker(),
		s.journalRepo,
		cfg.Tracker.SweepInterval,
		cfg.Journal.Retention,
	)

	// 7. Health
	s.healthMon = health.NewMonitor(s.chain, s.rpcClient, s.manager.Tracker(), cfg.Nonce.Backend)
	if s.redisClient != nil {
		s.healthMon.AddCheck("redis", s.redisClient.Ping)
	}
	if s.db != nil {
		s.healthMon.AddCheck("database", s.db.Health)
	}
	s.healthServer = health.NewServer(s.healthMon, cfg.Server.Port)
	if cfg.Server.GRPCPort > 0 {
		s.grpcServer = health.NewGRPCServer(s.healthMon, cfg.Server.GRPCPort)
	}

	return s, nil
}

// NewChainClient builds the RPC client over the configured providers and the
// EVM client on top of it.
func NewChainClient(cfg *config.AppConfig) (*rpc.Client, *evm.Client, error) {
	gasPrice, err := cfg.Chain.GasPriceWei()
	if err != nil {
		return nil, nil, err
	}

	providers := make([]rpc.RPCProvider, 0, len(cfg.Chain.Providers))
	for _, p := range cfg.Chain.Providers {
		providers = append(providers, rpc.NewHTTPProvider(p.Name, p.URL, p.Timeout))
	}
	rpcClient := rpc.NewClient(providers...)

	return rpcClient, evm.NewClient(rpcClient, evm.Config{
		ChainID:  cfg.Chain.ID,
		From:     cfg.Chain.From,
		Gas:      cfg.Chain.Gas,
		GasPrice: gasPrice,
	}), nil
}

// OpenJournal opens the configured journal repository. Both results are nil
// when the journal is disabled; the DB is set only for the postgres backend.
func OpenJournal(ctx context.Context, cfg *config.AppConfig) (storage.JournalRepository, *postgres.DB, error) {
	switch cfg.Journal.Backend {
	case "memory":
		slog.Info("Using Memory journal")
		return memory.NewJournalRepo(), nil, nil
	case "bolt":
		repo, err := bolt.Open(cfg.Journal.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bolt journal: %w", err)
		}
		slog.Info("Using Bolt journal", "path", cfg.Journal.BoltPath)
		return repo, nil, nil
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL journal")
		return postgres.NewJournalRepo(db), db, nil
	default:
		return nil, nil, nil
	}
}

// Manager returns the transaction manager.
func (s *Service) Manager() *manager.Manager { return s.manager }

// Journal returns the journal repository, or nil when disabled.
func (s *Service) Journal() storage.JournalRepository { return s.journalRepo }

// RPC returns the RPC client, for provider health reporting.
func (s *Service) RPC() *rpc.Client { return s.rpcClient }

// StartWorkers starts the journal recorder and the sweeper.
func (s *Service) StartWorkers(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.recorder != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.recorder.Run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweeper.Start(ctx)
	}()

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
}

// Start starts the workers and the health servers.
func (s *Service) Start(ctx context.Context) error {
	s.StartWorkers(ctx)

	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	if s.grpcServer != nil {
		go func() {
			if err := s.grpcServer.Start(ctx); err != nil {
				s.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	s.log.Info("Service started",
		"port", s.cfg.Server.Port,
		"grpc_port", s.cfg.Server.GRPCPort,
		"chain", s.cfg.Chain.ID,
	)
	return nil
}

// Stop shuts down servers, waits for the workers to drain and closes clients.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	var errs []error
	if err := s.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}

	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("workers did not stop: %w", ctx.Err()))
	}

	if s.recorder != nil {
		// Emitters own the journal repository
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	} else if s.journalRepo != nil {
		_ = s.journalRepo.Close()
	}
	s.closeClients()

	return errors.Join(errs...)
}

func (s *Service) closeClients() {
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	_ = s.rpcClient.Close()
}
