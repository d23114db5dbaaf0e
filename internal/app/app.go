package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/adapters/artifacts"
	"github.com/atvirokodosprendimai/precheck/internal/adapters/events"
	"github.com/atvirokodosprendimai/precheck/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/precheck/internal/adapters/queue"
	"github.com/atvirokodosprendimai/precheck/internal/adapters/rulefile"
	sqliteadapter "github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
	"github.com/atvirokodosprendimai/precheck/internal/telemetry"
	"github.com/atvirokodosprendimai/precheck/migrations"
)

type Config struct {
	Addr             string
	DBPath           string
	ArtifactsDir     string
	RulesPath        string
	WatchRules       bool
	SamplePath       string
	Schedules        []string
	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	WebhookURL       string
	WebhookSecret    string
	Queue            queue.Config
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// App holds the wired services shared by the serve and worker commands.
type App struct {
	DB       *gormsqlite.DB
	Store    ports.Store
	Queue    *queue.Redis
	Dispatch *usecase.Dispatcher
	Metrics  *telemetry.Metrics
	Services httpapi.Services
	Logger   *slog.Logger

	cfg     Config
	closers []io.Closer
}

// New opens and migrates the database and builds every service. The queue
// is connected only when configured; otherwise tasks run inline.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		DB:      db,
		Store:   sqliteadapter.NewStore(db),
		Metrics: telemetry.NewMetrics(),
		Logger:  logger,
		cfg:     cfg,
	}

	var taskQueue ports.TaskQueue
	if cfg.Queue.Enabled() {
		q, err := queue.NewRedis(ctx, cfg.Queue, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.Queue = q
		taskQueue = q
		a.closers = append(a.closers, q)
	}
	a.Dispatch = usecase.NewDispatcher(taskQueue, a.Metrics, logger)

	artifactsDir := cfg.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = "./artifacts"
	}
	store, err := artifacts.NewFS(artifactsDir)
	if err != nil {
		_ = a.Close()
		_ = db.Close()
		return nil, err
	}

	a.Services = httpapi.Services{
		Auth:       usecase.NewAuthService(sqliteadapter.NewKeyRepository(db), a.Store),
		Catalog:    usecase.NewCatalogService(a.Store),
		Runs:       usecase.NewRunOrchestrator(a.Store, a.Dispatch, a.Metrics, logger),
		Exceptions: usecase.NewExceptionService(a.Store),
		Evidence:   usecase.NewEvidenceService(a.Store, store, a.Metrics, logger),
		Ingest:     usecase.NewIngestService(a.Store, a.Dispatch, a.Metrics, logger, cfg.SamplePath),
		Directory:  usecase.NewDirectoryService(a.Store),
		Reports:    usecase.NewReportService(a.Store),
		Audit:      usecase.NewAuditService(a.Store),
	}
	a.closers = append(a.closers, db)

	if cfg.RulesPath != "" {
		loaded, created, err := rulefile.Sync(ctx, cfg.RulesPath, a.Services.Catalog)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("load rule catalog: %w", err)
		}
		logger.Info("rule catalog loaded", "path", cfg.RulesPath, "rules", loaded, "created", created)
	}

	return a, nil
}

// Close releases the queue connection and the database.
func (a *App) Close() error {
	return resourceCloser{closers: a.closers}.Close()
}

func (a *App) bootstrapKey(ctx context.Context) error {
	if a.cfg.BootstrapAPIKey == "" {
		return nil
	}
	tenant := a.cfg.BootstrapTenant
	if tenant == "" {
		tenant = "default"
	}
	name := a.cfg.BootstrapKeyName
	if name == "" {
		name = "bootstrap"
	}

	bootstrapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := a.Services.Auth.Issue(bootstrapCtx, a.cfg.BootstrapAPIKey, domain.APIKey{
		TenantID:  tenant,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("bootstrap api key: %w", err)
	}
	return nil
}

func (a *App) publisher() ports.EventPublisher {
	if a.cfg.WebhookURL != "" {
		return events.NewWebhookPublisher(a.cfg.WebhookURL, a.cfg.WebhookSecret, 10*time.Second)
	}
	return events.NewLogPublisher(a.Logger)
}

// NewServer builds the HTTP server together with its background loops: the
// audit relay, scheduled runs and the rule catalog watcher. The
// returned closer stops them and releases the App.
func NewServer(ctx context.Context, cfg Config, logger *slog.Logger) (*http.Server, io.Closer, error) {
	a, err := New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := a.bootstrapKey(ctx); err != nil {
		_ = a.Close()
		return nil, nil, err
	}

	schedules := make([]usecase.RunSchedule, 0, len(cfg.Schedules))
	for _, raw := range cfg.Schedules {
		sc, err := usecase.ParseRunSchedule(raw)
		if err != nil {
			_ = a.Close()
			return nil, nil, err
		}
		schedules = append(schedules, sc)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	closers := []io.Closer{closerFunc(func() error { cancel(); return nil })}

	relay := usecase.NewAuditRelay(sqliteadapter.NewOutboxRepository(a.DB), a.publisher(), usecase.RelayConfig{
		Interval:  2 * time.Second,
		BatchSize: 100,
	}, a.Metrics, a.Logger)
	relay.Start(bgCtx)
	closers = append(closers, relay)

	scheduler := usecase.NewScheduler(a.Services.Runs, schedules, a.Logger)
	if err := scheduler.Start(bgCtx); err != nil {
		cancel()
		_ = relay.Close()
		_ = a.Close()
		return nil, nil, err
	}
	closers = append(closers, closerFunc(func() error { scheduler.Stop(); return nil }))

	if cfg.WatchRules && cfg.RulesPath != "" {
		watcher := rulefile.NewWatcher(cfg.RulesPath, a.Services.Catalog, 0, a.Logger)
		go func() {
			if err := watcher.Run(bgCtx); err != nil {
				a.Logger.Error("rule catalog watcher stopped", "error", err)
			}
		}()
	}

	handler := httpapi.NewHandler(a.Services, a.Metrics.Handler(), a.Logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	closers = append(closers, a)
	return server, resourceCloser{closers: closers}, nil
}

// RunWorker consumes queued tasks until ctx is done.
func RunWorker(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if !cfg.Queue.Enabled() {
		return errors.New("worker requires PRECHECK_REDIS_ADDR")
	}
	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Error("close resources", "error", err)
		}
	}()
	return a.Queue.Consume(ctx, a.Dispatch.Execute)
}
