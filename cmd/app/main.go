package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/precheck/internal/adapters/queue"
	"github.com/atvirokodosprendimai/precheck/internal/adapters/rulefile"
	"github.com/atvirokodosprendimai/precheck/internal/app"
	"github.com/atvirokodosprendimai/precheck/internal/ci/releasepolicy"
	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

func main() {
	cmd := &cli.Command{
		Name:  "precheck",
		Usage: "District roster compliance checks, exceptions and evidence packets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./precheck.sqlite",
				Sources: cli.EnvVars("PRECHECK_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "artifacts-dir",
				Value:   "./artifacts",
				Sources: cli.EnvVars("PRECHECK_ARTIFACTS_DIR"),
				Usage:   "Directory for evidence packet archives",
			},
			&cli.StringFlag{
				Name:    "rules-path",
				Sources: cli.EnvVars("PRECHECK_RULES_PATH"),
				Usage:   "Global rule catalog file or directory of YAML files",
			},
			&cli.StringFlag{
				Name:    "sample-path",
				Value:   "./samples/powerschool/students.json",
				Sources: cli.EnvVars("PRECHECK_POWERSCHOOL_SAMPLE"),
				Usage:   "PowerSchool sample roster used by connector sync",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("PRECHECK_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			workerCommand(),
			loadRulesCommand(),
			verifyPacketCommand(),
			auditReplayCommand(),
			releaseCheckCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Command) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func baseConfig(c *cli.Command) (app.Config, error) {
	qcfg, err := queue.LoadConfigFromEnv()
	if err != nil {
		return app.Config{}, err
	}
	return app.Config{
		DBPath:       c.String("db-path"),
		ArtifactsDir: c.String("artifacts-dir"),
		RulesPath:    c.String("rules-path"),
		SamplePath:   c.String("sample-path"),
		Queue:        qcfg,
	}, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with the audit relay and scheduled runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "HTTP listen address",
			},
			&cli.BoolFlag{
				Name:    "watch-rules",
				Sources: cli.EnvVars("PRECHECK_WATCH_RULES"),
				Usage:   "Reload the rule catalog when its files change",
			},
			&cli.StringSliceFlag{
				Name:    "schedule",
				Sources: cli.EnvVars("PRECHECK_RUN_SCHEDULES"),
				Usage:   "Scheduled run as tenant=cron, e.g. district-1=0 6 * * 1-5",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("PRECHECK_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-tenant",
				Value:   "default",
				Sources: cli.EnvVars("PRECHECK_BOOTSTRAP_TENANT"),
				Usage:   "Tenant for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("PRECHECK_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("PRECHECK_WEBHOOK_URL"),
				Usage:   "Webhook URL that receives audit events",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("PRECHECK_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := newLogger(c)
			cfg, err := baseConfig(c)
			if err != nil {
				return err
			}
			cfg.Addr = c.String("addr")
			cfg.WatchRules = c.Bool("watch-rules")
			cfg.Schedules = c.StringSlice("schedule")
			cfg.BootstrapAPIKey = c.String("bootstrap-api-key")
			cfg.BootstrapTenant = c.String("bootstrap-tenant")
			cfg.BootstrapKeyName = c.String("bootstrap-key-name")
			cfg.WebhookURL = c.String("webhook-url")
			cfg.WebhookSecret = c.String("webhook-secret")

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error("close resources", "error", closeErr)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Addr)
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				logger.Info("received signal", "signal", sig.String())
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Consume queued rule runs and connector syncs from Redis",
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := newLogger(c)
			cfg, err := baseConfig(c)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.RunWorker(ctx, cfg, logger)
		},
	}
}

func loadRulesCommand() *cli.Command {
	return &cli.Command{
		Name:      "load-rules",
		Usage:     "Load the global rule catalog into the database and exit",
		ArgsUsage: "[path]",
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := newLogger(c)
			cfg, err := baseConfig(c)
			if err != nil {
				return err
			}
			path := cfg.RulesPath
			if c.Args().Len() > 0 {
				path = c.Args().First()
			}
			if path == "" {
				return errors.New("rule catalog path is required")
			}
			cfg.RulesPath = ""

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			loaded, created, err := rulefile.Sync(ctx, path, a.Services.Catalog)
			if err != nil {
				return err
			}
			fmt.Printf("loaded %d rules, %d new versions\n", loaded, created)
			return nil
		},
	}
}

func verifyPacketCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify-packet",
		Usage:     "Recompute an evidence packet's archive hash",
		ArgsUsage: "<packet-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true, Usage: "Tenant that owns the packet"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return errors.New("exactly one packet id is required")
			}
			logger := newLogger(c)
			cfg, err := baseConfig(c)
			if err != nil {
				return err
			}
			cfg.RulesPath = ""
			cfg.Queue = queue.Config{}

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Services.Evidence.Verify(ctx, c.String("tenant"), c.Args().First())
			if err != nil {
				return err
			}
			if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
				return err
			}
			if !result.Match {
				return cli.Exit("archive hash mismatch", 2)
			}
			return nil
		},
	}
}

func auditReplayCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit-replay",
		Usage: "Write a tenant's audit trail as newline-delimited event envelopes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true, Usage: "Tenant to replay"},
			&cli.StringFlag{Name: "action", Usage: "Only replay this action"},
			&cli.IntFlag{Name: "batch-size", Value: 200, Usage: "Entries read per page"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := newLogger(c)
			cfg, err := baseConfig(c)
			if err != nil {
				return err
			}
			cfg.RulesPath = ""
			cfg.Queue = queue.Config{}

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := json.NewEncoder(os.Stdout)
			filter := domain.AuditFilter{TenantID: c.String("tenant"), Action: c.String("action")}
			return usecase.ReplayAudit(ctx, a.Services.Audit, usecase.NewEnvelopeUpgrader(usecase.WrapBareMetadata), filter, int(c.Int("batch-size")), func(ev usecase.ReplayEvent) error {
				return enc.Encode(ev)
			})
		},
	}
}

func releaseCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "release-check",
		Usage: "Print the release version for a git ref, failing for non-release refs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ref", Sources: cli.EnvVars("GITHUB_REF"), Required: true, Usage: "Git ref, e.g. refs/tags/v1.2.3"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			version, ok := releasepolicy.ReleaseVersion(c.String("ref"))
			if !ok {
				return cli.Exit(fmt.Sprintf("%s is not a stable release tag", c.String("ref")), 1)
			}
			fmt.Println(version)
			return nil
		},
	}
}
