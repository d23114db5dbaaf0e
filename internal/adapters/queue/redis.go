// Package queue carries dispatched tasks over a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// Config is read from the environment. An empty Addr disables the queue.
type Config struct {
	Addr     string        `env:"PRECHECK_REDIS_ADDR"`
	DB       int           `env:"PRECHECK_REDIS_DB"    envDefault:"0"`
	Key      string        `env:"PRECHECK_QUEUE_KEY"   envDefault:"precheck:tasks"`
	Poll     time.Duration `env:"PRECHECK_QUEUE_POLL"  envDefault:"5s"`
	Password string        `env:"PRECHECK_REDIS_PASSWORD"`
}

func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse queue env: %w", err)
	}
	if cfg.Key == "" {
		cfg.Key = "precheck:tasks"
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 5 * time.Second
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return c.Addr != ""
}

type Redis struct {
	client *redis.Client
	key    string
	poll   time.Duration
	logger *slog.Logger
}

// NewRedis connects and pings the server so a bad address fails at startup.
func NewRedis(ctx context.Context, cfg Config, logger *slog.Logger) (*Redis, error) {
	if !cfg.Enabled() {
		return nil, errors.New("redis address is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return &Redis{
		client: client,
		key:    cfg.Key,
		poll:   cfg.Poll,
		logger: logger.With("component", "queue", "key", cfg.Key),
	}, nil
}

func (q *Redis) Close() error {
	return q.client.Close()
}

func (q *Redis) Enqueue(ctx context.Context, task domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.Name, err)
	}
	return nil
}

// Consume pops tasks until ctx is done and hands each to handle. A popped
// task runs to completion after ctx is cancelled. Handler failures are
// logged; the task is not requeued.
func (q *Redis) Consume(ctx context.Context, handle func(context.Context, domain.Task) error) error {
	q.logger.Info("worker consuming")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("pop task", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.poll):
			}
			continue
		}

		// BRPop returns [key, value].
		var task domain.Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			q.logger.Error("decode task", "error", err)
			continue
		}
		started := time.Now()
		if err := handle(context.WithoutCancel(ctx), task); err != nil {
			q.logger.Error("task failed", "task", task.Name, "task_id", task.ID, "error", err)
			continue
		}
		q.logger.Info("task done", "task", task.Name, "task_id", task.ID, "elapsed", time.Since(started))
	}
}
