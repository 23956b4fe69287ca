package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"Lumin-Agent/internal/activity"
	"Lumin-Agent/internal/api"
	"Lumin-Agent/internal/config"
	"Lumin-Agent/internal/conversation"
	"Lumin-Agent/internal/datasource"
	"Lumin-Agent/internal/intent"
	"Lumin-Agent/internal/observability/alerting"
	"Lumin-Agent/internal/observability/metrics"
	"Lumin-Agent/internal/storage/redis"
	"Lumin-Agent/internal/storage/sqlstore"
	"Lumin-Agent/internal/task"
	"Lumin-Agent/internal/workflow"
	"Lumin-Agent/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the task activity recorder",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cmd.Context(), cfg)
	},
}

// closers 按注册的逆序释放资源。
type closers []io.Closer

func (c *closers) add(closer io.Closer) {
	if closer != nil {
		*c = append(*c, closer)
	}
}

func (c closers) closeAll(log *slog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			log.Warn("释放资源失败", slog.Any("error", err))
		}
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("luminagentd")
	var resources closers
	defer resources.closeAll(log)

	var db *sql.DB
	if cfg.Storage.Driver != "memory" {
		opened, err := sqlstore.Open(ctx, storageConfig(cfg, cfg.Storage.AutoMigrate))
		if err != nil {
			return err
		}
		db = opened
		resources.add(db)
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, redis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		redisClient = client
		resources.add(client)
	}

	var directory datasource.Directory = datasource.NewMemoryDirectory()
	if db != nil {
		directory = datasource.NewSQLDirectory(db)
	}
	if redisClient != nil && cfg.DataSource.CacheTTL() > 0 {
		directory = datasource.NewCachedDirectory(directory, redisClient, cfg.DataSource.CachePrefix, cfg.DataSource.CacheTTL())
	}

	var store task.Store = task.NewMemoryStore()
	if db != nil {
		store = task.NewSQLStore(db, cfg.Storage.Driver)
	}

	var history conversation.Log
	switch cfg.Conversation.Driver {
	case "sql":
		history = conversation.NewSQLLog(db)
	case "redis":
		history = conversation.NewRedisLog(redisClient, cfg.Conversation.KeyPrefix, cfg.Conversation.MaxLength)
	default:
		history = conversation.NewMemoryLog()
	}

	queue, err := newActivityQueue(cfg, redisClient)
	if err != nil {
		return err
	}
	resources.add(queue)

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	recorder := activity.NewRecorder(queue,
		activity.WithWorkers(cfg.Activity.Workers),
		activity.WithHook(func(_ context.Context, event activity.Event) error {
			m.ObserveActivity(string(event.Type))
			return nil
		}),
	)

	classifier := intent.NewClassifier(client,
		intent.WithKeywords(cfg.Workflow.Keywords...),
		intent.WithTemperature(cfg.Workflow.Temperature),
	)
	engine := task.NewEngine(store,
		task.WithTitleCutoff(cfg.Workflow.TitleMaxLength),
		task.WithListSize(cfg.Workflow.ListLimit),
		task.WithPublisher(queue),
	)
	orchestrator := workflow.New(classifier, directory, engine, history,
		workflow.WithRecorder(m),
		workflow.WithAlerts(newAlerts(cfg.Alerting)),
	)

	server := api.NewServer(cfg.Server.Address, api.Dependencies{
		Workflow:    orchestrator,
		Tasks:       task.NewService(store, directory, task.WithServicePublisher(queue)),
		DataSources: directory,
		Metrics:     m,
	},
		api.WithUserHeader(cfg.Server.UserHeader),
		api.WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second),
	)

	log.Info("Lumin 任务助手启动",
		slog.String("storage", cfg.Storage.Driver),
		slog.String("conversation", cfg.Conversation.Driver),
		slog.String("activity", cfg.Activity.Driver),
		slog.String("llm", cfg.LLM.Provider),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return recorder.Run(groupCtx)
	})
	group.Go(func() error {
		return server.Start(groupCtx)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Lumin 任务助手已退出")
	return nil
}

func storageConfig(cfg *config.Config, migrate bool) sqlstore.Config {
	return sqlstore.Config{
		Driver:          cfg.Storage.Driver,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTimeSeconds) * time.Second,
		AutoMigrate:     migrate,
	}
}

func newActivityQueue(cfg *config.Config, client goredis.UniversalClient) (activity.Queue, error) {
	switch cfg.Activity.Driver {
	case "redis":
		return activity.NewRedisQueue(client, activity.RedisQueueConfig{
			Queue:     cfg.Activity.Redis.Queue,
			BlockWait: time.Duration(cfg.Activity.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return activity.NewRabbitMQQueue(activity.RabbitMQConfig{
			URL:        cfg.Activity.RabbitMQ.URL,
			Queue:      cfg.Activity.RabbitMQ.Queue,
			Prefetch:   cfg.Activity.RabbitMQ.Prefetch,
			Durable:    cfg.Activity.RabbitMQ.Durable,
			AutoDelete: cfg.Activity.RabbitMQ.AutoDelete,
		})
	case "memory":
		return activity.NewMemoryQueue(cfg.Activity.Buffer), nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Activity.Driver)
	}
}

func newAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.WebhookURL,
			Client: &http.Client{Timeout: cfg.Timeout()},
		})
	}
	return alerting.NewFanout(notifiers...)
}
