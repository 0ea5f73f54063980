// cmd/dealflow-api/main.go
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"dealflow/internal/pkg/bootstrap"
	"dealflow/internal/pkg/httpclient"
	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/mq"
	"dealflow/internal/pkg/redis"
	"dealflow/internal/pkg/zookeeper"
	"dealflow/internal/service/pipeline/application"
	"dealflow/internal/service/pipeline/domain"
	"dealflow/internal/service/pipeline/domain/port"
	"dealflow/internal/service/pipeline/infrastructure/adapter"
	"dealflow/internal/service/pipeline/infrastructure/memory"
	"dealflow/internal/service/pipeline/infrastructure/persistence"
	"dealflow/internal/service/pipeline/interfaces"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

const serviceName = "dealflow-api"

// main 是 API 进程的组装根：读取配置，组装存储、锁、事件分发与 HTTP 路由，然后启动。
func main() {
	configPath := flag.String("config", getEnv("DEALFLOW_CONFIG", "configs/config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = serviceName
	}
	bootstrap.SetCurrentConfig(cfg)
	logger.Init(cfg.Service.Name, cfg.Service.LogLevel, cfg.Service.LogPretty)

	loc := cfg.App.Location()
	clock := func() time.Time { return time.Now().In(loc) }

	var closers []func()

	// 1. 存储
	store, err := buildStore(cfg, clock)
	if err != nil {
		zlog.Fatal().Err(err).Str("store", cfg.App.Store).Msg("init store")
	}

	// 2. 锁
	locker, closeLocker, err := buildLocker(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Str("locker", cfg.App.Locker).Msg("init locker")
	}
	closers = append(closers, closeLocker)

	rule, err := application.NewAttentionRule(cfg.App.AttentionRule)
	if err != nil {
		zlog.Fatal().Err(err).Msg("compile attention rule")
	}

	// 3. 事件分发与业务服务
	dispatcher := application.NewDispatcher(cfg.App.EventQueueSize, cfg.App.SinkTimeout)
	svc := application.NewPipelineService(store, dispatcher, locker, rule, clock, otel.Tracer(cfg.Service.Name))

	client := httpclient.NewClient(otel.Tracer(cfg.Service.Name))
	switch cfg.App.Notification.Route {
	case "kafka":
		writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic)
		kafkaSink := adapter.NewEventKafkaAdapter(writer)
		dispatcher.AddSink(kafkaSink)
		closers = append(closers, func() {
			if err := kafkaSink.Close(); err != nil {
				zlog.Error().Err(err).Msg("close kafka writer")
			}
		})
	default:
		if slack := adapter.NewSlackWebhookAdapter(cfg.App.Notification.SlackWebhookURL, client); slack != nil {
			dispatcher.AddSink(slack)
		} else {
			zlog.Warn().Msg("slack webhook url not configured, notifications disabled")
		}
	}

	a := cfg.App.Analysis
	if analyzer := adapter.NewLLMAnalyzerAdapter(a.Endpoint, a.APIKey, a.Model, a.Timeout, client); analyzer != nil {
		dispatcher.AddSink(application.NewAnalysisSink(analyzer, svc))
	} else {
		zlog.Info().Msg("analysis endpoint not configured, action logs will not be analyzed")
	}

	hub := interfaces.NewBoardHub()
	dispatcher.AddSink(hub)

	// 4. 启动
	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewPipelineHandler(svc, hub).RegisterRoutes(appCtx.Mux)
		},
		Workers: []bootstrap.Worker{dispatcher.Run, hub.Run},
		Cleanup: func(context.Context) {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("service exited")
	}
}

func buildStore(cfg *bootstrap.Config, clock func() time.Time) (domain.Store, error) {
	switch cfg.App.Store {
	case "mysql":
		db, err := persistence.OpenMySQL(persistence.MySQLConfig(cfg.Infra.MySQL))
		if err != nil {
			return nil, err
		}
		store := persistence.NewStore(db, clock)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.AutoMigrate(ctx); err != nil {
			return nil, errors.Wrap(err, "auto migrate")
		}
		if cfg.App.SeedFile != "" {
			zlog.Warn().Str("seed_file", cfg.App.SeedFile).Msg("seed file is only applied to the memory store")
		}
		return store, nil
	default:
		opts := []memory.Option{memory.WithClock(clock)}
		if cfg.App.SeedFile != "" {
			seed, err := memory.LoadSeedFile(cfg.App.SeedFile)
			if err != nil {
				return nil, err
			}
			opts = append(opts, memory.WithSeed(seed))
			zlog.Info().Str("seed_file", cfg.App.SeedFile).Int("deals", len(seed.Deals)).Msg("memory store seeded")
		}
		return memory.NewStore(opts...), nil
	}
}

func buildLocker(cfg *bootstrap.Config) (port.DealLocker, func(), error) {
	switch cfg.App.Locker {
	case "redis":
		client, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			return nil, nil, err
		}
		locker, err := adapter.NewRedisLocker(client, cfg.App.LockTTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return locker, func() {
			if err := client.Close(); err != nil {
				zlog.Error().Err(err).Msg("close redis client")
			}
		}, nil
	case "zookeeper":
		conn, err := zookeeper.Connect(strings.Join(cfg.Infra.Zookeeper.Servers, ","), cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, nil, err
		}
		return adapter.NewZookeeperLocker(conn, cfg.Infra.Zookeeper.LockRoot), conn.Close, nil
	default:
		return adapter.NewLocalLocker(), func() {}, nil
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
