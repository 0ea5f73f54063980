// cmd/dealflow-notifier/main.go
package main

import (
	"context"
	"flag"
	"os"

	"dealflow/internal/pkg/bootstrap"
	"dealflow/internal/pkg/httpclient"
	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/mq"
	"dealflow/internal/service/pipeline/infrastructure/adapter"
	"dealflow/internal/service/pipeline/interfaces"

	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

const serviceName = "dealflow-notifier"

// notifier 进程消费 API 在 route=kafka 时写入的流水线事件，并转发到 Slack。
// 它只暴露 /healthz 和 /metrics。
func main() {
	configPath := flag.String("config", getEnv("DEALFLOW_CONFIG", "configs/config.yaml"), "path to config file")
	port := flag.Int("port", 8081, "port for health and metrics endpoints")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	cfg.Service.Name = serviceName
	cfg.Service.Port = *port
	bootstrap.SetCurrentConfig(cfg)
	logger.Init(serviceName, cfg.Service.LogLevel, cfg.Service.LogPretty)

	slack := adapter.NewSlackWebhookAdapter(cfg.App.Notification.SlackWebhookURL, httpclient.NewClient(otel.Tracer(serviceName)))
	if slack == nil {
		zlog.Fatal().Msg("slack webhook url is required by the notifier")
	}

	kc := cfg.Infra.Kafka
	reader := mq.NewKafkaReader(kc.Brokers, kc.Topic, kc.GroupID)
	consumer := interfaces.NewEventConsumerAdapter(reader, slack, cfg.App.SinkTimeout)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Service.Port,
		Workers:     []bootstrap.Worker{consumer.Run},
		Cleanup: func(context.Context) {
			if err := reader.Close(); err != nil {
				zlog.Error().Err(err).Msg("close kafka reader")
			}
		},
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("service exited")
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
