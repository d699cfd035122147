// Package global holds the process-wide streaming clients. They are created once at
// startup and shared by every round.
package global

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/config"
)

var (
	RedisClient *redis.Client
	KafkaWriter *kafka.Writer
)

const redisPingTimeout = 2 * time.Second

// InitStreamingClients connects the client for the configured provider. Redis is pinged
// up front; the Kafka writer dials lazily on its first write.
func InitStreamingClients(ctx context.Context, cfg config.StreamingConfig) error {
	switch cfg.Provider {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Address, err)
		}
		RedisClient = client

	case "kafka":
		KafkaWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		}
	}
	return nil
}

// ShutdownStreamingClients closes whatever InitStreamingClients opened.
func ShutdownStreamingClients() {
	if RedisClient != nil {
		_ = RedisClient.Close()
		RedisClient = nil
	}
	if KafkaWriter != nil {
		_ = KafkaWriter.Close()
		KafkaWriter = nil
	}
}

func ValidateStreamingConfig(cfg config.StreamingConfig, log logrus.FieldLogger) error {
	if !cfg.Enabled {
		log.Info("🔇 Streaming is disabled.")
		return nil
	}

	switch cfg.Provider {
	case "redis":
		if cfg.Redis.Address == "" || cfg.Redis.Stream == "" {
			return fmt.Errorf("streaming: redis address and stream are required")
		}
		if cfg.Redis.DB < 0 {
			return fmt.Errorf("streaming: redis db must not be negative")
		}
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
			return fmt.Errorf("streaming: kafka brokers and topic are required")
		}
	default:
		return fmt.Errorf("streaming: unknown provider %q", cfg.Provider)
	}

	log.WithField("provider", cfg.Provider).Info("📡 Streaming enabled")
	return nil
}
