package global

import (
	"context"
	"io"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/config"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func redisConfig(addr string) config.StreamingConfig {
	var cfg config.StreamingConfig
	cfg.Enabled = true
	cfg.Provider = "redis"
	cfg.Redis.Address = addr
	cfg.Redis.Stream = "cmc:turnover"
	return cfg
}

func TestInitStreamingClientsRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	if err := InitStreamingClients(context.Background(), redisConfig(mr.Addr())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if RedisClient == nil {
		t.Fatal("redis client not set")
	}
	ShutdownStreamingClients()
	if RedisClient != nil {
		t.Fatal("shutdown must clear the client")
	}
}

func TestInitStreamingClientsRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	if err := InitStreamingClients(context.Background(), redisConfig(addr)); err == nil {
		t.Fatal("expected ping failure")
	}
	if RedisClient != nil {
		t.Fatal("client must stay unset on failure")
	}
}

func TestValidateStreamingConfig(t *testing.T) {
	log := quietLog()

	if err := ValidateStreamingConfig(config.StreamingConfig{}, log); err != nil {
		t.Fatalf("disabled streaming must validate: %v", err)
	}
	if err := ValidateStreamingConfig(redisConfig("localhost:6379"), log); err != nil {
		t.Fatalf("complete redis config must validate: %v", err)
	}

	missing := redisConfig("")
	if err := ValidateStreamingConfig(missing, log); err == nil {
		t.Fatal("expected error for missing redis address")
	}

	var kafka config.StreamingConfig
	kafka.Enabled = true
	kafka.Provider = "kafka"
	kafka.Kafka.Brokers = []string{"localhost:9092"}
	if err := ValidateStreamingConfig(kafka, log); err == nil {
		t.Fatal("expected error for missing kafka topic")
	}

	unknown := redisConfig("localhost:6379")
	unknown.Provider = "nats"
	if err := ValidateStreamingConfig(unknown, log); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
