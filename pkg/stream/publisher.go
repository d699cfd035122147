// Package stream forwards each round's records to Redis or Kafka for downstream consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/config"
	"turnover.magictradebot.com/models"
	"turnover.magictradebot.com/pkg/utils"
)

type Publisher struct {
	cfg   config.StreamingConfig
	redis *redis.Client
	kafka utils.MessageWriter
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewPublisher(cfg config.StreamingConfig, rdb *redis.Client, kw utils.MessageWriter, log logrus.FieldLogger) *Publisher {
	return &Publisher{cfg: cfg, redis: rdb, kafka: kw, log: log, now: time.Now}
}

type recordMessage struct {
	RunID string `json:"run_id"`
	models.Record
}

// PublishBatch sends every record and returns how many made it. Failures are logged and
// counted; the table on disk is the source of truth, the stream is best effort.
func (p *Publisher) PublishBatch(ctx context.Context, runID string, records []models.Record) (int, error) {
	if !p.cfg.Enabled {
		p.log.Debug("⏩ Streaming disabled")
		return 0, nil
	}

	sent := 0
	var firstErr error
	for _, r := range records {
		if err := p.publish(ctx, runID, r); err != nil {
			p.log.WithError(err).WithField("symbol", r.Symbol).Error("❌ Stream publish failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	p.log.WithFields(logrus.Fields{
		"provider": p.cfg.Provider,
		"sent":     sent,
		"total":    len(records),
	}).Info("📤 Records streamed")
	return sent, firstErr
}

func (p *Publisher) publish(ctx context.Context, runID string, r models.Record) error {
	payload, err := json.Marshal(recordMessage{RunID: runID, Record: r})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	switch p.cfg.Provider {
	case "redis":
		if p.redis == nil {
			return fmt.Errorf("redis client not initialized")
		}
		return p.redis.XAdd(ctx, &redis.XAddArgs{
			Stream: p.cfg.Redis.Stream,
			Values: utils.CreateRedisStreamEntry(runID, r.Symbol, payload, p.now()),
		}).Err()

	case "kafka":
		if p.kafka == nil {
			return fmt.Errorf("kafka writer not initialized")
		}
		return utils.WriteKafkaMessage(ctx, p.kafka, r.Symbol, payload, p.now())

	default:
		return fmt.Errorf("unknown streaming provider: %s", p.cfg.Provider)
	}
}
