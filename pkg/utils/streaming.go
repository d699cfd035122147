package utils

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// CreateRedisStreamEntry builds the XADD fields for one record.
func CreateRedisStreamEntry(runID, symbol string, payload []byte, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"run":     runID,
		"symbol":  symbol,
		"payload": payload,
		"ts":      at.UnixMilli(),
	}
}

// WriteKafkaMessage writes payload keyed by symbol, so one symbol's rows stay ordered
// within a partition.
func WriteKafkaMessage(ctx context.Context, writer MessageWriter, symbol string, payload []byte, at time.Time) error {
	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(symbol),
		Value: payload,
		Time:  at,
	})
}
