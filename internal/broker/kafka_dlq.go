package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/adlens/marketplace-crawler/config"
	"github.com/segmentio/kafka-go"
)

// KafkaDLQClient parks run tasks that failed for infrastructure reasons
// (browser crash, unmarshalable message) so the scheduler can decide
// whether to replay them. Diagnosis outcomes never land here.
type KafkaDLQClient struct {
	serviceName string
	kafkaWriter *kafka.Writer
}

func NewKafkaDLQ(serviceName string, cfg *config.ProducerConfig) *KafkaDLQClient {
	return &KafkaDLQClient{
		serviceName: serviceName,
		kafkaWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Addr...),
			Topic:        cfg.DeadLetterTopicName,
			Balancer:     &kafka.Hash{},
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (d *KafkaDLQClient) SendTaskToDLQ(task string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := d.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(d.serviceName),
		Value: []byte(task),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(cause.Error())},
			{Key: "failed_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		slog.Error("failed to send task to DLQ.", slog.String("err", err.Error()))
		return
	}
	slog.Debug("task sent to DLQ.")
}

func (d *KafkaDLQClient) Close() {
	err := d.kafkaWriter.Close()
	if err != nil {
		slog.Error("failed to close DLQ writer.", slog.String("err", err.Error()))
	}
}
