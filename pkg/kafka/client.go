// Package kafka carries ingestion tasks between the API and the worker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"patrasaar-go/internal/config"
	"patrasaar-go/pkg/database"
	"patrasaar-go/pkg/log"
	"patrasaar-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor is implemented by the ingestion pipeline. It decouples the
// consumer loop from the concrete processor.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

var producer *kafka.Writer

// InitProducer initializes the Kafka producer for ingestion tasks.
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka producer initialized successfully")
}

// ProduceIngestTask enqueues a document processing task.
func ProduceIngestTask(task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(task.DocumentID),
			Value: taskBytes,
		},
	)
}

// StartConsumer runs the at-least-once worker loop. The offset is committed
// only after the processor succeeds; a failed task is redelivered by Kafka
// until the attempt counter in Redis reaches the configured cap.
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "patrasaar-go-worker"
	}
	maxAttempts := int64(cfg.MaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka consumer started, listening on topic '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("failed to read message from Kafka", err)
			break
		}

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("failed to decode Kafka message: %v, value: %s", err, string(m.Value))
			// Malformed payload, commit so it does not block the partition.
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("failed to commit malformed message: %v", err)
			}
			continue
		}

		log.Infof("received ingestion task: documentId=%s, jobId=%s, file=%s", task.DocumentID, task.JobID, task.Filename)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("ingestion task failed: documentId=%s, error: %v", task.DocumentID, err)
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.JobID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			} else {
				// Redis unreachable: leave the offset alone and let Kafka retry.
				continue
			}
			if attempts >= maxAttempts {
				log.Errorf("ingestion task failed %d times, giving up: documentId=%s", attempts, task.DocumentID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("failed to commit Kafka offset: %v", err)
				}
			}
			continue
		}

		log.Infof("ingestion task completed: documentId=%s", task.DocumentID)
		_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", task.JobID)).Err()
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("failed to commit Kafka offset: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("failed to close Kafka consumer: %v", err)
	}
}
