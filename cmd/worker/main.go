// Worker consumes voice session telemetry from Kafka and pushes it to Loki, labelled by event
// type, source, block reason and token role.
// Set KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"voice-trial-agent/internal/config"
	"voice-trial-agent/internal/telemetry/loki"
)

const (
	defaultTopic   = "voice-telemetry"
	defaultGroupID = "voice-telemetry-worker"
	pushTimeout    = 10 * time.Second
)

// readBackoff is the pause after a Kafka read error.
var readBackoff = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type eventPusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

// stats counts what one worker run consumed.
type stats struct {
	read, pushed, failed int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		return errors.New("LOKI_URL is required")
	}
	topic := cfg.TelemetryKafkaTopic
	if topic == "" {
		topic = defaultTopic
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = defaultGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	log.Printf("worker: consuming %s (group %s) into %s", topic, groupID, cfg.LokiURL)
	st := consume(ctx, reader, loki.NewClient(cfg.LokiURL))
	log.Printf("worker: stopped after %d events (%d pushed, %d failed)", st.read, st.pushed, st.failed)
	return nil
}

// consume pushes every message to Loki until ctx is done. Push failures are logged and the
// message is skipped.
func consume(ctx context.Context, r messageReader, p eventPusher) stats {
	var st stats
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return st
			}
			log.Printf("worker: kafka read: %v", err)
			select {
			case <-ctx.Done():
				return st
			case <-time.After(readBackoff):
			}
			continue
		}
		st.read++

		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		err = p.PushEventJSON(pushCtx, msg.Value)
		cancel()
		if err != nil {
			st.failed++
			log.Printf("worker: loki push (offset %d): %v", msg.Offset, err)
			continue
		}
		st.pushed++
	}
}
