// Package broadcaster drains the response outbox into Kafka. It runs
// beside the processing loop and never touches sequencer state: its only
// inputs are durable outbox records, so a crash at any point either
// resends (downstream dedups by sequence) or retries later.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"meridian/infra/metrics"
	"meridian/infra/outbox"
)

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

type Config struct {
	Brokers  []string
	Topic    string
	Interval time.Duration
}

func New(cfg Config, ob *outbox.Outbox, log *zap.Logger, m *metrics.Metrics) (*Broadcaster, error) {
	scfg := sarama.NewConfig()
	scfg.Producer.Return.Successes = true
	scfg.Producer.RequiredAcks = sarama.WaitForAll
	scfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, scfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    cfg.Topic,
		interval: interval,
		log:      log,
		metrics:  m,
	}, nil
}

// Start launches the scan loop. It returns immediately; cancel the
// context to stop.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// drainOnce publishes every pending response in sequence order. The
// SENT-before-publish, ACKED-after ordering means a crash can only
// produce duplicates, never gaps.
func (b *Broadcaster) drainOnce() {
	var pending int
	err := b.outbox.ScanPending(func(rec outbox.Record) error {
		pending++

		if err := b.outbox.MarkSent(rec.Seq, rec.Retries+1); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(strconv.FormatUint(rec.Seq, 10)),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries+1),
				zap.Error(err))
			return nil
		}

		return b.outbox.MarkAcked(rec.Seq)
	})
	if err != nil {
		b.log.Error("outbox scan failed", zap.Error(err))
	}
	if b.metrics != nil {
		b.metrics.OutboxPendingOnScan.Set(float64(pending))
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
