package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"meridian/domain/market"
	"meridian/domain/state"
	"meridian/infra/kafka"
	"meridian/infra/metrics"
	"meridian/infra/outbox"
	"meridian/infra/queue"
	"meridian/wire"
)

type Config struct {
	DataDir string

	// CheckpointEvery is the request cadence between checkpoints.
	CheckpointEvery uint64
	// CheckpointKeep is how many old checkpoints survive pruning.
	CheckpointKeep int

	QueueSegmentSize int64
}

// Sequencer is the assembled pipeline. Submit is the only write path:
// append to the queue, process, store the response, feed the trade
// topic. The mutex enforces the single-writer discipline; determinism
// comes from processing strictly in queue order.
type Sequencer struct {
	cfg         Config
	queue       *queue.Queue
	outbox      *outbox.Outbox
	proc        *Processor
	checkpoints *checkpointManager
	feed        *kafka.TradeFeed
	metrics     *metrics.Metrics
	log         *zap.Logger

	mu             sync.Mutex
	sinceCheckpoint uint64
}

// Open recovers the sequencer from its data directory: newest checkpoint
// first, then queue replay of everything past the watermark. Responses
// already present in the outbox are not overwritten during replay, so a
// request that was applied before the crash keeps its original response.
func Open(cfg Config, feed *kafka.TradeFeed, m *metrics.Metrics, log *zap.Logger) (*Sequencer, error) {
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 10_000
	}

	cm, err := newCheckpointManager(filepath.Join(cfg.DataDir, "checkpoints"), cfg.CheckpointKeep)
	if err != nil {
		return nil, err
	}

	st := state.New()
	if dir, watermark, ok, err := cm.current(); err != nil {
		return nil, err
	} else if ok {
		st, err = state.Load(dir)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		log.Info("checkpoint loaded",
			zap.String("dir", dir),
			zap.Uint64("watermark", watermark))
	}

	q, err := queue.Open(queue.Config{
		Dir:         filepath.Join(cfg.DataDir, "queue"),
		SegmentSize: cfg.QueueSegmentSize,
	})
	if err != nil {
		return nil, err
	}
	// Sequences at or below the watermark may live only in truncated
	// segments; never reissue them.
	q.Advance(st.Watermark)
	ob, err := outbox.Open(filepath.Join(cfg.DataDir, "outbox"))
	if err != nil {
		q.Close()
		return nil, err
	}

	s := &Sequencer{
		cfg:         cfg,
		queue:       q,
		outbox:      ob,
		proc:        NewProcessor(st, log),
		checkpoints: cm,
		feed:        feed,
		metrics:     m,
		log:         log,
	}
	if err := s.replay(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// replay re-applies every queued request past the checkpoint watermark.
func (s *Sequencer) replay() error {
	watermark := s.proc.State().Watermark
	replayed := 0
	lastSeq, err := queue.Replay(filepath.Join(s.cfg.DataDir, "queue"), watermark, func(rec *queue.Record) error {
		req, err := wire.DecodeRequest(rec.Data)
		if err != nil {
			return fmt.Errorf("seq %d: %w", rec.Seq, err)
		}
		req.Seq = rec.Seq

		resp, err := s.proc.Process(req)
		if err != nil {
			return err
		}
		// Keep the original response if one was stored before the crash.
		if _, ok, err := s.outbox.Get(rec.Seq); err != nil {
			return err
		} else if !ok {
			if err := s.outbox.Put(rec.Seq, wire.EncodeResponse(resp)); err != nil {
				return err
			}
		}
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue replay: %w", err)
	}
	if replayed > 0 {
		s.log.Info("queue replayed",
			zap.Uint64("fromWatermark", watermark),
			zap.Uint64("throughSeq", lastSeq),
			zap.Int("requests", replayed))
	}
	return nil
}

// Submit durably enqueues, applies and responds to one request. The
// request's Seq field is overwritten with the queue-assigned sequence.
func (s *Sequencer) Submit(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	seq, err := s.queue.Append(wire.EncodeRequest(req))
	if err != nil {
		return nil, fmt.Errorf("queue append: %w", err)
	}
	req.Seq = seq

	resp, err := s.proc.Process(req)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Put(seq, wire.EncodeResponse(resp)); err != nil {
		return nil, fmt.Errorf("outbox put: %w", err)
	}

	if s.feed != nil && req.OrderBatch != nil && len(resp.TradesCreated) > 0 {
		// The trade feed is best effort; the outbox broadcast is the
		// durable path.
		if err := s.feed.PublishTrades(ctx, req.OrderBatch.MarketID, seq, resp.TradesCreated); err != nil {
			s.log.Warn("trade feed publish failed", zap.Uint64("seq", seq), zap.Error(err))
		}
	}

	s.observe(req, resp, start)

	s.sinceCheckpoint++
	if s.sinceCheckpoint >= s.cfg.CheckpointEvery {
		if err := s.checkpoint(); err != nil {
			s.log.Error("checkpoint failed", zap.Error(err))
		}
	}
	return resp, nil
}

// Checkpoint forces a checkpoint outside the regular cadence.
func (s *Sequencer) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint()
}

func (s *Sequencer) checkpoint() error {
	start := time.Now()
	st := s.proc.State()
	if err := s.checkpoints.write(st); err != nil {
		return err
	}
	s.sinceCheckpoint = 0

	// Everything at or before the watermark is recoverable from the
	// checkpoint alone.
	if err := s.queue.TruncateBefore(st.Watermark); err != nil {
		s.log.Warn("queue truncation failed", zap.Error(err))
	}
	if err := s.outbox.PruneAcked(st.Watermark); err != nil {
		s.log.Warn("outbox pruning failed", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.CheckpointLastSeq.Set(float64(st.Watermark))
		s.metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
	}
	s.log.Info("checkpoint written",
		zap.Uint64("watermark", st.Watermark),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Sequencer) observe(req *wire.Request, resp *wire.Response, start time.Time) {
	if s.metrics == nil {
		return
	}
	kind := requestKindLabel(req.Kind)
	outcome := "ok"
	if resp.Error != wire.ErrNone {
		outcome = resp.Error.String()
	}
	s.metrics.RequestsTotal.WithLabelValues(kind, outcome).Inc()
	s.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	s.metrics.TradesTotal.Add(float64(len(resp.TradesCreated)))
	autoReduced := 0
	for _, oc := range resp.OrdersChanged {
		if oc.Disposition == market.DispositionAutoReduced {
			autoReduced++
		}
	}
	s.metrics.AutoReduceTotal.Add(float64(autoReduced))
	s.metrics.QueueLastSeq.Set(float64(s.queue.LastSeq()))
}

func requestKindLabel(k wire.RequestKind) string {
	switch k {
	case wire.KindApplyOrderBatch:
		return "order_batch"
	case wire.KindApplyBalanceBatch:
		return "balance_batch"
	case wire.KindAddMarket:
		return "add_market"
	case wire.KindSetFeeRates:
		return "set_fee_rates"
	case wire.KindSetWithdrawalFees:
		return "set_withdrawal_fees"
	default:
		return "unknown"
	}
}

// Outbox exposes the response store for the broadcaster.
func (s *Sequencer) Outbox() *outbox.Outbox {
	return s.outbox
}

func (s *Sequencer) Close() error {
	err := s.queue.Close()
	if cerr := s.outbox.Close(); err == nil {
		err = cerr
	}
	return err
}
