// Package kafka publishes the public trade feed. Trades are keyed by
// market so one market's prints stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"meridian/domain/market"
)

type TradeFeed struct {
	writer *kafka.Writer
}

func NewTradeFeed(brokers []string, topic string) *TradeFeed {
	return &TradeFeed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// TradeEvent is the public feed record. Seq plus index deduplicates
// across redelivery.
type TradeEvent struct {
	V        int    `json:"v"`
	Market   string `json:"market"`
	Seq      uint64 `json:"seq"`
	Index    int    `json:"index"`
	BuyGUID  uint64 `json:"buyGuid"`
	SellGUID uint64 `json:"sellGuid"`
	Amount   string `json:"amount"`
	Price    string `json:"price"`
}

// PublishTrades sends every trade of one applied request as a single
// batched write.
func (f *TradeFeed) PublishTrades(ctx context.Context, id market.MarketID, seq uint64, trades []market.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(trades))
	for i, t := range trades {
		ev := TradeEvent{
			V:        1,
			Market:   id.String(),
			Seq:      seq,
			Index:    i,
			BuyGUID:  t.BuyGUID,
			SellGUID: t.SellGUID,
			Amount:   t.Amount.String(),
			Price:    t.Price.String(),
		}
		value, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(id.String()),
			Value: value,
		})
	}
	return f.writer.WriteMessages(ctx, msgs...)
}

func (f *TradeFeed) Close() error {
	return f.writer.Close()
}
