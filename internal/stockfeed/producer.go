// Package stockfeed carries committed stock changes between the stock
// reducer and the stock caches of other processes, over Kafka. Messages
// are keyed by product id so per-product ordering is preserved.
package stockfeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// StockChanged is the wire event for one committed stock value.
type StockChanged struct {
	ProductID string    `json:"product_id"`
	Stock     int       `json:"stock"`
	ChangedAt time.Time `json:"changed_at"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

// PublishStockChange implements stock.Publisher.
func (p *Producer) PublishStockChange(ctx context.Context, productID string, stock int) error {
	data, err := json.Marshal(StockChanged{
		ProductID: productID,
		Stock:     stock,
		ChangedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(productID),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
