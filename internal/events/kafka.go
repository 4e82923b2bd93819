// Package events publishes payment lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go-ingenico/internal/payment"

	"github.com/IBM/sarama"
)

// Producer publishes payment events to a Kafka topic, keyed by order id so
// every event of one order lands on the same partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer wraps an existing sync producer
func NewProducer(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// NewKafkaProducer connects to brokers and returns a Producer for topic
func NewKafkaProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.ClientID = "go-ingenico"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewProducer(producer, topic), nil
}

type message struct {
	Type       string `json:"type"`
	OrderID    int64  `json:"order_id"`
	OrderKey   string `json:"order_key"`
	Status     string `json:"status"`
	Reference  string `json:"reference,omitempty"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	OccurredAt string `json:"occurred_at"`
}

// Publish sends ev to the topic
func (p *Producer) Publish(_ context.Context, ev payment.Event) error {
	b, err := json.Marshal(message{
		Type:       string(ev.Type),
		OrderID:    ev.OrderID,
		OrderKey:   ev.OrderKey,
		Status:     string(ev.Status),
		Reference:  ev.Reference,
		Amount:     ev.Amount.StringFixed(2),
		Currency:   ev.Currency,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.OrderID, 10)),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka send %s for order %d: %w", ev.Type, ev.OrderID, err)
	}
	return nil
}

// Close flushes and closes the underlying producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
