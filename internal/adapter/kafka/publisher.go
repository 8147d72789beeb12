package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// Publisher produces one message per result row.
// It implements pipeline.BatchLoader.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a producer for topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// LoadBatch publishes rows in a single WriteMessages call. Rows of one region
// share a key and therefore a partition.
func (p *Publisher) LoadBatch(ctx context.Context, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d rows: %w", len(rows), err)
	}
	p.logger.Debug("rows published", "topic", p.writer.Topic, "count", len(rows))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// MessageKey identifies a row across runs.
func MessageKey(r domain.Row) string {
	return strings.Join([]string{r.RegionID, strconv.Itoa(r.Year), r.Variable, r.Scenario}, "|")
}

func serializeToMessage(r domain.Row) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize row %s: %w", MessageKey(r), err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(r)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "variable", Value: []byte(r.Variable)},
			{Key: "scenario", Value: []byte(r.Scenario)},
			{Key: "run_id", Value: []byte(r.RunID)},
		},
	}, nil
}
