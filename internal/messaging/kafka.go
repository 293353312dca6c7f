package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/config"
)

const contentTypeHeader = "content-type"

// kafkaClient implements the Client via kafka-go. Messages are keyed by
// order id and hashed to partitions, so events of one order stay ordered.
type kafkaClient struct {
	writer     *kafka.Writer
	reader     *kafka.Reader
	topic      string
	retryDelay time.Duration
	logger     *zap.Logger
}

func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte) error {
	headers := HeaderCarrier{{Key: contentTypeHeader, Value: []byte("application/json")}}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   k.topic,
		Key:     key,
		Value:   value,
		Headers: headers,
	})
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))

			select {
			case <-time.After(k.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		carrier := HeaderCarrier(msg.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		if err := handler(msgCtx, toMessage(msg)); err != nil {
			// Failed messages are skipped: the next commit moves the group
			// offset past them.
			k.logger.Error("message handler failed",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			continue
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func toMessage(msg kafka.Message) Message {
	out := Message{
		Topic:  msg.Topic,
		Key:    append([]byte(nil), msg.Key...),
		Value:  append([]byte(nil), msg.Value...),
		Offset: msg.Offset,
		Time:   msg.Time,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			out.Headers[h.Key] = string(h.Value)
		}
	}
	return out
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	kcfg := cfg.Messaging.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kcfg.Brokers...),
		Topic:        kcfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaErrorLogger{logger: logger},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kcfg.Brokers,
		GroupID:        cfg.Messaging.ConsumerGroup,
		Topic:          kcfg.Topic,
		MinBytes:       kcfg.MinBytes,
		MaxBytes:       kcfg.MaxBytes,
		CommitInterval: kcfg.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  kcfg.ConnectTimeout,
			ClientID: kcfg.ClientID,
		},
	})

	retryDelay := cfg.Messaging.Workers.PollInterval
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	client := &kafkaClient{writer: writer, reader: reader, topic: kcfg.Topic, retryDelay: retryDelay, logger: logger}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")
			return errors.Join(writer.Close(), reader.Close())
		},
	})

	return client, nil
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Debugf(msg, args...)
}

type kafkaErrorLogger struct {
	logger *zap.Logger
}

func (k kafkaErrorLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Warnf(msg, args...)
}
