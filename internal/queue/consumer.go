package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is how often a message is redelivered through the retry
// queue before it is parked in the dead letter queue.
const MaxRetries = 10

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

// Consume delivers messages from every queue in handlers, one at a time
// across all queues, until ctx is done. Failed messages go through
// HandleProcessingError.
func Consume(ctx context.Context, conn *amqp091.Connection, handlers map[string]Handler) error {
	consumerCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer consumerCh.Close()

	// prefetch=1 across the channel: one message in flight for all queues
	if err := consumerCh.Qos(1, 0, true); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	type queuedMessage struct {
		msg       amqp091.Delivery
		queueName string
	}
	messageChan := make(chan queuedMessage)

	for queueName := range handlers {
		msgs, err := consumerCh.Consume(
			queueName,
			queueName+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to start consuming %s: %w", queueName, err)
		}

		go func(qName string, msgs <-chan amqp091.Delivery) {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("[Queue] Message channel closed", "queue", qName)
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName, msgs)
	}

	logger.Info("[Queue] Listening for messages")
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping message processor")
			return nil
		case qm := <-messageChan:
			start := time.Now()
			logger.Info("[Queue] Received message", "queue", qm.queueName)

			err := handlers[qm.queueName](ctx, qm.msg.Body)
			if err != nil {
				logger.Error("[Queue] Error processing message", "queue", qm.queueName, "err", err)
				HandleProcessingError(consumerCh, qm.msg, qm.queueName, err)
			} else {
				if err := qm.msg.Ack(false); err != nil {
					logger.Error("[Queue] Failed to ack message", "err", err)
				}
				logger.Info("[Queue] Message processed", "queue", qm.queueName, "duration", time.Since(start).Round(time.Second))
			}
		}
	}
}

// HandleProcessingError routes a failed message to the retry queue, or to
// the dead letter queue once it has been retried MaxRetries times or the
// failure is permanent. The original delivery is acked once the copy is
// published and requeued if publishing fails.
func HandleProcessingError(ch Publisher, msg amqp091.Delivery, queueName string, cause error) {
	retries := retryCount(msg.Headers)

	if retries >= MaxRetries || errors.Is(cause, ErrPermanent) {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries)
		headers := copyHeaders(msg.Headers)
		if cause != nil {
			headers["x-error"] = cause.Error()
		}
		pubErr := ch.Publish("", dlqName, false, false, amqp091.Publishing{
			ContentType: msg.ContentType,
			Body:        msg.Body,
			Headers:     headers,
		})
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := copyHeaders(msg.Headers)
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish("", retryName, false, false, amqp091.Publishing{
		ContentType: msg.ContentType,
		Body:        msg.Body,
		Headers:     headers,
	})
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

// retryCount reads x-retries. The broker may hand integers back with a
// different width than they were published with.
func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func copyHeaders(h amqp091.Table) amqp091.Table {
	out := make(amqp091.Table, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}
