package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	BuildQueue  = "build_queue"
	DeleteQueue = "delete_queue"

	EventExchange = "pubsub_exchange"
)

// Queues lists every work queue the worker consumes.
var Queues = []string{BuildQueue, DeleteQueue}

// Publisher is the part of an amqp091.Channel used to publish.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	// the broker may come up after the worker
	backoff := util.Backoff{
		Delays:      []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		MaxAttempts: util.GetEnvInt("RABBITMQ_DIAL_ATTEMPTS", 5),
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("[Queue] RabbitMQ not reachable, retrying", "attempt", attempt, "delay", delay, "err", err)
		},
	}
	conn, _, err := util.RetryWithBackoff(context.Background(), backoff, func(context.Context) (*amqp091.Connection, error) {
		return amqp091.Dial(connURL)
	})
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares the event exchange and, for every queue, the queue
// itself, its dead letter queue and a retry queue that redelivers after
// ten seconds.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		EventExchange,
		"topic",
		false,
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(10000),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// PublishFIFO publishes a persistent message to queueName. The queue must
// have been declared with SetupQueues.
func PublishFIFO(ch Publisher, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}
	return ch.Publish("", queueName, false, false, publishing)
}

// PublishTopic publishes an event to the topic exchange. Events are
// best effort: nobody has to be listening.
func PublishTopic(ch Publisher, topic string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
	}
	return ch.Publish(EventExchange, topic, false, false, publishing)
}
