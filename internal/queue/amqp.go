package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/worker"
)

// Message - задача в очереди импорта
type Message struct {
	JobID uuid.UUID `json:"job_id"`
}

func encodeMessage(jobID uuid.UUID) ([]byte, error) {
	return json.Marshal(Message{JobID: jobID})
}

func decodeMessage(body []byte) (uuid.UUID, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return uuid.Nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.JobID == uuid.Nil {
		return uuid.Nil, errors.New("message has no job_id")
	}
	return msg.JobID, nil
}

// AMQPDispatcher публикует задания в RabbitMQ и выполняет их на стороне потребителя
type AMQPDispatcher struct {
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pub      *amqp.Channel
	queue    string
	prefetch int
	logger   *slog.Logger
}

func NewAMQPDispatcher(url, queue string, prefetch int, logger *slog.Logger) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := declareQueue(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	return &AMQPDispatcher{
		conn:     conn,
		pub:      ch,
		queue:    queue,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return q, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	body, err := encodeMessage(jobID)
	if err != nil {
		return err
	}

	d.pubMu.Lock()
	defer d.pubMu.Unlock()

	return d.pub.PublishWithContext(ctx,
		"",      // exchange
		d.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    jobID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Consume выполняет задания из очереди до отмены ctx или закрытия соединения
func (d *AMQPDispatcher) Consume(ctx context.Context, exec worker.Executor) error {
	ch, err := d.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(d.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		d.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	d.logger.Info("import consumer started", slog.String("queue", d.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("consumer channel closed")
			}
			handleDelivery(msg, exec, d.logger)
		}
	}
}

func (d *AMQPDispatcher) Close() error {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()

	if err := d.pub.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return d.conn.Close()
}

// handleDelivery подтверждает сообщение после выполнения. Устаревшие задания и
// задания, закреплённые за другим исполнителем, подтверждаются; прочие ошибки
// возвращают сообщение в очередь один раз.
func handleDelivery(msg amqp.Delivery, exec worker.Executor, logger *slog.Logger) {
	jobID, err := decodeMessage(msg.Body)
	if err != nil {
		logger.Error("dropping malformed import message",
			slog.String("message_id", msg.MessageId),
			slog.String("error", err.Error()),
		)
		_ = msg.Nack(false, false)
		return
	}

	_, err = exec.Execute(context.Background(), jobID)
	switch {
	case err == nil,
		errors.Is(err, domain.ErrInvalidJobTransition),
		errors.Is(err, domain.ErrImportJobLeased),
		errors.Is(err, domain.ErrImportJobNotFound):
		if err != nil {
			logger.Warn("skipping stale import message",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
		_ = msg.Ack(false)
	default:
		logger.Error("import job failed",
			slog.String("job_id", jobID.String()),
			slog.Bool("redelivered", msg.Redelivered),
			slog.String("error", err.Error()),
		)
		_ = msg.Nack(false, !msg.Redelivered)
	}
}
