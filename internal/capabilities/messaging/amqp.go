package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"

	"github.com/wasmgate/wasmgate/internal/apperr"
)

// AMQPBackend is the RabbitMQ-backed messaging broker, one shared
// connection cloned by reference into every per-request store (spec.md
// §3's backend connection lifecycle).
type AMQPBackend struct {
	conn     *amqp.Connection
	exchange string
}

// NewAMQPBackend dials url and declares the topic exchange every Client
// publishes and subscribes through.
func NewAMQPBackend(url, exchange string) (*AMQPBackend, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("messaging: dialing amqp %q: %w", url, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("messaging: opening channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("messaging: declaring exchange %q: %w", exchange, err)
	}
	return &AMQPBackend{conn: conn, exchange: exchange}, nil
}

// Close releases the underlying connection.
func (b *AMQPBackend) Close() error { return b.conn.Close() }

// Connect implements Backend; name is ignored, every connection shares
// the one broker connection but opens its own channel.
func (b *AMQPBackend) Connect(ctx context.Context, name string) (Client, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, apperr.BadGateway("amqp_channel", err.Error())
	}
	return &amqpClient{exchange: b.exchange, ch: ch}, nil
}

type amqpClient struct {
	exchange string
	ch       *amqp.Channel
}

func (c *amqpClient) Subscribe(ctx context.Context, topics []string) (<-chan *Message, error) {
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, apperr.BadGateway("amqp_queue_declare", err.Error())
	}
	for _, topic := range topics {
		if err := c.ch.QueueBind(q.Name, topic, c.exchange, false, nil); err != nil {
			return nil, apperr.BadGateway("amqp_queue_bind", err.Error())
		}
	}
	deliveries, err := c.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, apperr.BadGateway("amqp_consume", err.Error())
	}

	out := make(chan *Message, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				out <- deliveryToMessage(d)
			}
		}
	}()
	return out, nil
}

func (c *amqpClient) Send(ctx context.Context, topic string, msg *Message) error {
	pub := messageToPublishing(msg)
	if err := c.ch.PublishWithContext(ctx, c.exchange, topic, false, false, pub); err != nil {
		return apperr.BadGateway("amqp_publish", err.Error())
	}
	return nil
}

// Request implements the caller-supplied-timeout request/reply pattern
// via a private exclusive reply queue and a correlation id, the idiomatic
// amqp091-go RPC shape.
func (c *amqpClient) Request(ctx context.Context, topic string, msg *Message, opts RequestOptions) (*Message, error) {
	replyQ, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, apperr.BadGateway("amqp_queue_declare", err.Error())
	}
	deliveries, err := c.ch.Consume(replyQ.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, apperr.BadGateway("amqp_consume", err.Error())
	}

	corrID := uuid.NewString()
	pub := messageToPublishing(msg)
	pub.CorrelationId = corrID
	pub.ReplyTo = replyQ.Name
	if err := c.ch.PublishWithContext(ctx, c.exchange, topic, false, false, pub); err != nil {
		return nil, apperr.BadGateway("amqp_publish", err.Error())
	}

	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	for {
		select {
		case <-reqCtx.Done():
			return nil, apperr.BadGateway("connection_timeout", "request-reply timed out")
		case d, ok := <-deliveries:
			if !ok {
				return nil, apperr.BadGateway("amqp_consume", "reply channel closed")
			}
			if d.CorrelationId != corrID {
				continue
			}
			return deliveryToMessage(d), nil
		}
	}
}

func (c *amqpClient) Close() error { return c.ch.Close() }

func messageToPublishing(msg *Message) amqp.Publishing {
	headers := make(amqp.Table, len(msg.Metadata))
	for k, v := range msg.Metadata {
		headers[k] = v
	}
	return amqp.Publishing{
		ContentType: msg.ContentType,
		Body:        msg.Payload,
		Headers:     headers,
		ReplyTo:     msg.ReplyTo,
	}
}

func deliveryToMessage(d amqp.Delivery) *Message {
	meta := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	return &Message{
		TopicName:   d.RoutingKey,
		Payload:     d.Body,
		ContentType: d.ContentType,
		Metadata:    meta,
		ReplyTo:     d.ReplyTo,
	}
}
