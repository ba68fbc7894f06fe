/**
 * @description
 * This package provides the RabbitMQ plumbing for the sync job queue: a
 * producer that publishes job messages immediately or after a delay, and a
 * consumer that dispatches deliveries to per-routing-key handlers.
 *
 * Delayed delivery uses a dead-letter queue: messages are published to a
 * holding queue with a per-message TTL and no consumer; when the TTL fires,
 * the broker dead-letters the message back to the jobs exchange with its
 * original routing key. Worker capacity is never held idle by a sleeping job.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer holds the RabbitMQ connection and channel for publishing messages.
type Producer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	// delayQueue is the TTL holding queue for delayed dispatch.
	delayQueue string
}

// Publisher is the interface implemented by types that can publish job messages.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	PublishWithDelay(ctx context.Context, routingKey string, body interface{}, delay time.Duration) error
	Close()
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer connects to RabbitMQ and declares the jobs exchange plus the
// delay holding queue that dead-letters back into it.
func NewProducer(amqpURL, exchange, delayQueue string) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := &Producer{conn: conn, channel: ch, exchange: exchange, delayQueue: delayQueue}
	if err := p.declareTopology(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Producer) delayExchange() string {
	return p.exchange + ".delay"
}

func (p *Producer) declareTopology() error {
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	if err := p.channel.ExchangeDeclare(p.delayExchange(), "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.delayExchange(), err)
	}
	// Holding queue: no consumers; expired messages dead-letter back to the
	// jobs exchange keeping their original routing key.
	_, err := p.channel.QueueDeclare(p.delayQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": p.exchange,
	})
	if err != nil {
		return fmt.Errorf("declare delay queue %s: %w", p.delayQueue, err)
	}
	if err := p.channel.QueueBind(p.delayQueue, "#", p.delayExchange(), false, nil); err != nil {
		return fmt.Errorf("bind delay queue %s: %w", p.delayQueue, err)
	}
	return nil
}

// Publish sends a job message for immediate delivery.
func (p *Producer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        jsonBody,
		},
	)
}

// PublishWithDelay parks a job message on the delay queue with a
// per-message TTL; the broker delivers it to the jobs exchange once the TTL
// expires.
func (p *Producer) PublishWithDelay(ctx context.Context, routingKey string, body interface{}, delay time.Duration) error {
	if delay <= 0 {
		return p.Publish(ctx, routingKey, body)
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	// Publishing through the delay exchange preserves the routing key, so
	// the dead-lettered message re-enters the jobs exchange under it.
	return p.channel.PublishWithContext(ctx,
		p.delayExchange(),
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Expiration:  strconv.FormatInt(delay.Milliseconds(), 10),
			Body:        jsonBody,
		},
	)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *Producer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
