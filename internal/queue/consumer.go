// Package queue consumes topic events from RabbitMQ. Each topic is a durable
// queue of the same name; deliveries are acknowledged only after the handler
// succeeds.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/openclaw/match-session-worker/internal/config"
	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	"github.com/openclaw/match-session-worker/internal/model"
)

// Handler processes one raw payload for a topic.
type Handler interface {
	RouteRaw(ctx context.Context, topic string, body []byte) error
}

type Options struct {
	Prefetch int
	PoolSize int
}

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler Handler
	pool    *ants.Pool
	tags    []string
	errs    chan error
	closing atomic.Bool

	dispatchers sync.WaitGroup
	inflight    sync.WaitGroup
}

// Dial connects to the broker and prepares a channel with the configured
// prefetch. Consumption begins with Start.
func Dial(url string, handler Handler, opts Options) (*Consumer, error) {
	c, err := newConsumer(handler, opts.PoolSize)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		c.pool.Release()
		return nil, apperrors.Connectivity("rabbitmq", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		c.pool.Release()
		return nil, apperrors.Connectivity("rabbitmq", fmt.Errorf("open channel: %w", err))
	}
	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		c.pool.Release()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	c.conn = conn
	c.channel = ch
	go c.watchClose(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return c, nil
}

func newConsumer(handler Handler, poolSize int) (*Consumer, error) {
	c := &Consumer{
		handler: handler,
		errs:    make(chan error, 1),
	}
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(p any) {
		c.report(fmt.Errorf("event handler panic: %v", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create handler pool: %w", err)
	}
	c.pool = pool
	return c, nil
}

// Errors reports failures the process cannot recover from: an unexpected
// broker disconnect or a handler panic.
func (c *Consumer) Errors() <-chan error {
	return c.errs
}

// Start declares a durable queue per topic and begins consuming.
func (c *Consumer) Start(ctx context.Context, topics []model.Topic) error {
	for _, topic := range topics {
		name := string(topic)
		if _, err := c.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}

		tag := fmt.Sprintf("%s-%s", name, uuid.NewString())
		deliveries, err := c.channel.Consume(name, tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", name, err)
		}
		c.tags = append(c.tags, tag)

		c.dispatchers.Add(1)
		go c.dispatch(ctx, name, deliveries)
	}

	log.Info().Int("queues", len(topics)).Int("workers", c.pool.Cap()).Msg("queue consumer started")
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, topic string, deliveries <-chan amqp.Delivery) {
	defer c.dispatchers.Done()

	for d := range deliveries {
		c.inflight.Add(1)
		err := c.pool.Submit(func() {
			defer c.inflight.Done()
			c.handleDelivery(ctx, topic, d)
		})
		if err != nil {
			c.inflight.Done()
			log.Error().Err(err).Str("topic", topic).Msg("failed to schedule delivery, requeueing")
			if err := d.Nack(false, true); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("failed to nack delivery")
			}
		}
	}
}

// handleDelivery settles d according to the handler outcome. Malformed
// payloads are rejected outright; other failures are requeued once and then
// dropped to the dead-letter exchange, if one is configured.
func (c *Consumer) handleDelivery(ctx context.Context, topic string, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.HandlerTimeout)
	defer cancel()

	err := c.handler.RouteRaw(hctx, topic, d.Body)

	var settleErr error
	switch {
	case err == nil:
		settleErr = d.Ack(false)
	case apperrors.HasCode(err, apperrors.ErrCodeDecode):
		log.Error().Err(err).Str("topic", topic).Msg("rejecting malformed event")
		settleErr = d.Reject(false)
	case d.Redelivered:
		log.Error().Err(err).Str("topic", topic).Msg("event failed after redelivery, dead-lettering")
		settleErr = d.Nack(false, false)
	default:
		log.Warn().Err(err).Str("topic", topic).Msg("event failed, requeueing")
		settleErr = d.Nack(false, true)
	}
	if settleErr != nil {
		log.Error().Err(settleErr).Str("topic", topic).Uint64("delivery_tag", d.DeliveryTag).Msg("failed to settle delivery")
	}
}

func (c *Consumer) watchClose(closed <-chan *amqp.Error) {
	err, ok := <-closed
	if !ok || err == nil || c.closing.Load() {
		return
	}
	c.report(apperrors.Connectivity("rabbitmq", err))
}

func (c *Consumer) report(err error) {
	select {
	case c.errs <- err:
	default:
		log.Error().Err(err).Msg("consumer error dropped, one already pending")
	}
}

// Shutdown stops consuming, waits for in-flight handlers and closes the
// connection. Handlers still running when ctx expires are abandoned unsettled
// and will be redelivered by the broker.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.closing.Store(true)

	if c.channel != nil {
		for _, tag := range c.tags {
			if err := c.channel.Cancel(tag, false); err != nil {
				log.Warn().Err(err).Str("tag", tag).Msg("failed to cancel consumer")
			}
		}
	}

	done := make(chan struct{})
	go func() {
		c.dispatchers.Wait()
		c.inflight.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("wait for in-flight handlers: %w", ctx.Err())
	}

	c.pool.Release()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	log.Info().Msg("queue consumer stopped")
	return waitErr
}
