package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	defaultBuffer  = 256
	dialTimeout    = 5 * time.Second
	publishTimeout = 5 * time.Second
)

var (
	// ErrPublisherBusy is returned when the outgoing buffer is full.
	ErrPublisherBusy = errors.New("booking event buffer full")
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("booking event publisher closed")
)

// Publisher sends booking events to RabbitMQ from a single background
// worker.  Publish only enqueues, so callers never wait on the broker.
// The connection is opened lazily and re-dialled after any failure.
type Publisher struct {
	url    string
	log    *logrus.Logger
	events chan BookingEvent

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the worker
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher starts a publisher for the broker at url.  Call Close to
// stop it.
func NewPublisher(url string, log *logrus.Logger) *Publisher {
	return newPublisher(url, log, defaultBuffer)
}

func newPublisher(url string, log *logrus.Logger, buffer int) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		url:    url,
		log:    log,
		events: make(chan BookingEvent, buffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues ev for delivery.  It never blocks: a full buffer
// returns ErrPublisherBusy and the event is dropped.  Delivery failures
// are logged by the worker.
func (p *Publisher) Publish(_ context.Context, ev BookingEvent) error {
	if p.ctx.Err() != nil {
		return ErrPublisherClosed
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrPublisherBusy
	}
}

// Close stops the worker, dropping undelivered events, and releases the
// broker connection.
func (p *Publisher) Close() error {
	p.cancel()
	<-p.done
	if n := len(p.events); n > 0 {
		p.log.WithField("dropped", n).Warn("rabbitmq: booking events not delivered before shutdown")
	}
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	defer p.reset()
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev := <-p.events:
			if err := p.send(ev); err != nil && p.ctx.Err() == nil {
				p.log.WithError(err).WithFields(logrus.Fields{
					"event_type": ev.Type,
					"booking_id": ev.BookingID,
				}).Warn("rabbitmq: booking event not published")
			}
		}
	}
}

func (p *Publisher) send(ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(p.ctx, publishTimeout)
	defer cancel()
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.EventID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", BookingEventsQueue, false, false, pub); err != nil {
		p.reset()
		return err
	}
	return nil
}

// channel returns an open channel, dialling when needed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := dial(p.ctx, p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dial opens an AMQP connection whose TCP connect and handshake are bounded
// by dialTimeout and abandoned as soon as ctx is cancelled.
func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	var stop func() bool
	cfg := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			_ = conn.SetDeadline(time.Now().Add(dialTimeout))
			stop = context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
			return conn, nil
		},
	}
	conn, err := amqp.DialConfig(url, cfg)
	if stop != nil {
		stop()
	}
	return conn, err
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// declare ensures the queue exists (idempotent).  Durable so messages
// survive broker restarts.
func declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(BookingEventsQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return nil
}

// NopPublisher drops events.  Used when publishing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BookingEvent) error { return nil }
