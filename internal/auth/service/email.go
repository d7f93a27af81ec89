package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/obs"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

// EmailSender delivers a single message over some transport.
type EmailSender interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

const (
	DefaultEmailQueueSize   = 128
	DefaultEmailSendTimeout = 30 * time.Second
)

// EmailDispatcher delivers emails on a single background worker so request
// handlers never wait on a mail server. Enqueue never blocks: when the
// queue is full the message is dropped and logged.
type EmailDispatcher struct {
	Sender      EmailSender
	Logger      *slog.Logger
	Metrics     *obs.Metrics
	SendTimeout time.Duration

	queue    chan domain.EmailMessage
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewEmailDispatcher creates a dispatcher with room for size pending
// messages. A size of 0 or less selects DefaultEmailQueueSize.
func NewEmailDispatcher(sender EmailSender, logger *slog.Logger, metrics *obs.Metrics, size int) *EmailDispatcher {
	if size <= 0 {
		size = DefaultEmailQueueSize
	}
	return &EmailDispatcher{
		Sender:      sender,
		Logger:      logger,
		Metrics:     metrics,
		SendTimeout: DefaultEmailSendTimeout,
		queue:       make(chan domain.EmailMessage, size),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Enqueue schedules msg for delivery.
func (d *EmailDispatcher) Enqueue(ctx context.Context, msg domain.EmailMessage) {
	select {
	case d.queue <- msg:
		d.Metrics.Email(string(msg.Kind), "queued")
	default:
		d.Metrics.Email(string(msg.Kind), "dropped")
		slogx.FromContext(ctx).Error("email queue full, dropping message",
			slog.String("kind", string(msg.Kind)), slogx.Email(msg.To))
	}
}

// Start launches the delivery worker.
func (d *EmailDispatcher) Start() {
	go d.run()
	d.Logger.Info("email dispatcher started", "queue_size", cap(d.queue))
}

// Stop delivers whatever is already queued, then stops the worker.
func (d *EmailDispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
	d.Logger.Info("email dispatcher stopped")
}

func (d *EmailDispatcher) run() {
	defer close(d.doneCh)

	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.stopCh:
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *EmailDispatcher) deliver(msg domain.EmailMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), d.SendTimeout)
	defer cancel()

	if err := d.Sender.Send(ctx, msg); err != nil {
		d.Metrics.Email(string(msg.Kind), "failed")
		d.Logger.Error("failed to send email",
			slog.String("kind", string(msg.Kind)), slogx.Email(msg.To), slog.Any("error", err))
		return
	}
	d.Metrics.Email(string(msg.Kind), "sent")
	d.Logger.Debug("email sent", slog.String("kind", string(msg.Kind)), slogx.Email(msg.To))
}
