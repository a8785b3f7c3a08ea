package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/resilience"
)

const (
	workerQueueGroup  = "extraction-workers"
	publishedAtHeader = "Vob-Published-At"
)

type publishedAtKey struct{}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Executor             *resilience.Executor
}

// Conn is the shared NATS connection behind the upload queue and the notifier.
type Conn struct {
	nc       *nats.Conn
	executor *resilience.Executor
}

func Connect(url string, options Options) (*Conn, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	nc, err := nats.Connect(
		url,
		nats.Name("vendor-onboarding"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Conn{nc: nc, executor: options.Executor}, nil
}

func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

func (c *Conn) publish(ctx context.Context, operation, subject string, payload []byte) error {
	return c.publishMsg(ctx, operation, &nats.Msg{Subject: subject, Data: payload})
}

func (c *Conn) publishMsg(ctx context.Context, operation string, msg *nats.Msg) error {
	call := func(context.Context) error {
		if err := c.nc.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
		}
		return nil
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapUnavailable(operation, err)
}

// UploadQueue carries DocumentUploaded events from the API to the extraction worker.
type UploadQueue struct {
	conn    *Conn
	subject string
}

func NewUploadQueue(conn *Conn, subject string) *UploadQueue {
	return &UploadQueue{conn: conn, subject: subject}
}

func (q *UploadQueue) PublishDocumentUploaded(ctx context.Context, documentID string) error {
	msg := nats.NewMsg(q.subject)
	msg.Data = []byte(documentID)
	msg.Header.Set(publishedAtHeader, time.Now().UTC().Format(time.RFC3339Nano))
	return q.conn.publishMsg(ctx, "nats.publish_upload", msg)
}

// PublishedAt returns the publish time of the upload event being handled, if known.
func PublishedAt(ctx context.Context) (time.Time, bool) {
	ts, ok := ctx.Value(publishedAtKey{}).(time.Time)
	return ts, ok
}

func withPublishedAt(ctx context.Context, msg *nats.Msg) context.Context {
	if msg.Header == nil {
		return ctx
	}
	ts, err := time.Parse(time.RFC3339Nano, msg.Header.Get(publishedAtHeader))
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, publishedAtKey{}, ts)
}

// SubscribeDocumentUploaded blocks until ctx is done, then drains in-flight messages.
func (q *UploadQueue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.nc.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		documentID := string(msg.Data)
		if documentID == "" {
			slog.Warn("upload_event_empty", "subject", msg.Subject)
			return
		}
		if err := handler(withPublishedAt(ctx, msg), documentID); err != nil {
			slog.Error("upload_event_failed", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.nc.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
