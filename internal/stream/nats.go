// Package stream публикует снимки в NATS и раздает их подписчикам
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// Connect подключается к NATS с бесконечным переподключением
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("polar-dashboard"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// Publisher отправляет снимки в subject в формате JSON
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher создает публикатор
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// Publish публикует снимок
func (p *Publisher) Publish(ctx context.Context, s models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	return nil
}

// Subscribe передает сырые сообщения subject в handle.
// Так несколько экземпляров сервиса раздают клиентам один поток снимков.
func Subscribe(nc *nats.Conn, subject string, handle func([]byte)) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}
