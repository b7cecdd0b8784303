package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"
)

// DefaultInvalidationSubject тема NATS для уведомлений об инвалидации
const DefaultInvalidationSubject = "voxel.cache.invalidation"

// InvalidationMessage уведомление об инвалидации ключа
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// InvalidatorOptions параметры NATS invalidator
type InvalidatorOptions struct {
	URL           string
	Subject       string
	NodeID        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSInvalidator реализует CacheInvalidator через NATS Pub/Sub.
// Собственные уведомления узла игнорируются.
type NATSInvalidator struct {
	conn   *nats.Conn
	opts   InvalidatorOptions
	logger *logging.Logger

	mu           sync.Mutex
	subscription *nats.Subscription
	handler      InvalidationHandler

	published atomic.Int64
	received  atomic.Int64
	errors    atomic.Int64
}

// NewNATSInvalidator подключается к NATS
func NewNATSInvalidator(opts InvalidatorOptions) (*NATSInvalidator, error) {
	if opts.Subject == "" {
		opts.Subject = DefaultInvalidationSubject
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = 10
	}
	if opts.ReconnectWait == 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	logger := logging.GetComponentLogger(logging.ComponentCache)

	conn, err := nats.Connect(opts.URL,
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS отключён: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS переподключён к %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS %s: %w", opts.URL, err)
	}

	logger.Info("NATS invalidator подключён: %s (тема %s)", opts.URL, opts.Subject)
	return &NATSInvalidator{conn: conn, opts: opts, logger: logger}, nil
}

// PublishInvalidation отправляет уведомление об инвалидации ключа
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(InvalidationMessage{
		Key:       key,
		Timestamp: time.Now().UTC(),
		NodeID:    n.opts.NodeID,
	})
	if err != nil {
		n.errors.Inc()
		return fmt.Errorf("кодирование уведомления: %w", err)
	}
	if err := n.conn.Publish(n.opts.Subject, data); err != nil {
		n.errors.Inc()
		return fmt.Errorf("публикация инвалидации %s: %w", key, err)
	}
	n.published.Inc()
	n.logger.Trace("Инвалидация опубликована: %s", key)
	return nil
}

// SubscribeInvalidations подписывается на уведомления до отмены ctx
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscription != nil {
		return errors.New("подписка на инвалидацию уже существует")
	}

	sub, err := n.conn.Subscribe(n.opts.Subject, n.handleMessage)
	if err != nil {
		return fmt.Errorf("подписка на %s: %w", n.opts.Subject, err)
	}
	n.subscription = sub
	n.handler = handler

	go func() {
		<-ctx.Done()
		n.unsubscribe()
	}()
	return nil
}

func (n *NATSInvalidator) handleMessage(msg *nats.Msg) {
	n.received.Inc()

	var m InvalidationMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		n.errors.Inc()
		n.logger.Warn("Повреждённое уведомление об инвалидации: %v", err)
		return
	}
	if m.NodeID == n.opts.NodeID {
		return
	}

	n.mu.Lock()
	handler := n.handler
	n.mu.Unlock()
	if handler == nil {
		return
	}
	if err := handler(m.Key); err != nil {
		n.errors.Inc()
		n.logger.Error("Обработка инвалидации %s: %v", m.Key, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		n.logger.Warn("Отписка от инвалидации: %v", err)
	}
	n.subscription = nil
	n.handler = nil
}

// Close отписывается и закрывает соединение
func (n *NATSInvalidator) Close() error {
	n.unsubscribe()
	n.conn.Close()
	n.logger.Info("NATS invalidator закрыт")
	return nil
}

// Stats возвращает счётчики публикаций, получений и ошибок
func (n *NATSInvalidator) Stats() (published, received, errs int64) {
	return n.published.Load(), n.received.Load(), n.errors.Load()
}
