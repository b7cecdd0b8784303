package replication

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/google/uuid"
)

// Версия формата полезной нагрузки
const payloadVersion = 1

// Приоритеты конвертов; шина отбрасывает приоритет ниже 5 при переполнении
const (
	priorityChunk    = 6
	priorityAck      = 7
	priorityDiff     = 8
	prioritySnapshot = 9
)

// PublisherOptions параметры публикатора
type PublisherOptions struct {
	Source         string              // Имя узла; пусто - случайный UUID
	Compressor     protocol.Compressor // nil - zstd
	Metrics        *Metrics            // nil - незарегистрированные счётчики
	BlockBatch     int                 // Максимум изменений блоков за Flush
	StateBatch     int                 // Максимум изменённых состояний за Flush
	PublishTimeout time.Duration
	Now            func() time.Time
}

// pendingEnvelope отправленный пакет и получатели, ещё не подтвердившие его
type pendingEnvelope struct {
	env     *eventbus.Envelope
	waiting map[string]struct{}
}

// Publisher отправляет изменения авторитетного мира через шину событий.
// Изменения блоков и состояний нумеруются и хранятся до подтверждения всеми
// отслеживаемыми получателями; снимок и данные чанков идут без подтверждения.
type Publisher struct {
	bus     eventbus.EventBus
	world   *world.World
	opts    PublisherOptions
	comp    protocol.Compressor
	metrics *Metrics
	logger  *logging.Logger

	mu        sync.Mutex
	nextSeq   uint64
	pending   map[uint64]*pendingEnvelope
	receivers map[string]struct{}
	ackSub    eventbus.Subscription
}

// NewPublisher создаёт публикатор для мира w
func NewPublisher(bus eventbus.EventBus, w *world.World, opts PublisherOptions) (*Publisher, error) {
	if opts.Source == "" {
		opts.Source = uuid.NewString()
	}
	if opts.BlockBatch <= 0 {
		opts.BlockBatch = world.DefaultBlockUpdateBatch
	}
	if opts.StateBatch <= 0 {
		opts.StateBatch = world.DefaultStateBatch
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	comp := opts.Compressor
	if comp == nil {
		var err error
		if comp, err = protocol.NewZstdCompressor(); err != nil {
			return nil, err
		}
	}

	return &Publisher{
		bus:       bus,
		world:     w,
		opts:      opts,
		comp:      comp,
		metrics:   opts.Metrics,
		logger:    logging.GetReplicationLogger(),
		nextSeq:   1,
		pending:   make(map[uint64]*pendingEnvelope),
		receivers: make(map[string]struct{}),
	}, nil
}

// Source возвращает имя узла-источника
func (p *Publisher) Source() string {
	return p.opts.Source
}

// Listen подписывается на подтверждения, адресованные этому узлу
func (p *Publisher) Listen(ctx context.Context) error {
	sub, err := p.bus.Subscribe(ctx, eventbus.Filter{
		Types:   []string{protocol.MsgAck.String()},
		Targets: []string{p.opts.Source},
	}, p.handleAck)
	if err != nil {
		return fmt.Errorf("подписка на подтверждения: %w", err)
	}
	p.mu.Lock()
	p.ackSub = sub
	p.mu.Unlock()
	return nil
}

// Close отписывается от подтверждений
func (p *Publisher) Close() {
	p.mu.Lock()
	sub := p.ackSub
	p.ackSub = nil
	p.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (p *Publisher) handleAck(_ context.Context, ev *eventbus.Envelope) {
	if ev.Target != p.opts.Source || ev.Sequence == 0 {
		return
	}
	p.Ack(ev.Source, ev.Sequence)
}

// Ack отмечает пакет seq подтверждённым получателем receiver
func (p *Publisher) Ack(receiver string, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pe, ok := p.pending[seq]
	if !ok {
		return
	}
	delete(pe.waiting, receiver)
	if len(pe.waiting) == 0 {
		delete(p.pending, seq)
		p.metrics.pending.Set(float64(len(p.pending)))
	}
}

// Track начинает отслеживать подтверждения получателя и возвращает номер,
// с которого он будет получать нумерованные пакеты
func (p *Publisher) Track(receiver string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receivers[receiver] = struct{}{}
	return p.nextSeq
}

// Untrack прекращает ожидание подтверждений от получателя
func (p *Publisher) Untrack(receiver string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.receivers, receiver)
	for seq, pe := range p.pending {
		delete(pe.waiting, receiver)
		if len(pe.waiting) == 0 {
			delete(p.pending, seq)
		}
	}
	p.metrics.pending.Set(float64(len(p.pending)))
}

// Pending возвращает количество неподтверждённых пакетов
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flush отправляет накопленные за тик изменения блоков и состояний.
// Вызывается из потока симуляции. Если пакет состояний не удалось отправить,
// флаги изменений возвращаются в мир.
func (p *Publisher) Flush(ctx context.Context) error {
	var errs []error

	if updates := p.world.DrainBlockUpdates(p.opts.BlockBatch); len(updates) > 0 {
		if err := p.publishReliable(ctx, protocol.MsgBlockUpdate, EncodeBlockDiff(updates)); err != nil {
			errs = append(errs, fmt.Errorf("изменения блоков: %w", err))
		}
	}

	if diffs := p.world.DrainDirtyStates(p.opts.StateBatch); len(diffs) > 0 {
		if err := p.publishReliable(ctx, protocol.MsgStateUpdate, EncodeStateDiffs(diffs)); err != nil {
			p.world.RestoreDirtyStates(diffs)
			errs = append(errs, fmt.Errorf("изменения состояний: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PublishSnapshot отправляет снимок мира получателю target.
// base - номер первого нумерованного пакета, который получит target.
func (p *Publisher) PublishSnapshot(ctx context.Context, target string, base uint64) error {
	env, err := p.envelope(protocol.MsgSnapshot, target, EncodeSnapshot(NewSnapshot(p.world)), prioritySnapshot)
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{metaBaseSequence: fmt.Sprint(base)}
	return p.publish(ctx, env)
}

// PublishChunks отправляет готовые чанки получателю target одним пакетом
func (p *Publisher) PublishChunks(ctx context.Context, target string, chunks []*world.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	env, err := p.envelope(protocol.MsgChunkData, target, EncodeChunks(chunks), priorityChunk)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

// PublishUnload сообщает получателю target о выгрузке чанков
func (p *Publisher) PublishUnload(ctx context.Context, target string, origins []vec.Vec3) error {
	if len(origins) == 0 {
		return nil
	}
	env, err := p.envelope(protocol.MsgChunkUnload, target, EncodeUnload(origins), priorityChunk)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

// Retransmit повторно отправляет неподтверждённые пакеты в порядке номеров
func (p *Publisher) Retransmit(ctx context.Context) (int, error) {
	p.mu.Lock()
	envs := make([]*eventbus.Envelope, 0, len(p.pending))
	for _, pe := range p.pending {
		envs = append(envs, pe.env)
	}
	p.mu.Unlock()

	sort.Slice(envs, func(i, j int) bool { return envs[i].Sequence < envs[j].Sequence })
	for i, env := range envs {
		if err := p.publish(ctx, env); err != nil {
			return i, err
		}
		p.metrics.retransmits.Inc()
	}
	return len(envs), nil
}

func (p *Publisher) publishReliable(ctx context.Context, t protocol.MessageType, raw []byte) error {
	env, err := p.envelope(t, "", raw, priorityDiff)
	if err != nil {
		return err
	}

	p.mu.Lock()
	env.Sequence = p.nextSeq
	p.nextSeq++
	retained := len(p.receivers) > 0
	if retained {
		waiting := make(map[string]struct{}, len(p.receivers))
		for r := range p.receivers {
			waiting[r] = struct{}{}
		}
		p.pending[env.Sequence] = &pendingEnvelope{env: env, waiting: waiting}
		p.metrics.pending.Set(float64(len(p.pending)))
	}
	p.mu.Unlock()

	if err := p.publish(ctx, env); err != nil {
		if retained {
			// Уйдёт при следующем Retransmit
			p.logger.Warn("Пакет %s #%d не отправлен, ждёт повтора: %v", t, env.Sequence, err)
			return nil
		}
		return err
	}
	return nil
}

func (p *Publisher) envelope(t protocol.MessageType, target string, raw []byte, priority int) (*eventbus.Envelope, error) {
	payload, err := p.comp.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("сжатие %s: %w", t, err)
	}
	return &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: p.opts.Now().UTC(),
		Source:    p.opts.Source,
		Target:    target,
		EventType: t.String(),
		Version:   payloadVersion,
		Priority:  priority,
		Payload:   payload,
	}, nil
}

func (p *Publisher) publish(ctx context.Context, env *eventbus.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
	defer cancel()

	if err := p.bus.Publish(ctx, env); err != nil {
		return err
	}
	p.metrics.observe(env.EventType, "out", len(env.Payload))
	p.logger.Trace("→ %s #%d %d байт для %q", env.EventType, env.Sequence, len(env.Payload), env.Target)
	return nil
}
