package replication

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/google/uuid"
)

// metaBaseSequence ключ метаданных снимка с номером первого нумерованного пакета
const metaBaseSequence = "base_seq"

// maxBuffered ограничивает число пакетов, ждущих пропущенный номер
const maxBuffered = 4096

// ErrSettingsMismatch возвращается, если размеры мира в снимке не совпадают с локальными
var ErrSettingsMismatch = errors.New("параметры мира не совпадают")

// ReceiverOptions параметры приёмника
type ReceiverOptions struct {
	ID         string // ID наблюдателя; пусто - случайный UUID
	Compressor protocol.Compressor
	Metrics    *Metrics
	Now        func() time.Time
}

type pendingAck struct {
	target string
	seq    uint64
}

// Receiver применяет пакеты сервера к клиентскому миру.
// Обработчик шины только складывает конверты во входящую очередь;
// разбор, применение и подтверждения выполняет Apply в потоке симуляции.
type Receiver struct {
	id      string
	bus     eventbus.EventBus
	world   *world.World
	comp    protocol.Compressor
	metrics *Metrics
	now     func() time.Time
	logger  *logging.Logger

	inboxMu sync.Mutex
	inbox   []*eventbus.Envelope
	sub     eventbus.Subscription

	// Поля ниже используются только из Apply
	snapshot *Snapshot
	haveBase bool
	next     uint64
	buffered map[uint64]*eventbus.Envelope
	acks     []pendingAck
}

// NewReceiver создаёт приёмник для клиентского мира w
func NewReceiver(bus eventbus.EventBus, w *world.World, opts ReceiverOptions) (*Receiver, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
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
	return &Receiver{
		id:       opts.ID,
		bus:      bus,
		world:    w,
		comp:     comp,
		metrics:  opts.Metrics,
		now:      opts.Now,
		logger:   logging.GetReplicationLogger(),
		buffered: make(map[uint64]*eventbus.Envelope),
	}, nil
}

// ID возвращает идентификатор получателя
func (r *Receiver) ID() string {
	return r.id
}

// Start подписывается на пакеты для этого получателя и широковещательные изменения
func (r *Receiver) Start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, eventbus.Filter{
		Types: []string{
			protocol.MsgSnapshot.String(),
			protocol.MsgChunkData.String(),
			protocol.MsgBlockUpdate.String(),
			protocol.MsgStateUpdate.String(),
			protocol.MsgChunkUnload.String(),
		},
		Targets: []string{r.id},
	}, r.enqueue)
	if err != nil {
		return fmt.Errorf("подписка приёмника: %w", err)
	}
	r.inboxMu.Lock()
	r.sub = sub
	r.inboxMu.Unlock()
	return nil
}

// Stop отписывается от шины
func (r *Receiver) Stop() {
	r.inboxMu.Lock()
	sub := r.sub
	r.sub = nil
	r.inboxMu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (r *Receiver) enqueue(_ context.Context, ev *eventbus.Envelope) {
	r.inboxMu.Lock()
	r.inbox = append(r.inbox, ev)
	r.inboxMu.Unlock()
}

// Snapshot возвращает последний принятый снимок
func (r *Receiver) Snapshot() (Snapshot, bool) {
	if r.snapshot == nil {
		return Snapshot{}, false
	}
	return *r.snapshot, true
}

// Buffered возвращает количество пакетов, ожидающих пропущенный номер
func (r *Receiver) Buffered() int {
	return len(r.buffered)
}

// Apply обрабатывает накопленные пакеты и отправляет подтверждения.
// Возвращает количество применённых пакетов.
func (r *Receiver) Apply(ctx context.Context) (int, error) {
	r.inboxMu.Lock()
	batch := r.inbox
	r.inbox = nil
	r.inboxMu.Unlock()

	applied := 0
	var errs []error
	for _, ev := range batch {
		n, err := r.handle(ev)
		applied += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s от %s: %w", ev.EventType, ev.Source, err))
		}
	}

	if err := r.flushAcks(ctx); err != nil {
		errs = append(errs, err)
	}
	return applied, errors.Join(errs...)
}

func (r *Receiver) handle(ev *eventbus.Envelope) (int, error) {
	r.metrics.observe(ev.EventType, "in", len(ev.Payload))

	if ev.Sequence == 0 {
		if err := r.applyEnvelope(ev); err != nil {
			return 0, err
		}
		// Снимок мог открыть буферизованные пакеты
		n, err := r.drain()
		return 1 + n, err
	}

	r.acks = append(r.acks, pendingAck{target: ev.Source, seq: ev.Sequence})
	if r.haveBase && ev.Sequence < r.next {
		return 0, nil
	}
	if _, dup := r.buffered[ev.Sequence]; dup {
		return 0, nil
	}
	if len(r.buffered) >= maxBuffered {
		r.logger.Warn("Буфер пакетов заполнен, пакет #%d отброшен", ev.Sequence)
		return 0, nil
	}
	r.buffered[ev.Sequence] = ev
	return r.drain()
}

// drain применяет буферизованные пакеты, пока номера идут подряд
func (r *Receiver) drain() (int, error) {
	if !r.haveBase {
		return 0, nil
	}
	applied := 0
	var errs []error
	for {
		ev, ok := r.buffered[r.next]
		if !ok {
			break
		}
		delete(r.buffered, r.next)
		r.next++
		if err := r.applyEnvelope(ev); err != nil {
			errs = append(errs, fmt.Errorf("#%d: %w", ev.Sequence, err))
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

func (r *Receiver) applyEnvelope(ev *eventbus.Envelope) error {
	raw, err := r.comp.Decompress(ev.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch protocol.ParseMessageType(ev.EventType) {
	case protocol.MsgSnapshot:
		return r.applySnapshot(ev, raw)
	case protocol.MsgChunkData:
		return r.applyChunks(raw)
	case protocol.MsgBlockUpdate:
		return r.applyBlocks(raw)
	case protocol.MsgStateUpdate:
		return r.applyStates(raw)
	case protocol.MsgChunkUnload:
		return r.applyUnload(raw)
	default:
		return fmt.Errorf("неизвестный тип сообщения %q", ev.EventType)
	}
}

func (r *Receiver) applySnapshot(ev *eventbus.Envelope, raw []byte) error {
	snap, err := DecodeSnapshot(raw)
	if err != nil {
		return err
	}
	if err := snap.CheckCatalog(r.world.Catalog()); err != nil {
		return err
	}
	local := r.world.Settings()
	if snap.Settings.ChunkSize != local.ChunkSize || snap.Settings.MaxSize != local.MaxSize {
		return fmt.Errorf("%w: чанк %v/%v, мир %v/%v", ErrSettingsMismatch,
			snap.Settings.ChunkSize, local.ChunkSize, snap.Settings.MaxSize, local.MaxSize)
	}
	r.snapshot = &snap

	base, err := strconv.ParseUint(ev.Metadata[metaBaseSequence], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: номер в снимке: %v", ErrMalformed, err)
	}
	r.haveBase = true
	r.next = base
	for seq := range r.buffered {
		if seq < base {
			delete(r.buffered, seq)
		}
	}
	r.logger.Info("Снимок мира принят: %d блоков, %d биомов, первый пакет #%d", len(snap.Blocks), len(snap.Biomes), base)
	return nil
}

func (r *Receiver) applyChunks(raw []byte) error {
	size := r.world.Settings().ChunkSize
	payloads, dropped, err := DecodeChunks(raw, size, r.world.Catalog())
	r.metrics.droppedStates.Add(float64(dropped))
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range payloads {
		p := p
		_, err := r.world.AddChunk(p.Origin, func(c *world.Chunk) error {
			blocks := p.Blocks
			if p.HasOnlyAir {
				blocks = make([]block.BlockID, c.Size.Volume())
			}
			if err := c.LoadBlocks(blocks); err != nil {
				return err
			}
			if !c.Light().Deserialize(p.Light) {
				return fmt.Errorf("%w: освещение чанка %v", ErrMalformed, p.Origin)
			}
			c.States().Load(p.States)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Receiver) applyBlocks(raw []byte) error {
	updates, err := DecodeBlockDiff(raw)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if r.world.GetChunk(u.Pos) == nil {
			// Чанк ещё не получен; его данные придут целиком
			continue
		}
		r.world.SetBlockAndUpdate(u.Pos, u.ID, u.Direction, false)
	}
	return nil
}

func (r *Receiver) applyStates(raw []byte) error {
	size := r.world.Settings().ChunkSize
	diffs, dropped, err := DecodeStateDiffs(raw, size, r.world.Catalog())
	r.metrics.droppedStates.Add(float64(dropped))
	if err != nil {
		return err
	}
	for _, d := range diffs {
		if r.world.GetChunk(d.Origin) == nil {
			continue
		}
		for _, e := range d.Entries {
			pos := d.Origin.Add(e.Local)
			if e.State == nil {
				r.world.RemoveState(pos)
				continue
			}
			if err := r.world.SetState(pos, e.State); err != nil {
				r.logger.Warn("Состояние %v не применено: %v", pos, err)
			}
		}
	}
	return nil
}

func (r *Receiver) applyUnload(raw []byte) error {
	origins, err := DecodeUnload(raw)
	if err != nil {
		return err
	}
	for _, o := range origins {
		r.world.UnloadChunk(o)
	}
	return nil
}

func (r *Receiver) flushAcks(ctx context.Context) error {
	acks := r.acks
	r.acks = nil

	for i, a := range acks {
		env := &eventbus.Envelope{
			ID:        uuid.NewString(),
			Timestamp: r.now().UTC(),
			Source:    r.id,
			Target:    a.target,
			EventType: protocol.MsgAck.String(),
			Version:   payloadVersion,
			Sequence:  a.seq,
			Priority:  priorityAck,
		}
		if err := r.bus.Publish(ctx, env); err != nil {
			// Неотправленные подтверждения уйдут при следующем Apply
			r.acks = append(r.acks, acks[i:]...)
			return fmt.Errorf("подтверждение #%d: %w", a.seq, err)
		}
	}
	return nil
}
