package replication

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/google/uuid"
)

// DefaultChunksPerBatch максимум чанков в одном пакете ChunkData
const DefaultChunksPerBatch = 8

// Streamer отправляет наблюдателям чанки в радиусе прорисовки
// и сообщает о выгрузке дальних.
type Streamer struct {
	world     *world.World
	publisher *Publisher
	perBatch  int
	logger    *logging.Logger
}

// NewStreamer создаёт стример; perBatch <= 0 означает DefaultChunksPerBatch
func NewStreamer(w *world.World, p *Publisher, perBatch int) *Streamer {
	if perBatch <= 0 {
		perBatch = DefaultChunksPerBatch
	}
	return &Streamer{world: w, publisher: p, perBatch: perBatch, logger: logging.GetReplicationLogger()}
}

// Join регистрирует наблюдателя и отправляет ему снимок мира
func (s *Streamer) Join(ctx context.Context, v *world.Viewer) error {
	id := v.ID.String()
	s.world.AddViewer(v)
	base := s.publisher.Track(id)
	if err := s.publisher.PublishSnapshot(ctx, id, base); err != nil {
		s.world.RemoveViewer(v.ID)
		s.publisher.Untrack(id)
		return fmt.Errorf("снимок для %s: %w", id, err)
	}
	s.logger.Info("Наблюдатель %s подключён, позиция %v", id, v.Position())
	return nil
}

// Leave удаляет наблюдателя
func (s *Streamer) Leave(id uuid.UUID) bool {
	s.publisher.Untrack(id.String())
	if !s.world.RemoveViewer(id) {
		return false
	}
	s.logger.Info("Наблюдатель %s отключён", id)
	return true
}

// Tick обновляет всех наблюдателей. Вызывается из потока симуляции.
// Чанки, которые не удалось отправить, будут отправлены повторно.
func (s *Streamer) Tick(ctx context.Context) error {
	var errs []error
	for _, v := range s.world.Viewers() {
		id := v.ID.String()
		upd := v.Update(s.world)

		if err := s.publisher.PublishUnload(ctx, id, upd.Unload); err != nil {
			errs = append(errs, fmt.Errorf("выгрузка для %s: %w", id, err))
		}

		for start := 0; start < len(upd.Send); start += s.perBatch {
			batch := upd.Send[start:min(start+s.perBatch, len(upd.Send))]
			if err := s.publisher.PublishChunks(ctx, id, batch); err != nil {
				for _, c := range batch {
					v.Forget(c.Offset)
				}
				errs = append(errs, fmt.Errorf("чанки для %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}
