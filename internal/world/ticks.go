package world

import (
	"sort"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

type tickKey struct {
	pos vec.Vec3
	id  block.BlockID
}

// QueuedTick запланированный вызов Tick блока
type QueuedTick struct {
	Pos vec.Vec3
	ID  block.BlockID
	At  time.Time
}

// tickQueue отложенные тики блоков. Повторная постановка той же пары
// (позиция, ID) до срабатывания игнорируется.
type tickQueue struct {
	mu    sync.Mutex
	ticks map[tickKey]time.Time
}

func newTickQueue() *tickQueue {
	return &tickQueue{ticks: make(map[tickKey]time.Time)}
}

func (q *tickQueue) schedule(pos vec.Vec3, id block.BlockID, at time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := tickKey{pos: pos, id: id}
	if _, exists := q.ticks[key]; exists {
		return false
	}
	q.ticks[key] = at
	return true
}

// due извлекает созревшие тики в порядке времени срабатывания
func (q *tickQueue) due(now time.Time) []QueuedTick {
	q.mu.Lock()
	var out []QueuedTick
	for key, at := range q.ticks {
		if !at.After(now) {
			out = append(out, QueuedTick{Pos: key.pos, ID: key.id, At: at})
			delete(q.ticks, key)
		}
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return lessVec(out[i].Pos, out[j].Pos)
	})
	return out
}

func (q *tickQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ticks)
}

// dropChunk удаляет тики выгруженного чанка
func (q *tickQueue) dropChunk(c *Chunk) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key := range q.ticks {
		if c.Contains(key.pos) {
			delete(q.ticks, key)
		}
	}
}
