package world

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-engine/internal/vec"
)

// ChunkStore индекс чанков по мировой позиции начала
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[vec.Vec3]*Chunk
}

// NewChunkStore создаёт пустое хранилище
func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[vec.Vec3]*Chunk)}
}

// Get возвращает чанк по началу или nil
func (s *ChunkStore) Get(origin vec.Vec3) *Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[origin]
}

// GetOrCreate возвращает существующий чанк или создаёт новый через create.
// created сообщает, был ли чанк создан этим вызовом.
func (s *ChunkStore) GetOrCreate(origin vec.Vec3, create func() *Chunk) (c *Chunk, created bool) {
	s.mu.RLock()
	c = s.chunks[origin]
	s.mu.RUnlock()
	if c != nil {
		return c, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Двойная проверка после захвата блокировки на запись
	if c = s.chunks[origin]; c != nil {
		return c, false
	}
	c = create()
	s.chunks[origin] = c
	return c, true
}

// Remove удаляет чанк и возвращает его
func (s *ChunkStore) Remove(origin vec.Vec3) *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chunks[origin]
	delete(s.chunks, origin)
	return c
}

// Len возвращает количество чанков
func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// All возвращает все чанки, упорядоченные по началу
func (s *ChunkStore) All() []*Chunk {
	s.mu.RLock()
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return lessVec(out[i].Offset, out[j].Offset)
	})
	return out
}

// Clear удаляет все чанки и возвращает их
func (s *ChunkStore) Clear() []*Chunk {
	s.mu.Lock()
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	s.chunks = make(map[vec.Vec3]*Chunk)
	s.mu.Unlock()
	return out
}
