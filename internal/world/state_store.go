package world

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// StateEntry запись состояния для сериализации
type StateEntry struct {
	Local vec.Vec3
	ID    block.BlockID
	State block.State
}

// BlockStateStore хранит состояния блоков чанка по локальной позиции
// и набор изменённых позиций для репликации.
type BlockStateStore struct {
	mu     sync.Mutex
	states map[vec.Vec3]block.State // Состояния по локальной позиции
	dirty  map[vec.Vec3]struct{}    // Изменённые с последней отправки
}

// NewBlockStateStore создаёт пустое хранилище состояний
func NewBlockStateStore() *BlockStateStore {
	return &BlockStateStore{
		states: make(map[vec.Vec3]block.State),
		dirty:  make(map[vec.Vec3]struct{}),
	}
}

// Get возвращает состояние или nil
func (s *BlockStateStore) Get(local vec.Vec3) block.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[local]
}

// GetOrCreate возвращает существующее состояние либо создаёт новое
// через фабрику поведения блока. Новое состояние помечается изменённым.
// Для блоков без состояния возвращает nil.
func (s *BlockStateStore) GetOrCreate(local vec.Vec3, factory func() block.State) block.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[local]; ok {
		return st
	}
	if factory == nil {
		return nil
	}
	st := factory()
	if st == nil {
		return nil
	}
	s.states[local] = st
	s.dirty[local] = struct{}{}
	return st
}

// Set заменяет состояние копией переданного; nil удаляет запись
func (s *BlockStateStore) Set(local vec.Vec3, st block.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.states[local]; ok {
		prev.OnRemoved()
	}
	if st == nil {
		delete(s.states, local)
	} else {
		s.states[local] = st.Copy()
	}
	s.dirty[local] = struct{}{}
}

// Remove удаляет состояние; возвращает false, если его не было
func (s *BlockStateStore) Remove(local vec.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.states[local]
	if !ok {
		return false
	}
	prev.OnRemoved()
	delete(s.states, local)
	s.dirty[local] = struct{}{}
	return true
}

// MarkDirty добавляет позицию в набор изменений
func (s *BlockStateStore) MarkDirty(local vec.Vec3) {
	s.mu.Lock()
	s.dirty[local] = struct{}{}
	s.mu.Unlock()
}

// DirtyCount возвращает количество изменённых позиций
func (s *BlockStateStore) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// DrainDirty извлекает не более max изменённых позиций.
// Позиции без состояния попадают в пакет с nil (удаление на клиенте).
func (s *BlockStateStore) DrainDirty(max int) []vec.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max <= 0 || len(s.dirty) == 0 {
		return nil
	}

	batch := make([]vec.Vec3, 0, min(max, len(s.dirty)))
	for pos := range s.dirty {
		if len(batch) >= max {
			break
		}
		batch = append(batch, pos)
		delete(s.dirty, pos)
	}
	return batch
}

// Restore возвращает позиции в набор изменений после неудачной отправки
func (s *BlockStateStore) Restore(batch []vec.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pos := range batch {
		s.dirty[pos] = struct{}{}
	}
}

// Len возвращает количество хранимых состояний
func (s *BlockStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Entries возвращает копии всех состояний в детерминированном порядке
func (s *BlockStateStore) Entries(idAt func(local vec.Vec3) block.BlockID) []StateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]StateEntry, 0, len(s.states))
	for pos, st := range s.states {
		entries = append(entries, StateEntry{Local: pos, ID: idAt(pos), State: st.Copy()})
	}
	sortStateEntries(entries)
	return entries
}

// Clear удаляет все состояния без вызова обработчиков
func (s *BlockStateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = make(map[vec.Vec3]block.State)
	s.dirty = make(map[vec.Vec3]struct{})
}

func lessVec(a, b vec.Vec3) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

func sortStateEntries(entries []StateEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return lessVec(entries[i].Local, entries[j].Local)
	})
}

// Load заменяет содержимое хранилища записями без пометки изменений.
// Записи с nil State пропускаются.
func (s *BlockStateStore) Load(entries []StateEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.states {
		st.OnRemoved()
	}
	s.states = make(map[vec.Vec3]block.State, len(entries))
	s.dirty = make(map[vec.Vec3]struct{})
	for _, e := range entries {
		if e.State != nil {
			s.states[e.Local] = e.State.Copy()
		}
	}
}
