package implementations

import (
	"time"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// mockBlockAPI реализует block.BlockAPI для тестирования
type mockBlockAPI struct {
	catalog       *block.Catalog
	size          vec.Vec3
	blocks        map[vec.Vec3]block.BlockID
	states        map[vec.Vec3]block.State
	dirty         map[vec.Vec3]bool
	ticks         map[vec.Vec3]time.Duration
	authoritative bool
}

func newMockBlockAPI(catalog *block.Catalog, size vec.Vec3) *mockBlockAPI {
	return &mockBlockAPI{
		catalog:       catalog,
		size:          size,
		blocks:        make(map[vec.Vec3]block.BlockID),
		states:        make(map[vec.Vec3]block.State),
		dirty:         make(map[vec.Vec3]bool),
		ticks:         make(map[vec.Vec3]time.Duration),
		authoritative: true,
	}
}

func (m *mockBlockAPI) GetBlock(pos vec.Vec3) block.BlockID {
	return m.blocks[pos]
}

func (m *mockBlockAPI) SetBlock(pos vec.Vec3, id block.BlockID, direction int) bool {
	if !m.IsInBounds(pos) || m.blocks[pos] == id {
		return false
	}
	m.blocks[pos] = id
	delete(m.states, pos)
	m.catalog.Get(id).Behavior.OnBlockAdded(m, pos, direction)
	return true
}

func (m *mockBlockAPI) IsInBounds(pos vec.Vec3) bool {
	return pos.Within(m.size)
}

func (m *mockBlockAPI) GetState(pos vec.Vec3) block.State {
	return m.states[pos]
}

func (m *mockBlockAPI) GetOrCreateState(pos vec.Vec3) block.State {
	if st, ok := m.states[pos]; ok {
		return st
	}
	st := m.catalog.NewState(m.blocks[pos])
	if st != nil {
		m.states[pos] = st
		m.dirty[pos] = true
	}
	return st
}

func (m *mockBlockAPI) MarkStateDirty(pos vec.Vec3) {
	m.dirty[pos] = true
}

func (m *mockBlockAPI) QueueBlockTick(pos vec.Vec3, id block.BlockID, delay time.Duration) {
	m.ticks[pos] = delay
}

func (m *mockBlockAPI) IsAuthoritative() bool {
	return m.authoritative
}

func (m *mockBlockAPI) depth(pos vec.Vec3) uint8 {
	st, ok := m.states[pos].(*block.LiquidState)
	if !ok {
		return 0
	}
	return st.Depth
}
