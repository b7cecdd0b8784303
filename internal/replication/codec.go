package replication

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// ErrMalformed возвращается при разборе повреждённого пакета
var ErrMalformed = errors.New("повреждённый пакет репликации")

// ErrCatalogMismatch возвращается, если таблица блоков сервера не совпадает с локальной
var ErrCatalogMismatch = errors.New("таблица блоков не совпадает")

// Минимальные размеры записей для проверки счётчиков
const (
	stateEntryMinSize  = 1 + 12 + 1 + 4
	blockUpdateSize    = 12 + 1 + 4
	blockEntryMinSize  = 1 + 2 + 4
	biomeEntryMinSize  = 1 + 2 + 2
	chunkPayloadMinLen = 12 + 1
)

// BlockEntry запись таблицы блоков снимка
type BlockEntry struct {
	ID      block.BlockID
	Name    string
	Aliases []string
}

// Snapshot начальное состояние мира для нового клиента
type Snapshot struct {
	Settings world.Settings
	Blocks   []BlockEntry
	Biomes   []world.BiomeDescriptor
}

// ChunkPayload содержимое чанка, переданное по сети
type ChunkPayload struct {
	Origin     vec.Vec3
	HasOnlyAir bool
	Blocks     []block.BlockID // nil, если чанк пуст
	Light      []byte
	States     []world.StateEntry
}

// NewSnapshot собирает снимок мира
func NewSnapshot(w *world.World) Snapshot {
	snap := Snapshot{Settings: w.Settings(), Biomes: w.Biomes()}
	for _, t := range w.Catalog().Types() {
		snap.Blocks = append(snap.Blocks, BlockEntry{ID: t.ID, Name: t.Name, Aliases: t.Aliases})
	}
	return snap
}

// CheckCatalog проверяет, что каждый блок снимка имеет тот же ID в локальном каталоге
func (s Snapshot) CheckCatalog(c *block.Catalog) error {
	if len(s.Blocks) != c.Len() {
		return fmt.Errorf("%w: %d блоков на сервере, %d локально", ErrCatalogMismatch, len(s.Blocks), c.Len())
	}
	for _, e := range s.Blocks {
		id, ok := c.Lookup(e.Name)
		if !ok || id != e.ID {
			return fmt.Errorf("%w: блок %q (ID %d)", ErrCatalogMismatch, e.Name, e.ID)
		}
	}
	return nil
}

// EncodeSnapshot кодирует заголовок мира, таблицу блоков и таблицу биомов
func EncodeSnapshot(s Snapshot) []byte {
	w := protocol.NewWriter()
	st := s.Settings

	w.WriteInt(st.SeaLevel)
	w.WriteInt(st.Seed)
	w.WriteVec3(st.MaxSize)
	w.WriteVec3(st.ChunkSize)
	w.WriteF32(st.VoxelSize)
	w.WriteInt(st.ChunkRenderDistance)
	w.WriteInt(st.ChunkUnloadDistance)
	w.WriteInt(st.MinimumLoadedChunks)
	w.WriteBool(st.BuildCollisionInThread)
	w.WriteString(st.Atlas.Opaque)
	w.WriteString(st.Atlas.Translucent)
	w.WriteInt(st.Atlas.TextureSize)

	w.WriteInt(len(s.Blocks))
	for _, e := range s.Blocks {
		w.WriteU8(uint8(e.ID))
		w.WriteString(e.Name)
		w.WriteInt(len(e.Aliases))
		for _, a := range e.Aliases {
			w.WriteString(a)
		}
	}

	w.WriteInt(len(s.Biomes))
	for _, b := range s.Biomes {
		w.WriteU8(b.ID)
		w.WriteString(b.Name)
		w.WriteString(b.Generator)
	}
	return w.Bytes()
}

// DecodeSnapshot разбирает снимок
func DecodeSnapshot(data []byte) (Snapshot, error) {
	r := protocol.NewReader(data)
	var s Snapshot
	st := &s.Settings

	st.SeaLevel = r.ReadInt()
	st.Seed = r.ReadInt()
	st.MaxSize = r.ReadVec3()
	st.ChunkSize = r.ReadVec3()
	st.VoxelSize = r.ReadF32()
	st.ChunkRenderDistance = r.ReadInt()
	st.ChunkUnloadDistance = r.ReadInt()
	st.MinimumLoadedChunks = r.ReadInt()
	st.BuildCollisionInThread = r.ReadBool()
	st.Atlas.Opaque = r.ReadString()
	st.Atlas.Translucent = r.ReadString()
	st.Atlas.TextureSize = r.ReadInt()

	n := r.Count(blockEntryMinSize)
	for i := 0; i < n && r.Err() == nil; i++ {
		e := BlockEntry{ID: block.BlockID(r.ReadU8()), Name: r.ReadString()}
		aliases := r.Count(2)
		for j := 0; j < aliases && r.Err() == nil; j++ {
			e.Aliases = append(e.Aliases, r.ReadString())
		}
		s.Blocks = append(s.Blocks, e)
	}

	n = r.Count(biomeEntryMinSize)
	for i := 0; i < n && r.Err() == nil; i++ {
		s.Biomes = append(s.Biomes, world.BiomeDescriptor{
			ID:        r.ReadU8(),
			Name:      r.ReadString(),
			Generator: r.ReadString(),
		})
	}

	if err := r.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: снимок: %v", ErrMalformed, err)
	}
	if err := s.Settings.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: снимок: %v", ErrMalformed, err)
	}
	return s, nil
}

// writeStateEntry пишет запись состояния; данные состояния идут блобом,
// чтобы повреждённую запись можно было пропустить
func writeStateEntry(w *protocol.Writer, e world.StateEntry) {
	w.WriteBool(e.State != nil)
	w.WriteVec3(e.Local)
	w.WriteU8(uint8(e.ID))
	if e.State == nil {
		w.WriteBlob(nil)
		return
	}
	w.WriteBlob(block.EncodeState(e.State))
}

func writeStateEntries(w *protocol.Writer, entries []world.StateEntry) {
	w.WriteInt(len(entries))
	for _, e := range entries {
		writeStateEntry(w, e)
	}
}

// readStateEntries читает поток записей. Записи, которые не удалось разобрать,
// отбрасываются с записью в лог; структурная ошибка потока возвращается.
func readStateEntries(r *protocol.Reader, catalog *block.Catalog, size vec.Vec3, dropped *int) ([]world.StateEntry, error) {
	n := r.Count(stateEntryMinSize)
	entries := make([]world.StateEntry, 0, n)

	for i := 0; i < n; i++ {
		valid := r.ReadBool()
		local := r.ReadVec3()
		id := block.BlockID(r.ReadU8())
		payload := r.ReadBlob()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: запись состояния %d: %v", ErrMalformed, i, err)
		}

		if !local.Within(size) {
			logging.Warn("Состояние вне чанка %v отброшено", local)
			*dropped++
			continue
		}
		entry := world.StateEntry{Local: local, ID: id}
		if !valid {
			entries = append(entries, entry)
			continue
		}

		st, err := catalog.DecodeState(id, payload)
		if err != nil {
			logging.Warn("Состояние блока %d в %v отброшено: %v\n%s", id, local, err, logging.HexDump(payload))
			*dropped++
			continue
		}
		entry.State = st
		entries = append(entries, entry)
	}
	return entries, nil
}

func writeChunk(w *protocol.Writer, c *world.Chunk) {
	w.WriteVec3(c.Offset)
	air := c.HasOnlyAir()
	w.WriteBool(air)
	if !air {
		blocks := c.Snapshot()
		raw := make([]byte, len(blocks))
		for i, id := range blocks {
			raw[i] = byte(id)
		}
		w.WriteRaw(raw)
	}
	w.WriteRaw(c.Light().Serialize())
	writeStateEntries(w, c.StateEntries())
}

func readChunk(r *protocol.Reader, size vec.Vec3, catalog *block.Catalog, dropped *int) (ChunkPayload, error) {
	volume := size.Volume()
	p := ChunkPayload{Origin: r.ReadVec3(), HasOnlyAir: r.ReadBool()}

	if !p.HasOnlyAir {
		raw := r.ReadRaw(volume)
		if raw != nil {
			p.Blocks = make([]block.BlockID, volume)
			for i, b := range raw {
				p.Blocks[i] = block.BlockID(b)
			}
		}
	}
	p.Light = r.ReadRaw(volume * world.BytesPerVoxel)
	if err := r.Err(); err != nil {
		return ChunkPayload{}, fmt.Errorf("%w: чанк: %v", ErrMalformed, err)
	}

	states, err := readStateEntries(r, catalog, size, dropped)
	if err != nil {
		return ChunkPayload{}, err
	}
	p.States = states
	return p, nil
}

// EncodeChunks кодирует пакет чанков: count i32, затем содержимое каждого
func EncodeChunks(chunks []*world.Chunk) []byte {
	w := protocol.NewWriter()
	w.WriteInt(len(chunks))
	for _, c := range chunks {
		writeChunk(w, c)
	}
	return w.Bytes()
}

// DecodeChunks разбирает пакет чанков размера size.
// Вторым значением возвращается количество отброшенных записей состояний.
func DecodeChunks(data []byte, size vec.Vec3, catalog *block.Catalog) ([]ChunkPayload, int, error) {
	r := protocol.NewReader(data)
	n := r.Count(chunkPayloadMinLen)
	out := make([]ChunkPayload, 0, n)
	dropped := 0
	for i := 0; i < n; i++ {
		p, err := readChunk(r, size, catalog, &dropped)
		if err != nil {
			return nil, dropped, err
		}
		out = append(out, p)
	}
	if err := r.Err(); err != nil {
		return nil, dropped, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, dropped, nil
}

// EncodeBlockDiff кодирует изменения блоков
func EncodeBlockDiff(updates []world.BlockUpdate) []byte {
	w := protocol.NewWriter()
	w.WriteInt(len(updates))
	for _, u := range updates {
		w.WriteVec3(u.Pos)
		w.WriteU8(uint8(u.ID))
		w.WriteInt(u.Direction)
	}
	return w.Bytes()
}

// DecodeBlockDiff разбирает изменения блоков
func DecodeBlockDiff(data []byte) ([]world.BlockUpdate, error) {
	r := protocol.NewReader(data)
	n := r.Count(blockUpdateSize)
	out := make([]world.BlockUpdate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, world.BlockUpdate{
			Pos:       r.ReadVec3(),
			ID:        block.BlockID(r.ReadU8()),
			Direction: r.ReadInt(),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: изменения блоков: %v", ErrMalformed, err)
	}
	return out, nil
}

// EncodeStateDiffs кодирует изменённые состояния по чанкам:
// count i32, затем origin и поток записей каждого чанка
func EncodeStateDiffs(diffs []world.StateDiff) []byte {
	w := protocol.NewWriter()
	w.WriteInt(len(diffs))
	for _, d := range diffs {
		w.WriteVec3(d.Origin)
		writeStateEntries(w, d.Entries)
	}
	return w.Bytes()
}

// DecodeStateDiffs разбирает изменённые состояния; как и DecodeChunks,
// возвращает количество отброшенных записей
func DecodeStateDiffs(data []byte, size vec.Vec3, catalog *block.Catalog) ([]world.StateDiff, int, error) {
	r := protocol.NewReader(data)
	n := r.Count(12 + 4)
	out := make([]world.StateDiff, 0, n)
	dropped := 0
	for i := 0; i < n; i++ {
		d := world.StateDiff{Origin: r.ReadVec3()}
		entries, err := readStateEntries(r, catalog, size, &dropped)
		if err != nil {
			return nil, dropped, err
		}
		d.Entries = entries
		out = append(out, d)
	}
	if err := r.Err(); err != nil {
		return nil, dropped, fmt.Errorf("%w: изменения состояний: %v", ErrMalformed, err)
	}
	return out, dropped, nil
}

// EncodeUnload кодирует список выгружаемых чанков
func EncodeUnload(origins []vec.Vec3) []byte {
	w := protocol.NewWriter()
	w.WriteInt(len(origins))
	for _, o := range origins {
		w.WriteVec3(o)
	}
	return w.Bytes()
}

// DecodeUnload разбирает список выгружаемых чанков
func DecodeUnload(data []byte) ([]vec.Vec3, error) {
	r := protocol.NewReader(data)
	n := r.Count(12)
	out := make([]vec.Vec3, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.ReadVec3())
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: выгрузка: %v", ErrMalformed, err)
	}
	return out, nil
}
