package storage

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrCorruptRecord запись не удалось разобрать
	ErrCorruptRecord = errors.New("повреждённая запись хранилища")
	// ErrIncompatible данные записаны миром с другими размерами
	ErrIncompatible = errors.New("несовместимые параметры мира")
)

// Header размеры мира, с которыми записаны чанки
type Header struct {
	VoxelSize float32
	MaxSize   vec.Vec3
	ChunkSize vec.Vec3
}

// HeaderFromSettings берёт размеры из параметров мира
func HeaderFromSettings(s world.Settings) Header {
	return Header{VoxelSize: s.VoxelSize, MaxSize: s.MaxSize, ChunkSize: s.ChunkSize}
}

// Check сравнивает заголовок с параметрами мира
func (h Header) Check(s world.Settings) error {
	if h.ChunkSize != s.ChunkSize || h.MaxSize != s.MaxSize {
		return fmt.Errorf("%w: чанк %v, мир %v; ожидалось %v и %v",
			ErrIncompatible, h.ChunkSize, h.MaxSize, s.ChunkSize, s.MaxSize)
	}
	if h.VoxelSize != s.VoxelSize {
		return fmt.Errorf("%w: размер вокселя %v, ожидался %v", ErrIncompatible, h.VoxelSize, s.VoxelSize)
	}
	return nil
}

func writeHeader(w *protocol.Writer, h Header) {
	w.WriteF32(h.VoxelSize)
	w.WriteVec3(h.MaxSize)
	w.WriteVec3(h.ChunkSize)
}

func readHeader(r *protocol.Reader) Header {
	return Header{VoxelSize: r.ReadF32(), MaxSize: r.ReadVec3(), ChunkSize: r.ReadVec3()}
}

// catalogNames имена блоков по ID
func catalogNames(c *block.Catalog) []string {
	types := c.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names
}

func writeNames(w *protocol.Writer, names []string) {
	w.WriteInt(len(names))
	for _, n := range names {
		w.WriteString(n)
	}
}

func readNames(r *protocol.Reader) ([]string, error) {
	n := r.Count(2)
	if n > block.MaxBlockTypes {
		return nil, fmt.Errorf("%w: %d имён блоков", ErrCorruptRecord, n)
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, r.ReadString())
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: таблица блоков: %v", ErrCorruptRecord, err)
	}
	return names, nil
}

// buildRemap сопоставляет сохранённые ID текущему каталогу.
// Неизвестные имена заменяются воздухом и возвращаются в missing.
func buildRemap(names []string, c *block.Catalog) (remap []block.BlockID, missing []string) {
	remap = make([]block.BlockID, len(names))
	for i, name := range names {
		id, ok := c.Lookup(name)
		if !ok {
			missing = append(missing, name)
			id = block.AirID
		}
		remap[i] = id
	}
	return remap, missing
}

// identityRemap сопоставление для записей, сделанных текущим каталогом
func identityRemap(c *block.Catalog) []block.BlockID {
	remap := make([]block.BlockID, c.Len())
	for i := range remap {
		remap[i] = block.BlockID(i)
	}
	return remap
}

// EntityEntry сохранённая сущность чанка
type EntityEntry struct {
	Local    vec.Vec3
	Class    string
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Payload  []byte
}

// StoredState сохранённое состояние блока
type StoredState struct {
	Local vec.Vec3
	ID    block.BlockID
	State block.State
}

// ChunkRecord сохранённое содержимое чанка. Освещение не хранится:
// восстановленный чанк проходит начальное заполнение источников.
type ChunkRecord struct {
	Origin     vec.Vec3
	HasOnlyAir bool
	Blocks     []block.BlockID // nil, если чанк пуст
	States     []StoredState
	Entities   []EntityEntry
}

// RecordFromChunk снимает запись с чанка
func RecordFromChunk(c *world.Chunk) ChunkRecord {
	rec := ChunkRecord{Origin: c.Offset, HasOnlyAir: c.HasOnlyAir()}
	if !rec.HasOnlyAir {
		rec.Blocks = c.Snapshot()
	}
	for _, e := range c.StateEntries() {
		if e.State != nil {
			rec.States = append(rec.States, StoredState{Local: e.Local, ID: e.ID, State: e.State.Copy()})
		}
	}
	for _, e := range c.Entities() {
		rec.Entities = append(rec.Entities, EntityEntry{
			Local:    e.Local,
			Class:    e.Handle.Class(),
			Position: e.Handle.Position(),
			Rotation: e.Handle.Rotation(),
			Payload:  e.Handle.Payload(),
		})
	}
	return rec
}

// Apply заполняет чанк содержимым записи. Состояния, не совпадающие
// с блоком в своей позиции, пропускаются.
func (rec ChunkRecord) Apply(c *world.Chunk) error {
	blocks := rec.Blocks
	if blocks == nil {
		blocks = make([]block.BlockID, c.Size.Volume())
	}
	if err := c.LoadBlocks(blocks); err != nil {
		return err
	}

	entries := make([]world.StateEntry, 0, len(rec.States))
	for _, s := range rec.States {
		if c.BlockAt(s.Local) != s.ID {
			logging.Debug("Состояние %v в чанке %v не совпадает с блоком, пропущено", s.Local, rec.Origin)
			continue
		}
		entries = append(entries, world.StateEntry{Local: s.Local, ID: s.ID, State: s.State})
	}
	c.States().Load(entries)

	for _, e := range rec.Entities {
		c.SetEntity(e.Local, &world.StoredEntity{
			ClassName: e.Class,
			Pos:       e.Position,
			Rot:       e.Rotation,
			Data:      e.Payload,
		})
	}
	return nil
}

// Минимальные размеры записей для проверки счётчиков
const (
	storedStateMinSize = 12 + 1 + 4
	entityMinSize      = 12 + 2 + 12 + 16 + 4
)

func writeRecord(w *protocol.Writer, rec ChunkRecord) {
	w.WriteVec3(rec.Origin)
	w.WriteBool(rec.HasOnlyAir)
	if !rec.HasOnlyAir {
		raw := make([]byte, len(rec.Blocks))
		for i, id := range rec.Blocks {
			raw[i] = byte(id)
		}
		w.WriteRaw(raw)
	}

	w.WriteInt(len(rec.States))
	for _, s := range rec.States {
		w.WriteVec3(s.Local)
		w.WriteU8(uint8(s.ID))
		w.WriteBlob(block.EncodeState(s.State))
	}

	w.WriteInt(len(rec.Entities))
	for _, e := range rec.Entities {
		w.WriteVec3(e.Local)
		w.WriteString(e.Class)
		for _, v := range e.Position {
			w.WriteF32(v)
		}
		w.WriteF32(e.Rotation.W)
		for _, v := range e.Rotation.V {
			w.WriteF32(v)
		}
		w.WriteBlob(e.Payload)
	}
}

// recordDecoder разбирает записи с пересчётом сохранённых ID блоков
type recordDecoder struct {
	catalog *block.Catalog
	size    vec.Vec3
	remap   []block.BlockID
	dropped int
}

func (d *recordDecoder) mapID(raw uint8) (block.BlockID, error) {
	if int(raw) >= len(d.remap) {
		return block.AirID, fmt.Errorf("%w: ID блока %d вне таблицы из %d", ErrCorruptRecord, raw, len(d.remap))
	}
	return d.remap[raw], nil
}

func (d *recordDecoder) read(r *protocol.Reader) (ChunkRecord, error) {
	rec := ChunkRecord{Origin: r.ReadVec3(), HasOnlyAir: r.ReadBool()}
	if !rec.HasOnlyAir {
		raw := r.ReadRaw(d.size.Volume())
		if raw != nil {
			rec.Blocks = make([]block.BlockID, len(raw))
			for i, b := range raw {
				id, err := d.mapID(b)
				if err != nil {
					return ChunkRecord{}, err
				}
				rec.Blocks[i] = id
			}
		}
	}
	if err := r.Err(); err != nil {
		return ChunkRecord{}, fmt.Errorf("%w: блоки: %v", ErrCorruptRecord, err)
	}

	n := r.Count(storedStateMinSize)
	for i := 0; i < n; i++ {
		local := r.ReadVec3()
		rawID := r.ReadU8()
		payload := r.ReadBlob()
		if err := r.Err(); err != nil {
			return ChunkRecord{}, fmt.Errorf("%w: состояние %d: %v", ErrCorruptRecord, i, err)
		}
		id, err := d.mapID(rawID)
		if err != nil {
			return ChunkRecord{}, err
		}
		if !local.Within(d.size) {
			logging.Warn("Состояние вне чанка %v в записи %v отброшено", local, rec.Origin)
			d.dropped++
			continue
		}
		st, err := d.catalog.DecodeState(id, payload)
		if err != nil {
			logging.Warn("Состояние блока %d в %v отброшено: %v\n%s", id, local, err, logging.HexDump(payload))
			d.dropped++
			continue
		}
		rec.States = append(rec.States, StoredState{Local: local, ID: id, State: st})
	}

	n = r.Count(entityMinSize)
	for i := 0; i < n; i++ {
		e := EntityEntry{Local: r.ReadVec3(), Class: r.ReadString()}
		for j := range e.Position {
			e.Position[j] = r.ReadF32()
		}
		e.Rotation.W = r.ReadF32()
		for j := range e.Rotation.V {
			e.Rotation.V[j] = r.ReadF32()
		}
		e.Payload = r.ReadBlob()
		if err := r.Err(); err != nil {
			return ChunkRecord{}, fmt.Errorf("%w: сущность %d: %v", ErrCorruptRecord, i, err)
		}
		if !e.Local.Within(d.size) {
			logging.Warn("Сущность %q вне чанка %v отброшена", e.Class, rec.Origin)
			d.dropped++
			continue
		}
		rec.Entities = append(rec.Entities, e)
	}

	if err := r.Err(); err != nil {
		return ChunkRecord{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}
