package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/world"
)

const (
	persistMagic   = "VXWF"
	persistVersion = 1
	// maxPersistFile предел размера файла сохранения до распаковки
	maxPersistFile = 512 << 20
)

// ExportWorld пишет загруженные чанки мира в один файл сохранения:
// магия, версия и сжатое тело (заголовок, таблица блоков, записи чанков).
func ExportWorld(w *world.World, dst io.Writer, comp protocol.Compressor) (int, error) {
	chunks := w.Chunks().All()

	body := protocol.NewWriter()
	writeHeader(body, HeaderFromSettings(w.Settings()))
	writeNames(body, catalogNames(w.Catalog()))

	records := make([]ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		if c.Generated() && !c.Destroyed() {
			records = append(records, RecordFromChunk(c))
		}
	}
	body.WriteInt(len(records))
	for _, rec := range records {
		writeRecord(body, rec)
	}

	packed, err := comp.Compress(body.Bytes())
	if err != nil {
		return 0, fmt.Errorf("сжатие сохранения: %w", err)
	}

	out := protocol.NewWriter()
	out.WriteRaw([]byte(persistMagic))
	out.WriteU8(persistVersion)
	out.WriteRaw(packed)
	if _, err := dst.Write(out.Bytes()); err != nil {
		return 0, fmt.Errorf("запись сохранения: %w", err)
	}
	return len(records), nil
}

// ImportWorld читает файл сохранения и добавляет чанки в мир.
// ID блоков пересчитываются по таблице имён; неизвестные блоки становятся воздухом.
func ImportWorld(w *world.World, src io.Reader, comp protocol.Compressor) (int, error) {
	data, err := io.ReadAll(io.LimitReader(src, maxPersistFile+1))
	if err != nil {
		return 0, fmt.Errorf("чтение сохранения: %w", err)
	}
	if len(data) > maxPersistFile {
		return 0, fmt.Errorf("%w: файл больше %d байт", ErrCorruptRecord, maxPersistFile)
	}
	if len(data) < len(persistMagic)+1 || !bytes.Equal(data[:len(persistMagic)], []byte(persistMagic)) {
		return 0, fmt.Errorf("%w: не файл сохранения мира", ErrCorruptRecord)
	}
	if v := data[len(persistMagic)]; v != persistVersion {
		return 0, fmt.Errorf("%w: версия %d не поддерживается", ErrCorruptRecord, v)
	}

	raw, err := comp.Decompress(data[len(persistMagic)+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	r := protocol.NewReader(raw)
	h := readHeader(r)
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("%w: заголовок: %v", ErrCorruptRecord, err)
	}
	if err := h.Check(w.Settings()); err != nil {
		return 0, err
	}
	names, err := readNames(r)
	if err != nil {
		return 0, err
	}
	remap, missing := buildRemap(names, w.Catalog())
	if len(missing) > 0 {
		logging.Warn("Блоки %v отсутствуют в каталоге и будут заменены воздухом", missing)
	}

	d := recordDecoder{catalog: w.Catalog(), size: w.Settings().ChunkSize, remap: remap}
	n := r.Count(chunkRecordMinSize)
	imported := 0
	for i := 0; i < n; i++ {
		rec, err := d.read(r)
		if err != nil {
			return imported, fmt.Errorf("запись чанка %d: %w", i, err)
		}
		if _, err := w.AddChunk(rec.Origin, rec.Apply); err != nil {
			logging.Warn("Чанк %v из сохранения пропущен: %v", rec.Origin, err)
			continue
		}
		imported++
	}
	if err := r.Err(); err != nil {
		return imported, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if d.dropped > 0 {
		logging.Warn("При импорте отброшено записей: %d", d.dropped)
	}
	return imported, nil
}

// chunkRecordMinSize начало, флаг и два пустых счётчика
const chunkRecordMinSize = 12 + 1 + 4 + 4

// ExportFile сохраняет мир в файл атомарной заменой
func ExportFile(w *world.World, path string, comp protocol.Compressor) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("создание временного файла: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := ExportWorld(w, tmp, comp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("закрытие %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("замена %s: %w", path, err)
	}
	logging.Info("Мир сохранён в %s: %d чанков", path, n)
	return n, nil
}

// ImportFile загружает мир из файла сохранения
func ImportFile(w *world.World, path string, comp protocol.Compressor) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("открытие %s: %w", path, err)
	}
	defer f.Close()

	n, err := ImportWorld(w, f, comp)
	if err != nil {
		return n, fmt.Errorf("импорт %s: %w", path, err)
	}
	logging.Info("Мир загружен из %s: %d чанков", path, n)
	return n, nil
}
