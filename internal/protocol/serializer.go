package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/annel0/voxel-engine/internal/vec"
)

// ErrShortBuffer возвращается, когда полезная нагрузка закончилась раньше ожидаемого
var ErrShortBuffer = errors.New("protocol: неожиданный конец данных")

// MaxStringLength ограничивает длину строк в заголовках
const MaxStringLength = math.MaxUint16

// Writer последовательно пишет поля в little-endian формате
type Writer struct {
	buf bytes.Buffer
	tmp [8]byte
}

// NewWriter создает новый писатель
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteU8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *Writer) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(w.tmp[:2], v)
	w.buf.Write(w.tmp[:2])
}

func (w *Writer) WriteI32(v int32) {
	binary.LittleEndian.PutUint32(w.tmp[:4], uint32(v))
	w.buf.Write(w.tmp[:4])
}

func (w *Writer) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(w.tmp[:4], v)
	w.buf.Write(w.tmp[:4])
}

func (w *Writer) WriteI64(v int64) {
	binary.LittleEndian.PutUint64(w.tmp[:8], uint64(v))
	w.buf.Write(w.tmp[:8])
}

// WriteInt пишет int как i32
func (w *Writer) WriteInt(v int) {
	w.WriteI32(int32(v))
}

func (w *Writer) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

// WriteVec3 пишет позицию как три i32
func (w *Writer) WriteVec3(v vec.Vec3) {
	w.WriteInt(v.X)
	w.WriteInt(v.Y)
	w.WriteInt(v.Z)
}

// WriteString пишет строку с u16-префиксом длины; длинные строки обрезаются
func (w *Writer) WriteString(s string) {
	if len(s) > MaxStringLength {
		s = s[:MaxStringLength]
	}
	w.WriteU16(uint16(len(s)))
	w.buf.WriteString(s)
}

// WriteRaw пишет байты без префикса длины
func (w *Writer) WriteRaw(b []byte) {
	w.buf.Write(b)
}

// WriteBlob пишет байты с u32-префиксом длины
func (w *Writer) WriteBlob(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf.Write(b)
}

// Bytes возвращает накопленные данные
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len возвращает количество записанных байт
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reader читает поля, записанные Writer. Первая ошибка запоминается,
// последующие чтения возвращают нулевые значения.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader создает читателя поверх буфера
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err возвращает первую ошибку чтения
func (r *Reader) Err() error {
	return r.err
}

// Remaining возвращает количество непрочитанных байт
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Offset возвращает текущую позицию чтения
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: нужно %d байт на смещении %d, доступно %d", ErrShortBuffer, n, r.off, r.Remaining())
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadU8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadBool() bool {
	return r.ReadU8() != 0
}

func (r *Reader) ReadU16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadU32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadI32() int32 {
	return int32(r.ReadU32())
}

func (r *Reader) ReadI64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// ReadInt читает i32 как int
func (r *Reader) ReadInt() int {
	return int(r.ReadI32())
}

func (r *Reader) ReadF32() float32 {
	return math.Float32frombits(r.ReadU32())
}

func (r *Reader) ReadVec3() vec.Vec3 {
	x := r.ReadInt()
	y := r.ReadInt()
	z := r.ReadInt()
	return vec.Vec3{X: x, Y: y, Z: z}
}

func (r *Reader) ReadString() string {
	n := int(r.ReadU16())
	return string(r.take(n))
}

// ReadRaw читает n байт; возвращённый срез - копия
func (r *Reader) ReadRaw(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// ReadBlob читает байты с u32-префиксом длины
func (r *Reader) ReadBlob() []byte {
	n := r.ReadU32()
	if r.err != nil {
		return nil
	}
	if int64(n) > int64(r.Remaining()) {
		r.err = fmt.Errorf("%w: blob длиной %d, доступно %d", ErrShortBuffer, n, r.Remaining())
		return nil
	}
	return r.ReadRaw(int(n))
}

// Count читает счетчик записей и проверяет его на правдоподобность:
// каждая запись занимает хотя бы minEntrySize байт.
func (r *Reader) Count(minEntrySize int) int {
	n := r.ReadInt()
	if r.err != nil {
		return 0
	}
	if n < 0 || (minEntrySize > 0 && n > r.Remaining()/minEntrySize) {
		r.err = fmt.Errorf("protocol: недопустимое количество записей %d", n)
		return 0
	}
	return n
}
