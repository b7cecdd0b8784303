package protocol

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// maxDecodedSize ограничивает размер распакованного пакета
const maxDecodedSize = 256 << 20

// ErrCorrupt возвращается, если сжатые данные не удалось распаковать
var ErrCorrupt = errors.New("protocol: повреждённые сжатые данные")

// Compressor сжимает и распаковывает пакеты целиком.
// Все многозаписные пакеты и файлы сохранения сжимаются одним блоком.
type Compressor interface {
	Compress(raw []byte) ([]byte, error)
	Decompress(payload []byte) ([]byte, error)
}

// zstdCompressor сжимает пакет одним zstd-фреймом.
// EncodeAll/DecodeAll безопасны для одновременного вызова.
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompressor создаёт компрессор zstd
func NewZstdCompressor() (Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

// MustZstdCompressor как NewZstdCompressor; паникует при ошибке
func MustZstdCompressor() Compressor {
	c, err := NewZstdCompressor()
	if err != nil {
		panic(err)
	}
	return c
}

func (z *zstdCompressor) Compress(raw []byte) ([]byte, error) {
	return z.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (z *zstdCompressor) Decompress(payload []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

// passthroughCompressor передаёт данные без изменений
type passthroughCompressor struct{}

// NewPassthroughCompressor компрессор без сжатия, для отладки трафика
func NewPassthroughCompressor() Compressor { return passthroughCompressor{} }

func (passthroughCompressor) Compress(raw []byte) ([]byte, error) {
	return append([]byte(nil), raw...), nil
}

func (passthroughCompressor) Decompress(payload []byte) ([]byte, error) {
	return append([]byte(nil), payload...), nil
}
