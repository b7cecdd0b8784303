package block

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-engine/internal/protocol"
)

// StateKind тег варианта состояния блока
type StateKind uint8

const (
	StateBase StateKind = iota
	StateLiquid
	StateDirectional
)

// DefaultLiquidDepth глубина новой жидкости
const DefaultLiquidDepth uint8 = 8

// ErrMalformedState ошибка разбора состояния
var ErrMalformedState = errors.New("повреждённое состояние блока")

// State вспомогательные данные конкретного вокселя
type State interface {
	Kind() StateKind
	Health() uint8
	SetHealth(h uint8)
	// Copy возвращает независимую копию.
	Copy() State
	// OnRemoved вызывается, когда состояние покидает хранилище.
	OnRemoved()
	Serialize(w *protocol.Writer)
	Deserialize(r *protocol.Reader) error
}

// BaseState общее состояние любого блока: прочность
type BaseState struct {
	HealthValue uint8
}

func (s *BaseState) Kind() StateKind   { return StateBase }
func (s *BaseState) Health() uint8     { return s.HealthValue }
func (s *BaseState) SetHealth(h uint8) { s.HealthValue = h }
func (s *BaseState) OnRemoved()        {}

func (s *BaseState) Copy() State {
	c := *s
	return &c
}

func (s *BaseState) Serialize(w *protocol.Writer) {
	w.WriteU8(s.HealthValue)
}

func (s *BaseState) Deserialize(r *protocol.Reader) error {
	s.HealthValue = r.ReadU8()
	return r.Err()
}

// LiquidState глубина жидкости; 0 - жидкость больше не растекается
type LiquidState struct {
	BaseState
	Depth uint8
}

// NewLiquidState создаёт состояние с глубиной по умолчанию
func NewLiquidState() *LiquidState {
	return &LiquidState{Depth: DefaultLiquidDepth}
}

func (s *LiquidState) Kind() StateKind { return StateLiquid }

func (s *LiquidState) Copy() State {
	c := *s
	return &c
}

func (s *LiquidState) Serialize(w *protocol.Writer) {
	s.BaseState.Serialize(w)
	w.WriteU8(s.Depth)
}

func (s *LiquidState) Deserialize(r *protocol.Reader) error {
	if err := s.BaseState.Deserialize(r); err != nil {
		return err
	}
	s.Depth = r.ReadU8()
	return r.Err()
}

// DirectionalState ориентация блока, заданная при установке
type DirectionalState struct {
	BaseState
	Direction Face
}

func (s *DirectionalState) Kind() StateKind { return StateDirectional }

func (s *DirectionalState) Copy() State {
	c := *s
	return &c
}

func (s *DirectionalState) Serialize(w *protocol.Writer) {
	s.BaseState.Serialize(w)
	w.WriteU8(uint8(s.Direction))
}

func (s *DirectionalState) Deserialize(r *protocol.Reader) error {
	if err := s.BaseState.Deserialize(r); err != nil {
		return err
	}
	d := Face(r.ReadU8())
	if err := r.Err(); err != nil {
		return err
	}
	if d >= FaceCount {
		return fmt.Errorf("%w: направление %d", ErrMalformedState, d)
	}
	s.Direction = d
	return nil
}
