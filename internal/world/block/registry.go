package block

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/voxel-engine/internal/protocol"
)

// BlockID представляет идентификатор блока
type BlockID uint8

// AirID пустой блок: полностью проходимый и прозрачный
const AirID BlockID = 0

// MaxBlockTypes максимальное количество типов блоков
const MaxBlockTypes = 256

var (
	ErrCatalogFrozen = errors.New("каталог блоков заморожен")
	ErrCatalogFull   = errors.New("каталог блоков заполнен")
	ErrDuplicateName = errors.New("имя блока уже зарегистрировано")
	ErrUnknownBlock  = errors.New("неизвестный блок")
)

// BlockType flyweight-описание блока, доступное по ID
type BlockType struct {
	Properties
	ID       BlockID
	Name     string
	Aliases  []string
	Behavior BlockBehavior
}

// IsAir сообщает, является ли тип пустым блоком
func (t *BlockType) IsAir() bool {
	return t.ID == AirID
}

// ShouldCullFace делегирует решение поведению блока
func (t *BlockType) ShouldCullFace(face Face, neighbour *BlockType) bool {
	return t.Behavior.ShouldCullFace(face, t, neighbour)
}

// TextureID возвращает текстуру грани
func (t *BlockType) TextureID(face Face) uint16 {
	if face >= FaceCount {
		return 0
	}
	return t.Textures[face]
}

// Catalog неизменяемая после заморозки таблица типов блоков.
// Регистрация выполняется из одного потока при настройке мира;
// после Freeze каталог безопасно читать из любых горутин.
type Catalog struct {
	types  []*BlockType
	byName map[string]BlockID
	frozen bool
}

// NewCatalog создаёт каталог с зарегистрированным воздухом (ID 0)
func NewCatalog() *Catalog {
	c := &Catalog{
		types:  make([]*BlockType, 0, 16),
		byName: make(map[string]BlockID),
	}
	if _, err := c.Register(airBehavior{}); err != nil {
		panic(err)
	}
	return c
}

// Register добавляет поведение и возвращает назначенный ID
func (c *Catalog) Register(behavior BlockBehavior) (BlockID, error) {
	if c.frozen {
		return 0, ErrCatalogFrozen
	}
	if len(c.types) >= MaxBlockTypes {
		return 0, ErrCatalogFull
	}

	name := strings.ToLower(behavior.Name())
	if _, exists := c.byName[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	id := BlockID(len(c.types))
	t := &BlockType{
		Properties: behavior.Properties(),
		ID:         id,
		Name:       behavior.Name(),
		Aliases:    behavior.Aliases(),
		Behavior:   behavior,
	}
	clampProperties(&t.Properties)

	c.types = append(c.types, t)
	c.byName[name] = id
	for _, alias := range t.Aliases {
		alias = strings.ToLower(alias)
		if _, exists := c.byName[alias]; !exists {
			c.byName[alias] = id
		}
	}
	return id, nil
}

// MustRegister как Register, но паникует при ошибке
func (c *Catalog) MustRegister(behavior BlockBehavior) BlockID {
	id, err := c.Register(behavior)
	if err != nil {
		panic(err)
	}
	return id
}

func clampProperties(p *Properties) {
	for i := range p.LightEmission {
		if p.LightEmission[i] > 15 {
			p.LightEmission[i] = 15
		}
	}
}

// Freeze запрещает дальнейшую регистрацию
func (c *Catalog) Freeze() {
	c.frozen = true
}

// Frozen сообщает, заморожен ли каталог
func (c *Catalog) Frozen() bool {
	return c.frozen
}

// Get возвращает тип по ID; неизвестные ID отображаются на воздух
func (c *Catalog) Get(id BlockID) *BlockType {
	if int(id) < len(c.types) {
		return c.types[id]
	}
	return c.types[AirID]
}

// Contains проверяет, зарегистрирован ли ID
func (c *Catalog) Contains(id BlockID) bool {
	return int(id) < len(c.types)
}

// Lookup ищет ID по имени или псевдониму (без учёта регистра)
func (c *Catalog) Lookup(name string) (BlockID, bool) {
	id, ok := c.byName[strings.ToLower(name)]
	return id, ok
}

// MustLookup как Lookup, но паникует, если блок не найден
func (c *Catalog) MustLookup(name string) BlockID {
	id, ok := c.Lookup(name)
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrUnknownBlock, name))
	}
	return id
}

// Len возвращает количество зарегистрированных типов
func (c *Catalog) Len() int {
	return len(c.types)
}

// Types возвращает все типы в порядке ID
func (c *Catalog) Types() []*BlockType {
	out := make([]*BlockType, len(c.types))
	copy(out, c.types)
	return out
}

// NewState создаёт состояние для блока id
func (c *Catalog) NewState(id BlockID) State {
	return c.Get(id).Behavior.NewState()
}

// EncodeState сериализует состояние в отдельный буфер
func EncodeState(st State) []byte {
	w := protocol.NewWriter()
	st.Serialize(w)
	return w.Bytes()
}

// DecodeState создаёт состояние блока id и читает его из payload целиком
func (c *Catalog) DecodeState(id BlockID, payload []byte) (State, error) {
	st := c.NewState(id)
	if st == nil {
		return nil, fmt.Errorf("%w: блок %q не хранит состояние", ErrMalformedState, c.Get(id).Name)
	}
	r := protocol.NewReader(payload)
	if err := st.Deserialize(r); err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: лишние %d байт", ErrMalformedState, r.Remaining())
	}
	return st, nil
}
