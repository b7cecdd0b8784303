package world

import (
	"sync"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// LightChannel канал освещения
type LightChannel uint8

const (
	ChannelRed LightChannel = iota
	ChannelGreen
	ChannelBlue
	ChannelSun
)

const (
	// LightChannels количество каналов освещения
	LightChannels = 4
	// MaxLight максимальное значение канала
	MaxLight = 15
	// BytesPerVoxel размер записи освещения одного вокселя
	BytesPerVoxel = 4

	dirtyMarker = 0x40
	damageMask  = 0x7f
)

// TorchChannels каналы цветного (не солнечного) света
var TorchChannels = [3]LightChannel{ChannelRed, ChannelGreen, ChannelBlue}

func (c LightChannel) String() string {
	switch c {
	case ChannelRed:
		return "red"
	case ChannelGreen:
		return "green"
	case ChannelBlue:
		return "blue"
	case ChannelSun:
		return "sun"
	default:
		return "unknown"
	}
}

// byteAndShift возвращает номер байта записи и сдвиг полубайта канала
func (c LightChannel) byteAndShift() (int, uint) {
	switch c {
	case ChannelRed:
		return 0, 0
	case ChannelGreen:
		return 0, 4
	case ChannelBlue:
		return 1, 0
	default:
		return 1, 4
	}
}

type lightRemoveNode struct {
	pos   vec.Vec3
	value uint8
}

// LightEnv даёт полю доступ к окрестности за пределами чанка.
// Позиции мировые.
type LightEnv interface {
	// BlockTypeAt возвращает тип блока; вне мира - воздух.
	BlockTypeAt(pos vec.Vec3) *block.BlockType
	// LightFieldAt возвращает поле чанка, содержащего позицию, или nil.
	LightFieldAt(pos vec.Vec3) *LightField
}

// LightField упакованное освещение чанка: 4 байта на воксель
// (R | G<<4, B | Sun<<4, повреждение, маркер изменения) и очереди
// добавления/удаления для каждого канала. Очереди хранят мировые позиции.
type LightField struct {
	mu        sync.Mutex
	origin    vec.Vec3
	size      vec.Vec3
	data      []byte
	published []byte
	dirty     bool
	loaded    bool // Буфер получен целиком, начальные источники не нужны

	addQueue    [LightChannels][]vec.Vec3
	removeQueue [LightChannels][]lightRemoveNode
}

// NewLightField создаёт пустое поле для чанка с началом origin
func NewLightField(origin, size vec.Vec3) *LightField {
	n := size.Volume() * BytesPerVoxel
	return &LightField{
		origin:    origin,
		size:      size,
		data:      make([]byte, n),
		published: make([]byte, n),
	}
}

// Origin возвращает начало чанка
func (lf *LightField) Origin() vec.Vec3 {
	return lf.origin
}

func (lf *LightField) index(local vec.Vec3, component int) int {
	if !local.Within(lf.size) {
		return -1
	}
	return (local.X*lf.size.Y*lf.size.Z+local.Y*lf.size.Z+local.Z)*BytesPerVoxel + component
}

func (lf *LightField) contains(pos vec.Vec3) bool {
	return pos.Sub(lf.origin).Within(lf.size)
}

// Get возвращает значение канала в локальной позиции (0 вне чанка)
func (lf *LightField) Get(ch LightChannel, local vec.Vec3) uint8 {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.getLocked(ch, local)
}

func (lf *LightField) getLocked(ch LightChannel, local vec.Vec3) uint8 {
	b, shift := ch.byteAndShift()
	idx := lf.index(local, b)
	if idx < 0 {
		return 0
	}
	return (lf.data[idx] >> shift) & 0xF
}

// Set записывает значение канала; возвращает true, если оно изменилось
func (lf *LightField) Set(ch LightChannel, local vec.Vec3, value uint8) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.setLocked(ch, local, value)
}

func (lf *LightField) setLocked(ch LightChannel, local vec.Vec3, value uint8) bool {
	b, shift := ch.byteAndShift()
	idx := lf.index(local, b)
	if idx < 0 {
		return false
	}
	if value > MaxLight {
		value = MaxLight
	}
	if (lf.data[idx]>>shift)&0xF == value {
		return false
	}

	lf.data[idx] = lf.data[idx]&^(0xF<<shift) | value<<shift
	lf.data[idx-b+3] |= dirtyMarker
	lf.dirty = true
	return true
}

// Add записывает значение и ставит позицию в очередь распространения
func (lf *LightField) Add(ch LightChannel, local vec.Vec3, value uint8) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.setLocked(ch, local, value) {
		lf.addQueue[ch] = append(lf.addQueue[ch], lf.origin.Add(local))
	}
}

// Remove ставит текущее значение в очередь удаления и обнуляет канал
func (lf *LightField) Remove(ch LightChannel, local vec.Vec3) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.index(local, 0) < 0 {
		return
	}
	lf.removeQueue[ch] = append(lf.removeQueue[ch], lightRemoveNode{
		pos:   lf.origin.Add(local),
		value: lf.getLocked(ch, local),
	})
	lf.setLocked(ch, local, 0)
}

// EnqueueAdd ставит мировую позицию в очередь добавления без изменения значения
func (lf *LightField) EnqueueAdd(ch LightChannel, pos vec.Vec3) {
	lf.mu.Lock()
	lf.addQueue[ch] = append(lf.addQueue[ch], pos)
	lf.mu.Unlock()
}

// Damage возвращает байт повреждения вокселя
func (lf *LightField) Damage(local vec.Vec3) uint8 {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	idx := lf.index(local, 2)
	if idx < 0 {
		return 0
	}
	return lf.data[idx] & damageMask
}

// SetDamage записывает повреждение вокселя
func (lf *LightField) SetDamage(local vec.Vec3, damage uint8) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	idx := lf.index(local, 2)
	if idx < 0 {
		return false
	}
	damage &= damageMask
	if lf.data[idx] == damage {
		return false
	}
	lf.data[idx] = damage
	lf.data[idx+1] |= dirtyMarker
	lf.dirty = true
	return true
}

// Pending сообщает, остались ли необработанные узлы в очередях
func (lf *LightField) Pending() bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	for ch := 0; ch < LightChannels; ch++ {
		if len(lf.addQueue[ch]) > 0 || len(lf.removeQueue[ch]) > 0 {
			return true
		}
	}
	return false
}

func (lf *LightField) popRemove(ch LightChannel) (lightRemoveNode, bool) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	q := lf.removeQueue[ch]
	if len(q) == 0 {
		lf.removeQueue[ch] = q[:0]
		return lightRemoveNode{}, false
	}
	node := q[0]
	lf.removeQueue[ch] = q[1:]
	return node, true
}

func (lf *LightField) popAdd(ch LightChannel) (vec.Vec3, bool) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	q := lf.addQueue[ch]
	if len(q) == 0 {
		lf.addQueue[ch] = q[:0]
		return vec.Vec3{}, false
	}
	pos := q[0]
	lf.addQueue[ch] = q[1:]
	return pos, true
}

// propagation состояние одного прохода по каналу
type propagation struct {
	lf      *LightField
	env     LightEnv
	ch      LightChannel
	touched map[*LightField]struct{}
}

func (p *propagation) fieldFor(pos vec.Vec3) *LightField {
	if p.lf.contains(pos) {
		return p.lf
	}
	if p.env == nil {
		return nil
	}
	return p.env.LightFieldAt(pos)
}

func (p *propagation) blockAt(pos vec.Vec3) *block.BlockType {
	return p.env.BlockTypeAt(pos)
}

func (p *propagation) valueAt(pos vec.Vec3) uint8 {
	f := p.fieldFor(pos)
	if f == nil {
		return 0
	}
	return f.Get(p.ch, pos.Sub(f.origin))
}

// removeAt обнуляет значение и ставит узел удаления в очередь поля
// владельца позиции
func (p *propagation) removeAt(pos vec.Vec3, value uint8) {
	f := p.fieldFor(pos)
	if f == nil {
		return
	}
	local := pos.Sub(f.origin)

	f.mu.Lock()
	f.setLocked(p.ch, local, 0)
	f.removeQueue[p.ch] = append(f.removeQueue[p.ch], lightRemoveNode{pos: pos, value: value})
	f.mu.Unlock()

	if f != p.lf {
		p.touched[f] = struct{}{}
	}
}

// readdAt ставит позицию в очередь добавления поля её владельца
func (p *propagation) readdAt(pos vec.Vec3) {
	f := p.fieldFor(pos)
	if f == nil {
		return
	}
	f.EnqueueAdd(p.ch, pos)
	if f != p.lf {
		p.touched[f] = struct{}{}
	}
}

// addAt записывает значение в поле владельца позиции; узел попадает
// в очередь того поля, которому принадлежит позиция.
func (p *propagation) addAt(pos vec.Vec3, value uint8) {
	f := p.fieldFor(pos)
	if f == nil {
		return
	}
	local := pos.Sub(f.origin)

	f.mu.Lock()
	changed := f.setLocked(p.ch, local, value)
	if changed {
		f.addQueue[p.ch] = append(f.addQueue[p.ch], pos)
	}
	f.mu.Unlock()

	if changed && f != p.lf {
		p.touched[f] = struct{}{}
	}
}

// Propagate доводит распространение канала до покоя: сначала фаза удаления,
// затем фаза добавления. Поля соседних чанков, получившие изменения или
// новые узлы, добавляются в touched.
func (lf *LightField) Propagate(ch LightChannel, env LightEnv, touched map[*LightField]struct{}) {
	p := &propagation{lf: lf, env: env, ch: ch, touched: touched}
	if ch == ChannelSun {
		p.removeSun()
		p.addSun()
		return
	}
	p.removeTorch()
	p.addTorch()
}

// PropagateAll распространяет все четыре канала
func (lf *LightField) PropagateAll(env LightEnv) map[*LightField]struct{} {
	touched := make(map[*LightField]struct{})
	for _, ch := range TorchChannels {
		lf.Propagate(ch, env, touched)
	}
	lf.Propagate(ChannelSun, env, touched)
	return touched
}

func (p *propagation) removeSun() {
	for {
		node, ok := p.lf.popRemove(ChannelSun)
		if !ok {
			return
		}

		for f := block.Face(0); f < block.FaceCount; f++ {
			nb := f.Neighbour(node.pos)
			light := p.valueAt(nb)

			if (light == MaxLight && f == block.FaceBottom) || (light != 0 && light < node.value) {
				p.removeAt(nb, light)
			} else if light >= node.value {
				p.readdAt(nb)
			}
		}
	}
}

func (p *propagation) addSun() {
	for {
		node, ok := p.lf.popAdd(ChannelSun)
		if !ok {
			return
		}

		if !p.blockAt(node).Translucent {
			continue
		}
		light := p.valueAt(node)

		for f := block.Face(0); f < block.FaceCount; f++ {
			nb := f.Neighbour(node)
			nbLight := p.valueAt(nb)
			below := f == block.FaceBottom

			if int(nbLight)+2 > int(light) && !(light == MaxLight && nbLight != MaxLight && below) {
				continue
			}

			nbType := p.blockAt(nb)
			if !nbType.Translucent {
				continue
			}

			switch {
			case light == MaxLight && below && !nbType.AttenuatesSun:
				p.addAt(nb, MaxLight)
			case light == MaxLight && f == block.FaceTop:
				continue
			default:
				p.addAt(nb, light-1)
			}
		}
	}
}

func (p *propagation) removeTorch() {
	for {
		node, ok := p.lf.popRemove(p.ch)
		if !ok {
			return
		}

		for f := block.Face(0); f < block.FaceCount; f++ {
			nb := f.Neighbour(node.pos)
			light := p.valueAt(nb)

			if light != 0 && light < node.value {
				p.removeAt(nb, node.value)
			} else if light >= node.value {
				p.readdAt(nb)
			}
		}
	}
}

func (p *propagation) addTorch() {
	for {
		node, ok := p.lf.popAdd(p.ch)
		if !ok {
			return
		}

		light := p.valueAt(node)

		for f := block.Face(0); f < block.FaceCount; f++ {
			nb := f.Neighbour(node)
			if int(p.valueAt(nb))+2 > int(light) {
				continue
			}

			nbType := p.blockAt(nb)
			if !nbType.Translucent {
				continue
			}
			p.addAt(nb, uint8(float32(light-1)*nbType.LightFilter[p.ch]))
		}
	}
}

// UpdateTexture копирует рабочий буфер в опубликованный, если были изменения.
// Возвращает true, если копирование произошло.
func (lf *LightField) UpdateTexture() bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if !lf.dirty {
		return false
	}
	copy(lf.published, lf.data)
	lf.dirty = false
	return true
}

// Published возвращает значение канала из опубликованного буфера
func (lf *LightField) Published(ch LightChannel, local vec.Vec3) uint8 {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	b, shift := ch.byteAndShift()
	idx := lf.index(local, b)
	if idx < 0 {
		return 0
	}
	return (lf.published[idx] >> shift) & 0xF
}

// PublishedData возвращает копию опубликованного буфера для загрузки в бэкенд
func (lf *LightField) PublishedData() []byte {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return append([]byte(nil), lf.published...)
}

// Serialize возвращает копию рабочего буфера
func (lf *LightField) Serialize() []byte {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return append([]byte(nil), lf.data...)
}

// Deserialize заменяет рабочий буфер; длина должна совпадать
func (lf *LightField) Deserialize(data []byte) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if len(data) != len(lf.data) {
		return false
	}
	copy(lf.data, data)
	lf.dirty = true
	lf.loaded = true
	return true
}

// Loaded сообщает, был ли буфер загружен через Deserialize
func (lf *LightField) Loaded() bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.loaded
}
