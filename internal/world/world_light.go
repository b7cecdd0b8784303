package world

import (
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// seedLight ставит в очередь начальные источники света нового чанка:
// солнце на верхней границе мира, свет граничных вокселей соседей и излучатели.
func (w *World) seedLight(c *Chunk) {
	blocks := c.Snapshot()
	size := c.Size

	if c.Offset.Z+size.Z >= w.settings.MaxSize.Z {
		top := size.Z - 1
		for x := 0; x < size.X; x++ {
			for y := 0; y < size.Y; y++ {
				local := vec.New(x, y, top)
				if w.catalog.Get(blocks[c.Index(local)]).Translucent {
					c.light.Add(ChannelSun, local, MaxLight)
				}
			}
		}
	}

	for f := block.Face(0); f < block.FaceCount; f++ {
		w.seedFromNeighbour(c, f)
	}

	for i, id := range blocks {
		bt := w.catalog.Get(id)
		if !bt.Emits() {
			continue
		}
		local := c.LocalFromIndex(i)
		for j, ch := range TorchChannels {
			c.light.Add(ch, local, bt.LightEmission[j])
		}
	}
}

// seedFromNeighbour ставит в очередь освещённые граничные воксели соседа через грань f
func (w *World) seedFromNeighbour(c *Chunk, f block.Face) {
	dir := f.Direction()
	nc := w.chunks.Get(c.Offset.Add(dir.Mul(c.Size)))
	if nc == nil || !nc.Generated() {
		return
	}

	// Граничный слой этого чанка со стороны грани
	lo, hi := vec.Zero, c.Size
	switch {
	case dir.X > 0:
		lo.X = c.Size.X - 1
	case dir.X < 0:
		hi.X = 1
	case dir.Y > 0:
		lo.Y = c.Size.Y - 1
	case dir.Y < 0:
		hi.Y = 1
	case dir.Z > 0:
		lo.Z = c.Size.Z - 1
	case dir.Z < 0:
		hi.Z = 1
	}

	for x := lo.X; x < hi.X; x++ {
		for y := lo.Y; y < hi.Y; y++ {
			for z := lo.Z; z < hi.Z; z++ {
				pos := c.Offset.Add(vec.New(x, y, z)).Add(dir)
				nl := pos.Sub(nc.Offset)
				for ch := LightChannel(0); ch < LightChannels; ch++ {
					if nc.light.Get(ch, nl) > 0 {
						c.light.EnqueueAdd(ch, pos)
					}
				}
			}
		}
	}
}

// propagateLight доводит освещение чанка до покоя. Вызывающий держит c.passMu.
// Очередь соседа дренируется под его блокировкой, если её удаётся взять сразу,
// и блокировка отпускается сразу после дренажа; иначе сосед обработает
// очередь в собственном проходе.
func (w *World) propagateLight(c *Chunk) {
	updated := make(map[*Chunk]struct{})
	pending := []*LightField{c.light}

	for len(pending) > 0 {
		lf := pending[0]
		pending = pending[1:]

		var touched map[*LightField]struct{}
		if lf == c.light {
			touched = lf.PropagateAll(w.lightEnv)
		} else {
			nc := w.chunks.Get(lf.Origin())
			if nc == nil || !nc.passMu.TryLock() {
				continue
			}
			touched = lf.PropagateAll(w.lightEnv)
			nc.passMu.Unlock()
		}

		for field := range touched {
			nc := w.chunks.Get(field.Origin())
			if nc == nil || nc == c {
				continue
			}
			updated[nc] = struct{}{}
			if field.Pending() {
				pending = append(pending, field)
			}
		}

		if len(pending) == 0 && c.light.Pending() {
			pending = append(pending, c.light)
		}
	}

	for nc := range updated {
		w.QueueFullUpdate(nc)
	}
}
