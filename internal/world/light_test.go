package world

import (
	"testing"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLightChannelsPacked(t *testing.T) {
	lf := NewLightField(vec.Zero, vec.Splat(2))
	local := vec.New(1, 0, 1)

	lf.Set(ChannelRed, local, 3)
	lf.Set(ChannelGreen, local, 5)
	lf.Set(ChannelBlue, local, 7)
	lf.Set(ChannelSun, local, 15)

	data := lf.Serialize()
	idx := (1*2*2 + 0*2 + 1) * BytesPerVoxel
	assert.Equal(t, byte(3|5<<4), data[idx])
	assert.Equal(t, byte(7|15<<4), data[idx+1])

	for ch, want := range map[LightChannel]uint8{ChannelRed: 3, ChannelGreen: 5, ChannelBlue: 7, ChannelSun: 15} {
		assert.Equal(t, want, lf.Get(ch, local), "канал %s", ch)
	}
	assert.False(t, lf.Set(ChannelRed, local, 3), "то же значение не меняет поле")
	assert.Equal(t, uint8(0), lf.Get(ChannelRed, vec.New(2, 0, 0)), "вне поля всегда 0")
}

func TestLightTexturePublishing(t *testing.T) {
	lf := NewLightField(vec.Zero, vec.Splat(2))
	assert.False(t, lf.UpdateTexture(), "без изменений публикации нет")

	lf.Set(ChannelSun, vec.Zero, 9)
	assert.Equal(t, uint8(0), lf.Published(ChannelSun, vec.Zero))
	assert.True(t, lf.UpdateTexture())
	assert.Equal(t, uint8(9), lf.Published(ChannelSun, vec.Zero))
	assert.Equal(t, lf.Serialize(), lf.PublishedData())
}

func TestLightDamage(t *testing.T) {
	lf := NewLightField(vec.Zero, vec.Splat(2))
	require.True(t, lf.SetDamage(vec.Zero, 200))
	assert.Equal(t, uint8(200&0x7f), lf.Damage(vec.Zero))
	assert.Equal(t, uint8(0), lf.Get(ChannelSun, vec.Zero), "повреждение не задевает свет")
	assert.False(t, lf.SetDamage(vec.New(3, 0, 0), 1))
}

func TestLightDeserialize(t *testing.T) {
	src := NewLightField(vec.Zero, vec.Splat(2))
	src.Set(ChannelBlue, vec.New(1, 1, 1), 11)

	dst := NewLightField(vec.Zero, vec.Splat(2))
	require.True(t, dst.Deserialize(src.Serialize()))
	assert.Equal(t, uint8(11), dst.Get(ChannelBlue, vec.New(1, 1, 1)))
	assert.False(t, dst.Deserialize([]byte{1, 2, 3}), "длина должна совпадать")
}

func TestLightRemoveQueuesNode(t *testing.T) {
	lf := NewLightField(vec.New(4, 4, 4), vec.Splat(2))
	lf.Add(ChannelRed, vec.Zero, 8)
	assert.True(t, lf.Pending())

	lf.Remove(ChannelRed, vec.Zero)
	assert.Equal(t, uint8(0), lf.Get(ChannelRed, vec.Zero))
	assert.True(t, lf.Pending())
}
