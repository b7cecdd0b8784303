package block

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSolid struct {
	Base
	name    string
	aliases []string
}

func (b testSolid) Name() string           { return b.name }
func (b testSolid) Aliases() []string      { return b.aliases }
func (b testSolid) Properties() Properties { return OpaqueProperties(3) }

func TestCatalogAirIsZero(t *testing.T) {
	c := NewCatalog()
	air := c.Get(AirID)

	assert.True(t, air.IsAir())
	assert.True(t, air.Passable, "воздух проходим")
	assert.True(t, air.Translucent, "воздух прозрачен")
	assert.Nil(t, c.NewState(AirID), "у воздуха нет состояния")
}

func TestCatalogRegisterAndLookup(t *testing.T) {
	c := NewCatalog()

	id, err := c.Register(testSolid{name: "Stone", aliases: []string{"rock"}})
	require.NoError(t, err)
	assert.Equal(t, BlockID(1), id)

	found, ok := c.Lookup("stone")
	assert.True(t, ok)
	assert.Equal(t, id, found)

	found, ok = c.Lookup("ROCK")
	assert.True(t, ok, "поиск по псевдониму")
	assert.Equal(t, id, found)

	_, err = c.Register(testSolid{name: "stone"})
	assert.True(t, errors.Is(err, ErrDuplicateName))
}

func TestCatalogFrozen(t *testing.T) {
	c := NewCatalog()
	c.Freeze()

	_, err := c.Register(testSolid{name: "late"})
	assert.True(t, errors.Is(err, ErrCatalogFrozen))
}

func TestCatalogUnknownIDIsAir(t *testing.T) {
	c := NewCatalog()

	assert.False(t, c.Contains(200))
	assert.True(t, c.Get(200).IsAir())
}

func TestFaceOpposites(t *testing.T) {
	for f := Face(0); f < FaceCount; f++ {
		assert.Equal(t, f, f.Opposite().Opposite())
		assert.Equal(t, f.Direction().Scale(-1), f.Opposite().Direction(), f.String())

		back, ok := FaceFromDirection(f.Direction())
		assert.True(t, ok)
		assert.Equal(t, f, back)
	}
	assert.False(t, FaceTop.Horizontal())
	assert.True(t, FaceEast.Horizontal())
}

func TestCatalogDecodeState(t *testing.T) {
	c := NewCatalog()
	id := c.MustRegister(testSolid{name: "stone"})

	src := &BaseState{}
	src.SetHealth(7)
	payload := EncodeState(src)

	st, err := c.DecodeState(id, payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), st.Health())

	_, err = c.DecodeState(id, append(payload, 0xFF))
	assert.True(t, errors.Is(err, ErrMalformedState), "лишние байты")

	_, err = c.DecodeState(AirID, payload)
	assert.True(t, errors.Is(err, ErrMalformedState), "воздух без состояния")
}
