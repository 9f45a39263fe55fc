package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Bitset_SetAndHas(t *testing.T) {
	// Arrange
	b := newBitset()

	// Act
	b.Set(3)

	// Assert
	assert.True(t, b.Has(3))
	assert.False(t, b.Has(4))
}

func Test_Bitset_SetGrowsAcrossWords(t *testing.T) {
	// Arrange
	b := newBitset()

	// Act
	b.Set(130)

	// Assert
	assert.True(t, b.Has(130))
	assert.Equal(t, 1, b.PopCount())
}

func Test_Bitset_Clear(t *testing.T) {
	// Arrange
	b := newBitset()
	b.Set(5)

	// Act
	b.Clear(5)

	// Assert
	assert.False(t, b.Has(5))
}

func Test_Bitset_ClearOnUnallocatedWordIsNoOp(t *testing.T) {
	// Arrange
	b := newBitset()

	// Act & Assert
	assert.NotPanics(t, func() { b.Clear(900) })
}

func Test_Bitset_PopCount(t *testing.T) {
	// Arrange
	b := newBitset()
	b.Set(1)
	b.Set(2)
	b.Set(64)

	// Act & Assert
	assert.Equal(t, 3, b.PopCount())
}

func Test_Bitset_ContainsAll(t *testing.T) {
	// Arrange
	b := newBitset()
	b.Set(1)
	b.Set(2)
	other := newBitset()
	other.Set(1)

	// Act & Assert
	assert.True(t, b.ContainsAll(other))
	assert.False(t, other.ContainsAll(b))
}

func Test_Bitset_ContainsAllAcrossUnequalLengths(t *testing.T) {
	// Arrange
	b := newBitset()
	b.Set(1)
	other := newBitset()
	other.Set(200)

	// Act & Assert
	assert.False(t, b.ContainsAll(other))
}

func Test_Bitset_Intersects(t *testing.T) {
	// Arrange
	a := newBitset()
	a.Set(5)
	b := newBitset()
	b.Set(5)
	c := newBitset()
	c.Set(6)

	// Act & Assert
	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))
}

func Test_Bitset_Clone(t *testing.T) {
	// Arrange
	a := newBitset()
	a.Set(10)

	// Act
	clone := a.Clone()
	clone.Set(20)

	// Assert
	assert.True(t, a.Has(10))
	assert.False(t, a.Has(20))
	assert.True(t, clone.Has(10))
	assert.True(t, clone.Has(20))
}
