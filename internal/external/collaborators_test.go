package external

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_NewAssetPtr_WrapsNameAndValue(t *testing.T) {
	// Arrange & Act
	ptr := NewAssetPtr("hero.png", 42)

	// Assert
	assert.Equal(t, "hero.png", ptr.Name)
	assert.Equal(t, 42, ptr.Value)
}
