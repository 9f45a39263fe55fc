package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Stage_StringNamesEachStage(t *testing.T) {
	// Arrange & Act & Assert
	assert.Equal(t, "TickSequential", TickSequential.String())
	assert.Equal(t, "Tick", Tick.String())
	assert.Equal(t, "Update", Update.String())
	assert.Equal(t, "PostUpdate", PostUpdate.String())
	assert.Equal(t, "Unknown", Stage(99).String())
}

func Test_BaseSystem_NameReturnsConfiguredName(t *testing.T) {
	// Arrange
	b := BaseSystem{SystemName: "movement"}

	// Act & Assert
	assert.Equal(t, "movement", b.Name())
}

func Test_BaseSystem_LifecycleHooksAreNoOps(t *testing.T) {
	// Arrange
	b := &BaseSystem{SystemName: "noop"}

	// Act & Assert
	assert.NoError(t, b.Setup(nil))
	assert.NoError(t, b.Destroy(nil))
	assert.NoError(t, b.Reset(nil))
}
