package ecs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_World_CreateEntityRegistersWithMatrix(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())

	// Act
	id := w.CreateEntity()

	// Assert
	assert.True(t, w.Exists(id))
}

func Test_World_RemoveEntityIsDeferredUntilProcessDeferredChanges(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	id := w.CreateEntity()

	// Act
	w.RemoveEntity(id)

	// Assert
	assert.True(t, w.Exists(id), "removal must not take effect before ProcessDeferredChanges")

	assert.NoError(t, w.ProcessDeferredChanges())
	assert.False(t, w.Exists(id))
}

func Test_World_SetParentAndChildren(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	parent := w.CreateEntity()
	child := w.CreateEntity()

	// Act
	err := w.SetParent(child, parent)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, []EntityID{child}, w.Children(parent))
	got, ok := w.Parent(child)
	assert.True(t, ok)
	assert.Equal(t, parent, got)
	assert.True(t, w.IsParent(child, parent))
}

func Test_World_AddTagHasTagRemoveTag(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	id := w.CreateEntity()

	// Act
	err := w.AddTag(id, "player")

	// Assert
	assert.NoError(t, err)
	assert.True(t, w.HasTag(id, "player"))

	// Act
	err = w.RemoveTag(id, "player")

	// Assert
	assert.NoError(t, err)
	assert.False(t, w.HasTag(id, "player"))
}

func Test_World_GroupReturnsSameInstanceForEquivalentSpec(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	specA := GroupSpec{Required: []ComponentTypeIndex{0, 1}}
	specB := GroupSpec{Required: []ComponentTypeIndex{1, 0}}

	// Act
	ga := w.Group(specA)
	gb := w.Group(specB)

	// Assert
	assert.Same(t, ga, gb)
}

func Test_World_GroupPopulatesAgainstExistingEntities(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	id := w.CreateEntity()
	w.Matrix().AddComponent(id, 0)

	// Act
	g := w.Group(GroupSpec{Required: []ComponentTypeIndex{0}})

	// Assert
	assert.Contains(t, g.Entities(), id)
}

func Test_World_GroupWiresChangedFilterToContainerMutatedSet(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	posType := TypeIndexOf[testPosition]()
	velType := TypeIndexOf[testVelocity]()
	posContainer := NewContainer[testPosition](w.Matrix(), w.Registry(), nil, nil)
	velContainer := NewContainer[testVelocity](w.Matrix(), w.Registry(), nil, nil)

	e := w.CreateEntity()
	assert.NoError(t, posContainer.AddOrReplace(e, testPosition{}))
	assert.NoError(t, velContainer.AddOrReplace(e, testVelocity{}))
	velContainer.processDeferred() // clears the mutated set AddOrReplace just set

	// Act
	g := w.Group(GroupSpec{Required: []ComponentTypeIndex{posType, velType}, Changed: []ComponentTypeIndex{velType}})

	// Assert: velType has not been touched since the clear, so e is filtered out
	assert.NotContains(t, g.Entities(), e)

	// Act: mutate velocity through GetMut, which marks it in the mutated set
	_, ok := velContainer.GetMut(e)
	assert.True(t, ok)

	// Assert: e now passes the Changed<velType> filter
	assert.Contains(t, g.Entities(), e)
}

func Test_World_RegisterSystemCallsSetupAndTracksIt(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	sys := &recordingSystem{BaseSystem: BaseSystem{SystemName: "test-system"}}

	// Act
	err := w.RegisterSystem(sys)

	// Assert
	assert.NoError(t, err)
	assert.True(t, sys.setupCalled)
	assert.Len(t, w.Systems(), 1)
	assert.Equal(t, "test-system", w.Systems()[0].Name())
}

func Test_World_TickAdvancesTickCounter(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	assert.Equal(t, TickID(0), w.CurrentTick())

	// Act
	err := w.Tick(context.Background())

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, TickID(1), w.CurrentTick())
}

func Test_World_ProcessDeferredChangesClearsPerFrameSets(t *testing.T) {
	// Arrange
	w := NewWorld(DefaultWorldConfig())
	w.CreateEntity()
	assert.Equal(t, 1, w.recentlyAdded.Len())

	// Act
	err := w.ProcessDeferredChanges()

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 0, w.recentlyAdded.Len())
}

type recordingSystem struct {
	BaseSystem
	setupCalled bool
}

func (s *recordingSystem) Setup(w *World) error {
	s.setupCalled = true
	return nil
}
