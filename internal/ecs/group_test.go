package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_GroupSpec_KeyIsOrderIndependent(t *testing.T) {
	// Arrange
	a := GroupSpec{Required: []ComponentTypeIndex{1, 2}, IncludeTags: []string{"b", "a"}}
	b := GroupSpec{Required: []ComponentTypeIndex{2, 1}, IncludeTags: []string{"a", "b"}}

	// Act & Assert
	assert.Equal(t, a.key(), b.key())
}

func Test_GroupSpec_KeyDistinguishesDifferentFilters(t *testing.T) {
	// Arrange
	a := GroupSpec{Required: []ComponentTypeIndex{1}}
	b := GroupSpec{Required: []ComponentTypeIndex{1}, ExcludeTags: []string{"dead"}}

	// Act & Assert
	assert.NotEqual(t, a.key(), b.key())
}

func Test_Group_PopulateMatchesExistingEntities(t *testing.T) {
	// Arrange
	m := NewMatrix()
	pool := NewEntityPool()
	tally := newGroupTally()
	id := pool.Create()
	m.AddEntity(id)
	m.AddComponent(id, 0)
	g := newGroup(GroupSpec{Required: []ComponentTypeIndex{0}}, m, tally)

	// Act
	g.populate(pool)

	// Assert
	assert.Contains(t, g.Entities(), id)
}

func Test_Group_SatisfiesRequiresAllComponentsAndTags(t *testing.T) {
	// Arrange
	m := NewMatrix()
	id := EntityID{Index: 1, Version: 1}
	m.AddEntity(id)
	m.AddComponent(id, 0)
	tally := newGroupTally()
	g := newGroup(GroupSpec{Required: []ComponentTypeIndex{0, 1}, IncludeTags: []string{"x"}}, m, tally)

	// Act & Assert
	assert.False(t, g.satisfies(id))

	m.AddComponent(id, 1)
	assert.False(t, g.satisfies(id))

	assert.NoError(t, m.AddTag(id, "x"))
	assert.True(t, g.satisfies(id))
}

func Test_Group_SatisfiesExcludesComponentAndTag(t *testing.T) {
	// Arrange
	m := NewMatrix()
	id := EntityID{Index: 1, Version: 1}
	m.AddEntity(id)
	m.AddComponent(id, 0)
	tally := newGroupTally()
	g := newGroup(GroupSpec{Required: []ComponentTypeIndex{0}, ExcludeComponents: []ComponentTypeIndex{1}}, m, tally)

	// Act & Assert
	assert.True(t, g.satisfies(id))

	m.AddComponent(id, 1)
	assert.False(t, g.satisfies(id))
}

func Test_Group_OnComponentAddedAndRemovedTogglesMembership(t *testing.T) {
	// Arrange
	m := NewMatrix()
	id := EntityID{Index: 1, Version: 1}
	m.AddEntity(id)
	tally := newGroupTally()
	g := newGroup(GroupSpec{Required: []ComponentTypeIndex{0}}, m, tally)
	m.RegisterTypeObserver(0, g)

	// Act
	m.AddComponent(id, 0)

	// Assert
	assert.Equal(t, 1, g.Len())

	// Act
	m.RemoveComponent(id, 0)

	// Assert
	assert.Equal(t, 0, g.Len())
}

func Test_Group_RemoveEntityDropsMembership(t *testing.T) {
	// Arrange
	m := NewMatrix()
	id := EntityID{Index: 1, Version: 1}
	m.AddEntity(id)
	m.AddComponent(id, 0)
	tally := newGroupTally()
	g := newGroup(GroupSpec{Required: []ComponentTypeIndex{0}}, m, tally)
	g.reevaluate(id)
	assert.Equal(t, 1, g.Len())

	// Act
	g.removeEntity(id)

	// Assert
	assert.Equal(t, 0, g.Len())
}

func Test_Group_EntitiesAppliesChangedFilter(t *testing.T) {
	// Arrange
	m := NewMatrix()
	id := EntityID{Index: 1, Version: 1}
	m.AddEntity(id)
	m.AddComponent(id, 0)
	tally := newGroupTally()
	g := newGroup(GroupSpec{Required: []ComponentTypeIndex{0}}, m, tally)
	g.reevaluate(id)

	mutated := NewSparseIdSet()
	g.attachChangeSources([]*SparseIdSet{mutated})

	// Act & Assert: not in the mutated set yet, so excluded.
	assert.Empty(t, g.Entities())

	mutated.Insert(id)
	assert.Contains(t, g.Entities(), id)
}

func Test_Group_EntitiesAppliesDeletedFilter(t *testing.T) {
	// Arrange
	m := NewMatrix()
	id := EntityID{Index: 1, Version: 1}
	m.AddEntity(id)
	m.AddComponent(id, 0)
	tally := newGroupTally()
	g := newGroup(GroupSpec{Required: []ComponentTypeIndex{0}}, m, tally)
	g.reevaluate(id)

	pendingDelete := NewSparseIdSet()
	g.attachDeleteSources([]*SparseIdSet{pendingDelete})

	// Act & Assert
	assert.Empty(t, g.Entities())

	pendingDelete.Insert(id)
	assert.Contains(t, g.Entities(), id)
}

func Test_GroupTally_PanicsPastMaxGroupsPerEntity(t *testing.T) {
	// Arrange
	tally := newGroupTally()
	id := EntityID{Index: 1, Version: 1}
	for i := 0; i < maxGroupsPerEntity; i++ {
		tally.inc(id)
	}

	// Act & Assert
	assert.PanicsWithError(t, newErr(ErrTooManyGroups, "entity belongs to more groups than the matrix allows").withEntity(id).Error(), func() {
		tally.inc(id)
	})
}
