// Package ecs implements forgelight's archetype-free, sparse-set Entity
// Component System: entity lifetimes, typed component storage, tag indices,
// parent/child hierarchies, query/group evaluation, deferred mutation, and a
// dependency-aware system scheduler.
package ecs

import (
	"math"
	"reflect"
	"sync"
	"sync/atomic"
)

// EntityID is an opaque identifier with an index and a generation version.
// Two IDs sharing an index but differing in version refer to distinct
// entity lifetimes; an ID is invalid iff its Index equals InvalidIndex.
type EntityID struct {
	Index   uint32
	Version uint32
}

// InvalidIndex is the sentinel index value marking an invalid EntityID.
const InvalidIndex = math.MaxUint32

// InvalidEntityID is the zero-value-equivalent invalid entity.
var InvalidEntityID = EntityID{Index: InvalidIndex}

// IsValid reports whether the ID could possibly refer to a live entity.
// It does not check liveness against a pool; use EntityPool.Exists for that.
func (id EntityID) IsValid() bool {
	return id.Index != InvalidIndex
}

// TickID is a monotonically increasing counter advanced once per World tick.
type TickID uint64

// ComponentTypeIndex is a process-wide stable, dense index assigned to a
// component type the first time it is observed by forgelight.
type ComponentTypeIndex uint32

var (
	typeRegistryMu sync.Mutex
	typeRegistry   = make(map[reflect.Type]ComponentTypeIndex)
	typeNames      []string
	nextTypeIndex  atomic.Uint32
)

// componentTypeIndexFor returns the stable index for T, assigning one on
// first observation. The registry is process-wide so that ComponentTypeIndex
// values stay dense and comparable across World instances within a process.
func componentTypeIndexFor(t reflect.Type) ComponentTypeIndex {
	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()

	if idx, ok := typeRegistry[t]; ok {
		return idx
	}
	idx := ComponentTypeIndex(nextTypeIndex.Add(1) - 1)
	typeRegistry[t] = idx
	typeNames = append(typeNames, t.String())
	return idx
}

// TypeIndexOf returns the stable ComponentTypeIndex for component type T,
// registering T on first use.
func TypeIndexOf[T any]() ComponentTypeIndex {
	var zero T
	return componentTypeIndexFor(reflect.TypeOf(zero))
}

// componentTypeName returns the registered name for a ComponentTypeIndex,
// used only for diagnostics (error messages, debug dumps).
func componentTypeName(idx ComponentTypeIndex) string {
	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()
	if int(idx) < len(typeNames) {
		return typeNames[idx]
	}
	return "<unknown>"
}

// Debug toggles panic-on-misuse behavior for ECS-level errors (spec §7):
// true panics with location context, false best-effort no-ops so the game
// loop can keep running in a release build. Tests flip this per-case.
var Debug = true
