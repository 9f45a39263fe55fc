package ecs

import (
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// containerVTable is the type-erased face of a Container[T], letting the
// Registry walk every component type's container without knowing T (spec
// §4.5: "Containers are sorted for processing in descending requirement
// chain depth").
type containerVTable interface {
	typeIndex() ComponentTypeIndex
	requiredTypes() []ComponentTypeIndex
	ensureExists(id EntityID) error
	processDeferred()
	lockExclusive()
	unlockExclusive()
	lockShared()
	unlockShared()
	MutatedSet() *SparseIdSet
	PendingDeleteSet() *SparseIdSet
}

// Registry owns every component type's Container and the required/required-by
// dependency graph between them (spec §4.5).
type Registry struct {
	mu         sync.Mutex
	containers map[ComponentTypeIndex]containerVTable
	matrix     *Matrix
}

// NewRegistry creates an empty container registry bound to matrix.
func NewRegistry(matrix *Matrix) *Registry {
	return &Registry{
		containers: make(map[ComponentTypeIndex]containerVTable),
		matrix:     matrix,
	}
}

// setMatrix re-points the registry at a freshly loaded matrix (used by
// World.LoadState).
func (r *Registry) setMatrix(m *Matrix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matrix = m
}

func (r *Registry) register(c containerVTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.typeIndex()] = c
}

// depth computes a type's requirement chain depth: 0 if it requires nothing,
// else 1 + max(depth of each required type). Used to order deferred-change
// processing so dependents run before dependencies (spec §4.5).
func (r *Registry) depth(t ComponentTypeIndex, seen map[ComponentTypeIndex]bool) int {
	c, ok := r.containers[t]
	if !ok || len(c.requiredTypes()) == 0 {
		return 0
	}
	if seen[t] {
		// A cycle in required-component declarations; treat as terminal
		// rather than recursing forever.
		return 0
	}
	seen[t] = true
	best := 0
	for _, req := range c.requiredTypes() {
		if d := r.depth(req, seen); d+1 > best {
			best = d + 1
		}
	}
	delete(seen, t)
	return best
}

// orderedByDepthDesc returns every registered container sorted by descending
// requirement-chain depth, ties broken by type index for determinism.
func (r *Registry) orderedByDepthDesc() []containerVTable {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]containerVTable, 0, len(r.containers))
	for _, c := range r.containers {
		out = append(out, c)
	}
	depths := make(map[ComponentTypeIndex]int, len(out))
	for _, c := range out {
		depths[c.typeIndex()] = r.depth(c.typeIndex(), make(map[ComponentTypeIndex]bool))
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := depths[out[i].typeIndex()], depths[out[j].typeIndex()]
		if di != dj {
			return di > dj
		}
		return out[i].typeIndex() < out[j].typeIndex()
	})
	return out
}

// ensureExistsFor is invoked by a Container[T] to recursively materialize its
// required component types on id before inserting T itself.
func (r *Registry) ensureExistsFor(id EntityID, required []ComponentTypeIndex) error {
	for _, t := range required {
		r.mu.Lock()
		c, ok := r.containers[t]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if err := c.ensureExists(id); err != nil {
			return err
		}
	}
	return nil
}

// ProcessDeferredChanges runs the once-per-tick deferred-change pump across
// every registered container, dependents before dependencies (spec §4.5).
func (r *Registry) ProcessDeferredChanges() {
	for _, c := range r.orderedByDepthDesc() {
		c.processDeferred()
	}
}

// changeSourceFor returns the mutated-id set backing t's container, for
// wiring a group's Changed<T> filter (spec §4.6).
func (r *Registry) changeSourceFor(t ComponentTypeIndex) (*SparseIdSet, bool) {
	r.mu.Lock()
	c, ok := r.containers[t]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.MutatedSet(), true
}

// deleteSourceFor returns the pending-delete-id set backing t's container,
// for wiring a group's Deleted<T> filter (spec §4.6).
func (r *Registry) deleteSourceFor(t ComponentTypeIndex) (*SparseIdSet, bool) {
	r.mu.Lock()
	c, ok := r.containers[t]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.PendingDeleteSet(), true
}

// lockGroupShared acquires a shared (read) lock, in ascending type-index
// order to avoid lock-ordering deadlocks against lockGroupShared's own
// concurrent calls, on every container backing types. The caller must
// invoke the returned function to release them (spec §4.7: the task
// resolver holds the group's locks for the task's duration).
func (r *Registry) lockGroupShared(types []ComponentTypeIndex) func() {
	sorted := append([]ComponentTypeIndex(nil), types...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	r.mu.Lock()
	locked := make([]containerVTable, 0, len(sorted))
	for _, t := range sorted {
		if c, ok := r.containers[t]; ok {
			locked = append(locked, c)
		}
	}
	r.mu.Unlock()

	for _, c := range locked {
		c.lockShared()
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].unlockShared()
		}
	}
}

// isRequiredElsewhere reports whether some other live component on id
// declares t as a required type (used by processDeferred's ComponentRequired
// gate, spec §4.5 step 1 and §7 ComponentRequired).
func (r *Registry) isRequiredElsewhere(id EntityID, t ComponentTypeIndex) bool {
	r.mu.Lock()
	containers := make([]containerVTable, 0, len(r.containers))
	for _, c := range r.containers {
		containers = append(containers, c)
	}
	r.mu.Unlock()

	for _, c := range containers {
		if c.typeIndex() == t {
			continue
		}
		if !r.matrix.Has(id, c.typeIndex()) {
			continue
		}
		for _, req := range c.requiredTypes() {
			if req == t {
				return true
			}
		}
	}
	return false
}

// Container is the polymorphic typed storage wrapper around a componentMap
// (spec §4.5): it tracks mutated and pending-delete entity sets, enforces
// required-component dependencies on insert, and defers destructive work to
// the once-per-tick pump.
type Container[T any] struct {
	mu sync.RWMutex

	typeIdx  ComponentTypeIndex
	required []ComponentTypeIndex

	matrix   *Matrix
	registry *Registry

	values        *componentMap[T]
	mutated       *SparseIdSet
	pendingDelete *SparseIdSet

	defaultFactory func() T
}

// NewContainer creates T's container, registers it with registry, and wires
// its required-component list. defaultFactory produces the zero value used
// by GetOrAdd/ensureExists when T is missing; pass nil to use T's Go zero
// value.
func NewContainer[T any](matrix *Matrix, registry *Registry, required []ComponentTypeIndex, defaultFactory func() T) *Container[T] {
	c := &Container[T]{
		typeIdx:        TypeIndexOf[T](),
		required:       append([]ComponentTypeIndex(nil), required...),
		matrix:         matrix,
		registry:       registry,
		values:         newComponentMap[T](),
		mutated:        NewSparseIdSet(),
		pendingDelete:  NewSparseIdSet(),
		defaultFactory: defaultFactory,
	}
	registry.register(c)
	return c
}

func (c *Container[T]) typeIndex() ComponentTypeIndex       { return c.typeIdx }
func (c *Container[T]) requiredTypes() []ComponentTypeIndex { return c.required }
func (c *Container[T]) lockExclusive()   { c.mu.Lock() }
func (c *Container[T]) unlockExclusive() { c.mu.Unlock() }
func (c *Container[T]) lockShared()      { c.mu.RLock() }
func (c *Container[T]) unlockShared()    { c.mu.RUnlock() }

func (c *Container[T]) zero() T {
	if c.defaultFactory != nil {
		return c.defaultFactory()
	}
	var z T
	return z
}

// Get returns a read-only pointer to id's value, or nil if absent.
func (c *Container[T]) Get(id EntityID) (*T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values.TryGet(id)
}

// GetMut returns a mutable pointer to id's value, marking id in the mutated
// set for Changed<T> group filters (spec §4.5).
func (c *Container[T]) GetMut(id EntityID) (*T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values.TryGet(id)
	if ok {
		c.mutated.Insert(id)
	}
	return v, ok
}

// GetOrAdd returns &T for id, inserting T's zero value (materializing
// required components first) if absent.
func (c *Container[T]) GetOrAdd(id EntityID) (*T, error) {
	c.mu.Lock()
	if v, ok := c.values.TryGet(id); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	if err := c.ensureExists(id); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _ := c.values.TryGet(id)
	return v, nil
}

// ensureExists materializes a default T on id if absent, satisfies the
// containerVTable interface, and is how required-component chains recurse
// (spec §4.5: "calls add_if_not_exist on each required container").
func (c *Container[T]) ensureExists(id EntityID) error {
	c.mu.Lock()
	if c.values.Contains(id) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.registry.ensureExistsFor(id, c.required); err != nil {
		return err
	}

	c.mu.Lock()
	if c.values.Contains(id) {
		c.mu.Unlock()
		return nil
	}
	c.values.Insert(id, c.zero())
	c.pendingDelete.Erase(id)
	c.mu.Unlock()

	c.matrix.AddComponent(id, c.typeIdx)
	return nil
}

// AddOrReplace overwrites id's value (materializing required components
// first), marks id mutated, and cancels any pending deletion (spec §4.5).
func (c *Container[T]) AddOrReplace(id EntityID, value T) error {
	c.mu.RLock()
	existed := c.values.Contains(id)
	c.mu.RUnlock()

	if !existed {
		if err := c.registry.ensureExistsFor(id, c.required); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.values.Insert(id, value)
	c.mutated.Insert(id)
	c.pendingDelete.Erase(id)
	c.mu.Unlock()

	if !existed {
		c.matrix.AddComponent(id, c.typeIdx)
	}
	return nil
}

// RemoveLater marks id for removal on the next deferred-change pump, if it
// currently carries T (spec §4.5).
func (c *Container[T]) RemoveLater(id EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values.Contains(id) {
		c.pendingDelete.Insert(id)
	}
}

// MutatedSet exposes the container's mutated-id set for group Changed<T>
// subscriptions (spec §4.6). Callers must not mutate the returned set.
func (c *Container[T]) MutatedSet() *SparseIdSet { return c.mutated }

// PendingDeleteSet exposes the pending-delete set for group Deleted<T>
// subscriptions (spec §4.6).
func (c *Container[T]) PendingDeleteSet() *SparseIdSet { return c.pendingDelete }

// processDeferred implements the deferred-change pump step for T (spec
// §4.5 step 1): ids still required by another live component are skipped
// with a warning-equivalent no-op; everything else is actually removed.
// It then clears this container's mutated and pending-delete sets itself,
// skipped ids included.
func (c *Container[T]) processDeferred() {
	c.mu.Lock()
	pending := append([]EntityID(nil), c.pendingDelete.Dense()...)
	c.mu.Unlock()

	for _, id := range pending {
		if c.registry.isRequiredElsewhere(id, c.typeIdx) {
			continue
		}
		c.mu.Lock()
		c.values.Erase(id)
		c.mu.Unlock()
		c.matrix.RemoveComponent(id, c.typeIdx)
	}

	c.mu.Lock()
	c.mutated.Clear()
	c.pendingDelete.Clear()
	c.mu.Unlock()
}

// Len returns the number of entities currently carrying T.
func (c *Container[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values.Len()
}

// Each iterates (id, *value) pairs under a shared lock.
func (c *Container[T]) Each(fn func(EntityID, *T) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.values.Each(fn)
}

// serializableContainer lets World.SaveState/LoadState walk every container
// without knowing its component type T (spec §4.8 "Persisted state").
type serializableContainer interface {
	serializableTypeName() string
	marshalAll() ([]byte, error)
	unmarshalAll([]byte) error
	setMatrix(m *Matrix)
}

type archiveRecord[T any] struct {
	Key   uint64 `yaml:"key"`
	Value T      `yaml:"value"`
}

func (c *Container[T]) serializableTypeName() string { return componentTypeName(c.typeIdx) }

func (c *Container[T]) setMatrix(m *Matrix) { c.matrix = m }

func (c *Container[T]) marshalAll() ([]byte, error) {
	c.mu.RLock()
	records := make([]archiveRecord[T], 0, c.values.Len())
	c.values.Each(func(id EntityID, v *T) bool {
		records = append(records, archiveRecord[T]{Key: entityKey(id), Value: *v})
		return true
	})
	c.mu.RUnlock()
	return yaml.Marshal(records)
}

func (c *Container[T]) unmarshalAll(data []byte) error {
	var records []archiveRecord[T]
	if err := yaml.Unmarshal(data, &records); err != nil {
		return err
	}

	c.mu.Lock()
	c.values = newComponentMap[T]()
	for _, r := range records {
		c.values.Insert(keyToID(r.Key), r.Value)
	}
	c.mu.Unlock()

	for _, r := range records {
		c.matrix.AddComponent(keyToID(r.Key), c.typeIdx)
	}
	return nil
}
