package ecs

import (
	"context"
	"log"
)

// WorldConfig tunes engine-wide behavior, following the teacher's config
// shape: debug mode and parallel dispatch settings. It carries json/yaml
// tags; no loader for it exists in this module.
type WorldConfig struct {
	EnableDebugMode    bool `json:"enable_debug_mode" yaml:"enable_debug_mode"`
	ParallelDispatch   bool `json:"parallel_dispatch" yaml:"parallel_dispatch"`
	MaxParallelWorkers int  `json:"max_parallel_workers" yaml:"max_parallel_workers"`
}

// DefaultWorldConfig returns the configuration new Worlds use when none is
// supplied.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		EnableDebugMode:    true,
		ParallelDispatch:   false,
		MaxParallelWorkers: 4,
	}
}

// World is the ECS facade (spec §4.8): entity/component/tag/parent
// operations, system registration, group creation, and the tick/pump
// lifecycle.
type World struct {
	cfg WorldConfig

	pool      *EntityPool
	matrix    *Matrix
	registry  *Registry
	scheduler *Scheduler

	systems []System
	groups  map[string]*Group
	tally   *groupTally

	tick TickID

	// recentlyAdded/parentChanged are per-frame sets cleared by
	// ProcessDeferredChanges step 4 (spec §4.8).
	recentlyAdded *SparseIdSet
	parentChanged *SparseIdSet

	pendingRemoval *SparseIdSet

	Logger func(format string, args ...any)
}

// NewWorld creates an empty World under cfg.
func NewWorld(cfg WorldConfig) *World {
	Debug = cfg.EnableDebugMode
	matrix := NewMatrix()
	w := &World{
		cfg:            cfg,
		pool:           NewEntityPool(),
		matrix:         matrix,
		registry:       NewRegistry(matrix),
		scheduler:      NewScheduler(),
		groups:         make(map[string]*Group),
		tally:          newGroupTally(),
		recentlyAdded:  NewSparseIdSet(),
		parentChanged:  NewSparseIdSet(),
		pendingRemoval: NewSparseIdSet(),
		Logger:         log.Printf,
	}
	return w
}

// Registry exposes the container registry so callers can create containers
// for this World with NewContainer[T].
func (w *World) Registry() *Registry { return w.registry }

// Matrix exposes the component occupancy matrix.
func (w *World) Matrix() *Matrix { return w.matrix }

// Scheduler exposes the task scheduler for system registration.
func (w *World) Scheduler() *Scheduler { return w.scheduler }

// CurrentTick returns the current tick id.
func (w *World) CurrentTick() TickID { return w.tick }

// CreateEntity allocates a new entity and registers it with the matrix.
func (w *World) CreateEntity() EntityID {
	id := w.pool.Create()
	w.matrix.AddEntity(id)
	w.recentlyAdded.Insert(id)
	return id
}

// CreateEntityWithID materializes id exactly, used for prefab instantiation.
func (w *World) CreateEntityWithID(id EntityID) error {
	if err := w.pool.CreateWithID(id); err != nil {
		return err
	}
	w.matrix.AddEntity(id)
	w.recentlyAdded.Insert(id)
	return nil
}

// RemoveEntity defers id's removal to the next ProcessDeferredChanges call
// (spec §4.8 step 3: "Finalizes pending entity removals").
func (w *World) RemoveEntity(id EntityID) {
	w.pendingRemoval.Insert(id)
}

// Exists reports whether id refers to a currently live entity.
func (w *World) Exists(id EntityID) bool { return w.pool.Exists(id) }

// SetParent reparents child, recording the change in the per-frame
// parent-changed set.
func (w *World) SetParent(child, parent EntityID) error {
	if err := w.pool.SetParent(child, parent); err != nil {
		return err
	}
	w.parentChanged.Insert(child)
	return nil
}

// Parent returns child's parent, if any.
func (w *World) Parent(child EntityID) (EntityID, bool) { return w.pool.GetParent(child) }

// Children returns id's children in most-recently-attached-first order.
func (w *World) Children(id EntityID) []EntityID { return w.pool.Children(id) }

// IsParent reports whether candidate is an ancestor of id.
func (w *World) IsParent(id, candidate EntityID) bool { return w.pool.IsParent(id, candidate) }

// AddTag attaches tag to id.
func (w *World) AddTag(id EntityID, tag string) error { return w.matrix.AddTag(id, tag) }

// RemoveTag detaches tag from id.
func (w *World) RemoveTag(id EntityID, tag string) error { return w.matrix.RemoveTag(id, tag) }

// HasTag reports whether id carries tag.
func (w *World) HasTag(id EntityID, tag string) bool { return w.matrix.HasTag(id, tag) }

// RegisterSystem adds sys to the world and calls its Setup hook.
func (w *World) RegisterSystem(sys System) error {
	if err := sys.Setup(w); err != nil {
		return err
	}
	w.systems = append(w.systems, sys)
	return nil
}

// Systems returns the registered systems in registration order.
func (w *World) Systems() []System { return append([]System(nil), w.systems...) }

// Group returns the cached Group for spec, creating and populating it if
// this is the first request for this exact spec (spec §4.6).
func (w *World) Group(spec GroupSpec) *Group {
	key := spec.key()
	if g, ok := w.groups[key]; ok {
		return g
	}
	g := newGroup(spec, w.matrix, w.tally)
	for _, t := range spec.Required {
		w.matrix.RegisterTypeObserver(t, g)
	}
	for _, t := range spec.ExcludeComponents {
		w.matrix.RegisterTypeObserver(t, g)
	}
	for _, tag := range spec.IncludeTags {
		w.matrix.RegisterTagObserver(tag, g)
	}
	for _, tag := range spec.ExcludeTags {
		w.matrix.RegisterTagObserver(tag, g)
	}

	if len(spec.Changed) > 0 {
		sources := make([]*SparseIdSet, 0, len(spec.Changed))
		for _, t := range spec.Changed {
			if src, ok := w.registry.changeSourceFor(t); ok {
				sources = append(sources, src)
			}
		}
		g.attachChangeSources(sources)
	}
	if len(spec.Deleted) > 0 {
		sources := make([]*SparseIdSet, 0, len(spec.Deleted))
		for _, t := range spec.Deleted {
			if src, ok := w.registry.deleteSourceFor(t); ok {
				sources = append(sources, src)
			}
		}
		g.attachDeleteSources(sources)
	}

	g.populate(w.pool)
	w.groups[key] = g
	return g
}

// Tick advances the tick id, runs TickSequential, then dispatches the
// remaining stages sequentially or in parallel per configuration (spec
// §4.8 "Per-tick sequence").
func (w *World) Tick(ctx context.Context) error {
	w.tick++
	if w.cfg.ParallelDispatch {
		return w.scheduler.DispatchParallel(ctx, w)
	}
	w.scheduler.DispatchSequential(w)
	return nil
}

// ProcessDeferredChanges must be invoked by the embedding application
// between frames, never inside Tick (spec §4.8). It pumps every container's
// deferred changes dependents-first, finalizes pending entity removals
// (dropping each from every group, the matrix and the pool), clears the
// per-frame recently-added/parent-changed sets, and audits the pool for
// cycles in debug builds. Groups keep no added-this-pump or
// removed-this-pump observer lists, so no such lists are cleared here.
func (w *World) ProcessDeferredChanges() error {
	w.registry.ProcessDeferredChanges()

	toRemove := append([]EntityID(nil), w.pendingRemoval.Dense()...)
	for _, id := range toRemove {
		for _, g := range w.groups {
			g.removeEntity(id)
		}
		w.matrix.RemoveEntity(id)
		if err := w.pool.Remove(id); err != nil {
			if Debug {
				return err
			}
			w.logf("ProcessDeferredChanges: failed to remove entity %v: %v", id, err)
		}
	}
	w.pendingRemoval.Clear()

	w.recentlyAdded.Clear()
	w.parentChanged.Clear()

	if Debug {
		return w.pool.ValidateIntegrity()
	}
	return nil
}

func (w *World) logf(format string, args ...any) {
	if w.Logger != nil {
		w.Logger(format, args...)
	}
}
