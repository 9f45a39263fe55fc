package ecs

// Stage identifies one of the four ordered scheduling stages a task is
// placed into (spec §4.7).
type Stage int

const (
	TickSequential Stage = iota
	Tick
	Update
	PostUpdate
	stageCount
)

func (s Stage) String() string {
	switch s {
	case TickSequential:
		return "TickSequential"
	case Tick:
		return "Tick"
	case Update:
		return "Update"
	case PostUpdate:
		return "PostUpdate"
	default:
		return "Unknown"
	}
}

// TaskHandle identifies a registered task so later registrations can declare
// a dependency on it (spec §4.7: "declaring a dependency handle").
type TaskHandle struct {
	stage Stage
	index int
}

// TaskArgs is what a task closure receives at dispatch time: a read-only
// World reference, whether the World is on its first tick (tick id 1; always
// false for first-tick-only tasks), and any
// EntityGroup the task asked to be materialized (spec §4.7 "argument
// resolution").
type TaskArgs struct {
	World       *World
	IsFirstTick bool
	Group       *Group
}

// TaskFunc is the closure a System registers with the scheduler.
type TaskFunc func(args TaskArgs)

// System is a named object with scheduler-facing lifecycle hooks (spec
// §4.7). Setup/Destroy/Reset are optional; implementations that have nothing
// to do there can embed BaseSystem.
type System interface {
	Name() string
	Setup(w *World) error
	Destroy(w *World) error
	Reset(w *World) error
}

// BaseSystem provides no-op Setup/Destroy/Reset so concrete systems only
// need to implement Name and register their own tasks.
type BaseSystem struct {
	SystemName string
}

func (b *BaseSystem) Name() string            { return b.SystemName }
func (b *BaseSystem) Setup(w *World) error    { return nil }
func (b *BaseSystem) Destroy(w *World) error  { return nil }
func (b *BaseSystem) Reset(w *World) error    { return nil }
