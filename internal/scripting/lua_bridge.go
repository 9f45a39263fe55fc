// Package scripting adapts Lua scripts into C7 systems, exposing a small
// ECS API table to the VM (SPEC_FULL.md §2 "Scripting"). It is grounded on
// totodo713-vamplite's internal/core/ecs/lua/lua_bridge.go: same
// gopher-lua VM-creation and Go<->Lua table-conversion shape, with the
// sandboxing/permission surface dropped (DESIGN.md "Dropped teacher
// scaffolding") since this spec names no script-trust boundary.
package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"forgelight/internal/ecs"
)

// ScriptedSystem adapts a Lua script into a C7 System/task: its Setup hook
// creates a VM and binds the "ecs" global table, and Task returns a
// TaskFunc the scheduler invokes like any native system's.
type ScriptedSystem struct {
	ecs.BaseSystem
	scriptPath string
	tickFn     string
	state      *lua.LState
}

// NewScriptedSystem creates a scripted system named name that will load
// source from path and call its "on_tick" global once per dispatch.
func NewScriptedSystem(name, path string) *ScriptedSystem {
	s := &ScriptedSystem{scriptPath: path, tickFn: "on_tick"}
	s.SystemName = name
	return s
}

// Setup creates the Lua state, registers the ECS API, and loads the script
// (spec grounding: lua_bridge.go's CreateVM + LoadScript + RegisterECSAPI,
// collapsed into one hook since C7's System.Setup is the only lifecycle
// point a scripted system needs before scheduling its task).
func (s *ScriptedSystem) Setup(w *ecs.World) error {
	s.state = lua.NewState()
	registerECSAPI(s.state, w)
	if err := s.state.DoFile(s.scriptPath); err != nil {
		s.state.Close()
		return fmt.Errorf("scripting: load %s: %w", s.scriptPath, err)
	}
	return nil
}

// Destroy closes the Lua state.
func (s *ScriptedSystem) Destroy(w *ecs.World) error {
	if s.state != nil {
		s.state.Close()
		s.state = nil
	}
	return nil
}

// Task returns the TaskFunc to register with the scheduler (spec §4.7):
// calling the script's on_tick global, if it defined one.
func (s *ScriptedSystem) Task() ecs.TaskFunc {
	return func(args ecs.TaskArgs) {
		fn := s.state.GetGlobal(s.tickFn)
		if fn.Type() != lua.LTFunction {
			return
		}
		if err := s.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
			args.World.Logger("scripting: %s: on_tick: %v", s.Name(), err)
		}
	}
}

// registerECSAPI binds a restricted entity/tag surface to the VM's global
// "ecs" table, the way lua_bridge.go's RegisterECSAPI wires a ModECSAPI.
func registerECSAPI(L *lua.LState, w *ecs.World) {
	ecsTable := L.NewTable()

	L.SetField(ecsTable, "create_entity", L.NewFunction(func(L *lua.LState) int {
		id := w.CreateEntity()
		L.Push(lua.LNumber(packEntityID(id)))
		return 1
	}))

	L.SetField(ecsTable, "remove_entity", L.NewFunction(func(L *lua.LState) int {
		w.RemoveEntity(unpackEntityID(uint64(L.CheckNumber(1))))
		return 0
	}))

	L.SetField(ecsTable, "exists", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(w.Exists(unpackEntityID(uint64(L.CheckNumber(1))))))
		return 1
	}))

	L.SetField(ecsTable, "add_tag", L.NewFunction(func(L *lua.LState) int {
		id := unpackEntityID(uint64(L.CheckNumber(1)))
		if err := w.AddTag(id, L.CheckString(2)); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}))

	L.SetField(ecsTable, "remove_tag", L.NewFunction(func(L *lua.LState) int {
		id := unpackEntityID(uint64(L.CheckNumber(1)))
		if err := w.RemoveTag(id, L.CheckString(2)); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}))

	L.SetField(ecsTable, "has_tag", L.NewFunction(func(L *lua.LState) int {
		id := unpackEntityID(uint64(L.CheckNumber(1)))
		L.Push(lua.LBool(w.HasTag(id, L.CheckString(2))))
		return 1
	}))

	L.SetGlobal("ecs", ecsTable)
}

func packEntityID(id ecs.EntityID) uint64 {
	return uint64(id.Index)<<32 | uint64(id.Version)
}

func unpackEntityID(k uint64) ecs.EntityID {
	return ecs.EntityID{Index: uint32(k >> 32), Version: uint32(k)}
}
