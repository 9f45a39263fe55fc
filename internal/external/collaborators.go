// Package external declares the Go interfaces for the collaborators spec §6
// names but leaves unimplemented beyond the demo/default backend: shader
// binary loading, the generic asset handle, and the window/swapchain
// surface. Implementations live outside this package (the default being
// internal/render/ebitendevice); forgelight's core never imports a concrete
// one directly.
package external

import "forgelight/internal/ecs"

// ShaderLoader loads opaque compiled shader bytecode for a logical name
// (spec §6 "Shader binary loading"). The core neither compiles shaders nor
// parses reflection from them — which bindings a pass uses is declared
// explicitly through the frame-graph pass builder instead.
type ShaderLoader interface {
	LoadSPIRV(name string) ([]byte, error)
}

// AssetPtr is a generic externally-owned asset handle (spec §6 "Asset
// store"): textures, meshes, materials used only as pass inputs, never
// owned or interpreted by the core.
type AssetPtr[T any] struct {
	Name  string
	Value T
}

// NewAssetPtr wraps value under name.
func NewAssetPtr[T any](name string, value T) AssetPtr[T] {
	return AssetPtr[T]{Name: name, Value: value}
}

// FrameSync carries the per-frame synchronization objects a Window hands
// back on acquire (spec §6 "image-available, render-complete, in-flight
// fence").
type FrameSync struct {
	ImageAvailable uint64
	RenderComplete uint64
	InFlightFence  uint64
}

// FrameToken identifies one acquired swapchain image and its sync objects.
type FrameToken struct {
	ImageIndex int
	Sync       FrameSync
}

// Window is the external swapchain collaborator (spec §6 "Window/
// swapchain"): a queue of image indices to render into, plus per-frame
// synchronization objects. Present submits the recorded buffer with the
// provided waits/signals and issues the present.
type Window interface {
	AcquireNextImage() (FrameToken, error)
	Present(token FrameToken, waitOn uint64) error
}

// Archive re-exports the ECS persistence abstraction (spec §6 "Persisted
// state") so external collaborator code depends on this package rather
// than reaching into internal/ecs directly.
type Archive = ecs.Archive
