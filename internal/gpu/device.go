package gpu

import (
	"context"
	"fmt"
	"sync"

	"forgelight/internal/framegraph"

	"golang.org/x/sync/errgroup"
)

// Backend creates and destroys the concrete physical resources a Device
// hands out; the default implementation is internal/render/ebitendevice,
// built on github.com/hajimehoshi/ebiten/v2 (spec §6 "Graphics driver").
type Backend interface {
	CreateImage(desc framegraph.ImageDesc, usage framegraph.Usage) (framegraph.PhysicalImage, error)
	CreateBuffer(desc framegraph.BufferDesc, usage framegraph.Usage) (framegraph.PhysicalBuffer, error)
	DestroyImage(img framegraph.PhysicalImage)
	DestroyBuffer(buf framegraph.PhysicalBuffer)
}

// Limits is a subset of physical-device limits consulted by the frame-graph
// compiler and pass builders (spec §4.13 "physical-device properties
// (limits ...)").
type Limits struct {
	MaxImageDimension2D   uint32
	MaxDescriptorSets     uint32
	MaxBoundDescriptorSets uint32
}

// QueueFamily describes the chosen logical-device queue family (spec §4.13
// "a logical device with a chosen queue family supporting
// graphics+compute+transfer").
type QueueFamily struct {
	Name      string
	Graphics  bool
	Compute   bool
	Transfer  bool
}

// MemoryType is one physical-device memory type (spec §4.13 "memory
// types").
type MemoryType struct {
	Name        string
	HostVisible bool
	DeviceLocal bool
}

// DescriptorAllocator is the device's single shared descriptor-set
// allocator (spec §4.13 "one shared descriptor-set allocator").
type DescriptorAllocator struct {
	mu   sync.Mutex
	next int
}

// Allocate returns the next monotonically increasing descriptor-set slot.
func (a *DescriptorAllocator) Allocate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next
}

// Device is the logical device of spec §4.13: physical-device properties, a
// graphics queue and a dedicated loader queue, a shared descriptor
// allocator, per-thread scratch command pools, and the C12 lifetime
// manager. It satisfies framegraph.Allocator directly.
type Device struct {
	Backend     Backend
	Limits      Limits
	QueueFamily QueueFamily
	MemoryTypes []MemoryType
	Descriptors *DescriptorAllocator
	Logger      func(format string, args ...any)

	GraphicsQueue *Queue
	LoaderQueue   *Queue

	timeline       *Timeline
	resourceFences *fenceCounter
	lifetime       *LifetimeManager

	poolsMu sync.Mutex
	pools   map[string]*CommandPool

	rayTracingEnabled bool

	resourceBudget int // 0 means unbounded
	resourceMu     sync.Mutex
	resourceCount  int

	defaultsMu sync.Mutex
	defaults   map[string]framegraph.PhysicalImage
}

// Option configures a Device at construction.
type Option func(*Device)

// WithResourceBudget bounds the number of live (non-released) physical
// resources a Device will allocate before AllocateImage/AllocateBuffer
// fail with OutOfMemory (spec §5 "the allocator may fail with
// OutOfMemory instead").
func WithResourceBudget(max int) Option {
	return func(d *Device) { d.resourceBudget = max }
}

// WithRayTracing records whether the backend detected ray-tracing support
// at device creation (spec §4.13 "Ray-tracing is optional and detected at
// device creation").
func WithRayTracing(supported bool) Option {
	return func(d *Device) { d.rayTracingEnabled = supported }
}

// NewDevice constructs a logical device over backend, creates its graphics
// and loader queues, and materializes the default placeholder resources
// (spec: original_source/yave/graphics/device/DeviceResources.h — a 1x1
// white texture and a default normal map, created once at device init).
func NewDevice(backend Backend, limits Limits, queueFamily QueueFamily, memTypes []MemoryType, opts ...Option) (*Device, error) {
	d := &Device{
		Backend:        backend,
		Limits:         limits,
		QueueFamily:    queueFamily,
		MemoryTypes:    memTypes,
		Descriptors:    &DescriptorAllocator{},
		timeline:       NewTimeline(),
		resourceFences: &fenceCounter{},
		pools:          make(map[string]*CommandPool),
		defaults:       make(map[string]framegraph.PhysicalImage),
		Logger:         func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lifetime = newLifetimeManager(d.timeline, backend)
	d.GraphicsQueue = newQueue(d, "graphics")
	d.LoaderQueue = newQueue(d, "loader")

	if err := d.createDefaultResources(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) createDefaultResources() error {
	white, err := d.Backend.CreateImage(framegraph.ImageDesc{
		Format: framegraph.FormatRGBA8,
		Extent: framegraph.ImageExtent{Width: 1, Height: 1, MipLevels: 1},
	}, framegraph.UsageUniformRead)
	if err != nil {
		return newErr(ErrDriverError, fmt.Sprintf("create default white texture: %v", err))
	}
	normal, err := d.Backend.CreateImage(framegraph.ImageDesc{
		Format: framegraph.FormatRGBA8,
		Extent: framegraph.ImageExtent{Width: 1, Height: 1, MipLevels: 1},
	}, framegraph.UsageUniformRead)
	if err != nil {
		return newErr(ErrDriverError, fmt.Sprintf("create default normal map: %v", err))
	}
	d.defaults["white"] = white
	d.defaults["normal"] = normal
	return nil
}

// DefaultResources returns the named placeholder handles created at device
// init (spec supplement: DeviceResources.h).
func (d *Device) DefaultResources() map[string]framegraph.PhysicalImage {
	d.defaultsMu.Lock()
	defer d.defaultsMu.Unlock()
	out := make(map[string]framegraph.PhysicalImage, len(d.defaults))
	for k, v := range d.defaults {
		out[k] = v
	}
	return out
}

// RayTracingEnabled reports whether this device was created with
// ray-tracing support; code paths that would use it must degrade when
// false (spec §4.13).
func (d *Device) RayTracingEnabled() bool { return d.rayTracingEnabled }

// Start spawns the background lifetime-collector goroutine via errgroup,
// returning when ctx is cancelled or the collector errors.
func (d *Device) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.lifetime.Run(gctx) })
	return g.Wait()
}

// ScratchPool returns the command pool for threadKey (any caller-chosen key
// identifying the calling thread/goroutine), lazily creating one on first
// touch (spec §4.13 "a per-thread scratch device that lazily creates
// command pools on first touch from a new thread").
func (d *Device) ScratchPool(threadKey string) *CommandPool {
	d.poolsMu.Lock()
	defer d.poolsMu.Unlock()
	if p, ok := d.pools[threadKey]; ok {
		return p
	}
	p := newCommandPool(d, d.QueueFamily.Name)
	d.pools[threadKey] = p
	return p
}

// CreateFence satisfies framegraph.Allocator and the C12 contract
// "create_fence() returns a monotonically increasing resource-fence value".
func (d *Device) CreateFence() uint64 {
	return d.resourceFences.next()
}

func (d *Device) reserveBudget() error {
	if d.resourceBudget == 0 {
		return nil
	}
	d.resourceMu.Lock()
	defer d.resourceMu.Unlock()
	if d.resourceCount >= d.resourceBudget {
		return newErr(ErrOutOfMemory, "resource budget exhausted")
	}
	d.resourceCount++
	return nil
}

func (d *Device) releaseBudget() {
	if d.resourceBudget == 0 {
		return
	}
	d.resourceMu.Lock()
	defer d.resourceMu.Unlock()
	if d.resourceCount > 0 {
		d.resourceCount--
	}
}

// AllocateImage satisfies framegraph.Allocator.
func (d *Device) AllocateImage(desc framegraph.ImageDesc, usage framegraph.Usage) (framegraph.PhysicalImage, error) {
	if err := d.reserveBudget(); err != nil {
		return nil, err
	}
	img, err := d.Backend.CreateImage(desc, usage)
	if err != nil {
		d.releaseBudget()
		return nil, newErr(ErrDriverError, err.Error())
	}
	return img, nil
}

// AllocateBuffer satisfies framegraph.Allocator.
func (d *Device) AllocateBuffer(desc framegraph.BufferDesc, usage framegraph.Usage) (framegraph.PhysicalBuffer, error) {
	if err := d.reserveBudget(); err != nil {
		return nil, err
	}
	buf, err := d.Backend.CreateBuffer(desc, usage)
	if err != nil {
		d.releaseBudget()
		return nil, newErr(ErrDriverError, err.Error())
	}
	return buf, nil
}

// ReleaseImageLater satisfies framegraph.Allocator: defers destruction to
// the lifetime manager until fence completes (C12 destroy_later contract).
func (d *Device) ReleaseImageLater(img framegraph.PhysicalImage, fence uint64) {
	d.releaseBudget()
	d.lifetime.deferDestroyImage(img, fence)
}

// ReleaseBufferLater satisfies framegraph.Allocator.
func (d *Device) ReleaseBufferLater(buf framegraph.PhysicalBuffer, fence uint64) {
	d.releaseBudget()
	d.lifetime.deferDestroyBuffer(buf, fence)
}

// WaitCmdBuffers blocks until every currently-pending command buffer
// completes (C12 contract "wait_cmd_buffers() blocks until all currently-
// pending command buffers complete").
func (d *Device) WaitCmdBuffers(ctx context.Context) error {
	target := d.lifetime.highestPending()
	if target == 0 {
		return nil
	}
	if err := d.timeline.Wait(ctx, target, 0); err != nil {
		return err
	}
	d.lifetime.poll(d.timeline.ReadyValue())
	return nil
}

// NotifyFrameComplete advances the device timeline to value; the backend
// calls this once real (or emulated) GPU work up to that submission is
// known to have finished.
func (d *Device) NotifyFrameComplete(value uint64) {
	d.timeline.Advance(value)
}
