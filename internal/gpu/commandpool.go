package gpu

import "sync"

// CommandBufferState tracks a command buffer's lifecycle (spec §4.12
// "Command buffer data").
type CommandBufferState int

const (
	CmdBufferReady CommandBufferState = iota
	CmdBufferRecording
	CmdBufferPending
)

// CommandBuffer tracks owning pool, resource-fence (assigned on
// allocation), timeline-fence (assigned on submission), and secondary
// command buffers it executes (spec §4.12).
type CommandBuffer struct {
	pool          *CommandPool
	resourceFence uint64
	timelineFence uint64
	secondary     []*CommandBuffer
	waitsOn       []*CommandBuffer
	state         CommandBufferState
}

// ExecuteSecondary records sec as a secondary buffer this one executes.
func (cb *CommandBuffer) ExecuteSecondary(sec *CommandBuffer) {
	cb.secondary = append(cb.secondary, sec)
}

// ResourceFence returns the resource-fence value stamped at allocation.
func (cb *CommandBuffer) ResourceFence() uint64 { return cb.resourceFence }

// State returns the command buffer's current lifecycle state.
func (cb *CommandBuffer) State() CommandBufferState { return cb.state }

// CommandPool is one pool per (thread, queue family) (spec §4.12, §4.13
// "per-thread scratch device"). Command buffers are allocated from it,
// reset-then-reused after completion.
type CommandPool struct {
	mu       sync.Mutex
	device   *Device
	family   string
	released []*CommandBuffer
}

func newCommandPool(device *Device, family string) *CommandPool {
	return &CommandPool{device: device, family: family}
}

// Alloc pulls a ready command buffer from the released list, or creates a
// new one (spec §4.12 "handed out via alloc() which either pulls a ready
// one from the released list or creates a new one").
func (p *CommandPool) Alloc() *CommandBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.released); n > 0 {
		cb := p.released[n-1]
		p.released = p.released[:n-1]
		cb.state = CmdBufferRecording
		cb.secondary = nil
		cb.waitsOn = nil
		cb.resourceFence = p.device.CreateFence()
		return cb
	}
	return &CommandBuffer{
		pool:          p,
		state:         CmdBufferRecording,
		resourceFence: p.device.CreateFence(),
	}
}

// release returns cb to this pool's released list once the lifetime
// manager has observed its timeline-fence complete.
func (p *CommandPool) release(cb *CommandBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb.state = CmdBufferReady
	p.released = append(p.released, cb)
}

// Family returns the queue family this pool was created for.
func (p *CommandPool) Family() string { return p.family }
