package gpu

import "sync"

// Queue serializes submission by a per-queue mutex (spec §4.12 "Queue
// submission. Submissions are serialized by a per-queue mutex").
type Queue struct {
	mu            sync.Mutex
	device        *Device
	name          string
	deferredStart []*CommandBuffer
}

func newQueue(device *Device, name string) *Queue {
	return &Queue{device: device, name: name}
}

// Name returns the queue's label ("graphics" or "loader").
func (q *Queue) Name() string { return q.name }

// SubmitDeferred registers cb as "submit now, start later" (spec §4.12 step
// 2): rather than being assigned a timeline value immediately, it is
// chained as a wait-prerequisite of this queue's next real Submit call.
// Grounded on original_source/yave/graphics/commands/CmdQueue.cpp.
func (q *Queue) SubmitDeferred(cb *CommandBuffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cb.state = CmdBufferPending
	q.deferredStart = append(q.deferredStart, cb)
}

// Submit performs the submission protocol of spec §4.12 steps 1-5: assigns
// the next timeline value, chains any deferred-start buffers this queue is
// holding as prerequisites, and registers cb with the lifetime manager as
// pending. librarySignal, if non-nil, receives the assigned timeline value
// (spec step 4, "atomically with a library fence if provided" — used for
// swapchain present).
func (q *Queue) Submit(cb *CommandBuffer, librarySignal *uint64) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.deferredStart) > 0 {
		cb.waitsOn = append(cb.waitsOn, q.deferredStart...)
		q.deferredStart = nil
	}

	value := q.device.timeline.nextValue()
	cb.timelineFence = value
	cb.state = CmdBufferPending
	q.device.lifetime.registerPending(cb)

	if librarySignal != nil {
		*librarySignal = value
	}
	return value
}
