package gpu

import (
	"context"
	"sort"
	"sync"
	"time"

	"forgelight/internal/framegraph"
)

type resourceKind int

const (
	kindImage resourceKind = iota
	kindBuffer
)

// deferredResource is one tagged-variant entry in the destruction queue
// (spec §4.12 "accepts any GPU resource handle ... as a tagged variant").
type deferredResource struct {
	fence  uint64
	kind   resourceKind
	image  framegraph.PhysicalImage
	buffer framegraph.PhysicalBuffer
}

// LifetimeManager is the background collector of spec §4.12: it waits for
// timeline progress, returns completed command buffers to their pool in
// fence order, and destroys deferred resources whose fence has completed.
// Grounded on original_source/yave/graphics/device/LifetimeManager.cpp.
// Pending command buffers and deferred destructions are held in plain
// slices that poll sorts by fence; neither is a ring buffer.
type LifetimeManager struct {
	timeline *Timeline
	backend  Backend

	mu           sync.Mutex
	pendingCmds  []*CommandBuffer
	destructions []deferredResource
}

func newLifetimeManager(timeline *Timeline, backend Backend) *LifetimeManager {
	return &LifetimeManager{timeline: timeline, backend: backend}
}

func (lm *LifetimeManager) registerPending(cb *CommandBuffer) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.pendingCmds = append(lm.pendingCmds, cb)
}

func (lm *LifetimeManager) deferDestroyImage(img framegraph.PhysicalImage, fence uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.destructions = append(lm.destructions, deferredResource{fence: fence, kind: kindImage, image: img})
}

func (lm *LifetimeManager) deferDestroyBuffer(buf framegraph.PhysicalBuffer, fence uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.destructions = append(lm.destructions, deferredResource{fence: fence, kind: kindBuffer, buffer: buf})
}

// highestPending reports the highest timeline value among in-flight command
// buffers (0 when none), used by WaitCmdBuffers to decide what to wait for.
func (lm *LifetimeManager) highestPending() uint64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	var max uint64
	for _, cb := range lm.pendingCmds {
		if cb.timelineFence > max {
			max = cb.timelineFence
		}
	}
	return max
}

// poll performs one collection pass (spec §4.12 "Lifetime manager" steps
// 1-2), releasing ready command buffers in fence order and destroying every
// resource whose fence has completed.
func (lm *LifetimeManager) poll(ready uint64) {
	lm.mu.Lock()
	sort.Slice(lm.pendingCmds, func(i, j int) bool {
		return lm.pendingCmds[i].timelineFence < lm.pendingCmds[j].timelineFence
	})
	var stillPending []*CommandBuffer
	for _, cb := range lm.pendingCmds {
		if cb.timelineFence <= ready {
			cb.pool.release(cb)
		} else {
			stillPending = append(stillPending, cb)
		}
	}
	lm.pendingCmds = stillPending

	sort.Slice(lm.destructions, func(i, j int) bool { return lm.destructions[i].fence < lm.destructions[j].fence })
	var toDestroy, remaining []deferredResource
	for _, d := range lm.destructions {
		if d.fence <= ready {
			toDestroy = append(toDestroy, d)
		} else {
			remaining = append(remaining, d)
		}
	}
	lm.destructions = remaining
	lm.mu.Unlock()

	for _, d := range toDestroy {
		switch d.kind {
		case kindImage:
			lm.backend.DestroyImage(d.image)
		case kindBuffer:
			lm.backend.DestroyBuffer(d.buffer)
		}
	}
}

// Run is the background collector goroutine, spawned via errgroup (spec §2
// domain stack). It waits far longer than the submission-wait default
// because an idle collector waiting for the *next* fence is normal, not an
// error condition — only context cancellation is a real stop signal here.
func (lm *LifetimeManager) Run(ctx context.Context) error {
	lastSeen := uint64(0)
	for {
		if err := lm.timeline.Wait(ctx, lastSeen+1, 24*time.Hour); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		ready := lm.timeline.ReadyValue()
		lm.poll(ready)
		lastSeen = ready
	}
}
