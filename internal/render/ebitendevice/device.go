// Package ebitendevice is forgelight's default graphics-driver and
// window/swapchain backend, built on github.com/hajimehoshi/ebiten/v2
// (SPEC_FULL.md §2 "Window/device backend"). It satisfies gpu.Backend and
// external.Window by emulating the capabilities spec §6 requires — ebiten
// has no timeline semaphores or explicit barriers, so Window stands in a
// monotonic frame counter for the per-frame sync objects, and Backend's
// DestroyImage/DestroyBuffer run synchronously rather than against a real
// fence (spec §6 permits this: "implementations for other APIs are
// permitted provided the above capabilities are emulated").
package ebitendevice

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"forgelight/internal/external"
	"forgelight/internal/framegraph"
	"forgelight/internal/gpu"
)

// Image wraps an *ebiten.Image as a framegraph.PhysicalImage.
type Image struct {
	img  *ebiten.Image
	desc framegraph.ImageDesc
}

// ImageHandle satisfies framegraph.PhysicalImage.
func (i *Image) ImageHandle() any { return i.img }

// Ebiten returns the underlying *ebiten.Image for draw calls.
func (i *Image) Ebiten() *ebiten.Image { return i.img }

// Buffer emulates a storage/uniform buffer as a plain byte slice — ebiten
// has no compute-buffer concept, so CPU-visible/mapped buffers simply read
// and write this slice directly.
type Buffer struct {
	mu   sync.Mutex
	data []byte
	desc framegraph.BufferDesc
}

// BufferHandle satisfies framegraph.PhysicalBuffer.
func (b *Buffer) BufferHandle() any { return b }

// Bytes returns a copy of the buffer's current contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Write overwrites data starting at offset.
func (b *Buffer) Write(offset int, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.data[offset:], data)
}

// Backend implements gpu.Backend on top of ebiten's image allocation.
type Backend struct{}

// NewBackend creates an ebiten-backed gpu.Backend.
func NewBackend() *Backend { return &Backend{} }

// CreateImage allocates a new *ebiten.Image sized per desc.
func (b *Backend) CreateImage(desc framegraph.ImageDesc, usage framegraph.Usage) (framegraph.PhysicalImage, error) {
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return nil, fmt.Errorf("ebitendevice: zero-sized image")
	}
	img := ebiten.NewImage(int(desc.Extent.Width), int(desc.Extent.Height))
	return &Image{img: img, desc: desc}, nil
}

// CreateBuffer allocates a zeroed byte slice sized per desc.
func (b *Backend) CreateBuffer(desc framegraph.BufferDesc, usage framegraph.Usage) (framegraph.PhysicalBuffer, error) {
	size := int(desc.ElementSize) * int(desc.ElementCount)
	if size <= 0 {
		return nil, fmt.Errorf("ebitendevice: zero-sized buffer")
	}
	return &Buffer{data: make([]byte, size), desc: desc}, nil
}

// DestroyImage releases the underlying *ebiten.Image.
func (b *Backend) DestroyImage(img framegraph.PhysicalImage) {
	if i, ok := img.(*Image); ok && i.img != nil {
		i.img.Deallocate()
		i.img = nil
	}
}

// DestroyBuffer drops the buffer's backing slice.
func (b *Backend) DestroyBuffer(buf framegraph.PhysicalBuffer) {
	if bb, ok := buf.(*Buffer); ok {
		bb.mu.Lock()
		bb.data = nil
		bb.mu.Unlock()
	}
}

// Window emulates spec §6's swapchain over ebiten's Draw callback: there is
// exactly one "image" (the screen ebiten hands Draw each frame), and a
// monotonic frame counter stands in for image-available/render-complete/
// in-flight-fence sync objects.
type Window struct {
	mu     sync.Mutex
	screen *ebiten.Image
	frame  uint64
}

// SetScreen records the *ebiten.Image passed to this frame's Draw call.
func (w *Window) SetScreen(screen *ebiten.Image) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.screen = screen
}

// Screen returns the most recently set draw target.
func (w *Window) Screen() *ebiten.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.screen
}

// AcquireNextImage always returns image index 0 (the screen), stamped with
// the next frame counter value standing in for each sync object.
func (w *Window) AcquireNextImage() (external.FrameToken, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame++
	sync := external.FrameSync{ImageAvailable: w.frame, RenderComplete: w.frame, InFlightFence: w.frame}
	return external.FrameToken{ImageIndex: 0, Sync: sync}, nil
}

// Present is a no-op: ebiten's own run loop presents the screen once Draw
// returns, so there is nothing left to submit here.
func (w *Window) Present(token external.FrameToken, waitOn uint64) error {
	return nil
}

var (
	_ external.Window = (*Window)(nil)
	_ gpu.Backend     = (*Backend)(nil)
)
