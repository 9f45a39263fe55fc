package gpu

import (
	"sync"

	"forgelight/internal/framegraph"
)

type fakeImage struct{ name string }

func (i *fakeImage) ImageHandle() any { return i.name }

type fakeBuffer struct{ name string }

func (b *fakeBuffer) BufferHandle() any { return b.name }

type allocatorError string

func (e allocatorError) Error() string { return string(e) }

// fakeBackend is a minimal gpu.Backend double that counts destroy calls.
type fakeBackend struct {
	mu             sync.Mutex
	imagesCreated  int
	buffersCreated int
	imagesDestroyed  []framegraph.PhysicalImage
	buffersDestroyed []framegraph.PhysicalBuffer

	failImages  bool
	failBuffers bool
}

func (b *fakeBackend) CreateImage(desc framegraph.ImageDesc, usage framegraph.Usage) (framegraph.PhysicalImage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failImages {
		return nil, allocatorError("fake backend refused to create image")
	}
	b.imagesCreated++
	return &fakeImage{name: string(desc.Format)}, nil
}

func (b *fakeBackend) CreateBuffer(desc framegraph.BufferDesc, usage framegraph.Usage) (framegraph.PhysicalBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failBuffers {
		return nil, allocatorError("fake backend refused to create buffer")
	}
	b.buffersCreated++
	return &fakeBuffer{name: "buffer"}, nil
}

func (b *fakeBackend) DestroyImage(img framegraph.PhysicalImage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.imagesDestroyed = append(b.imagesDestroyed, img)
}

func (b *fakeBackend) DestroyBuffer(buf framegraph.PhysicalBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffersDestroyed = append(b.buffersDestroyed, buf)
}

func testLimits() Limits {
	return Limits{MaxImageDimension2D: 4096, MaxDescriptorSets: 256, MaxBoundDescriptorSets: 8}
}

func testQueueFamily() QueueFamily {
	return QueueFamily{Name: "main", Graphics: true, Compute: true, Transfer: true}
}

func testMemoryTypes() []MemoryType {
	return []MemoryType{{Name: "device-local", DeviceLocal: true}, {Name: "host-visible", HostVisible: true}}
}
