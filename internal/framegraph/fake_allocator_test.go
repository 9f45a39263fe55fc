package framegraph

// fakeImage and fakeBuffer are the minimal PhysicalImage/PhysicalBuffer
// implementations the test allocator hands back.
type fakeImage struct{ name string }

func (i *fakeImage) ImageHandle() any { return i.name }

type fakeBuffer struct{ name string }

func (b *fakeBuffer) BufferHandle() any { return b.name }

// fakeAllocator is a minimal Allocator double recording every call the
// compiler makes against it, with optional forced failures for error-path
// tests.
type fakeAllocator struct {
	nextFence      uint64
	imagesCreated  int
	buffersCreated int
	released       []uint64
	failImages     bool
	failBuffers    bool
}

func (a *fakeAllocator) AllocateImage(desc ImageDesc, usage Usage) (PhysicalImage, error) {
	if a.failImages {
		return nil, errAllocatorRefused
	}
	a.imagesCreated++
	return &fakeImage{name: string(desc.Format)}, nil
}

func (a *fakeAllocator) AllocateBuffer(desc BufferDesc, usage Usage) (PhysicalBuffer, error) {
	if a.failBuffers {
		return nil, errAllocatorRefused
	}
	a.buffersCreated++
	return &fakeBuffer{name: "buffer"}, nil
}

func (a *fakeAllocator) ReleaseImageLater(img PhysicalImage, fence uint64) {
	a.released = append(a.released, fence)
}

func (a *fakeAllocator) ReleaseBufferLater(buf PhysicalBuffer, fence uint64) {
	a.released = append(a.released, fence)
}

func (a *fakeAllocator) CreateFence() uint64 {
	a.nextFence++
	return a.nextFence
}

type allocatorError string

func (e allocatorError) Error() string { return string(e) }

const errAllocatorRefused = allocatorError("fakeAllocator: refused")
