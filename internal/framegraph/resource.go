package framegraph

// ResourceID is an opaque handle to a virtual resource declared within one
// graph build (spec §4.9). IDs are only meaningful within the Graph that
// issued them.
type ResourceID uint32

// ImageFormat is a declared pixel format. forgelight does not prescribe a
// graphics-API binding (spec §1 Non-goals); these are logical tags the
// driver's Allocator maps onto concrete formats.
type ImageFormat string

const (
	FormatR8        ImageFormat = "R8"
	FormatRGBA8     ImageFormat = "RGBA8"
	FormatRGBA16F   ImageFormat = "RGBA16F"
	FormatDepth32F  ImageFormat = "DEPTH32F"
)

// Usage is a bitmask of the intended access modes accumulated from a
// resource's edges (spec §4.10): each declaration both records an edge and
// extends the resource's accumulated usage set.
type Usage uint32

const (
	UsageColorAttachment Usage = 1 << iota
	UsageDepthAttachment
	UsageUniformRead
	UsageStorageRead
	UsageStorageWrite
	UsageTransferSrc
	UsageTransferDst
	UsageCPUMapped
)

func (u Usage) has(flag Usage) bool { return u&flag != 0 }

// compatible reports whether two resources' declared usages may safely
// alias the same physical allocation (spec §4.11 step 3): neither may
// require CPU-mapped persistence (those are never aliased), since a mapped
// pointer must stay stable for the pass's lifetime.
func (u Usage) compatible(other Usage) bool {
	return !u.has(UsageCPUMapped) && !other.has(UsageCPUMapped)
}

// Kind distinguishes an image resource from a buffer resource.
type Kind int

const (
	KindImage Kind = iota
	KindBuffer
)

// ImageExtent is a declared image size (spec §4.9 "declared format/size").
type ImageExtent struct {
	Width, Height uint32
	MipLevels     uint32
}

// ImageDesc fully describes a declared image resource.
type ImageDesc struct {
	Format ImageFormat
	Extent ImageExtent
}

// BufferDesc fully describes a declared buffer resource.
type BufferDesc struct {
	ElementSize  uint32
	ElementCount uint32
	CPUVisible   bool
}

// PersistentID is a process-global token re-binding a resource to its value
// from the prior frame (spec §4.9 "Persistent IDs").
type PersistentID string

// resource is one virtual resource declared within a single graph build.
type resource struct {
	id     ResourceID
	kind   Kind
	image  ImageDesc
	buffer BufferDesc
	usage  Usage

	persistent PersistentID

	// copyOf is set for resources created by DeclareCopy: the compiler may
	// choose to materialize this resource as the same physical allocation
	// as copyOf *after* its producing pass, or as a true copy, depending on
	// usage conflicts (spec §4.10 declare_copy).
	copyOf ResourceID
	isCopy bool

	// firstPass/lastPass are computed by the compiler's lifetime pass
	// (spec §4.11 step 2); -1 until then.
	firstPass int
	lastPass  int

	// writers/readers are the pass indices that write/read this resource,
	// in declaration order, used for topological ordering, lifetime
	// computation and the mandatory-producer check (MissingInput). Barriers
	// are computed from the passes' edges, not from these lists.
	writers []int
	readers []int

	mapped      bool
	mapInitial  []byte
}

// PhysicalImage is the driver-side handle a compiled image resource
// resolves to; opaque to the frame graph itself (spec §6 "the core treats
// these as externally owned").
type PhysicalImage interface {
	ImageHandle() any
}

// PhysicalBuffer is the driver-side handle a compiled buffer resource
// resolves to.
type PhysicalBuffer interface {
	BufferHandle() any
}

// Allocator is the thin dispatch layer the compiler allocates physical
// resources through (spec §6 "Graphics driver"). A concrete Device
// implementation (internal/gpu, or a test double) satisfies this.
type Allocator interface {
	AllocateImage(desc ImageDesc, usage Usage) (PhysicalImage, error)
	AllocateBuffer(desc BufferDesc, usage Usage) (PhysicalBuffer, error)
	ReleaseImageLater(img PhysicalImage, fence uint64)
	ReleaseBufferLater(buf PhysicalBuffer, fence uint64)
	CreateFence() uint64
}

// PersistentStore holds the physical backing of persistent resources across
// frames (spec §4.9 "Persistent IDs", §4.11 step 6).
type PersistentStore struct {
	images  map[PersistentID]PhysicalImage
	buffers map[PersistentID]PhysicalBuffer
}

// NewPersistentStore creates an empty cross-frame persistent store.
func NewPersistentStore() *PersistentStore {
	return &PersistentStore{
		images:  make(map[PersistentID]PhysicalImage),
		buffers: make(map[PersistentID]PhysicalBuffer),
	}
}

func (s *PersistentStore) priorImage(id PersistentID) (PhysicalImage, bool) {
	img, ok := s.images[id]
	return img, ok
}

func (s *PersistentStore) priorBuffer(id PersistentID) (PhysicalBuffer, bool) {
	buf, ok := s.buffers[id]
	return buf, ok
}
