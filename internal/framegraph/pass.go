package framegraph

// Stage is a pipeline stage tag used to compute barrier source/destination
// masks (spec §4.11 step 5). forgelight keeps this as a small open set of
// logical stages rather than binding to one graphics API's exact enum.
type Stage uint32

const (
	StageVertex Stage = 1 << iota
	StageFragment
	StageCompute
	StageTransfer
	StageColorOutput
	StageDepthOutput
)

type edgeAccess int

const (
	accessUniformRead edgeAccess = iota
	accessStorageRead
	accessStorageWrite
	accessColorOutput
	accessDepthOutput
	accessUsageOnly
)

// edge is one (resource, access, stage) record contributed by a pass
// declaration (spec §3 Pass glossary entry).
type edge struct {
	resource ResourceID
	access   edgeAccess
	stage    Stage
}

// recordFunc is a pass's recording closure, invoked by the compiler in
// topological order with a Recorder bound to the pass's resolved physical
// resources and descriptor sets (spec §4.11 step 7).
type recordFunc func(r *Recorder)

// pass is one node of the frame graph.
type pass struct {
	name       string
	edges      []edge
	record     recordFunc
	descSetIdx int // next descriptor-set index to allocate for this pass
}

// Graph accumulates passes and virtual resources for one frame build (spec
// §4.9, §4.10). It is single-use: call Compile once, then discard it.
type Graph struct {
	resources []*resource
	passes    []*pass
	persist   *PersistentStore
	allocator Allocator

	nextResourceID ResourceID
}

// NewGraph creates a graph that will compile against allocator, with
// persist carrying cross-frame persistent resource bindings.
func NewGraph(allocator Allocator, persist *PersistentStore) *Graph {
	return &Graph{allocator: allocator, persist: persist}
}

func (g *Graph) newResource(kind Kind) *resource {
	g.nextResourceID++
	r := &resource{id: g.nextResourceID, kind: kind, firstPass: -1, lastPass: -1}
	g.resources = append(g.resources, r)
	return r
}

func (g *Graph) resourceByID(id ResourceID) *resource {
	for _, r := range g.resources {
		if r.id == id {
			return r
		}
	}
	return nil
}

// AddPass registers a new pass named name; build populates its edges via
// the supplied PassBuilder, and record is invoked at compile time once the
// pass's resources are physically bound.
func (g *Graph) AddPass(name string, build func(b *PassBuilder), record recordFunc) {
	p := &pass{name: name, record: record}
	g.passes = append(g.passes, p)
	passIndex := len(g.passes) - 1
	b := &PassBuilder{g: g, p: p, passIndex: passIndex}
	build(b)
}

// PassBuilder exposes one pass's resource declarations (spec §4.10). Each
// declaration both extends the pass's edge list and contributes to the
// referenced resource's accumulated usage set.
type PassBuilder struct {
	g         *Graph
	p         *pass
	passIndex int
}

// DeclareImage allocates a new virtual image resource with the given
// persistent id (may be "" for a purely per-frame resource).
func (b *PassBuilder) DeclareImage(format ImageFormat, extent ImageExtent, persistent PersistentID) ResourceID {
	r := b.g.newResource(KindImage)
	r.image = ImageDesc{Format: format, Extent: extent}
	r.persistent = persistent
	r.writers = append(r.writers, b.passIndex)
	return r.id
}

// DeclareBuffer allocates a new virtual buffer resource.
func (b *PassBuilder) DeclareBuffer(elementSize, elementCount uint32, persistent PersistentID) ResourceID {
	r := b.g.newResource(KindBuffer)
	r.buffer = BufferDesc{ElementSize: elementSize, ElementCount: elementCount}
	r.persistent = persistent
	r.writers = append(r.writers, b.passIndex)
	return r.id
}

// DeclareCopy declares a write-dependency chain producing a new virtual
// resource with src's format/size (spec §4.10 declare_copy). The compiler
// may materialize it as the same physical resource after src's producer, or
// as a true copy, depending on usage compatibility.
func (b *PassBuilder) DeclareCopy(src ResourceID) ResourceID {
	srcRes := b.g.resourceByID(src)
	if srcRes == nil {
		return 0
	}
	r := b.g.newResource(srcRes.kind)
	r.image = srcRes.image
	r.buffer = srcRes.buffer
	r.copyOf = src
	r.isCopy = true
	r.writers = append(r.writers, b.passIndex)
	srcRes.readers = append(srcRes.readers, b.passIndex)
	b.p.edges = append(b.p.edges, edge{resource: src, access: accessStorageRead, stage: StageTransfer})
	return r.id
}

func (b *PassBuilder) addRead(id ResourceID, access edgeAccess, stage Stage, usage Usage) {
	r := b.g.resourceByID(id)
	if r == nil {
		return
	}
	r.usage |= usage
	r.readers = append(r.readers, b.passIndex)
	b.p.edges = append(b.p.edges, edge{resource: id, access: access, stage: stage})
}

func (b *PassBuilder) addWrite(id ResourceID, access edgeAccess, stage Stage, usage Usage) {
	r := b.g.resourceByID(id)
	if r == nil {
		return
	}
	r.usage |= usage
	r.writers = append(r.writers, b.passIndex)
	b.p.edges = append(b.p.edges, edge{resource: id, access: access, stage: stage})
}

// AddUniformInput declares a read-only descriptor input.
func (b *PassBuilder) AddUniformInput(id ResourceID, stage Stage) {
	b.addRead(id, accessUniformRead, stage, UsageUniformRead)
}

// AddStorageInput declares a read-only storage input.
func (b *PassBuilder) AddStorageInput(id ResourceID, stage Stage) {
	b.addRead(id, accessStorageRead, stage, UsageStorageRead)
}

// AddStorageOutput declares a read-write storage output, extending the
// resource's writer chain.
func (b *PassBuilder) AddStorageOutput(id ResourceID, stage Stage) {
	b.addWrite(id, accessStorageWrite, stage, UsageStorageWrite)
}

// AddColorOutput declares image as a color-attachment output.
func (b *PassBuilder) AddColorOutput(image ResourceID) {
	b.addWrite(image, accessColorOutput, StageColorOutput, UsageColorAttachment)
}

// AddDepthOutput declares image as a depth-attachment output.
func (b *PassBuilder) AddDepthOutput(image ResourceID) {
	b.addWrite(image, accessDepthOutput, StageDepthOutput, UsageDepthAttachment)
}

// AddInputUsage declares an additional usage flag on a resource without
// creating a read/write edge (spec §4.10 add_input_usage).
func (b *PassBuilder) AddInputUsage(id ResourceID, usage Usage) {
	r := b.g.resourceByID(id)
	if r == nil {
		return
	}
	r.usage |= usage
	b.p.edges = append(b.p.edges, edge{resource: id, access: accessUsageOnly})
}

// MapBuffer marks buffer CPU-visible and persistently mapped during pass
// execution (spec §4.10 map_buffer); mapped resources are never aliased
// (Usage.compatible).
func (b *PassBuilder) MapBuffer(buffer ResourceID, initial []byte) {
	r := b.g.resourceByID(buffer)
	if r == nil {
		return
	}
	r.usage |= UsageCPUMapped
	r.buffer.CPUVisible = true
	r.mapped = true
	r.mapInitial = initial
}

// NextDescriptorSetIndex returns the next monotonically increasing
// descriptor-set index for this pass (spec §4.11 step 4: "identified by the
// monotonically increasing index").
func (b *PassBuilder) NextDescriptorSetIndex() int {
	idx := b.p.descSetIdx
	b.p.descSetIdx++
	return idx
}
