package framegraph

import "sort"

// DescriptorSet is a concrete set of physical resources bound to one of a
// pass's descriptor-set indices (spec §4.11 step 4).
type DescriptorSet struct {
	Index   int
	Images  []PhysicalImage
	Buffers []PhysicalBuffer
}

// Barrier is a pipeline barrier the compiler inserts between two passes
// referencing the same resource in incompatible access modes (spec §4.11
// step 5).
type Barrier struct {
	Resource   ResourceID
	SrcStage   Stage
	DstStage   Stage
	SrcAccess  edgeAccess
	DstAccess  edgeAccess
}

// Recorder is handed to each pass's recording closure in topological order
// (spec §4.11 step 7): it exposes the pass's resolved physical resources,
// descriptor sets, and the barriers the compiler decided must run first.
type Recorder struct {
	passName       string
	images         map[ResourceID]PhysicalImage
	buffers        map[ResourceID]PhysicalBuffer
	descriptorSets []DescriptorSet
	barriers       []Barrier
	commands       int
}

// Image returns the physical image bound to a virtual resource id within
// this pass, or nil if id is not an image this pass references.
func (r *Recorder) Image(id ResourceID) PhysicalImage { return r.images[id] }

// Buffer returns the physical buffer bound to a virtual resource id.
func (r *Recorder) Buffer(id ResourceID) PhysicalBuffer { return r.buffers[id] }

// DescriptorSets returns this pass's allocated descriptor sets.
func (r *Recorder) DescriptorSets() []DescriptorSet { return r.descriptorSets }

// Barriers returns the barriers the compiler determined must execute before
// this pass's own commands.
func (r *Recorder) Barriers() []Barrier { return r.barriers }

// RecordCommand is a stand-in for "issue a raw command operation" (spec
// §4.11 step 7): forgelight does not prescribe a driver binding, so this
// only tallies how many operations a pass closure issued, which
// CompiledGraph.CommandCount sums for diagnostics and tests.
func (r *Recorder) RecordCommand() { r.commands++ }

// CompiledGraph is the result of Compile: a topological pass order, the
// physical resource assignments, and the barrier/descriptor-set plan for
// each pass, already recorded (spec §4.11 step 7 runs inside Compile).
type CompiledGraph struct {
	Order        []int
	BucketCount  int
	CommandCount int
}

// Compile runs the full frame-graph build: topological sort, lifetime
// computation, aliasing, descriptor-set allocation, barrier insertion,
// persistent hand-off, and recording (spec §4.11). A graph with zero passes
// compiles to an empty, valid CompiledGraph (spec §8 boundary behavior).
func Compile(g *Graph) (*CompiledGraph, error) {
	if err := checkMissingInputs(g); err != nil {
		return nil, err
	}
	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}
	computeLifetimes(g, order)

	buckets, resourceBucket, err := assignBuckets(g)
	if err != nil {
		return nil, err
	}

	physImages, physBuffers, err := allocatePhysical(g, buckets)
	if err != nil {
		return nil, err
	}

	barriersByPass := computeBarriers(g, order)

	compiled := &CompiledGraph{Order: order, BucketCount: len(buckets)}

	for _, passIndex := range order {
		p := g.passes[passIndex]
		rec := &Recorder{
			passName: p.name,
			images:   make(map[ResourceID]PhysicalImage),
			buffers:  make(map[ResourceID]PhysicalBuffer),
			barriers: barriersByPass[passIndex],
		}
		for _, e := range p.edges {
			r := g.resourceByID(e.resource)
			if r == nil {
				continue
			}
			bucket := resourceBucket[r.id]
			if r.kind == KindImage {
				rec.images[r.id] = physImages[bucket]
			} else {
				rec.buffers[r.id] = physBuffers[bucket]
			}
		}
		rec.descriptorSets = buildDescriptorSets(p, rec)
		p.record(rec)
		compiled.CommandCount += rec.commands
	}

	handOffPersistent(g, resourceBucket, physImages, physBuffers)
	releaseNonPersistent(g, resourceBucket, physImages, physBuffers)

	return compiled, nil
}

func checkMissingInputs(g *Graph) error {
	for _, r := range g.resources {
		if len(r.readers) > 0 && len(r.writers) == 0 && r.persistent == "" {
			return newErr(ErrMissingInput, "resource has a reader but no producer and is not persistent")
		}
	}
	return nil
}

// topoSort builds a dependency graph from each resource's ordered
// writer/reader pass indices (which, because resource IDs can only be
// referenced after they are declared, already appear in causal order) and
// runs Kahn's algorithm, detecting cycles.
func topoSort(g *Graph) ([]int, error) {
	n := len(g.passes)
	adj := make([][]int, n)
	indegree := make([]int, n)
	seen := make(map[[2]int]bool)

	addEdge := func(from, to int) {
		if from == to || from < 0 {
			return
		}
		key := [2]int{from, to}
		if seen[key] {
			return
		}
		seen[key] = true
		adj[from] = append(adj[from], to)
		indegree[to]++
	}

	for _, r := range g.resources {
		type ref struct {
			pass   int
			writer bool
		}
		var refs []ref
		for _, w := range r.writers {
			refs = append(refs, ref{pass: w, writer: true})
		}
		for _, rd := range r.readers {
			refs = append(refs, ref{pass: rd, writer: false})
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].pass < refs[j].pass })

		lastWriter := -1
		for _, rf := range refs {
			if lastWriter != -1 {
				addEdge(lastWriter, rf.pass)
			}
			if rf.writer {
				lastWriter = rf.pass
			}
		}
	}

	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	sort.Ints(queue)

	var order []int
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		var next []int
		for _, to := range adj[cur] {
			indegree[to]--
			if indegree[to] == 0 {
				next = append(next, to)
			}
		}
		sort.Ints(next)
		queue = append(queue, next...)
	}

	if len(order) != n {
		return nil, newErr(ErrCycle, "pass dependency graph contains a cycle")
	}
	return order, nil
}

func computeLifetimes(g *Graph, order []int) {
	passPosition := make(map[int]int, len(order))
	for pos, passIndex := range order {
		passPosition[passIndex] = pos
	}
	for _, r := range g.resources {
		first, last := -1, -1
		for _, p := range append(append([]int(nil), r.writers...), r.readers...) {
			pos := passPosition[p]
			if first == -1 || pos < first {
				first = pos
			}
			if last == -1 || pos > last {
				last = pos
			}
		}
		r.firstPass = first
		r.lastPass = last
	}
}

// assignBuckets implements the bucket aliasing algorithm (spec §4.11 step
// 3, §9 design note): sort resources by first-use, linear-probe existing
// buckets for a compatible, lifetime-disjoint occupant, else allocate a new
// bucket. Persistent resources always get a dedicated bucket since their
// identity must survive past this graph's own lifetime bookkeeping.
func assignBuckets(g *Graph) ([]*resource, map[ResourceID]int, error) {
	sorted := append([]*resource(nil), g.resources...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].firstPass < sorted[j].firstPass })

	var buckets []*resource // occupant currently representing this bucket
	assignment := make(map[ResourceID]int, len(sorted))

	for _, r := range sorted {
		if r.persistent != "" {
			buckets = append(buckets, r)
			assignment[r.id] = len(buckets) - 1
			continue
		}
		placed := false
		for bi, occupant := range buckets {
			if occupant.persistent != "" {
				continue
			}
			if occupant.lastPass < r.firstPass && bucketCompatible(occupant, r) {
				buckets[bi] = r
				assignment[r.id] = bi
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, r)
			assignment[r.id] = len(buckets) - 1
		}
	}
	return buckets, assignment, nil
}

func bucketCompatible(a, b *resource) bool {
	if a.kind != b.kind {
		return false
	}
	if !a.usage.compatible(b.usage) {
		return false
	}
	if a.kind == KindImage {
		return a.image == b.image
	}
	return a.buffer.ElementSize == b.buffer.ElementSize && a.buffer.ElementCount == b.buffer.ElementCount
}

func allocatePhysical(g *Graph, buckets []*resource) (map[int]PhysicalImage, map[int]PhysicalBuffer, error) {
	images := make(map[int]PhysicalImage, len(buckets))
	buffers := make(map[int]PhysicalBuffer, len(buckets))

	for i, occupant := range buckets {
		if occupant.persistent != "" {
			if occupant.kind == KindImage {
				if prior, ok := g.persist.priorImage(occupant.persistent); ok {
					images[i] = prior
					continue
				}
			} else {
				if prior, ok := g.persist.priorBuffer(occupant.persistent); ok {
					buffers[i] = prior
					continue
				}
			}
		}
		if occupant.kind == KindImage {
			img, err := g.allocator.AllocateImage(occupant.image, occupant.usage)
			if err != nil {
				return nil, nil, newErr(ErrAliasingConflict, "allocator rejected image: "+err.Error())
			}
			images[i] = img
		} else {
			buf, err := g.allocator.AllocateBuffer(occupant.buffer, occupant.usage)
			if err != nil {
				return nil, nil, newErr(ErrAliasingConflict, "allocator rejected buffer: "+err.Error())
			}
			buffers[i] = buf
		}
	}
	return images, buffers, nil
}

// computeBarriers walks each resource's access history in topological pass
// order and emits a barrier whenever consecutive accesses are incompatible
// (any pair involving a write), attached to the later pass (spec §4.11
// step 5).
func computeBarriers(g *Graph, order []int) map[int][]Barrier {
	passPosition := make(map[int]int, len(order))
	for pos, passIndex := range order {
		passPosition[passIndex] = pos
	}

	out := make(map[int][]Barrier)
	for _, r := range g.resources {
		type access struct {
			pos    int
			pass   int
			edge   edge
		}
		var accesses []access
		for _, p := range order {
			for _, e := range g.passes[p].edges {
				if e.resource == r.id {
					accesses = append(accesses, access{pos: passPosition[p], pass: p, edge: e})
				}
			}
		}
		sort.Slice(accesses, func(i, j int) bool { return accesses[i].pos < accesses[j].pos })

		for i := 1; i < len(accesses); i++ {
			prev, cur := accesses[i-1], accesses[i]
			if prev.pass == cur.pass {
				continue
			}
			if incompatibleAccess(prev.edge.access, cur.edge.access) {
				out[cur.pass] = append(out[cur.pass], Barrier{
					Resource:  r.id,
					SrcStage:  prev.edge.stage,
					DstStage:  cur.edge.stage,
					SrcAccess: prev.edge.access,
					DstAccess: cur.edge.access,
				})
			}
		}
	}
	return out
}

func isWriteAccess(a edgeAccess) bool {
	return a == accessStorageWrite || a == accessColorOutput || a == accessDepthOutput
}

func incompatibleAccess(prev, cur edgeAccess) bool {
	return isWriteAccess(prev) || isWriteAccess(cur)
}

func buildDescriptorSets(p *pass, rec *Recorder) []DescriptorSet {
	if len(rec.images) == 0 && len(rec.buffers) == 0 {
		return nil
	}
	set := DescriptorSet{Index: 0}
	for _, e := range p.edges {
		if e.access != accessUniformRead && e.access != accessStorageRead && e.access != accessStorageWrite {
			continue
		}
		if img, ok := rec.images[e.resource]; ok {
			set.Images = append(set.Images, img)
		}
		if buf, ok := rec.buffers[e.resource]; ok {
			set.Buffers = append(set.Buffers, buf)
		}
	}
	if len(set.Images) == 0 && len(set.Buffers) == 0 {
		return nil
	}
	return []DescriptorSet{set}
}

// handOffPersistent stores this frame's physical resources for any virtual
// resource that declared a persistent id, so the next Graph's Compile call
// can resolve them as prior-frame values (spec §4.11 step 6). A persistent
// id the store is still carrying from an earlier frame but that this frame
// did not declare stops being carried forward: its backing is released on
// this frame's fence and dropped from the store (spec §4.11 step 6, §8
// persistent-id boundary property).
func handOffPersistent(g *Graph, assignment map[ResourceID]int, images map[int]PhysicalImage, buffers map[int]PhysicalBuffer) {
	declared := make(map[PersistentID]bool, len(g.resources))
	for _, r := range g.resources {
		if r.persistent == "" {
			continue
		}
		declared[r.persistent] = true
		bucket := assignment[r.id]
		if r.kind == KindImage {
			g.persist.images[r.persistent] = images[bucket]
		} else {
			g.persist.buffers[r.persistent] = buffers[bucket]
		}
	}
	releaseDroppedPersistent(g, declared)
}

// releaseDroppedPersistent releases and forgets every store entry whose
// PersistentID is not in declared.
func releaseDroppedPersistent(g *Graph, declared map[PersistentID]bool) {
	var dropped []PersistentID
	for id := range g.persist.images {
		if !declared[id] {
			dropped = append(dropped, id)
		}
	}
	for id := range g.persist.buffers {
		if !declared[id] {
			dropped = append(dropped, id)
		}
	}
	if len(dropped) == 0 {
		return
	}
	fence := g.allocator.CreateFence()
	for _, id := range dropped {
		if img, ok := g.persist.images[id]; ok {
			g.allocator.ReleaseImageLater(img, fence)
			delete(g.persist.images, id)
		}
		if buf, ok := g.persist.buffers[id]; ok {
			g.allocator.ReleaseBufferLater(buf, fence)
			delete(g.persist.buffers, id)
		}
	}
}

// releaseNonPersistent frees every non-persistent physical resource into
// the allocator's deferred-destruction path on this frame's completion
// fence (spec §4.11 step 6, handed to C12).
func releaseNonPersistent(g *Graph, assignment map[ResourceID]int, images map[int]PhysicalImage, buffers map[int]PhysicalBuffer) {
	fence := g.allocator.CreateFence()
	released := make(map[int]bool)
	for _, r := range g.resources {
		if r.persistent != "" {
			continue
		}
		bucket := assignment[r.id]
		if released[bucket] {
			continue
		}
		released[bucket] = true
		if img, ok := images[bucket]; ok {
			g.allocator.ReleaseImageLater(img, fence)
		}
		if buf, ok := buffers[bucket]; ok {
			g.allocator.ReleaseBufferLater(buf, fence)
		}
	}
}
