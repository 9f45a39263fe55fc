package ecs

// entityRecord holds the hierarchy links for one entity slot, mirroring
// original_source/yave/ecs/EntityPool.h's Entity struct: a parent pointer
// plus a circular doubly linked child list (an only child is its own left
// and right sibling).
type entityRecord struct {
	id           EntityID
	version      uint32
	valid        bool
	parent       EntityID
	firstChild   EntityID
	leftSibling  EntityID
	rightSibling EntityID
}

// EntityPool allocates and recycles EntityIDs with generation versioning
// and maintains the parent/child hierarchy (spec §4.3).
type EntityPool struct {
	records  []entityRecord
	freeList []uint32 // LIFO stack of free slot indices
}

// NewEntityPool creates an empty pool.
func NewEntityPool() *EntityPool {
	return &EntityPool{}
}

// Create allocates a new EntityID, reusing a freed slot (bumping its
// version) when available, else appending a new slot.
func (p *EntityPool) Create() EntityID {
	var index uint32
	if n := len(p.freeList); n > 0 {
		index = p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
	} else {
		index = uint32(len(p.records))
		p.records = append(p.records, entityRecord{})
	}

	rec := &p.records[index]
	rec.version++
	rec.valid = true
	id := EntityID{Index: index, Version: rec.version}
	rec.id = id
	rec.parent = InvalidEntityID
	rec.firstChild = InvalidEntityID
	rec.leftSibling = id
	rec.rightSibling = id
	return id
}

// CreateWithID materializes id exactly (used when instantiating a prefab).
// It fails with IdInUse unless the slot at id.Index is free.
func (p *EntityPool) CreateWithID(id EntityID) error {
	if !id.IsValid() {
		return panicOrNoOp(newErr(ErrEntityNotFound, "cannot materialize an invalid entity id"))
	}
	for uint32(len(p.records)) <= id.Index {
		p.records = append(p.records, entityRecord{})
	}
	if p.records[id.Index].valid {
		return ErrIdInUseFor(id)
	}

	// Remove id.Index from the free list if it is sitting there.
	for i, idx := range p.freeList {
		if idx == id.Index {
			p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
			break
		}
	}

	rec := &p.records[id.Index]
	rec.version = id.Version
	rec.valid = true
	rec.id = id
	rec.parent = InvalidEntityID
	rec.firstChild = InvalidEntityID
	rec.leftSibling = id
	rec.rightSibling = id
	return nil
}

// Exists reports whether id refers to a currently live entity.
func (p *EntityPool) Exists(id EntityID) bool {
	if !id.IsValid() || int(id.Index) >= len(p.records) {
		return false
	}
	rec := &p.records[id.Index]
	return rec.valid && rec.version == id.Version
}

// Remove unparents id, invalidates its slot, and frees the index for reuse.
func (p *EntityPool) Remove(id EntityID) error {
	if !p.Exists(id) {
		return panicOrNoOp(ErrEntityNotFoundFor(id))
	}
	p.RemoveFromParent(id)

	// Re-parent any children to invalid (orphan them), detaching the
	// circular list in place rather than walking it destructively.
	rec := &p.records[id.Index]
	for rec.firstChild.IsValid() {
		p.RemoveFromParent(rec.firstChild)
	}

	rec.valid = false
	p.freeList = append(p.freeList, id.Index)
	return nil
}

// GetParent returns id's parent, or (InvalidEntityID, false) if it has none.
func (p *EntityPool) GetParent(id EntityID) (EntityID, bool) {
	if !p.Exists(id) {
		return InvalidEntityID, false
	}
	parent := p.records[id.Index].parent
	return parent, parent.IsValid()
}

// RemoveFromParent detaches id from its current parent, if any, repairing
// the circular sibling list and resetting the parent's first_child pointer
// if it pointed at id.
func (p *EntityPool) RemoveFromParent(id EntityID) {
	if !p.Exists(id) {
		return
	}
	rec := &p.records[id.Index]
	if !rec.parent.IsValid() {
		return
	}
	parentRec := &p.records[rec.parent.Index]

	if rec.leftSibling == id {
		// Only child.
		parentRec.firstChild = InvalidEntityID
	} else {
		left := &p.records[rec.leftSibling.Index]
		right := &p.records[rec.rightSibling.Index]
		left.rightSibling = rec.rightSibling
		right.leftSibling = rec.leftSibling
		if parentRec.firstChild == id {
			parentRec.firstChild = rec.rightSibling
		}
	}

	rec.parent = InvalidEntityID
	rec.leftSibling = id
	rec.rightSibling = id
}

// SetParent detaches child from any existing parent and, if parent is
// valid, inserts child at the head of parent's children list (spec §4.3 and
// Scenario A: new children are prepended, so iteration is LIFO).
func (p *EntityPool) SetParent(child, parent EntityID) error {
	if !p.Exists(child) {
		return panicOrNoOp(ErrEntityNotFoundFor(child))
	}
	if parent.IsValid() && !p.Exists(parent) {
		return panicOrNoOp(ErrEntityNotFoundFor(parent))
	}

	p.RemoveFromParent(child)
	if !parent.IsValid() {
		return nil
	}

	childRec := &p.records[child.Index]
	parentRec := &p.records[parent.Index]
	childRec.parent = parent

	if !parentRec.firstChild.IsValid() {
		parentRec.firstChild = child
		childRec.leftSibling = child
		childRec.rightSibling = child
		return nil
	}

	head := parentRec.firstChild
	headRec := &p.records[head.Index]
	tail := headRec.leftSibling
	tailRec := &p.records[tail.Index]

	childRec.rightSibling = head
	childRec.leftSibling = tail
	tailRec.rightSibling = child
	headRec.leftSibling = child
	parentRec.firstChild = child
	return nil
}

// Children returns child entities in head-to-tail (most-recently-attached
// first) order. The circular list is walked eagerly and the whole child list
// is returned as one slice; there is no lazy iterator.
func (p *EntityPool) Children(id EntityID) []EntityID {
	if !p.Exists(id) {
		return nil
	}
	head := p.records[id.Index].firstChild
	if !head.IsValid() {
		return nil
	}
	var out []EntityID
	cur := head
	for {
		out = append(out, cur)
		cur = p.records[cur.Index].rightSibling
		if cur == head {
			break
		}
	}
	return out
}

// IsParent walks the parent chain from id looking for candidate, O(depth).
func (p *EntityPool) IsParent(id, candidate EntityID) bool {
	if !p.Exists(id) {
		return false
	}
	cur := p.records[id.Index].parent
	for cur.IsValid() {
		if cur == candidate {
			return true
		}
		if !p.Exists(cur) {
			return false
		}
		cur = p.records[cur.Index].parent
	}
	return false
}

// Each iterates every currently-live entity. fn returning false stops early.
func (p *EntityPool) Each(fn func(EntityID) bool) {
	for i := range p.records {
		rec := &p.records[i]
		if rec.valid {
			if !fn(rec.id) {
				return
			}
		}
	}
}

// Len returns the number of currently-live entities.
func (p *EntityPool) Len() int {
	n := 0
	for i := range p.records {
		if p.records[i].valid {
			n++
		}
	}
	return n
}

// ValidateIntegrity audits the pool for hierarchy cycles (debug-only, spec
// §4.8 step 6). It returns an error describing the first cycle found.
func (p *EntityPool) ValidateIntegrity() error {
	visited := make(map[uint32]bool, len(p.records))
	for i := range p.records {
		rec := &p.records[i]
		if !rec.valid {
			continue
		}
		seen := make(map[uint32]bool)
		cur := rec.parent
		for cur.IsValid() {
			if seen[cur.Index] {
				return newErr(ErrInternal, "entity hierarchy contains a cycle").withEntity(rec.id)
			}
			seen[cur.Index] = true
			if !p.Exists(cur) {
				break
			}
			cur = p.records[cur.Index].parent
		}
		visited[rec.id.Index] = true
	}
	return nil
}
