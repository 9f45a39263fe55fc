package ecs

import (
	"sort"
	"strings"
)

// groupTally tracks, per entity, how many groups that entity currently
// belongs to, so a pathological query shape cannot silently grow without
// bound (spec §7 TooManyGroups, §8 invariant 2).
type groupTally struct {
	counts map[EntityID]int
}

func newGroupTally() *groupTally {
	return &groupTally{counts: make(map[EntityID]int)}
}

func (t *groupTally) inc(id EntityID) {
	t.counts[id]++
	if t.counts[id] > maxGroupsPerEntity {
		panic(newErr(ErrTooManyGroups, "entity belongs to more groups than the matrix allows").withEntity(id))
	}
}

func (t *groupTally) dec(id EntityID) {
	t.counts[id]--
	if t.counts[id] <= 0 {
		delete(t.counts, id)
	}
}

// Group is a persistent, cached view over the world: the intersection of a
// tuple of required component types, tag include/exclude constraints, and
// optional per-member Changed<T>/Deleted<T> subscriptions (spec §3, §4.6).
type Group struct {
	key string

	required          []ComponentTypeIndex
	excludeComponents []ComponentTypeIndex
	includeTags       []string
	excludeTags       []string
	changedFilters    []ComponentTypeIndex
	deletedFilters    []ComponentTypeIndex

	matrix *Matrix
	tally  *groupTally

	// requiredCount is the per-entity count of currently-present required
	// components, kept up to date on component add/remove and populate.
	// Membership is decided by satisfies() alone, which re-checks the
	// matrix; the count is not consulted.
	requiredCount map[EntityID]int

	// ids is the base matching set: required components present, exclude
	// components absent, tag constraints satisfied. Changed/Deleted filters
	// are applied on top of this at query time (spec §4.6).
	ids *SparseIdSet

	// changedSources/deletedSources reference the owning containers'
	// mutated/pending-delete sets directly; the group does not copy them.
	changedSources []*SparseIdSet
	deletedSources []*SparseIdSet
}

// GroupSpec describes a group's membership rules, used both to build a new
// Group and as a cache key for reuse (spec §4.6: "if an equivalent group
// already exists, it is reused").
type GroupSpec struct {
	Required          []ComponentTypeIndex
	ExcludeComponents []ComponentTypeIndex
	IncludeTags       []string
	ExcludeTags       []string
	Changed           []ComponentTypeIndex
	Deleted           []ComponentTypeIndex
}

func sortedCopyU32(in []ComponentTypeIndex) []ComponentTypeIndex {
	out := append([]ComponentTypeIndex(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedCopyStr(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// key produces a stable cache key for spec so equivalent group requests
// (spec §4.6 step "creation flow") resolve to the same Group instance.
func (spec GroupSpec) key() string {
	var b strings.Builder
	writeU32s := func(prefix string, xs []ComponentTypeIndex) {
		b.WriteString(prefix)
		for _, x := range sortedCopyU32(xs) {
			b.WriteByte(':')
			b.WriteString(itoa(int(x)))
		}
		b.WriteByte('|')
	}
	writeStrs := func(prefix string, xs []string) {
		b.WriteString(prefix)
		for _, x := range sortedCopyStr(xs) {
			b.WriteByte(':')
			b.WriteString(x)
		}
		b.WriteByte('|')
	}
	writeU32s("req", spec.Required)
	writeU32s("exc", spec.ExcludeComponents)
	writeStrs("itag", spec.IncludeTags)
	writeStrs("etag", spec.ExcludeTags)
	writeU32s("chg", spec.Changed)
	writeU32s("del", spec.Deleted)
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func newGroup(spec GroupSpec, matrix *Matrix, tally *groupTally) *Group {
	return &Group{
		key:               spec.key(),
		required:          append([]ComponentTypeIndex(nil), spec.Required...),
		excludeComponents: append([]ComponentTypeIndex(nil), spec.ExcludeComponents...),
		includeTags:       append([]string(nil), spec.IncludeTags...),
		excludeTags:       append([]string(nil), spec.ExcludeTags...),
		changedFilters:    append([]ComponentTypeIndex(nil), spec.Changed...),
		deletedFilters:    append([]ComponentTypeIndex(nil), spec.Deleted...),
		matrix:            matrix,
		tally:             tally,
		requiredCount:     make(map[EntityID]int),
		ids:               NewSparseIdSet(),
	}
}

// Key returns the group's cache key.
func (g *Group) Key() string { return g.key }

// RequiredTypes returns the component types a task holding this group must
// read, used by the scheduler to acquire the backing containers' locks for
// the task's duration in parallel dispatch (spec §4.7 "argument
// resolution").
func (g *Group) RequiredTypes() []ComponentTypeIndex {
	return append([]ComponentTypeIndex(nil), g.required...)
}

// satisfies checks the full membership predicate directly against the
// matrix, independent of the incremental counter (used for initial
// population and as the ground truth on every transition).
func (g *Group) satisfies(id EntityID) bool {
	for _, t := range g.required {
		if !g.matrix.Has(id, t) {
			return false
		}
	}
	for _, t := range g.excludeComponents {
		if g.matrix.Has(id, t) {
			return false
		}
	}
	for _, tag := range g.includeTags {
		if !g.matrix.HasTag(id, tag) {
			return false
		}
	}
	for _, tag := range g.excludeTags {
		if g.matrix.HasTag(id, tag) {
			return false
		}
	}
	return true
}

func (g *Group) setMember(id EntityID, member bool) {
	inSet := g.ids.Contains(id)
	if member == inSet {
		return
	}
	if member {
		g.ids.Insert(id)
		g.tally.inc(id)
	} else {
		g.ids.Erase(id)
		g.tally.dec(id)
	}
}

func (g *Group) reevaluate(id EntityID) {
	g.setMember(id, g.satisfies(id))
}

// onComponentAdded is invoked by Matrix.AddComponent for every group
// observing t.
func (g *Group) onComponentAdded(id EntityID, t ComponentTypeIndex) {
	for _, r := range g.required {
		if r == t {
			g.requiredCount[id]++
			break
		}
	}
	g.reevaluate(id)
}

// onComponentRemoved is invoked by Matrix.RemoveComponent for every group
// observing t.
func (g *Group) onComponentRemoved(id EntityID, t ComponentTypeIndex) {
	for _, r := range g.required {
		if r == t {
			if g.requiredCount[id] > 0 {
				g.requiredCount[id]--
			}
			break
		}
	}
	g.reevaluate(id)
}

func (g *Group) onTagAdded(id EntityID, tag string) {
	for _, want := range g.includeTags {
		if want == tag {
			g.reevaluate(id)
			return
		}
	}
	for _, avoid := range g.excludeTags {
		if avoid == tag {
			g.reevaluate(id)
			return
		}
	}
}

func (g *Group) onTagRemoved(id EntityID, tag string) {
	g.onTagAdded(id, tag)
}

// populate evaluates every currently-live entity against the group's
// predicate (spec §4.6 step 3).
func (g *Group) populate(pool *EntityPool) {
	pool.Each(func(id EntityID) bool {
		for _, t := range g.required {
			if g.matrix.Has(id, t) {
				g.requiredCount[id]++
			}
		}
		g.reevaluate(id)
		return true
	})
}

// removeEntity drops id from the group entirely (used on entity removal).
func (g *Group) removeEntity(id EntityID) {
	delete(g.requiredCount, id)
	g.setMember(id, false)
}

// attachChangeSources wires the mutated-set pointers of the containers
// backing g's Changed<T> filters; called once at group construction.
func (g *Group) attachChangeSources(sets []*SparseIdSet) {
	g.changedSources = sets
}

// attachDeleteSources wires the pending-delete-set pointers of the
// containers backing g's Deleted<T> filters.
func (g *Group) attachDeleteSources(sets []*SparseIdSet) {
	g.deletedSources = sets
}

// Entities returns the final matching set: the base set intersected with
// every Changed<T>/Deleted<T> subscription (spec §4.6).
func (g *Group) Entities() []EntityID {
	if len(g.changedSources) == 0 && len(g.deletedSources) == 0 {
		return append([]EntityID(nil), g.ids.Dense()...)
	}
	var out []EntityID
	g.ids.Each(func(id EntityID) bool {
		for _, src := range g.changedSources {
			if !src.Contains(id) {
				return true
			}
		}
		for _, src := range g.deletedSources {
			if !src.Contains(id) {
				return true
			}
		}
		out = append(out, id)
		return true
	})
	return out
}

// Len returns the size of the base matching set (before Changed/Deleted
// filtering), useful for fast emptiness checks.
func (g *Group) Len() int {
	return g.ids.Len()
}
