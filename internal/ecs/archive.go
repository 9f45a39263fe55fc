package ecs

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Archive is the schema-aware persistence abstraction World.SaveState and
// World.LoadState serialize against (spec §4.8 "Persisted state"). The
// default implementation is YAML-backed via gopkg.in/yaml.v3, matching the
// teacher's existing `json`-tagged config structs with a parallel
// serialization path.
type Archive interface {
	WriteDocument(doc *ArchiveDocument) error
	ReadDocument() (*ArchiveDocument, error)
}

// ArchivedEntity is one entity pool record as persisted (spec §4.8: "the
// schema serialized is: entity pool contents...").
type ArchivedEntity struct {
	Index     uint32 `yaml:"index"`
	Version   uint32 `yaml:"version"`
	Parent    uint32 `yaml:"parent"`
	HasParent bool   `yaml:"has_parent,omitempty"`
}

// ArchiveDocument is the full on-disk schema: entity pool contents, then
// per-container values keyed by component type name, then the tag set.
type ArchiveDocument struct {
	Entities   []ArchivedEntity  `yaml:"entities"`
	Components map[string][]byte `yaml:"components"`
	Tags       map[string][]uint64 `yaml:"tags"`
}

// YAMLArchive is an in-memory/file-agnostic Archive backed by yaml.v3; the
// caller supplies the encoded bytes directly (e.g. read/written by the
// embedding application's own file I/O), matching §6's "implementation out
// of scope, interface in scope" boundary.
type YAMLArchive struct {
	data []byte
}

// NewYAMLArchive wraps data (empty for a fresh archive about to be written).
func NewYAMLArchive(data []byte) *YAMLArchive {
	return &YAMLArchive{data: data}
}

// Bytes returns the archive's current encoded form.
func (a *YAMLArchive) Bytes() []byte { return a.data }

func (a *YAMLArchive) WriteDocument(doc *ArchiveDocument) error {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("archive: marshal document: %w", err)
	}
	a.data = out
	return nil
}

func (a *YAMLArchive) ReadDocument() (*ArchiveDocument, error) {
	var doc ArchiveDocument
	if err := yaml.Unmarshal(a.data, &doc); err != nil {
		return nil, fmt.Errorf("archive: unmarshal document: %w", err)
	}
	return &doc, nil
}

func entityKey(id EntityID) uint64 {
	return uint64(id.Index)<<32 | uint64(id.Version)
}

func keyToID(k uint64) EntityID {
	return EntityID{Index: uint32(k >> 32), Version: uint32(k)}
}

// SaveState serializes the entity pool, every registered container's
// values, and the tag set into archive (spec §4.8 "Persisted state").
func (w *World) SaveState(archive Archive) error {
	doc := &ArchiveDocument{
		Components: make(map[string][]byte),
		Tags:       make(map[string][]uint64),
	}

	w.pool.Each(func(id EntityID) bool {
		rec := ArchivedEntity{Index: id.Index, Version: id.Version}
		if parent, ok := w.pool.GetParent(id); ok {
			rec.Parent = parent.Index
			rec.HasParent = true
		}
		doc.Entities = append(doc.Entities, rec)
		return true
	})

	for _, c := range w.registry.orderedByDepthDesc() {
		sc, ok := c.(serializableContainer)
		if !ok {
			continue
		}
		data, err := sc.marshalAll()
		if err != nil {
			return fmt.Errorf("archive: marshal %s: %w", sc.serializableTypeName(), err)
		}
		doc.Components[sc.serializableTypeName()] = data
	}

	for tag, set := range w.matrix.tagEntities {
		ids := make([]uint64, 0, set.Len())
		set.Each(func(id EntityID) bool {
			ids = append(ids, entityKey(id))
			return true
		})
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		doc.Tags[tag] = ids
	}

	return archive.WriteDocument(doc)
}

// LoadState replaces the world's entity pool, container values, and tags
// from archive, then rebuilds every existing group from scratch against the
// reloaded matrix (spec §4.8: "After load, groups are rebuilt from scratch
// by re-registering them against the reloaded matrix").
func (w *World) LoadState(archive Archive) error {
	doc, err := archive.ReadDocument()
	if err != nil {
		return err
	}

	w.pool = NewEntityPool()
	w.matrix = NewMatrix()
	w.registry.setMatrix(w.matrix)
	w.recentlyAdded = NewSparseIdSet()
	w.parentChanged = NewSparseIdSet()
	w.pendingRemoval = NewSparseIdSet()

	for _, rec := range doc.Entities {
		id := EntityID{Index: rec.Index, Version: rec.Version}
		if err := w.pool.CreateWithID(id); err != nil {
			return fmt.Errorf("archive: restore entity %v: %w", id, err)
		}
		w.matrix.AddEntity(id)
	}
	for _, rec := range doc.Entities {
		if !rec.HasParent {
			continue
		}
		child := EntityID{Index: rec.Index, Version: rec.Version}
		parentIdx := rec.Parent
		var parent EntityID
		for _, p := range doc.Entities {
			if p.Index == parentIdx {
				parent = EntityID{Index: p.Index, Version: p.Version}
				break
			}
		}
		if parent.IsValid() {
			_ = w.pool.SetParent(child, parent)
		}
	}

	// Containers were registered against the old matrix; re-point them and
	// restore values in ascending depth order so a dependent's required
	// components already exist when it loads.
	ordered := w.registry.orderedByDepthDesc()
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	for _, c := range ordered {
		sc, ok := c.(serializableContainer)
		if !ok {
			continue
		}
		sc.setMatrix(w.matrix)
		data, ok := doc.Components[sc.serializableTypeName()]
		if !ok {
			continue
		}
		if err := sc.unmarshalAll(data); err != nil {
			return fmt.Errorf("archive: restore %s: %w", sc.serializableTypeName(), err)
		}
	}

	for tag, keys := range doc.Tags {
		for _, k := range keys {
			_ = w.matrix.AddTag(keyToID(k), tag)
		}
	}

	oldGroups := w.groups
	w.groups = make(map[string]*Group)
	w.tally = newGroupTally()
	for key, old := range oldGroups {
		spec := GroupSpec{
			Required:          old.required,
			ExcludeComponents: old.excludeComponents,
			IncludeTags:       old.includeTags,
			ExcludeTags:       old.excludeTags,
			Changed:           old.changedFilters,
			Deleted:           old.deletedFilters,
		}
		_ = key
		w.Group(spec)
	}

	return nil
}
