package framegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Compile_EmptyGraphCompilesToEmptyResult(t *testing.T) {
	// Arrange
	g := NewGraph(&fakeAllocator{}, NewPersistentStore())

	// Act
	compiled, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, compiled.Order)
	assert.Equal(t, 0, compiled.BucketCount)
}

func Test_Compile_IndependentPassesKeepDeclarationOrder(t *testing.T) {
	// Arrange
	g := NewGraph(&fakeAllocator{}, NewPersistentStore())
	var order []string

	g.AddPass("first", func(b *PassBuilder) {}, func(r *Recorder) { order = append(order, "first") })
	g.AddPass("second", func(b *PassBuilder) {}, func(r *Recorder) { order = append(order, "second") })

	// Act
	compiled, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1}, compiled.Order)
	assert.Equal(t, []string{"first", "second"}, order)
}

func Test_Compile_ReordersConsumerAfterProducer(t *testing.T) {
	// Arrange
	g := NewGraph(&fakeAllocator{}, NewPersistentStore())
	var target ResourceID
	var order []string

	g.AddPass("produce", func(b *PassBuilder) {
		target = b.DeclareImage(FormatRGBA8, ImageExtent{Width: 4, Height: 4, MipLevels: 1}, "")
	}, func(r *Recorder) { order = append(order, "produce") })

	g.AddPass("consume", func(b *PassBuilder) {
		b.AddStorageInput(target, StageCompute)
	}, func(r *Recorder) { order = append(order, "consume") })

	// Act
	compiled, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1}, compiled.Order)
	assert.Equal(t, []string{"produce", "consume"}, order)
}

func Test_Compile_MissingInputErrorsWhenNoProducerAndNotPersistent(t *testing.T) {
	// Arrange
	g := NewGraph(&fakeAllocator{}, NewPersistentStore())
	g.AddPass("consume", func(b *PassBuilder) {
		orphan := g.newResource(KindImage)
		orphan.readers = append(orphan.readers, 0)
	}, func(r *Recorder) {})

	// Act
	_, err := Compile(g)

	// Assert
	assert.Error(t, err)
	fgErr, ok := err.(*Error)
	assert.True(t, ok)
	assert.Equal(t, ErrMissingInput, fgErr.Code)
}

func Test_Compile_AliasesDisjointLifetimesIntoOneBucket(t *testing.T) {
	// Arrange: two same-format, same-size images whose lifetimes never
	// overlap should share a bucket instead of allocating two images.
	alloc := &fakeAllocator{}
	g := NewGraph(alloc, NewPersistentStore())
	extent := ImageExtent{Width: 8, Height: 8, MipLevels: 1}

	g.AddPass("first", func(b *PassBuilder) {
		img := b.DeclareImage(FormatRGBA8, extent, "")
		b.AddColorOutput(img)
	}, func(r *Recorder) {})

	g.AddPass("second", func(b *PassBuilder) {
		img := b.DeclareImage(FormatRGBA8, extent, "")
		b.AddColorOutput(img)
	}, func(r *Recorder) {})

	// Act
	compiled, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 1, compiled.BucketCount)
	assert.Equal(t, 1, alloc.imagesCreated)
}

func Test_Compile_MappedResourcesNeverShareABucket(t *testing.T) {
	// Arrange: two CPU-mapped buffers of identical shape must each get their
	// own bucket since a mapped pointer must stay stable.
	alloc := &fakeAllocator{}
	g := NewGraph(alloc, NewPersistentStore())

	g.AddPass("first", func(b *PassBuilder) {
		buf := b.DeclareBuffer(4, 4, "")
		b.MapBuffer(buf, nil)
	}, func(r *Recorder) {})

	g.AddPass("second", func(b *PassBuilder) {
		buf := b.DeclareBuffer(4, 4, "")
		b.MapBuffer(buf, nil)
	}, func(r *Recorder) {})

	// Act
	compiled, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 2, compiled.BucketCount)
	assert.Equal(t, 2, alloc.buffersCreated)
}

func Test_Compile_PersistentResourceReusesPriorFrameBacking(t *testing.T) {
	// Arrange
	persist := NewPersistentStore()
	alloc := &fakeAllocator{}
	extent := ImageExtent{Width: 16, Height: 16, MipLevels: 1}

	frame1 := NewGraph(alloc, persist)
	frame1.AddPass("history", func(b *PassBuilder) {
		img := b.DeclareImage(FormatRGBA16F, extent, "reflection-history")
		b.AddColorOutput(img)
	}, func(r *Recorder) {})
	_, err := Compile(frame1)
	assert.NoError(t, err)
	assert.Equal(t, 1, alloc.imagesCreated)

	// Act: a second frame referencing the same persistent id must reuse the
	// first frame's physical image rather than allocating a new one.
	frame2 := NewGraph(alloc, persist)
	frame2.AddPass("history", func(b *PassBuilder) {
		img := b.DeclareImage(FormatRGBA16F, extent, "reflection-history")
		b.AddColorOutput(img)
	}, func(r *Recorder) {})
	_, err = Compile(frame2)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 1, alloc.imagesCreated, "persistent resource must not reallocate")
}

func Test_Compile_DroppedPersistentIDIsReleasedAndForgotten(t *testing.T) {
	// Arrange: frame 1 declares a persistent resource.
	persist := NewPersistentStore()
	alloc := &fakeAllocator{}
	extent := ImageExtent{Width: 16, Height: 16, MipLevels: 1}

	frame1 := NewGraph(alloc, persist)
	frame1.AddPass("history", func(b *PassBuilder) {
		img := b.DeclareImage(FormatRGBA16F, extent, "reflection-history")
		b.AddColorOutput(img)
	}, func(r *Recorder) {})
	_, err := Compile(frame1)
	assert.NoError(t, err)
	assert.Contains(t, persist.images, PersistentID("reflection-history"))
	releasedBefore := len(alloc.released)

	// Act: frame 2 does not declare the persistent id at all.
	frame2 := NewGraph(alloc, persist)
	frame2.AddPass("unrelated", func(b *PassBuilder) {}, func(r *Recorder) {})
	_, err = Compile(frame2)

	// Assert: the dropped id's backing is released and forgotten by the store.
	assert.NoError(t, err)
	assert.NotContains(t, persist.images, PersistentID("reflection-history"))
	assert.Greater(t, len(alloc.released), releasedBefore)
}

func Test_Compile_AllocatorFailureSurfacesAsAliasingConflict(t *testing.T) {
	// Arrange
	alloc := &fakeAllocator{failImages: true}
	g := NewGraph(alloc, NewPersistentStore())
	g.AddPass("produce", func(b *PassBuilder) {
		img := b.DeclareImage(FormatRGBA8, ImageExtent{Width: 4, Height: 4, MipLevels: 1}, "")
		b.AddColorOutput(img)
	}, func(r *Recorder) {})

	// Act
	_, err := Compile(g)

	// Assert
	assert.Error(t, err)
	fgErr, ok := err.(*Error)
	assert.True(t, ok)
	assert.Equal(t, ErrAliasingConflict, fgErr.Code)
}

func Test_Compile_InsertsBarrierBetweenWriteThenRead(t *testing.T) {
	// Arrange
	alloc := &fakeAllocator{}
	g := NewGraph(alloc, NewPersistentStore())
	var target ResourceID

	g.AddPass("produce", func(b *PassBuilder) {
		target = b.DeclareImage(FormatRGBA8, ImageExtent{Width: 4, Height: 4, MipLevels: 1}, "")
		b.AddColorOutput(target)
	}, func(r *Recorder) {})

	var barriers []Barrier
	g.AddPass("consume", func(b *PassBuilder) {
		b.AddStorageInput(target, StageCompute)
	}, func(r *Recorder) { barriers = r.Barriers() })

	// Act
	_, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, barriers, 1)
	assert.Equal(t, target, barriers[0].Resource)
}

func Test_Compile_RecordCommandAccumulatesIntoCommandCount(t *testing.T) {
	// Arrange
	g := NewGraph(&fakeAllocator{}, NewPersistentStore())
	g.AddPass("a", func(b *PassBuilder) {}, func(r *Recorder) {
		r.RecordCommand()
		r.RecordCommand()
	})
	g.AddPass("b", func(b *PassBuilder) {}, func(r *Recorder) {
		r.RecordCommand()
	})

	// Act
	compiled, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 3, compiled.CommandCount)
}

func Test_Compile_NonPersistentResourcesReleasedOnFence(t *testing.T) {
	// Arrange
	alloc := &fakeAllocator{}
	g := NewGraph(alloc, NewPersistentStore())
	g.AddPass("produce", func(b *PassBuilder) {
		img := b.DeclareImage(FormatRGBA8, ImageExtent{Width: 4, Height: 4, MipLevels: 1}, "")
		b.AddColorOutput(img)
	}, func(r *Recorder) {})

	// Act
	_, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, alloc.released, 1)
}

func Test_Compile_DescriptorSetIncludesStorageInputs(t *testing.T) {
	// Arrange
	alloc := &fakeAllocator{}
	g := NewGraph(alloc, NewPersistentStore())
	var target ResourceID
	g.AddPass("produce", func(b *PassBuilder) {
		target = b.DeclareBuffer(4, 4, "")
		b.AddStorageOutput(target, StageCompute)
	}, func(r *Recorder) {})

	var sets []DescriptorSet
	g.AddPass("consume", func(b *PassBuilder) {
		b.AddStorageInput(target, StageCompute)
	}, func(r *Recorder) { sets = r.DescriptorSets() })

	// Act
	_, err := Compile(g)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, sets, 1)
	assert.Len(t, sets[0].Buffers, 1)
}
