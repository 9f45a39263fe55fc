package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestDevice(t *testing.T, opts ...Option) (*Device, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	d, err := NewDevice(backend, testLimits(), testQueueFamily(), testMemoryTypes(), opts...)
	assert.NoError(t, err)
	return d, backend
}

func Test_CommandPool_AllocAssignsResourceFence(t *testing.T) {
	// Arrange
	d, _ := newTestDevice(t)
	pool := d.ScratchPool("main-thread")

	// Act
	cb := pool.Alloc()

	// Assert
	assert.Equal(t, CmdBufferRecording, cb.State())
	assert.Greater(t, cb.ResourceFence(), uint64(0))
}

func Test_CommandPool_AllocReusesReleasedBuffer(t *testing.T) {
	// Arrange
	d, _ := newTestDevice(t)
	pool := d.ScratchPool("main-thread")
	cb := pool.Alloc()
	pool.release(cb)

	// Act
	reused := pool.Alloc()

	// Assert
	assert.Same(t, cb, reused)
	assert.Equal(t, CmdBufferRecording, reused.State())
}

func Test_CommandPool_AllocReassignsFenceOnReuse(t *testing.T) {
	// Arrange
	d, _ := newTestDevice(t)
	pool := d.ScratchPool("main-thread")
	cb := pool.Alloc()
	firstFence := cb.ResourceFence()
	pool.release(cb)

	// Act
	reused := pool.Alloc()

	// Assert
	assert.NotEqual(t, firstFence, reused.ResourceFence())
}

func Test_CommandPool_FamilyMatchesDeviceQueueFamily(t *testing.T) {
	// Arrange
	d, _ := newTestDevice(t)

	// Act
	pool := d.ScratchPool("main-thread")

	// Assert
	assert.Equal(t, d.QueueFamily.Name, pool.Family())
}

func Test_CommandBuffer_ExecuteSecondaryAppends(t *testing.T) {
	// Arrange
	d, _ := newTestDevice(t)
	pool := d.ScratchPool("main-thread")
	primary := pool.Alloc()
	secondary := pool.Alloc()

	// Act
	primary.ExecuteSecondary(secondary)

	// Assert
	assert.Equal(t, []*CommandBuffer{secondary}, primary.secondary)
}
