package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierfs/hierfs/internal/backend"
	"github.com/hierfs/hierfs/internal/cache"
	"github.com/hierfs/hierfs/internal/ferrors"
	"github.com/hierfs/hierfs/internal/object"
	"github.com/hierfs/hierfs/internal/store"
)

// fakeBackend is an in-memory backend.Client used for store tests. It can
// be told to fail the next N Put calls, to exercise the write-failure
// revert path.
type fakeBackend struct {
	mu        sync.Mutex
	data      map[string][]byte
	failPuts  int
	nextKeyID int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (f *fakeBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeBackend) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPuts > 0 {
		f.failPuts--
		return errors.New("fake: injected put failure")
	}
	f.data[key] = data
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeBackend) NewKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextKeyID++
	return "id-" + time.Unix(int64(f.nextKeyID), 0).String()
}

var _ backend.Client = (*fakeBackend)(nil)

func newTestManager(t *testing.T) (*store.Manager, *fakeBackend) {
	t.Helper()
	fb := newFakeBackend()
	c := cache.New(64)
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(1000, 0))
	m := store.New(fb, c, clock)
	return m, fb
}

func TestEnsureRootCreatesOnFreshBackend(t *testing.T) {
	m, _ := newTestManager(t)
	root, err := m.EnsureRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, object.KindDirectory, root.Meta.Kind)
	assert.Equal(t, uint32(2), root.Meta.Nlink)
}

func TestEnsureRootIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	first, err := m.EnsureRoot(ctx)
	require.NoError(t, err)
	second, err := m.EnsureRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestNewChildRejectsDuplicateName(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	_, err = m.NewChild(ctx, backend.RootKey, "a", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	require.NoError(t, err)

	_, err = m.NewChild(ctx, backend.RootKey, "a", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	assert.ErrorIs(t, err, ferrors.Exists)
}

func TestNewDirectoryIncrementsParentNlink(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	root, err := m.EnsureRoot(ctx)
	require.NoError(t, err)
	baseNlink := root.Meta.Nlink

	_, err = m.NewChild(ctx, backend.RootKey, "sub", object.KindDirectory, 0755, 0, 0, func(id string) object.Data {
		return object.Data{Children: map[string]string{}}
	})
	require.NoError(t, err)

	root, err = m.Fetch(ctx, backend.RootKey)
	require.NoError(t, err)
	assert.Equal(t, baseNlink+1, root.Meta.Nlink)
}

func TestUnlinkRegularFileDoesNotTouchParentNlink(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	root, err := m.EnsureRoot(ctx)
	require.NoError(t, err)
	baseNlink := root.Meta.Nlink

	_, err = m.NewChild(ctx, backend.RootKey, "f", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	require.NoError(t, err)

	require.NoError(t, m.RemoveChild(ctx, backend.RootKey, "f", false))

	root, err = m.Fetch(ctx, backend.RootKey)
	require.NoError(t, err)
	assert.Equal(t, baseNlink, root.Meta.Nlink)
}

func TestRmdirDecrementsParentNlink(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	root, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	_, err = m.NewChild(ctx, backend.RootKey, "d", object.KindDirectory, 0755, 0, 0, func(id string) object.Data {
		return object.Data{Children: map[string]string{}}
	})
	require.NoError(t, err)
	afterCreate, err := m.Fetch(ctx, backend.RootKey)
	require.NoError(t, err)

	require.NoError(t, m.RemoveChild(ctx, backend.RootKey, "d", true))

	afterRemove, err := m.Fetch(ctx, backend.RootKey)
	require.NoError(t, err)
	assert.Equal(t, afterCreate.Meta.Nlink-1, afterRemove.Meta.Nlink)
	_ = root
}

func TestRmdirOnNonEmptyDirectoryFails(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	_, err = m.NewChild(ctx, backend.RootKey, "d", object.KindDirectory, 0755, 0, 0, func(id string) object.Data {
		return object.Data{Children: map[string]string{}}
	})
	require.NoError(t, err)
	dir, err := m.Resolve(ctx, "d")
	require.NoError(t, err)

	_, err = m.NewChild(ctx, dir.ID, "child", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	require.NoError(t, err)

	err = m.RemoveChild(ctx, backend.RootKey, "d", true)
	assert.ErrorIs(t, err, ferrors.NotEmpty)
}

func TestRemoveLeavesNoPositiveCacheEntryAndReturnsNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	child, err := m.NewChild(ctx, backend.RootKey, "f", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	require.NoError(t, err)

	require.NoError(t, m.RemoveChild(ctx, backend.RootKey, "f", false))

	_, err = m.Fetch(ctx, child.ID)
	assert.ErrorIs(t, err, ferrors.NotFound)

	_, err = m.Resolve(ctx, "f")
	assert.ErrorIs(t, err, ferrors.NotFound)
}

func TestWriteFailureRevertsAndLeavesNoPositiveCacheEntry(t *testing.T) {
	m, fb := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	child, err := m.NewChild(ctx, backend.RootKey, "f", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	require.NoError(t, err)

	fb.mu.Lock()
	fb.failPuts = 1
	fb.mu.Unlock()

	_, err = m.WriteData(ctx, child.ID, []byte("new content"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.BackendUnavailable)

	// The backend never actually recorded the write (failPuts consumed it),
	// so a fresh Fetch must see the pre-write content, not a stale/partial
	// cached value.
	got, err := m.Fetch(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, len(got.Data.Bytes))
}

func TestResolveWalksNestedPath(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	_, err = m.NewChild(ctx, backend.RootKey, "a", object.KindDirectory, 0755, 0, 0, func(id string) object.Data {
		return object.Data{Children: map[string]string{}}
	})
	require.NoError(t, err)
	aDir, err := m.Resolve(ctx, "a")
	require.NoError(t, err)

	_, err = m.NewChild(ctx, aDir.ID, "b", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{Bytes: []byte("hi")}
	})
	require.NoError(t, err)

	got, err := m.Resolve(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got.Data.Bytes)
}

func TestResolveThroughNonDirectoryFails(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	_, err = m.NewChild(ctx, backend.RootKey, "f", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	require.NoError(t, err)

	_, err = m.Resolve(ctx, "f/anything")
	assert.ErrorIs(t, err, ferrors.NotDirectory)
}

func TestRenameWithinSameDirectory(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	_, err = m.NewChild(ctx, backend.RootKey, "old", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{Bytes: []byte("x")}
	})
	require.NoError(t, err)

	require.NoError(t, m.Rename(ctx, backend.RootKey, "old", backend.RootKey, "new"))

	_, err = m.Resolve(ctx, "old")
	assert.ErrorIs(t, err, ferrors.NotFound)

	got, err := m.Resolve(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got.Data.Bytes)
	assert.Equal(t, "new", got.Name)
}

func TestChmodIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	child, err := m.NewChild(ctx, backend.RootKey, "f", object.KindRegular, 0644, 0, 0, func(id string) object.Data {
		return object.Data{}
	})
	require.NoError(t, err)

	first, err := m.UpdateMeta(ctx, child.ID, func(meta *object.Meta) { meta.Perm = 0600 })
	require.NoError(t, err)
	second, err := m.UpdateMeta(ctx, child.ID, func(meta *object.Meta) { meta.Perm = 0600 })
	require.NoError(t, err)
	assert.Equal(t, first.Meta.Perm, second.Meta.Perm)
}
