package fsops_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierfs/hierfs/internal/backend"
	"github.com/hierfs/hierfs/internal/cache"
	"github.com/hierfs/hierfs/internal/ferrors"
	"github.com/hierfs/hierfs/internal/fsops"
	"github.com/hierfs/hierfs/internal/store"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	next int
}

func newMemBackend() *memBackend { return &memBackend{data: make(map[string][]byte)} }

func (b *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *memBackend) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return nil
}

func (b *memBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memBackend) NewKey() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return "k" + string(rune('a'+b.next))
}

var _ backend.Client = (*memBackend)(nil)

func newTestOps(t *testing.T) *fsops.Ops {
	t.Helper()
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(1000, 0))
	m := store.New(newMemBackend(), cache.New(64), clock)
	o := fsops.New(m)
	_, err := o.Mount(context.Background())
	require.NoError(t, err)
	return o
}

func TestCreateThenReadRoundTrips(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()

	_, err := o.Create(ctx, "/hello.txt", 0644, 0, 0)
	require.NoError(t, err)

	_, err = o.Write(ctx, "/hello.txt", []byte("hi there"))
	require.NoError(t, err)

	got, err := o.Read(ctx, "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi there"), got)
}

func TestMkdirThenReaddirListsChildren(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()

	_, err := o.Mkdir(ctx, "/d", 0755, 0, 0)
	require.NoError(t, err)
	_, err = o.Create(ctx, "/d/f", 0644, 0, 0)
	require.NoError(t, err)

	children, err := o.Readdir(ctx, "/d")
	require.NoError(t, err)
	assert.Contains(t, children, "f")
}

func TestSymlinkReadlinkRoundTrips(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()

	_, err := o.Symlink(ctx, "/link", "/hello.txt", 0, 0)
	require.NoError(t, err)

	target, err := o.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/hello.txt", target)
}

func TestReadOnDirectoryFailsWithWrongKind(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()
	_, err := o.Mkdir(ctx, "/d", 0755, 0, 0)
	require.NoError(t, err)

	_, err = o.Read(ctx, "/d")
	assert.ErrorIs(t, err, ferrors.WrongKind)
}

func TestTruncateGrowsWithZeros(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()
	_, err := o.Create(ctx, "/f", 0644, 0, 0)
	require.NoError(t, err)
	_, err = o.Write(ctx, "/f", []byte("ab"))
	require.NoError(t, err)

	_, err = o.Truncate(ctx, "/f", 5)
	require.NoError(t, err)

	got, err := o.Read(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0, 0}, got)
}

func TestTruncateShrinks(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()
	_, err := o.Create(ctx, "/f", 0644, 0, 0)
	require.NoError(t, err)
	_, err = o.Write(ctx, "/f", []byte("abcdef"))
	require.NoError(t, err)

	_, err = o.Truncate(ctx, "/f", 3)
	require.NoError(t, err)

	got, err := o.Read(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestRenameMovesAcrossDirectories(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()
	_, err := o.Mkdir(ctx, "/a", 0755, 0, 0)
	require.NoError(t, err)
	_, err = o.Mkdir(ctx, "/b", 0755, 0, 0)
	require.NoError(t, err)
	_, err = o.Create(ctx, "/a/f", 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, o.Rename(ctx, "/a/f", "/b/g"))

	_, err = o.Lookup(ctx, "/a/f")
	assert.ErrorIs(t, err, ferrors.NotFound)
	got, err := o.Lookup(ctx, "/b/g")
	require.NoError(t, err)
	assert.Equal(t, "g", got.Name)
}

func TestXattrSetGetListRemove(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()
	_, err := o.Create(ctx, "/f", 0644, 0, 0)
	require.NoError(t, err)

	_, err = o.Setxattr(ctx, "/f", "user.tag", []byte("v1"))
	require.NoError(t, err)

	v, err := o.Getxattr(ctx, "/f", "user.tag")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	names, err := o.Listxattr(ctx, "/f")
	require.NoError(t, err)
	assert.Contains(t, names, "user.tag")

	require.NoError(t, o.Removexattr(ctx, "/f", "user.tag"))
	v, err = o.Getxattr(ctx, "/f", "user.tag")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestGetxattrOnAbsentAttrReturnsEmpty(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()
	_, err := o.Create(ctx, "/f", 0644, 0, 0)
	require.NoError(t, err)

	v, err := o.Getxattr(ctx, "/f", "user.never-set")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestChownNegativeLeavesFieldUnchanged(t *testing.T) {
	o := newTestOps(t)
	ctx := context.Background()
	obj, err := o.Create(ctx, "/f", 0644, 7, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, obj.Meta.Uid)

	updated, err := o.Chown(ctx, "/f", -1, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 7, updated.Meta.Uid)
	assert.EqualValues(t, 9, updated.Meta.Gid)
}
