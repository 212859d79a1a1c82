package rpc_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierfs/hierfs/internal/backend/rpc"
)

func newTestClient(t *testing.T) *rpc.Client {
	t.Helper()
	store := rpc.NewStore()
	srv := rpc.NewServer(store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return rpc.NewClient(ts.URL, ts.Client())
}

func TestGetMissingKeyReturnsNotFoundNotError(t *testing.T) {
	c := newTestClient(t)
	data, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k1", []byte("hello\x00world")))

	data, found, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("hello\x00world"), data)
}

func TestDeleteRemovesKey(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k1", []byte("x")))
	require.NoError(t, c.Delete(ctx, "k1"))

	_, found, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.Delete(context.Background(), "nope"))
}

func TestNewKeyIsUnique(t *testing.T) {
	c := newTestClient(t)
	a := c.NewKey()
	b := c.NewKey()
	assert.NotEqual(t, a, b)
}
