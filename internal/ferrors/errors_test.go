package ferrors_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/stretchr/testify/assert"

	"github.com/hierfs/hierfs/internal/ferrors"
)

func TestErrnoTranslatesSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", ferrors.NotFound, fuse.ENOENT},
		{"not directory", ferrors.NotDirectory, fuse.ENOTDIR},
		{"exists", ferrors.Exists, fuse.EEXIST},
		{"wrong kind", ferrors.WrongKind, fuse.EINVAL},
		{"is directory", ferrors.IsDirectory, syscall.EISDIR},
		{"backend unavailable", ferrors.BackendUnavailable, fuse.EIO},
		{"malformed object", ferrors.MalformedObject, fuse.EIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ferrors.Errno(tc.err))
		})
	}
}

func TestErrnoPreservesWrappedIdentity(t *testing.T) {
	wrapped := ferrors.Wrap(ferrors.NotFound, "path %q", "/a/b")
	assert.True(t, errors.Is(wrapped, ferrors.NotFound))
	assert.Equal(t, fuse.ENOENT, ferrors.Errno(wrapped))
}

func TestErrnoDefaultsToEIO(t *testing.T) {
	assert.Equal(t, fuse.EIO, ferrors.Errno(errors.New("something unmodeled")))
}

func TestErrnoNilIsNil(t *testing.T) {
	assert.NoError(t, ferrors.Errno(nil))
}
