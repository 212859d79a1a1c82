// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ferrors defines the typed error values shared by internal/store
// and internal/fsops, and their translation to the POSIX errno values the
// fuse bridge must return to the kernel.
package ferrors

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/jacobsa/fuse"
)

// Sentinel errors returned by internal/store and internal/fsops. Use
// errors.Is against these, not direct equality, since most call sites wrap
// them with path context via fmt.Errorf("...: %w", ...).
var (
	// NotFound indicates that a name does not resolve to any object, either
	// because no child of that name exists or the root itself is missing.
	NotFound = errors.New("ferrors: not found")

	// NotDirectory indicates that a path component that was expected to be a
	// directory (because more components follow it) is not one.
	NotDirectory = errors.New("ferrors: not a directory")

	// NotEmpty indicates an rmdir on a directory that still has children.
	NotEmpty = errors.New("ferrors: directory not empty")

	// IsDirectory indicates an operation that rejects directories (unlink,
	// or a rename onto an existing directory) was given one.
	IsDirectory = errors.New("ferrors: is a directory")

	// Exists indicates a create/mkdir/symlink/link naming an entry that is
	// already present in its parent directory.
	Exists = errors.New("ferrors: already exists")

	// WrongKind indicates an operation applied to an object of a kind that
	// does not support it (e.g. read on a directory, readlink on a file).
	WrongKind = errors.New("ferrors: wrong object kind")

	// BackendUnavailable indicates the backend client could not complete an
	// RPC, for reasons unrelated to the requested key (connection refused,
	// deadline exceeded, transport reset).
	BackendUnavailable = errors.New("ferrors: backend unavailable")

	// MalformedObject indicates a payload fetched from the backend could not
	// be decoded. This always indicates backend-side or transport-level
	// corruption, never a caller error.
	MalformedObject = errors.New("ferrors: malformed object")

	// CapacityExceeded is returned by components that enforce a hard size
	// limit unrelated to the cache (currently unused by the core write path,
	// reserved for quota enforcement).
	CapacityExceeded = errors.New("ferrors: capacity exceeded")
)

// Wrap annotates sentinel with contextual information while preserving
// errors.Is/As compatibility with the sentinel.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// Errno maps an error produced anywhere in the store/fsops stack to the
// POSIX errno the fuse bridge should hand back to the kernel. Errors that
// don't match any sentinel are treated as opaque I/O errors rather than
// panicking or returning success.
func Errno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, NotFound):
		return fuse.ENOENT
	case errors.Is(err, NotDirectory):
		return fuse.ENOTDIR
	case errors.Is(err, NotEmpty):
		return fuse.ENOTEMPTY
	case errors.Is(err, IsDirectory):
		return syscall.EISDIR // jacobsa/fuse does not export a constant for it.
	case errors.Is(err, Exists):
		return fuse.EEXIST
	case errors.Is(err, WrongKind):
		return fuse.EINVAL
	case errors.Is(err, BackendUnavailable):
		return fuse.EIO
	case errors.Is(err, MalformedObject):
		return fuse.EIO
	case errors.Is(err, CapacityExceeded):
		return syscall.ENOSPC
	default:
		return fuse.EIO
	}
}
