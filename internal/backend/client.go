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

// Package backend defines the contract hierfs uses to talk to the remote
// key/value store, independent of the wire transport. internal/backend/rpc
// provides the concrete HTTP-based implementation.
package backend

import "context"

// RootKey is the well-known key under which the namespace root directory
// object lives. Everything reachable from the file system is found by
// walking child pointers starting from this key; there is no separate
// indirection layer for locating the root.
const RootKey = "root"

// Client is the minimal contract the storage manager needs from a remote
// object store: opaque byte blobs keyed by string, with no notion of
// directories or structure of its own. All POSIX semantics are layered on
// top by internal/store.
type Client interface {
	// Get fetches the bytes stored at key. found is false, with a nil error,
	// if the backend has no value for key. A non-nil error indicates the
	// backend could not be reached or misbehaved, never that the key is
	// merely absent.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)

	// Put stores data at key, creating or overwriting it.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the value at key. It is not an error to delete a key
	// that does not exist.
	Delete(ctx context.Context, key string) error

	// NewKey returns a fresh, unique key suitable for a new object. Keys are
	// opaque to everything above this interface.
	NewKey() string
}
