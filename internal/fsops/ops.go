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

// Package fsops implements the POSIX-like file system operation layer on
// top of the storage manager: the set of calls the fuse bridge translates
// kernel requests into. Every exported method here takes and returns plain
// paths and Objects, with no knowledge of inode numbers or the fuse wire
// protocol.
package fsops

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hierfs/hierfs/internal/ferrors"
	"github.com/hierfs/hierfs/internal/object"
	"github.com/hierfs/hierfs/internal/store"
)

// Ops is the file system operation layer. hierfs uses a single coarse
// mutex guarding every operation rather than per-inode locks: the
// storage manager takes no lock around its multi-step mutations, so this
// mutex is what serializes them, and the namespace is small and
// latency-bound by network RPCs rather than CPU, so finer-grained locking
// would add complexity without a measurable throughput benefit.
type Ops struct {
	mu      sync.Mutex
	manager *store.Manager
}

// New returns an Ops layer backed by manager.
func New(manager *store.Manager) *Ops {
	return &Ops{manager: manager}
}

// Manager exposes the underlying storage manager, for callers that need to
// Fetch by ID directly.
func (o *Ops) Manager() *store.Manager {
	return o.manager
}

// Mount performs the one-time root discovery/creation and returns the root
// object.
func (o *Ops) Mount(ctx context.Context) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.manager.EnsureRoot(ctx)
}

// Lookup resolves path to its Object.
func (o *Ops) Lookup(ctx context.Context, path string) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.manager.Resolve(ctx, path)
}

// Create makes a new regular file at path.
func (o *Ops) Create(ctx context.Context, path string, perm uint32, uid, gid uint32) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	parent, name, err := o.manager.ResolveParent(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.NewChild(ctx, parent.ID, name, object.KindRegular, perm, uid, gid, func(string) object.Data {
		return object.Data{}
	})
}

// Mkdir makes a new directory at path.
func (o *Ops) Mkdir(ctx context.Context, path string, perm uint32, uid, gid uint32) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	parent, name, err := o.manager.ResolveParent(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.NewChild(ctx, parent.ID, name, object.KindDirectory, perm, uid, gid, func(string) object.Data {
		return object.Data{Children: map[string]string{}}
	})
}

// Symlink makes a new symlink at path pointing at target.
func (o *Ops) Symlink(ctx context.Context, path, target string, uid, gid uint32) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	parent, name, err := o.manager.ResolveParent(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.NewChild(ctx, parent.ID, name, object.KindSymlink, 0777, uid, gid, func(string) object.Data {
		return object.Data{Target: target}
	})
}

// Unlink removes the regular file or symlink named by path.
func (o *Ops) Unlink(ctx context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	parent, name, err := o.manager.ResolveParent(ctx, path)
	if err != nil {
		return err
	}
	return o.manager.RemoveChild(ctx, parent.ID, name, false)
}

// Rmdir removes the empty directory named by path.
func (o *Ops) Rmdir(ctx context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	parent, name, err := o.manager.ResolveParent(ctx, path)
	if err != nil {
		return err
	}
	return o.manager.RemoveChild(ctx, parent.ID, name, true)
}

// Rename moves oldPath to newPath.
func (o *Ops) Rename(ctx context.Context, oldPath, newPath string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	oldParent, oldName, err := o.manager.ResolveParent(ctx, oldPath)
	if err != nil {
		return err
	}
	newParent, newName, err := o.manager.ResolveParent(ctx, newPath)
	if err != nil {
		return err
	}
	return o.manager.Rename(ctx, oldParent.ID, oldName, newParent.ID, newName)
}

// Readdir returns the names and IDs of path's children. The map should be
// treated as a point-in-time snapshot; the caller is responsible for any
// stable-ordering or cookie bookkeeping the fuse bridge needs.
func (o *Ops) Readdir(ctx context.Context, path string) (map[string]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	dir, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if dir.Meta.Kind != object.KindDirectory {
		return nil, ferrors.Wrap(ferrors.NotDirectory, "%q", path)
	}
	out := make(map[string]string, len(dir.Data.Children))
	for k, v := range dir.Data.Children {
		out[k] = v
	}
	return out, nil
}

// Read returns the full content of the regular file at path.
func (o *Ops) Read(ctx context.Context, path string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if f.Meta.Kind != object.KindRegular {
		return nil, ferrors.Wrap(ferrors.WrongKind, "%q is a %s", path, f.Meta.Kind)
	}
	return f.Data.Bytes, nil
}

// Write replaces the full content of the regular file at path.
func (o *Ops) Write(ctx context.Context, path string, content []byte) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.WriteData(ctx, f.ID, content)
}

// Truncate sets the regular file at path to exactly size bytes, padding
// with zero bytes or dropping trailing bytes as needed.
func (o *Ops) Truncate(ctx context.Context, path string, size uint64) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	if f.Meta.Kind != object.KindRegular {
		return object.Object{}, ferrors.Wrap(ferrors.WrongKind, "%q is a %s", path, f.Meta.Kind)
	}

	content := f.Data.Bytes
	switch {
	case uint64(len(content)) == size:
		return o.manager.WriteData(ctx, f.ID, content)
	case uint64(len(content)) > size:
		return o.manager.WriteData(ctx, f.ID, content[:size])
	default:
		grown := make([]byte, size)
		copy(grown, content)
		return o.manager.WriteData(ctx, f.ID, grown)
	}
}

// Readlink returns the target of the symlink at path.
func (o *Ops) Readlink(ctx context.Context, path string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return "", err
	}
	if l.Meta.Kind != object.KindSymlink {
		return "", ferrors.Wrap(ferrors.WrongKind, "%q is a %s", path, l.Meta.Kind)
	}
	return l.Data.Target, nil
}

// Chmod changes the permission bits of path.
func (o *Ops) Chmod(ctx context.Context, path string, perm uint32) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.UpdateMeta(ctx, f.ID, func(meta *object.Meta) {
		meta.Perm = os.FileMode(perm) & os.ModePerm
	})
}

// Chown changes the uid and gid of path. A negative value for either
// leaves that field unchanged, matching the fuse convention of -1 meaning
// "don't change".
func (o *Ops) Chown(ctx context.Context, path string, uid, gid int64) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.UpdateMeta(ctx, f.ID, func(meta *object.Meta) {
		if uid >= 0 {
			meta.Uid = uint32(uid)
		}
		if gid >= 0 {
			meta.Gid = uint32(gid)
		}
	})
}

// Utimens sets the access and modification times of path. A nil pointer
// leaves the corresponding time unchanged.
func (o *Ops) Utimens(ctx context.Context, path string, atime, mtime *time.Time) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.UpdateMeta(ctx, f.ID, func(meta *object.Meta) {
		if atime != nil {
			meta.Atime = *atime
		}
		if mtime != nil {
			meta.Mtime = *mtime
		}
	})
}

// Setxattr sets an extended attribute on path.
func (o *Ops) Setxattr(ctx context.Context, path, name string, value []byte) (object.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return object.Object{}, err
	}
	return o.manager.UpdateMeta(ctx, f.ID, func(meta *object.Meta) {
		if meta.Xattrs == nil {
			meta.Xattrs = map[string][]byte{}
		}
		cp := make([]byte, len(value))
		copy(cp, value)
		meta.Xattrs[name] = cp
	})
}

// Getxattr returns the value of an extended attribute on path. An absent
// attribute returns an empty value with a nil error, not NotFound.
func (o *Ops) Getxattr(ctx context.Context, path, name string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return f.Meta.Xattrs[name], nil
}

// Listxattr returns the names of all extended attributes on path.
func (o *Ops) Listxattr(ctx context.Context, path string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Meta.Xattrs))
	for k := range f.Meta.Xattrs {
		names = append(names, k)
	}
	return names, nil
}

// Removexattr removes an extended attribute from path.
func (o *Ops) Removexattr(ctx context.Context, path, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.manager.Resolve(ctx, path)
	if err != nil {
		return err
	}
	if _, ok := f.Meta.Xattrs[name]; !ok {
		return ferrors.Wrap(ferrors.NotFound, "xattr %q on %q", name, path)
	}
	_, err = o.manager.UpdateMeta(ctx, f.ID, func(meta *object.Meta) {
		delete(meta.Xattrs, name)
	})
	return err
}
