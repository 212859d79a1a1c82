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

// Package bridge adapts the path-based internal/fsops operation layer to
// the inode-ID-based fuseutil.FileSystem interface the kernel actually
// speaks. It is the only place in hierfs that knows about inode IDs,
// lookup counts, or directory handles; everything below it works in terms
// of plain slash-separated paths.
package bridge

import (
	"path"
	"sort"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/hierfs/hierfs/internal/ferrors"
	"github.com/hierfs/hierfs/internal/fsops"
	"github.com/hierfs/hierfs/internal/object"
)

// entry is the bridge's bookkeeping for one inode the kernel currently
// knows about.
type entry struct {
	path        string
	objectID    string
	lookupCount uint64
}

// dirHandle buffers the listing for one open directory so that ReadDir
// calls, which the kernel may issue in small chunks, see a consistent
// snapshot rather than one that can shift between calls.
type dirHandle struct {
	entries []fuseutil.Dirent
}

// FileSystem implements fuseutil.FileSystem on top of an *fsops.Ops. It
// embeds fuseutil.NotImplementedFileSystem so that any future addition to
// the interface degrades to ENOSYS rather than failing to build.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	ops *fsops.Ops

	mu           sync.Mutex
	nextInodeID  fuseops.InodeID
	byInode      map[fuseops.InodeID]*entry
	byPath       map[string]fuseops.InodeID
	nextHandleID fuseops.HandleID
	dirHandles   map[fuseops.HandleID]*dirHandle

	uid, gid uint32
}

var _ fuseutil.FileSystem = (*FileSystem)(nil)

// Config controls the default ownership the bridge assigns to inodes
// created through it (the uid/gid of the mounting process, in practice).
type Config struct {
	Uid, Gid uint32
}

// New returns a FileSystem bridging ops.
func New(ops *fsops.Ops, cfg Config) *FileSystem {
	return &FileSystem{
		ops:          ops,
		nextInodeID:  fuseops.RootInodeID + 1,
		byInode:      map[fuseops.InodeID]*entry{},
		byPath:       map[string]fuseops.InodeID{},
		nextHandleID: 1,
		dirHandles:   map[fuseops.HandleID]*dirHandle{},
		uid:          cfg.Uid,
		gid:          cfg.Gid,
	}
}

func (fs *FileSystem) Init(op *fuseops.InitOp) error {
	root, err := fs.ops.Mount(op.Context())
	if err != nil {
		return ferrors.Errno(err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.byInode[fuseops.RootInodeID] = &entry{path: "/", objectID: root.ID, lookupCount: 1}
	fs.byPath["/"] = fuseops.RootInodeID
	return nil
}

func (fs *FileSystem) pathFor(id fuseops.InodeID) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.byInode[id]
	if !ok {
		return "", false
	}
	return e.path, true
}

// register assigns (or reuses) an inode ID for childPath/obj.ID and bumps
// its lookup count by one, as required whenever an operation hands an ID
// back to the kernel.
func (fs *FileSystem) register(childPath string, obj object.Object) fuseops.InodeID {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if id, ok := fs.byPath[childPath]; ok {
		fs.byInode[id].lookupCount++
		fs.byInode[id].objectID = obj.ID
		return id
	}

	id := fs.nextInodeID
	fs.nextInodeID++
	fs.byInode[id] = &entry{path: childPath, objectID: obj.ID, lookupCount: 1}
	fs.byPath[childPath] = id
	return id
}

func attrsFromObject(o object.Object) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  o.Meta.Size,
		Nlink: o.Meta.Nlink,
		Mode:  o.Meta.Mode(),
		Atime: o.Meta.Atime,
		Mtime: o.Meta.Mtime,
		Ctime: o.Meta.Ctime,
		Uid:   o.Meta.Uid,
		Gid:   o.Meta.Gid,
	}
}

func joinPath(parent, name string) string {
	return path.Join(parent, name)
}

func (fs *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) error {
	parentPath, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	childPath := joinPath(parentPath, op.Name)
	obj, err := fs.ops.Lookup(op.Context(), childPath)
	if err != nil {
		return ferrors.Errno(err)
	}

	op.Entry.Child = fs.register(childPath, obj)
	op.Entry.Attributes = attrsFromObject(obj)
	return nil
}

func (fs *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	obj, err := fs.ops.Lookup(op.Context(), p)
	if err != nil {
		return ferrors.Errno(err)
	}
	op.Attributes = attrsFromObject(obj)
	return nil
}

func (fs *FileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	var obj object.Object
	var err error

	if op.Mode != nil {
		obj, err = fs.ops.Chmod(op.Context(), p, uint32(op.Mode.Perm()))
		if err != nil {
			return ferrors.Errno(err)
		}
	}
	if op.Size != nil {
		obj, err = fs.ops.Truncate(op.Context(), p, *op.Size)
		if err != nil {
			return ferrors.Errno(err)
		}
	}
	if op.Atime != nil || op.Mtime != nil {
		obj, err = fs.ops.Utimens(op.Context(), p, op.Atime, op.Mtime)
		if err != nil {
			return ferrors.Errno(err)
		}
	}

	if op.Mode == nil && op.Size == nil && op.Atime == nil && op.Mtime == nil {
		obj, err = fs.ops.Lookup(op.Context(), p)
		if err != nil {
			return ferrors.Errno(err)
		}
	}

	op.Attributes = attrsFromObject(obj)
	return nil
}

func (fs *FileSystem) ForgetInode(op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, ok := fs.byInode[op.Inode]
	if !ok {
		return nil
	}
	if op.N >= e.lookupCount {
		delete(fs.byInode, op.Inode)
		delete(fs.byPath, e.path)
	} else {
		e.lookupCount -= op.N
	}
	return nil
}

func (fs *FileSystem) MkDir(op *fuseops.MkDirOp) error {
	parentPath, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	childPath := joinPath(parentPath, op.Name)

	obj, err := fs.ops.Mkdir(op.Context(), childPath, uint32(op.Mode.Perm()), fs.uid, fs.gid)
	if err != nil {
		return ferrors.Errno(err)
	}

	op.Entry.Child = fs.register(childPath, obj)
	op.Entry.Attributes = attrsFromObject(obj)
	return nil
}

func (fs *FileSystem) CreateFile(op *fuseops.CreateFileOp) error {
	parentPath, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	childPath := joinPath(parentPath, op.Name)

	obj, err := fs.ops.Create(op.Context(), childPath, uint32(op.Mode.Perm()), fs.uid, fs.gid)
	if err != nil {
		return ferrors.Errno(err)
	}

	op.Entry.Child = fs.register(childPath, obj)
	op.Entry.Attributes = attrsFromObject(obj)
	return nil
}

func (fs *FileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) error {
	parentPath, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	childPath := joinPath(parentPath, op.Name)

	obj, err := fs.ops.Symlink(op.Context(), childPath, op.Target, fs.uid, fs.gid)
	if err != nil {
		return ferrors.Errno(err)
	}

	op.Entry.Child = fs.register(childPath, obj)
	op.Entry.Attributes = attrsFromObject(obj)
	return nil
}

func (fs *FileSystem) CreateLink(op *fuseops.CreateLinkOp) error {
	// Hard links across the namespace would require objects to have more
	// than one parent pointer, which the directory-children-map data model
	// does not support.
	return fuse.ENOSYS
}

func (fs *FileSystem) Rename(op *fuseops.RenameOp) error {
	oldParentPath, ok := fs.pathFor(op.OldParent)
	if !ok {
		return fuse.ENOENT
	}
	newParentPath, ok := fs.pathFor(op.NewParent)
	if !ok {
		return fuse.ENOENT
	}

	oldPath := joinPath(oldParentPath, op.OldName)
	newPath := joinPath(newParentPath, op.NewName)

	if err := fs.ops.Rename(op.Context(), oldPath, newPath); err != nil {
		return ferrors.Errno(err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if id, ok := fs.byPath[oldPath]; ok {
		delete(fs.byPath, oldPath)
		fs.byInode[id].path = newPath
		fs.byPath[newPath] = id
	}
	return nil
}

func (fs *FileSystem) RmDir(op *fuseops.RmDirOp) error {
	parentPath, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	if err := fs.ops.Rmdir(op.Context(), joinPath(parentPath, op.Name)); err != nil {
		return ferrors.Errno(err)
	}
	return nil
}

func (fs *FileSystem) Unlink(op *fuseops.UnlinkOp) error {
	parentPath, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	if err := fs.ops.Unlink(op.Context(), joinPath(parentPath, op.Name)); err != nil {
		return ferrors.Errno(err)
	}
	return nil
}

func (fs *FileSystem) OpenDir(op *fuseops.OpenDirOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	children, err := fs.ops.Readdir(op.Context(), p)
	if err != nil {
		return ferrors.Errno(err)
	}

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]fuseutil.Dirent, 0, len(names)+2)
	entries = append(entries,
		fuseutil.Dirent{Offset: 1, Inode: op.Inode, Name: ".", Type: fuseutil.DT_Directory},
		fuseutil.Dirent{Offset: 2, Inode: op.Inode, Name: "..", Type: fuseutil.DT_Directory},
	)
	for i, name := range names {
		childObj, err := fs.ops.Lookup(op.Context(), joinPath(p, name))
		if err != nil {
			return ferrors.Errno(err)
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 3),
			Inode:  fs.register(joinPath(p, name), childObj),
			Name:   name,
			Type:   direntType(childObj),
		})
	}

	fs.mu.Lock()
	handle := fs.nextHandleID
	fs.nextHandleID++
	fs.dirHandles[handle] = &dirHandle{entries: entries}
	fs.mu.Unlock()

	op.Handle = handle
	return nil
}

func direntType(o object.Object) fuseutil.DirentType {
	switch o.Meta.Kind {
	case object.KindDirectory:
		return fuseutil.DT_Directory
	case object.KindSymlink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

func (fs *FileSystem) ReadDir(op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	dh, ok := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	index := int(op.Offset)
	for index < len(dh.entries) {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dh.entries[index])
		if n == 0 {
			break
		}
		op.BytesRead += n
		index++
	}
	return nil
}

func (fs *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.dirHandles, op.Handle)
	return nil
}

func (fs *FileSystem) OpenFile(op *fuseops.OpenFileOp) error {
	_, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	return nil
}

func (fs *FileSystem) ReadFile(op *fuseops.ReadFileOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	content, err := fs.ops.Read(op.Context(), p)
	if err != nil {
		return ferrors.Errno(err)
	}

	if op.Offset >= int64(len(content)) {
		op.BytesRead = 0
		return nil
	}
	end := int(op.Offset) + len(op.Dst)
	if end > len(content) {
		end = len(content)
	}
	op.BytesRead = copy(op.Dst, content[op.Offset:end])
	return nil
}

func (fs *FileSystem) WriteFile(op *fuseops.WriteFileOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	content, err := fs.ops.Read(op.Context(), p)
	if err != nil {
		return ferrors.Errno(err)
	}

	end := int(op.Offset) + len(op.Data)
	if end > len(content) {
		grown := make([]byte, end)
		copy(grown, content)
		content = grown
	}
	copy(content[op.Offset:end], op.Data)

	_, err = fs.ops.Write(op.Context(), p, content)
	return ferrors.Errno(err)
}

func (fs *FileSystem) ReadSymlink(op *fuseops.ReadSymlinkOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	target, err := fs.ops.Readlink(op.Context(), p)
	if err != nil {
		return ferrors.Errno(err)
	}
	op.Target = target
	return nil
}

func (fs *FileSystem) FlushFile(op *fuseops.FlushFileOp) error { return nil }
func (fs *FileSystem) SyncFile(op *fuseops.SyncFileOp) error   { return nil }
func (fs *FileSystem) Destroy()                                {}

func (fs *FileSystem) StatFS(op *fuseops.StatFSOp) error {
	return nil
}

func (fs *FileSystem) GetXattr(op *fuseops.GetXattrOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	v, err := fs.ops.Getxattr(op.Context(), p, op.Name)
	if err != nil {
		return ferrors.Errno(err)
	}
	op.BytesRead = len(v)
	if len(op.Dst) < len(v) {
		return syscall.ERANGE
	}
	copy(op.Dst, v)
	return nil
}

func (fs *FileSystem) ListXattr(op *fuseops.ListXattrOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	names, err := fs.ops.Listxattr(op.Context(), p)
	if err != nil {
		return ferrors.Errno(err)
	}

	var buf []byte
	for _, n := range names {
		buf = append(buf, []byte(n)...)
		buf = append(buf, 0)
	}
	op.BytesRead = len(buf)
	if len(op.Dst) < len(buf) {
		return syscall.ERANGE
	}
	copy(op.Dst, buf)
	return nil
}

func (fs *FileSystem) SetXattr(op *fuseops.SetXattrOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	_, err := fs.ops.Setxattr(op.Context(), p, op.Name, op.Value)
	return ferrors.Errno(err)
}

func (fs *FileSystem) RemoveXattr(op *fuseops.RemoveXattrOp) error {
	p, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	return ferrors.Errno(fs.ops.Removexattr(op.Context(), p, op.Name))
}

func (fs *FileSystem) FallocateFile(op *fuseops.FallocateFileOp) error { return fuse.ENOSYS }

func (fs *FileSystem) SyncFS(op *fuseops.SyncFSOp) error { return nil }

func (fs *FileSystem) Fsync(op *fuseops.FsyncFileOp) error { return nil }

func (fs *FileSystem) BatchForget(op *fuseops.BatchForgetOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, fe := range op.Entries {
		e, ok := fs.byInode[fe.Inode]
		if !ok {
			continue
		}
		if fe.N >= e.lookupCount {
			delete(fs.byInode, fe.Inode)
			delete(fs.byPath, e.path)
		} else {
			e.lookupCount -= fe.N
		}
	}
	return nil
}

