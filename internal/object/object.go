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

// Package object defines the wire-level record stored for every node of the
// hierfs namespace, and the codec used to turn it into bytes suitable for a
// flat key/value backend.
package object

import (
	"os"
	"time"
)

// Kind distinguishes the three node types hierfs supports. It is stored in
// Meta.Kind, apart from the permission bits; Meta.Mode combines the two,
// placing the kind in the type bits the Go os.FileMode constants use, so
// that its result can be handed directly to fuseops attribute structs.
type Kind uint32

const (
	KindRegular Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// ModeBits returns the os.FileMode type bits corresponding to k, suitable for
// OR-ing with permission bits to build a full os.FileMode.
func (k Kind) ModeBits() os.FileMode {
	switch k {
	case KindDirectory:
		return os.ModeDir
	case KindSymlink:
		return os.ModeSymlink
	default:
		return 0
	}
}

// Meta holds the POSIX-ish metadata carried by every object, independent of
// its kind-specific payload.
type Meta struct {
	Kind  Kind
	Perm  os.FileMode // permission bits only; type bits live in Kind
	Nlink uint32
	Size  uint64
	Uid   uint32
	Gid   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	// Xattrs holds extended attributes keyed by name. Nil and empty are
	// equivalent; callers should not rely on which one a given object uses.
	Xattrs map[string][]byte
}

// Mode returns the full os.FileMode (type bits plus permission bits) for
// attaching to fuseops attribute structs.
func (m Meta) Mode() os.FileMode {
	return m.Perm | m.Kind.ModeBits()
}

// Object is the unit of storage for hierfs: one regular file, directory, or
// symlink. Data is kind-dependent and exactly one of its three fields is
// meaningful for any given Kind:
//
//   - KindRegular:   Data.Bytes holds the file content.
//   - KindDirectory: Data.Children maps child name to child ID.
//   - KindSymlink:   Data.Target holds the link target text.
type Object struct {
	ID   string // opaque backend/cache key, assigned by the backend
	Name string // base name, as stored in the parent's Children map
	Meta Meta
	Data Data
}

// Data carries the kind-dependent payload of an Object. Only the field
// matching Meta.Kind is populated; the codec does not enforce this but
// callers in internal/store do.
type Data struct {
	Bytes    []byte
	Children map[string]string // child name -> child object ID
	Target   string
}

// Clone returns a deep copy of o, so that callers can mutate the result
// without affecting anything a cache or backend still holds a reference to.
func (o Object) Clone() Object {
	c := o
	if o.Meta.Xattrs != nil {
		c.Meta.Xattrs = make(map[string][]byte, len(o.Meta.Xattrs))
		for k, v := range o.Meta.Xattrs {
			cp := make([]byte, len(v))
			copy(cp, v)
			c.Meta.Xattrs[k] = cp
		}
	}
	if o.Data.Bytes != nil {
		c.Data.Bytes = make([]byte, len(o.Data.Bytes))
		copy(c.Data.Bytes, o.Data.Bytes)
	}
	if o.Data.Children != nil {
		c.Data.Children = make(map[string]string, len(o.Data.Children))
		for k, v := range o.Data.Children {
			c.Data.Children[k] = v
		}
	}
	return c
}

// ByteSize returns the number of bytes this object occupies, for cache capacity
// accounting purposes. hierfs's cache is bounded by entry count rather than
// byte size (see internal/cache), so this is informational only.
func (o Object) ByteSize() int {
	n := len(o.Data.Bytes) + len(o.Data.Target)
	for k, v := range o.Data.Children {
		n += len(k) + len(v)
	}
	for k, v := range o.Meta.Xattrs {
		n += len(k) + len(v)
	}
	return n
}
