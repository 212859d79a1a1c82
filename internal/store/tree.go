package store

import (
	"context"
	"os"

	"github.com/hierfs/hierfs/internal/cache"
	"github.com/hierfs/hierfs/internal/ferrors"
	"github.com/hierfs/hierfs/internal/object"
)

// NewChild creates a child of kind under the directory identified by
// parentID, named name, and links it into the parent's child map. build is
// called with the freshly allocated ID to construct the new object's
// kind-specific Data; NewChild sets every Meta field itself.
func (m *Manager) NewChild(
	ctx context.Context,
	parentID string,
	name string,
	kind object.Kind,
	perm uint32,
	uid, gid uint32,
	build func(id string) object.Data,
) (object.Object, error) {
	parent, err := m.Fetch(ctx, parentID)
	if err != nil {
		return object.Object{}, err
	}
	if parent.Meta.Kind != object.KindDirectory {
		return object.Object{}, ferrors.Wrap(ferrors.NotDirectory, "parent %q", parentID)
	}
	if _, exists := parent.Data.Children[name]; exists {
		return object.Object{}, ferrors.Wrap(ferrors.Exists, "%q in %q", name, parentID)
	}

	id := m.client.NewKey()
	now := m.clock.Now()

	nlink := uint32(1)
	if kind == object.KindDirectory {
		nlink = 2
	}

	child := object.Object{
		ID:   id,
		Name: name,
		Meta: object.Meta{
			Kind:  kind,
			Perm:  os.FileMode(perm) & os.ModePerm,
			Nlink: nlink,
			Uid:   uid,
			Gid:   gid,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
		Data: build(id),
	}

	if err := m.persistNew(ctx, child); err != nil {
		return object.Object{}, err
	}

	_, err = m.write(ctx, parentID, func(o object.Object) (object.Object, error) {
		if o.Data.Children == nil {
			o.Data.Children = map[string]string{}
		}
		o.Data.Children[name] = id
		if kind == object.KindDirectory {
			o.Meta.Nlink++
		}
		now := m.clock.Now()
		o.Meta.Mtime = now
		o.Meta.Ctime = now
		return o, nil
	})
	if err != nil {
		// Best-effort rollback of the orphaned child so a failed parent
		// update doesn't leave a dangling object behind.
		m.cache.Invalidate(id)
		_ = m.client.Delete(ctx, id)
		return object.Object{}, err
	}

	return child, nil
}

// RemoveChild unlinks name from the directory identified by parentID and
// deletes the child object. If requireDir is true (rmdir), the child must
// be a directory and must be empty; if false (unlink), the child must not
// be a directory.
func (m *Manager) RemoveChild(ctx context.Context, parentID, name string, requireDir bool) error {
	parent, err := m.Fetch(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.Meta.Kind != object.KindDirectory {
		return ferrors.Wrap(ferrors.NotDirectory, "parent %q", parentID)
	}

	childID, exists := parent.Data.Children[name]
	if !exists {
		return ferrors.Wrap(ferrors.NotFound, "%q in %q", name, parentID)
	}

	child, err := m.Fetch(ctx, childID)
	if err != nil {
		return err
	}

	isDir := child.Meta.Kind == object.KindDirectory
	switch {
	case requireDir && !isDir:
		return ferrors.Wrap(ferrors.NotDirectory, "%q", name)
	case !requireDir && isDir:
		return ferrors.Wrap(ferrors.IsDirectory, "%q", name)
	}
	if isDir && len(child.Data.Children) > 0 {
		return ferrors.Wrap(ferrors.NotEmpty, "%q", name)
	}

	_, err = m.write(ctx, parentID, func(o object.Object) (object.Object, error) {
		delete(o.Data.Children, name)
		// unlink of a regular file does not change the parent's link
		// count; only removing a subdirectory does, since the ".." entry
		// of that subdirectory stops pointing back at the parent.
		if isDir {
			o.Meta.Nlink--
		}
		now := m.clock.Now()
		o.Meta.Mtime = now
		o.Meta.Ctime = now
		return o, nil
	})
	if err != nil {
		return err
	}

	m.cache.Invalidate(childID)
	if err := m.client.Delete(ctx, childID); err != nil {
		return ferrors.Wrap(ferrors.BackendUnavailable, "delete %q: %v", childID, err)
	}
	m.cache.Put(childID, cache.Entry{Tombstone: true})
	return nil
}

// Rename moves the child named oldName under oldParentID to newName under
// newParentID. If another object already occupies newName, it is first
// unlinked and deleted as RemoveChild does for unlink; if that object is a
// directory, the rename fails with ferrors.IsDirectory.
func (m *Manager) Rename(ctx context.Context, oldParentID, oldName, newParentID, newName string) error {
	oldParent, err := m.Fetch(ctx, oldParentID)
	if err != nil {
		return err
	}
	childID, exists := oldParent.Data.Children[oldName]
	if !exists {
		return ferrors.Wrap(ferrors.NotFound, "%q in %q", oldName, oldParentID)
	}

	newParent, err := m.Fetch(ctx, newParentID)
	if err != nil {
		return err
	}
	if newParent.Meta.Kind != object.KindDirectory {
		return ferrors.Wrap(ferrors.NotDirectory, "destination parent %q", newParentID)
	}

	if existingID, occupied := newParent.Data.Children[newName]; occupied && existingID != childID {
		if err := m.RemoveChild(ctx, newParentID, newName, false); err != nil {
			return err
		}
	}

	if oldParentID == newParentID {
		if _, err := m.write(ctx, oldParentID, func(o object.Object) (object.Object, error) {
			delete(o.Data.Children, oldName)
			o.Data.Children[newName] = childID
			now := m.clock.Now()
			o.Meta.Mtime = now
			o.Meta.Ctime = now
			return o, nil
		}); err != nil {
			return err
		}
		return m.renameChildObject(ctx, childID, newName)
	}

	if _, err := m.write(ctx, oldParentID, func(o object.Object) (object.Object, error) {
		delete(o.Data.Children, oldName)
		now := m.clock.Now()
		o.Meta.Mtime = now
		o.Meta.Ctime = now
		return o, nil
	}); err != nil {
		return err
	}

	if _, err := m.write(ctx, newParentID, func(o object.Object) (object.Object, error) {
		o.Data.Children[newName] = childID
		now := m.clock.Now()
		o.Meta.Mtime = now
		o.Meta.Ctime = now
		return o, nil
	}); err != nil {
		return err
	}

	return m.renameChildObject(ctx, childID, newName)
}

// renameChildObject sets the moved object's own Name to newName, keeping
// it in sync with the key it is now filed under in its new parent's
// Data.Children map.
func (m *Manager) renameChildObject(ctx context.Context, childID, newName string) error {
	_, err := m.write(ctx, childID, func(o object.Object) (object.Object, error) {
		o.Name = newName
		return o, nil
	})
	return err
}

