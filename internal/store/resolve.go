package store

import (
	"context"
	"strings"

	"github.com/hierfs/hierfs/internal/backend"
	"github.com/hierfs/hierfs/internal/ferrors"
	"github.com/hierfs/hierfs/internal/object"
)

// Resolve walks path, a slash-separated sequence of names starting from
// the root, to the Object it names. Every step goes through Fetch, so a
// resolution touches (and promotes) the cache entry for every directory it
// passes through, not just the final object.
//
// An empty path, or "/", resolves to the root. A path with a non-directory
// component before its last segment fails with ferrors.NotDirectory; a
// missing component at any position fails with ferrors.NotFound.
func (m *Manager) Resolve(ctx context.Context, path string) (object.Object, error) {
	current, err := m.Fetch(ctx, backend.RootKey)
	if err != nil {
		return object.Object{}, err
	}

	for _, name := range splitPath(path) {
		if current.Meta.Kind != object.KindDirectory {
			return object.Object{}, ferrors.Wrap(ferrors.NotDirectory, "component before %q", name)
		}

		childID, ok := current.Data.Children[name]
		if !ok {
			return object.Object{}, ferrors.Wrap(ferrors.NotFound, "%q", name)
		}

		current, err = m.Fetch(ctx, childID)
		if err != nil {
			return object.Object{}, err
		}
	}

	return current, nil
}

// ResolveParent resolves the directory that would contain path's final
// component, returning that directory's Object and the component's base
// name. Used by operations (create, unlink, rename) that need the parent
// to mutate rather than the target itself.
func (m *Manager) ResolveParent(ctx context.Context, path string) (object.Object, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return object.Object{}, "", ferrors.Wrap(ferrors.Exists, "root has no parent")
	}

	parentPath := strings.Join(parts[:len(parts)-1], "/")
	parent, err := m.Resolve(ctx, parentPath)
	if err != nil {
		return object.Object{}, "", err
	}
	if parent.Meta.Kind != object.KindDirectory {
		return object.Object{}, "", ferrors.Wrap(ferrors.NotDirectory, "parent of %q", path)
	}
	return parent, parts[len(parts)-1], nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
