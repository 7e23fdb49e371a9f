package cli

import (
	"context"
	"fmt"
	"sort"
)

// Bumper invalidates a cache namespace. cache.Cache satisfies it.
type Bumper interface {
	Bump(ctx context.Context) error
}

// BumpCaches bumps the selected namespaces, or all of them when only is empty, and
// returns the names bumped in order.
func BumpCaches(ctx context.Context, caches map[string]Bumper, only string) ([]string, error) {
	names := make([]string, 0, len(caches))
	for name := range caches {
		if only == "" || only == name {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("cli: unknown cache namespace %q", only)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := caches[name].Bump(ctx); err != nil {
			return nil, fmt.Errorf("cli: bump %s: %w", name, err)
		}
	}
	return names, nil
}
