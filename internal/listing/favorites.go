package listing

import (
	"context"
	"fmt"
	"sync"

	"github.com/diagnosis/ukrbe-market/pkg/kv"
)

// Favorites is the per-domain set of listing ids the device starred. It is
// never synced remotely.
type Favorites struct {
	store kv.Store
	mu    sync.Mutex
}

func NewFavorites(store kv.Store) *Favorites {
	return &Favorites{store: store}
}

// List returns favorite ids in the order they were added.
func (f *Favorites) List(ctx context.Context, d Domain) ([]string, error) {
	ids := []string{}
	if _, err := f.store.Load(ctx, d.favoritesKey(), &ids); err != nil {
		return nil, fmt.Errorf("read %s favorites: %w", d, err)
	}
	return ids, nil
}

func (f *Favorites) Contains(ctx context.Context, d Domain, id string) (bool, error) {
	ids, err := f.List(ctx, d)
	if err != nil {
		return false, err
	}
	for _, fav := range ids {
		if fav == id {
			return true, nil
		}
	}
	return false, nil
}

// Toggle adds id when absent and removes it when present. It reports whether
// id is a favorite afterwards.
func (f *Favorites) Toggle(ctx context.Context, d Domain, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids, err := f.List(ctx, d)
	if err != nil {
		return false, err
	}

	kept := make([]string, 0, len(ids)+1)
	removed := false
	for _, fav := range ids {
		if fav == id {
			removed = true
			continue
		}
		kept = append(kept, fav)
	}
	if !removed {
		kept = append(kept, id)
	}

	if err := f.store.Save(ctx, d.favoritesKey(), kept); err != nil {
		return false, fmt.Errorf("write %s favorites: %w", d, err)
	}
	return !removed, nil
}
