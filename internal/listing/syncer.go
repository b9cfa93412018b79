// Package listing keeps the device's listing caches in step with the remote
// store, or stands in for it when no backend is configured.
//
// Writes follow a write-then-reload contract: in remote mode a successful
// create, update or delete refreshes the domain cache before returning, so the
// next Load always observes it. Local-only writes persist before returning.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/pkg/kv"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"golang.org/x/sync/singleflight"
)

type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ErrStale marks a Load that fell back to the cached snapshot.
var ErrStale = errors.New("showing cached listings")

// OwnerSource names the current actor for newly created listings.
type OwnerSource interface {
	OwnerID(ctx context.Context) (string, error)
}

type Syncer struct {
	mode   Mode
	remote RemoteStore
	store  kv.Store
	owner  OwnerSource
	now    func() time.Time

	group singleflight.Group
	// mu serializes read-modify-write of cached arrays.
	mu sync.Mutex
}

type Option func(*Syncer)

func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

func NewSyncer(mode Mode, store kv.Store, remote RemoteStore, owner OwnerSource, opts ...Option) (*Syncer, error) {
	if store == nil {
		return nil, errors.New("listing: kv store is required")
	}
	switch mode {
	case ModeLocal:
	case ModeRemote:
		if remote == nil {
			return nil, errors.New("listing: remote mode needs a remote store")
		}
	default:
		return nil, fmt.Errorf("listing: unknown mode %q", mode)
	}

	s := &Syncer{
		mode:   mode,
		remote: remote,
		store:  store,
		owner:  owner,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Syncer) Mode() Mode { return s.mode }

// Load returns the listings of d. In remote mode a failed fetch returns the
// cached snapshot together with an error wrapping ErrStale; callers should
// render the listings and show the error as a notice.
func (s *Syncer) Load(ctx context.Context, d Domain, f Filter) ([]Listing, error) {
	if s.mode == ModeLocal {
		cached, err := s.readCache(ctx, d)
		if err != nil {
			return nil, err
		}
		return filterListings(cached, f), nil
	}

	key := string(d) + "|" + fmt.Sprintf("%+v", f)
	// The shared fetch outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.fetch(shared, d, f)
	})
	if err == nil {
		return append([]Listing(nil), v.([]Listing)...), nil
	}

	logger.WarnContext(ctx, "remote listings unavailable, using cache", "domain", d, "error", err)
	cached, cacheErr := s.readCache(ctx, d)
	if cacheErr != nil {
		return []Listing{}, fmt.Errorf("%w: %w", ErrStale, errors.Join(serviceErr("could not load listings", err), cacheErr))
	}
	return filterListings(cached, f), fmt.Errorf("%w: %w", ErrStale, serviceErr("could not load listings", err))
}

func (s *Syncer) fetch(ctx context.Context, d Domain, f Filter) ([]Listing, error) {
	rows, err := s.remote.List(ctx, d, f)
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0, len(rows))
	for _, r := range rows {
		listings = append(listings, FromRow(r))
	}
	sortNewestFirst(listings)

	// Only the plain feed replaces the cache; narrower queries pass through.
	if f.IsDefault() {
		s.mu.Lock()
		err := s.writeCache(ctx, d, listings)
		s.mu.Unlock()
		if err != nil {
			logger.WarnContext(ctx, "failed to replace listing cache", "domain", d, "error", err)
		}
	}
	return listings, nil
}

// Save creates or updates l and returns it with its final fields.
func (s *Syncer) Save(ctx context.Context, d Domain, l Listing) (Listing, error) {
	l.Normalize()
	if err := l.Validate(); err != nil {
		return Listing{}, err
	}
	if l.OwnerID == "" && s.owner != nil {
		owner, err := s.owner.OwnerID(ctx)
		if err != nil {
			return Listing{}, fmt.Errorf("resolve listing owner: %w", err)
		}
		l.OwnerID = owner
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}

	if s.mode == ModeLocal {
		return s.saveLocal(ctx, d, l)
	}
	return s.saveRemote(ctx, d, l)
}

func (s *Syncer) saveLocal(ctx context.Context, d Domain, l Listing) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.readCache(ctx, d)
	if err != nil {
		return Listing{}, err
	}

	if l.ID == "" {
		l.ID = s.mintID(cached)
		l.Origin = OriginDraft
	}
	if l.Origin == "" {
		if IsRemoteID(l.ID) {
			l.Origin = OriginRemote
		} else {
			l.Origin = OriginDraft
		}
	}

	updated := false
	for i := range cached {
		if cached[i].ID == l.ID {
			cached[i] = l
			updated = true
			break
		}
	}
	if !updated {
		cached = append([]Listing{l}, cached...)
	}

	if err := s.writeCache(ctx, d, cached); err != nil {
		return Listing{}, err
	}
	logger.DebugContext(ctx, "listing saved locally", "domain", d, "id", l.ID, "updated", updated)
	return l, nil
}

// mintID returns a millisecond timestamp id not yet used in cached.
func (s *Syncer) mintID(cached []Listing) string {
	used := make(map[string]struct{}, len(cached))
	for _, l := range cached {
		used[l.ID] = struct{}{}
	}
	ms := s.now().UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if _, ok := used[id]; !ok {
			return id
		}
		ms++
	}
}

func (s *Syncer) saveRemote(ctx context.Context, d Domain, l Listing) (Listing, error) {
	var (
		row Row
		err error
	)
	if l.IsPersisted() {
		row, err = s.remote.Update(ctx, d, ToRow(l))
	} else {
		draft := ToRow(l)
		draft.ID = ""
		row, err = s.remote.Insert(ctx, d, draft)
	}
	if err != nil {
		return Listing{}, serviceErr("could not save listing", err)
	}

	saved := FromRow(row)
	s.refreshAfterWrite(ctx, d, func(cached []Listing) []Listing {
		return upsert(cached, saved)
	})
	return saved, nil
}

// Delete removes id from d. Deleting an unknown id succeeds.
func (s *Syncer) Delete(ctx context.Context, d Domain, id string) error {
	if id == "" {
		return apperr.Validation("listing id is required")
	}

	if s.mode == ModeLocal {
		s.mu.Lock()
		defer s.mu.Unlock()

		cached, err := s.readCache(ctx, d)
		if err != nil {
			return err
		}
		kept := without(cached, id)
		if len(kept) == len(cached) {
			return nil
		}
		return s.writeCache(ctx, d, kept)
	}

	// A device-minted id was never stored remotely.
	if !IsRemoteID(id) {
		return nil
	}
	if err := s.remote.Delete(ctx, d, id); err != nil {
		return serviceErr("could not delete listing", err)
	}
	s.refreshAfterWrite(ctx, d, func(cached []Listing) []Listing {
		return without(cached, id)
	})
	return nil
}

// refreshAfterWrite reloads the domain feed. When the reload itself fails the
// confirmed write is applied to the cache with patch instead.
func (s *Syncer) refreshAfterWrite(ctx context.Context, d Domain, patch func([]Listing) []Listing) {
	_, err := s.fetch(ctx, d, Filter{})
	if err == nil {
		return
	}
	logger.WarnContext(ctx, "refresh after write failed, patching cache", "domain", d, "error", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	cached, err := s.readCache(ctx, d)
	if err != nil {
		return
	}
	if err := s.writeCache(ctx, d, patch(cached)); err != nil {
		logger.WarnContext(ctx, "failed to patch listing cache", "domain", d, "error", err)
	}
}

func (s *Syncer) readCache(ctx context.Context, d Domain) ([]Listing, error) {
	listings := []Listing{}
	if _, err := s.store.Load(ctx, d.cacheKey(), &listings); err != nil {
		return nil, fmt.Errorf("read %s cache: %w", d, err)
	}
	return listings, nil
}

func (s *Syncer) writeCache(ctx context.Context, d Domain, listings []Listing) error {
	if listings == nil {
		listings = []Listing{}
	}
	if err := s.store.Save(ctx, d.cacheKey(), listings); err != nil {
		return fmt.Errorf("write %s cache: %w", d, err)
	}
	return nil
}

func serviceErr(msg string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Service(msg, err)
}

func filterListings(ls []Listing, f Filter) []Listing {
	out := make([]Listing, 0, len(ls))
	for _, l := range ls {
		if f.matches(l) {
			out = append(out, l)
		}
	}
	return out
}

func upsert(ls []Listing, l Listing) []Listing {
	for i := range ls {
		if ls[i].ID == l.ID {
			ls[i] = l
			return ls
		}
	}
	return append([]Listing{l}, ls...)
}

func without(ls []Listing, id string) []Listing {
	out := make([]Listing, 0, len(ls))
	for _, l := range ls {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}
