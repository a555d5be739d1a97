package keyset

import (
	"context"
	"crypto"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storehook/internal/logger"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/metrics"
)

// Resolver caches one platform's key set and refetches it on a key id miss.
// The cached set is only ever replaced as a whole. Lookups that hit never
// wait for a fetch; concurrent misses share one in-flight fetch.
type Resolver struct {
	platform string
	fetcher  Fetcher
	log      logger.Logger

	mu  sync.RWMutex
	set *KeySet

	group singleflight.Group
}

// Snapshot describes the cached key set.
type Snapshot struct {
	Size      int
	FetchedAt time.Time
}

func NewResolver(platform string, fetcher Fetcher, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Resolver{
		platform: platform,
		fetcher:  fetcher,
		log:      log,
	}
}

// Resolve returns the verification key for keyID. A miss triggers one
// fetch of the whole key set followed by one more lookup. It returns
// KEY_FETCH_FAILED when the refresh fails and KEY_NOT_FOUND when the key
// is absent from a freshly fetched set.
func (r *Resolver) Resolve(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	if keyID == "" {
		return nil, apperrors.ErrKeyNotFound.WithDetail("kid", keyID)
	}

	if key, ok := r.lookup(keyID); ok {
		metrics.IncKeyLookup(r.platform, "hit")
		return key, nil
	}

	set, err := r.refresh(ctx)
	if err != nil {
		metrics.IncKeyLookup(r.platform, "error")
		return nil, err
	}

	if key, ok := set.Lookup(keyID); ok {
		metrics.IncKeyLookup(r.platform, "refreshed")
		return key, nil
	}

	metrics.IncKeyLookup(r.platform, "not_found")
	r.log.WarnwCtx(ctx, "Signing key not in published key set",
		"platform", r.platform,
		"kid", keyID,
		"keys", set.Len(),
	)
	return nil, apperrors.ErrKeyNotFound.WithDetail("kid", keyID)
}

// Warm fetches the key set ahead of the first request.
func (r *Resolver) Warm(ctx context.Context) error {
	_, err := r.refresh(ctx)
	return err
}

func (r *Resolver) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{Size: r.set.Len(), FetchedAt: r.set.FetchedAt()}
}

func (r *Resolver) Platform() string {
	return r.platform
}

func (r *Resolver) lookup(keyID string) (crypto.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set.Lookup(keyID)
}

// refresh joins or starts the shared fetch. The fetch itself is detached
// from the caller's cancellation so one impatient caller cannot fail the
// others; each caller still stops waiting when its own ctx is done.
func (r *Resolver) refresh(ctx context.Context) (*KeySet, error) {
	ch := r.group.DoChan(r.platform, func() (interface{}, error) {
		set, err := r.fetcher.Fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		r.replace(set)
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.ErrKeyFetchFailed.WithCause(ctx.Err()).WithDetail("platform", r.platform)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	}
}

func (r *Resolver) replace(set *KeySet) {
	r.mu.Lock()
	previous := r.set
	r.set = set
	r.mu.Unlock()

	metrics.SetKeySetSize(r.platform, set.Len())
	r.log.Infow("Key set replaced",
		"platform", r.platform,
		"keys", set.Len(),
		"previous_keys", previous.Len(),
	)
}
