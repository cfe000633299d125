// Package resolver turns an incoming (path, method) pair into the executable
// definition snapshot for its current version. Lookups hit a short-TTL cache
// so the hot path rarely touches the database; the TTL bounds how stale a
// served definition can be after an activation on another instance.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/store"
)

// DefaultTTL bounds definition staleness across instances.
const DefaultTTL = 5 * time.Second

// Resolver resolves route definitions with a read-through cache.
type Resolver struct {
	store store.Store
	cache *ttlcache.Cache[string, *definition.Snapshot]
	log   *slog.Logger
}

// New creates a resolver over the given store. ttl <= 0 selects DefaultTTL.
func New(s store.Store, ttl time.Duration, log *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	cache := ttlcache.New[string, *definition.Snapshot](
		ttlcache.WithTTL[string, *definition.Snapshot](ttl),
		ttlcache.WithDisableTouchOnHit[string, *definition.Snapshot](),
	)
	go cache.Start()
	return &Resolver{store: s, cache: cache, log: log}
}

// Stop halts the cache's expiry loop.
func (r *Resolver) Stop() {
	r.cache.Stop()
}

func cacheKey(path, method string, number int) string {
	return fmt.Sprintf("%s %s v%d", strings.ToUpper(method), path, number)
}

// Resolve returns the snapshot for the route's current version. Inactive
// and soft-deleted routes resolve to not found.
func (r *Resolver) Resolve(ctx context.Context, path, method string) (*definition.Snapshot, error) {
	return r.resolve(ctx, path, method, 0)
}

// ResolveVersion returns the snapshot for a specific version number,
// regardless of which version is current. number 0 means current.
func (r *Resolver) ResolveVersion(ctx context.Context, path, method string, number int) (*definition.Snapshot, error) {
	return r.resolve(ctx, path, method, number)
}

func (r *Resolver) resolve(ctx context.Context, path, method string, number int) (*definition.Snapshot, error) {
	key := cacheKey(path, method, number)
	if item := r.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	route, err := r.store.FindRoute(ctx, path, method)
	if err != nil {
		return nil, err
	}
	if !route.Active {
		return nil, apierr.NotFound("route", strings.ToUpper(method)+" "+path)
	}

	var version *definition.Version
	if number > 0 {
		version, err = r.store.GetVersion(ctx, route.ID, number)
	} else {
		version, err = r.store.CurrentVersion(ctx, route.ID)
	}
	if err != nil {
		return nil, err
	}

	snap, err := definition.NewSnapshot(route, version)
	if err != nil {
		r.log.Error("stored definition failed to decode",
			"route_id", route.ID, "version", version.Number, "error", err)
		return nil, apierr.Internal(err)
	}

	r.cache.Set(key, snap, ttlcache.DefaultTTL)
	return snap, nil
}

// Invalidate drops every cached snapshot for one route so the next request
// observes a definition change immediately on this instance.
func (r *Resolver) Invalidate(path, method string) {
	prefix := strings.ToUpper(method) + " " + path + " v"
	r.cache.Range(func(item *ttlcache.Item[string, *definition.Snapshot]) bool {
		if strings.HasPrefix(item.Key(), prefix) {
			r.cache.Delete(item.Key())
		}
		return true
	})
}

// InvalidateAll empties the cache.
func (r *Resolver) InvalidateAll() {
	r.cache.DeleteAll()
}
