// Package store persists routes, versions and the audit trail. The write
// operations are the engine's only mutation path: each one is a single
// transaction that appends its audit entries alongside the entity change,
// so a partial failure can never produce a change without an audit record.
package store

import (
	"context"

	"github.com/rowapi/rowapi/pkg/definition"
)

// Actor identifies who performed a definition-management action.
type Actor struct {
	Name string
	IP   string
}

// Store is the persistence contract for definitions and audit entries.
type Store interface {
	// Reads. All execution-path reads return already-committed, immutable
	// rows and need no locking.
	GetRoute(ctx context.Context, id string) (*definition.Route, error)
	FindRoute(ctx context.Context, path, method string) (*definition.Route, error)
	ListRoutes(ctx context.Context, includeDeleted bool) ([]definition.Route, error)
	GetVersion(ctx context.Context, routeID string, number int) (*definition.Version, error)
	CurrentVersion(ctx context.Context, routeID string) (*definition.Version, error)
	ListVersions(ctx context.Context, routeID string) ([]definition.Version, error)
	ListAudit(ctx context.Context, targetID string, limit int) ([]definition.AuditEntry, error)

	// Writes. Transactional; audit entries are appended in the same
	// transaction as the entity change.

	// CreateRoute inserts a route and its initial version (number 1,
	// current) atomically.
	CreateRoute(ctx context.Context, route *definition.Route, initial *definition.Version, actor Actor) error

	// CreateVersion inserts a new version with the next sequential number
	// for its route, not current by default.
	CreateVersion(ctx context.Context, version *definition.Version, actor Actor) error

	// ActivateVersion flips the target's current flag on and the previous
	// current version's off in one transaction.
	ActivateVersion(ctx context.Context, routeID string, number int, actor Actor) (*definition.Version, error)

	// Rollback copies the target version forward as a new current version.
	// History is never re-pointed.
	Rollback(ctx context.Context, routeID string, targetNumber int, actor Actor) (*definition.Version, error)

	// SetRouteStatus toggles the active/deleted flags, the only route
	// fields that may change after creation.
	SetRouteStatus(ctx context.Context, routeID string, active, deleted bool, actor Actor) (*definition.Route, error)
}
