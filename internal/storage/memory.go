// Package storage provides the in-memory definition store used by tests
// and by dev mode when no database is configured. It implements the same
// contract as the database-backed store, including the immutability and
// audit semantics, so the engine above it cannot tell the two apart.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/store"
)

// Memory is a thread-safe in-memory store.Store.
type Memory struct {
	mu       sync.RWMutex
	routes   map[string]*definition.Route
	versions map[string][]*definition.Version
	audit    []*definition.AuditEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		routes:   make(map[string]*definition.Route),
		versions: make(map[string][]*definition.Version),
	}
}

func (s *Memory) GetRoute(_ context.Context, id string) (*definition.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok || r.Deleted {
		return nil, apierr.NotFound("route", id)
	}
	cp := *r
	return &cp, nil
}

func (s *Memory) FindRoute(_ context.Context, path, method string) (*definition.Route, error) {
	method = strings.ToUpper(method)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.routes {
		if r.Path == path && r.Method == method && !r.Deleted {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apierr.NotFound("route", method+" "+path)
}

func (s *Memory) ListRoutes(_ context.Context, includeDeleted bool) ([]definition.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]definition.Route, 0, len(s.routes))
	for _, r := range s.routes {
		if r.Deleted && !includeDeleted {
			continue
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result, nil
}

func (s *Memory) GetVersion(_ context.Context, routeID string, number int) (*definition.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionLocked(routeID, number)
}

func (s *Memory) versionLocked(routeID string, number int) (*definition.Version, error) {
	for _, v := range s.versions[routeID] {
		if v.Number == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apierr.NotFound("version", fmt.Sprintf("%s v%d", routeID, number))
}

func (s *Memory) CurrentVersion(_ context.Context, routeID string) (*definition.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions[routeID] {
		if v.Current {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apierr.NotFound("current version", routeID)
}

func (s *Memory) ListVersions(_ context.Context, routeID string) ([]definition.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[routeID]
	result := make([]definition.Version, 0, len(vs))
	for _, v := range vs {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number > result[j].Number })
	return result, nil
}

func (s *Memory) ListAudit(_ context.Context, targetID string, limit int) ([]definition.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []definition.AuditEntry
	// Stored oldest first; returned newest first like the database store.
	for i := len(s.audit) - 1; i >= 0; i-- {
		if targetID != "" && s.audit[i].TargetID != targetID {
			continue
		}
		result = append(result, *s.audit[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Memory) CreateRoute(_ context.Context, route *definition.Route, initial *definition.Version, actor store.Actor) error {
	now := time.Now().UTC()
	route.Method = strings.ToUpper(route.Method)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.routes {
		if r.Path == route.Path && r.Method == route.Method && !r.Deleted {
			return apierr.Duplicate("route", route.Method+" "+route.Path)
		}
	}

	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	route.Active = true
	route.Deleted = false
	route.CreatedAt = now
	route.UpdatedAt = now
	route.CreatedBy = actor.Name
	if route.RateLimit <= 0 {
		route.RateLimit = 100
	}

	if initial.ID == "" {
		initial.ID = uuid.NewString()
	}
	initial.RouteID = route.ID
	initial.Number = 1
	initial.Current = true
	initial.CreatedAt = now
	initial.CreatedBy = actor.Name

	rc := *route
	vc := *initial
	s.routes[route.ID] = &rc
	s.versions[route.ID] = append(s.versions[route.ID], &vc)

	s.appendLocked(definition.TargetRoute, route.ID, definition.ActionCreate,
		fmt.Sprintf("route created: %s %s", route.Method, route.Path), actor)
	s.appendLocked(definition.TargetVersion, initial.ID, definition.ActionCreate,
		fmt.Sprintf("initial version for %s %s", route.Method, route.Path), actor)
	return nil
}

func (s *Memory) CreateVersion(_ context.Context, version *definition.Version, actor store.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.routes[version.RouteID]
	if !ok || route.Deleted {
		return apierr.NotFound("route", version.RouteID)
	}

	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	version.Number = s.maxNumberLocked(version.RouteID) + 1
	version.Current = false
	version.CreatedAt = time.Now().UTC()
	version.CreatedBy = actor.Name

	vc := *version
	s.versions[version.RouteID] = append(s.versions[version.RouteID], &vc)

	s.appendLocked(definition.TargetVersion, version.ID, definition.ActionCreate,
		fmt.Sprintf("version %d for %s %s", version.Number, route.Method, route.Path), actor)
	return nil
}

func (s *Memory) ActivateVersion(_ context.Context, routeID string, number int, actor store.Actor) (*definition.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.routes[routeID]
	if !ok || route.Deleted {
		return nil, apierr.NotFound("route", routeID)
	}

	var target *definition.Version
	for _, v := range s.versions[routeID] {
		if v.Number == number {
			target = v
			break
		}
	}
	if target == nil {
		return nil, apierr.NotFound("version", fmt.Sprintf("%s v%d", routeID, number))
	}

	if !target.Current {
		for _, v := range s.versions[routeID] {
			v.Current = false
		}
		target.Current = true
		s.appendLocked(definition.TargetVersion, target.ID, definition.ActionSetCurrent,
			fmt.Sprintf("current version set to v%d", number), actor)
	}
	cp := *target
	return &cp, nil
}

func (s *Memory) Rollback(_ context.Context, routeID string, targetNumber int, actor store.Actor) (*definition.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.routes[routeID]
	if !ok || route.Deleted {
		return nil, apierr.NotFound("route", routeID)
	}

	var target *definition.Version
	for _, v := range s.versions[routeID] {
		if v.Number == targetNumber {
			target = v
			break
		}
	}
	if target == nil {
		return nil, apierr.NotFound("version", fmt.Sprintf("%s v%d", routeID, targetNumber))
	}

	created := *target
	created.ID = uuid.NewString()
	created.Number = s.maxNumberLocked(routeID) + 1
	created.Current = true
	created.ChangeNote = fmt.Sprintf("rollback to v%d", targetNumber)
	created.CreatedAt = time.Now().UTC()
	created.CreatedBy = actor.Name

	for _, v := range s.versions[routeID] {
		v.Current = false
	}
	s.versions[routeID] = append(s.versions[routeID], &created)

	s.appendLocked(definition.TargetVersion, created.ID, definition.ActionCreate,
		fmt.Sprintf("version %d for %s %s (rollback copy)", created.Number, route.Method, route.Path), actor)
	s.appendLocked(definition.TargetVersion, created.ID, definition.ActionRollback,
		fmt.Sprintf("rolled back to v%d as v%d", targetNumber, created.Number), actor)

	cp := created
	return &cp, nil
}

func (s *Memory) SetRouteStatus(_ context.Context, routeID string, active, deleted bool, actor store.Actor) (*definition.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.routes[routeID]
	if !ok {
		return nil, apierr.NotFound("route", routeID)
	}

	now := time.Now().UTC()
	if deleted && !route.Deleted {
		route.DeletedAt = &now
	}
	route.Active = active
	route.Deleted = deleted
	route.UpdatedAt = now

	action := definition.ActionActivate
	if !active || deleted {
		action = definition.ActionDeactivate
	}
	s.appendLocked(definition.TargetRoute, routeID, action, "route status changed", actor)

	cp := *route
	return &cp, nil
}

func (s *Memory) maxNumberLocked(routeID string) int {
	max := 0
	for _, v := range s.versions[routeID] {
		if v.Number > max {
			max = v.Number
		}
	}
	return max
}

func (s *Memory) appendLocked(targetKind, targetID, action, note string, actor store.Actor) {
	s.audit = append(s.audit, &definition.AuditEntry{
		ID:         uuid.NewString(),
		TargetKind: targetKind,
		TargetID:   targetID,
		Action:     action,
		Note:       note,
		Actor:      actor.Name,
		ActorIP:    actor.IP,
		CreatedAt:  time.Now().UTC(),
	})
}

var _ store.Store = (*Memory)(nil)
