package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
)

// lockRoute loads and row-locks a route inside a transaction. Locking the
// route serializes version-number assignment and current-flag flips per
// route, which is what keeps numbers gapless and "exactly one current"
// true under concurrent writers.
func lockRoute(tx *gorm.DB, routeID string) (*definition.Route, error) {
	var route definition.Route
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&route, "id = ? AND deleted = false", routeID).Error
	if err != nil {
		return nil, translate(err, "route", routeID)
	}
	return &route, nil
}

func (s *DBStore) CreateRoute(ctx context.Context, route *definition.Route, initial *definition.Version, actor Actor) error {
	now := time.Now().UTC()
	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	route.Method = strings.ToUpper(route.Method)
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

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&definition.Route{}).
			Where("path = ? AND method = ? AND deleted = false", route.Path, route.Method).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return apierr.Duplicate("route", route.Method+" "+route.Path)
		}

		if err := tx.Create(route).Error; err != nil {
			return translate(err, "route", route.ID)
		}
		if err := tx.Create(initial).Error; err != nil {
			return translate(err, "version", initial.ID)
		}

		if err := appendAudit(tx, definition.TargetRoute, route.ID, definition.ActionCreate,
			nil, route, fmt.Sprintf("route created: %s %s", route.Method, route.Path), actor); err != nil {
			return err
		}
		return appendAudit(tx, definition.TargetVersion, initial.ID, definition.ActionCreate,
			nil, initial, fmt.Sprintf("initial version for %s %s", route.Method, route.Path), actor)
	})
}

func (s *DBStore) CreateVersion(ctx context.Context, version *definition.Version, actor Actor) error {
	now := time.Now().UTC()
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	version.Current = false
	version.CreatedAt = now
	version.CreatedBy = actor.Name

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		route, err := lockRoute(tx, version.RouteID)
		if err != nil {
			return err
		}

		var max int64
		err = tx.Model(&definition.Version{}).
			Where("route_id = ?", version.RouteID).
			Select("COALESCE(MAX(number), 0)").Scan(&max).Error
		if err != nil {
			return err
		}
		version.Number = int(max) + 1

		if err := tx.Create(version).Error; err != nil {
			return translate(err, "version", version.ID)
		}

		return appendAudit(tx, definition.TargetVersion, version.ID, definition.ActionCreate,
			nil, version, fmt.Sprintf("version %d for %s %s", version.Number, route.Method, route.Path), actor)
	})
}

func (s *DBStore) ActivateVersion(ctx context.Context, routeID string, number int, actor Actor) (*definition.Version, error) {
	var target definition.Version

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockRoute(tx, routeID); err != nil {
			return err
		}

		if err := tx.First(&target, "route_id = ? AND number = ?", routeID, number).Error; err != nil {
			return translate(err, "version", fmt.Sprintf("%s v%d", routeID, number))
		}
		if target.Current {
			return nil
		}

		var prev definition.Version
		hasPrev := tx.First(&prev, "route_id = ? AND current = true", routeID).Error == nil

		return flipCurrent(tx, routeID, &target, &prev, hasPrev, definition.ActionSetCurrent,
			fmt.Sprintf("current version set to v%d", number), actor)
	})
	if err != nil {
		return nil, err
	}
	target.Current = true
	return &target, nil
}

// flipCurrent performs the atomic current-flag exchange and its audit
// entry. Versions are immutable at the model layer, so the flag is written
// as direct column updates; this function is the only writer of it.
func flipCurrent(tx *gorm.DB, routeID string, target, prev *definition.Version, hasPrev bool, action, note string, actor Actor) error {
	err := tx.Model(&definition.Version{}).
		Where("route_id = ? AND current = true", routeID).
		UpdateColumn("current", false).Error
	if err != nil {
		return err
	}

	res := tx.Model(&definition.Version{}).
		Where("id = ? AND route_id = ?", target.ID, routeID).
		UpdateColumn("current", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return apierr.NotFound("version", target.ID)
	}

	var oldValue any
	if hasPrev {
		oldValue = map[string]any{"version_id": prev.ID, "number": prev.Number}
	}
	return appendAudit(tx, definition.TargetVersion, target.ID, action,
		oldValue, map[string]any{"version_id": target.ID, "number": target.Number}, note, actor)
}

func (s *DBStore) Rollback(ctx context.Context, routeID string, targetNumber int, actor Actor) (*definition.Version, error) {
	var created definition.Version

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		route, err := lockRoute(tx, routeID)
		if err != nil {
			return err
		}

		var target definition.Version
		if err := tx.First(&target, "route_id = ? AND number = ?", routeID, targetNumber).Error; err != nil {
			return translate(err, "version", fmt.Sprintf("%s v%d", routeID, targetNumber))
		}

		var prev definition.Version
		hasPrev := tx.First(&prev, "route_id = ? AND current = true", routeID).Error == nil

		var max int64
		err = tx.Model(&definition.Version{}).
			Where("route_id = ?", routeID).
			Select("COALESCE(MAX(number), 0)").Scan(&max).Error
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		created = definition.Version{
			ID:           uuid.NewString(),
			RouteID:      routeID,
			Number:       int(max) + 1,
			Current:      false,
			RequestSpec:  target.RequestSpec,
			LogicKind:    target.LogicKind,
			LogicPayload: target.LogicPayload,
			LogicConfig:  target.LogicConfig,
			ResponseSpec: target.ResponseSpec,
			StatusCodes:  target.StatusCodes,
			SampleParams: target.SampleParams,
			ChangeNote:   fmt.Sprintf("rollback to v%d", targetNumber),
			CreatedAt:    now,
			CreatedBy:    actor.Name,
		}
		if err := tx.Create(&created).Error; err != nil {
			return translate(err, "version", created.ID)
		}

		if err := appendAudit(tx, definition.TargetVersion, created.ID, definition.ActionCreate,
			nil, &created, fmt.Sprintf("version %d for %s %s (rollback copy)", created.Number, route.Method, route.Path), actor); err != nil {
			return err
		}

		return flipCurrent(tx, routeID, &created, &prev, hasPrev, definition.ActionRollback,
			fmt.Sprintf("rolled back to v%d as v%d", targetNumber, created.Number), actor)
	})
	if err != nil {
		return nil, err
	}
	created.Current = true
	return &created, nil
}

func (s *DBStore) SetRouteStatus(ctx context.Context, routeID string, active, deleted bool, actor Actor) (*definition.Route, error) {
	var route definition.Route

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&route, "id = ?", routeID).Error; err != nil {
			return translate(err, "route", routeID)
		}

		oldValue := map[string]any{"active": route.Active, "deleted": route.Deleted}
		now := time.Now().UTC()

		cols := map[string]any{
			"active":     active,
			"deleted":    deleted,
			"updated_at": now,
		}
		if deleted && !route.Deleted {
			cols["deleted_at"] = now
		}
		// Flags are the only mutable route columns; written directly since
		// the model layer rejects updates wholesale.
		err := tx.Model(&definition.Route{}).
			Where("id = ?", routeID).
			UpdateColumns(cols).Error
		if err != nil {
			return err
		}

		action := definition.ActionActivate
		if !active || deleted {
			action = definition.ActionDeactivate
		}
		newValue := map[string]any{"active": active, "deleted": deleted}
		if err := appendAudit(tx, definition.TargetRoute, routeID, action,
			oldValue, newValue, "route status changed", actor); err != nil {
			return err
		}

		route.Active = active
		route.Deleted = deleted
		route.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &route, nil
}
