package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
)

// DBStore is the gorm-backed Store implementation.
type DBStore struct {
	db *gorm.DB
}

// Open connects to the definition database.
func Open(dsn string) (*DBStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return &DBStore{db: db}, nil
}

// NewDBStore wraps an existing gorm handle (used by tests).
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

// Migrate creates the schema. The partial unique index enforces (path,
// method) uniqueness among non-deleted routes only, so a deleted route's
// pair can be reused.
func (s *DBStore) Migrate() error {
	if err := s.db.AutoMigrate(
		&definition.Route{},
		&definition.Version{},
		&definition.AuditEntry{},
	); err != nil {
		return err
	}
	if s.db.Dialector.Name() == "postgres" {
		return s.db.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_path_method_live
			 ON api_routes (path, method) WHERE NOT deleted`,
		).Error
	}
	return nil
}

// translate maps gorm errors into the taxonomy.
func translate(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apierr.NotFound(resource, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apierr.Duplicate(resource, id)
	default:
		return err
	}
}

func (s *DBStore) GetRoute(ctx context.Context, id string) (*definition.Route, error) {
	var route definition.Route
	err := s.db.WithContext(ctx).First(&route, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "route", id)
	}
	return &route, nil
}

func (s *DBStore) FindRoute(ctx context.Context, path, method string) (*definition.Route, error) {
	var route definition.Route
	err := s.db.WithContext(ctx).
		First(&route, "path = ? AND method = ? AND deleted = false", path, strings.ToUpper(method)).Error
	if err != nil {
		return nil, translate(err, "route", method+" "+path)
	}
	return &route, nil
}

func (s *DBStore) ListRoutes(ctx context.Context, includeDeleted bool) ([]definition.Route, error) {
	var routes []definition.Route
	q := s.db.WithContext(ctx).Order("created_at")
	if !includeDeleted {
		q = q.Where("deleted = false")
	}
	return routes, q.Find(&routes).Error
}

func (s *DBStore) GetVersion(ctx context.Context, routeID string, number int) (*definition.Version, error) {
	var v definition.Version
	err := s.db.WithContext(ctx).
		First(&v, "route_id = ? AND number = ?", routeID, number).Error
	if err != nil {
		return nil, translate(err, "version", routeID)
	}
	return &v, nil
}

func (s *DBStore) CurrentVersion(ctx context.Context, routeID string) (*definition.Version, error) {
	var v definition.Version
	err := s.db.WithContext(ctx).
		First(&v, "route_id = ? AND current = true", routeID).Error
	if err != nil {
		return nil, translate(err, "current version", routeID)
	}
	return &v, nil
}

func (s *DBStore) ListVersions(ctx context.Context, routeID string) ([]definition.Version, error) {
	var versions []definition.Version
	err := s.db.WithContext(ctx).
		Where("route_id = ?", routeID).Order("number DESC").Find(&versions).Error
	return versions, err
}

func (s *DBStore) ListAudit(ctx context.Context, targetID string, limit int) ([]definition.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []definition.AuditEntry
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if targetID != "" {
		q = q.Where("target_id = ?", targetID)
	}
	return entries, q.Find(&entries).Error
}

// appendAudit writes one audit entry inside the caller's transaction.
func appendAudit(tx *gorm.DB, targetKind, targetID, action string, oldValue, newValue any, note string, actor Actor) error {
	entry := definition.AuditEntry{
		ID:         uuid.NewString(),
		TargetKind: targetKind,
		TargetID:   targetID,
		Action:     action,
		Note:       note,
		Actor:      actor.Name,
		ActorIP:    actor.IP,
		CreatedAt:  time.Now().UTC(),
	}
	if oldValue != nil {
		raw, err := json.Marshal(oldValue)
		if err != nil {
			return err
		}
		entry.OldValue = datatypes.JSON(raw)
	}
	if newValue != nil {
		raw, err := json.Marshal(newValue)
		if err != nil {
			return err
		}
		entry.NewValue = datatypes.JSON(raw)
	}
	return tx.Create(&entry).Error
}

var _ Store = (*DBStore)(nil)
