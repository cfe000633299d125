package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rowapi/rowapi/pkg/apierr"
)

// SQLDataSource runs caller-defined read queries against a separate
// connection from the definition store. The session is forced read-only
// at the postgres level so a screened-but-hostile query still cannot
// write; ReadOnly reports that guarantee to the execution guard.
type SQLDataSource struct {
	db       *gorm.DB
	readOnly bool
}

// OpenReadOnly connects to the query database with
// default_transaction_read_only set for every session.
func OpenReadOnly(dsn string) (*SQLDataSource, error) {
	dsn = strings.TrimSpace(dsn)
	if !strings.Contains(dsn, "default_transaction_read_only") {
		dsn += " options='-c default_transaction_read_only=on'"
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening query database: %w", err)
	}
	return &SQLDataSource{db: db, readOnly: true}, nil
}

// NewSQLDataSource wraps an existing connection. readOnly must reflect
// the actual session setting; the guard fails closed when it is false.
func NewSQLDataSource(db *gorm.DB, readOnly bool) *SQLDataSource {
	return &SQLDataSource{db: db, readOnly: readOnly}
}

func (d *SQLDataSource) ReadOnly() bool { return d.readOnly }

// Query executes one statement with @name parameter binding and returns
// rows as column-keyed maps. Binding happens in the driver; parameter
// values never concatenate into the statement text.
func (d *SQLDataSource) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	var rows []map[string]any
	tx := d.db.WithContext(ctx).Raw(query, bindable(params))
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, apierr.Execution("query failed", err)
	}
	return rows, nil
}

func bindable(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
