// Package definition holds the stored data model of the engine: routes,
// their immutable versions, and the append-only audit trail, together with
// the typed specs and payloads a version's JSON columns decode into.
package definition

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rowapi/rowapi/pkg/apierr"
)

// Route identifies one (path, method) endpoint. Created once; only the
// active/deleted flags ever change afterwards.
type Route struct {
	ID          string `gorm:"primaryKey;size:50" json:"id"`
	Path        string `gorm:"size:255;not null;index:idx_routes_path_method" json:"path"`
	Method      string `gorm:"size:10;not null;index:idx_routes_path_method" json:"method"`
	Name        string `gorm:"size:255" json:"name,omitempty"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Active      bool   `gorm:"not null;default:true" json:"active"`
	Deleted     bool   `gorm:"not null;default:false" json:"deleted"`

	AuthRequired   bool           `gorm:"not null;default:false" json:"authRequired"`
	AllowedOrigins datatypes.JSON `json:"allowedOrigins,omitempty"`
	RateLimit      int            `gorm:"not null;default:100" json:"rateLimit"`

	CreatedAt time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"not null" json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedBy string     `gorm:"size:100" json:"createdBy,omitempty"`
}

func (Route) TableName() string { return "api_routes" }

// BeforeUpdate rejects model-level updates. Status flag changes go through
// the store's lifecycle operation, which writes the flag columns directly.
func (Route) BeforeUpdate(*gorm.DB) error {
	return apierr.Immutable("route")
}

// BeforeDelete rejects hard deletion; routes are only ever soft-deleted.
func (Route) BeforeDelete(*gorm.DB) error {
	return apierr.Immutable("route")
}

// Version is one executable definition bound to a route. Append-only: after
// creation the only writable column is the current flag, and only through
// the activation transaction.
type Version struct {
	ID      string `gorm:"primaryKey;size:50" json:"id"`
	RouteID string `gorm:"size:50;not null;uniqueIndex:idx_versions_route_number,priority:1;index:idx_versions_route_current" json:"routeId"`
	Number  int    `gorm:"not null;uniqueIndex:idx_versions_route_number,priority:2" json:"number"`
	Current bool   `gorm:"not null;default:false;index:idx_versions_route_current" json:"current"`

	RequestSpec  datatypes.JSON `json:"requestSpec,omitempty"`
	LogicKind    LogicKind      `gorm:"size:50;not null" json:"logicKind"`
	LogicPayload datatypes.JSON `gorm:"not null" json:"logicPayload"`
	LogicConfig  datatypes.JSON `json:"logicConfig,omitempty"`
	ResponseSpec datatypes.JSON `json:"responseSpec,omitempty"`
	StatusCodes  datatypes.JSON `json:"statusCodes,omitempty"`
	SampleParams datatypes.JSON `json:"sampleParams,omitempty"`
	ChangeNote   string         `gorm:"type:text" json:"changeNote,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	CreatedBy string    `gorm:"size:100" json:"createdBy,omitempty"`
}

func (Version) TableName() string { return "api_versions" }

// BeforeUpdate rejects every model-level update. The activation flip writes
// the current column directly at the store layer; any other write path is a
// policy violation.
func (Version) BeforeUpdate(*gorm.DB) error {
	return apierr.Immutable("version")
}

// BeforeDelete rejects deletion unconditionally.
func (Version) BeforeDelete(*gorm.DB) error {
	return apierr.Immutable("version")
}

// Audit target kinds.
const (
	TargetRoute   = "ROUTE"
	TargetVersion = "VERSION"
)

// Audit actions.
const (
	ActionCreate     = "CREATE"
	ActionActivate   = "ACTIVATE"
	ActionDeactivate = "DEACTIVATE"
	ActionSetCurrent = "SET_CURRENT"
	ActionRollback   = "ROLLBACK"
)

// AuditEntry records one definition-management action. Append-only.
type AuditEntry struct {
	ID         string         `gorm:"primaryKey;size:50" json:"id"`
	TargetKind string         `gorm:"size:20;not null;index:idx_audit_target" json:"targetKind"`
	TargetID   string         `gorm:"size:50;not null;index:idx_audit_target" json:"targetId"`
	Action     string         `gorm:"size:20;not null;index" json:"action"`
	OldValue   datatypes.JSON `json:"oldValue,omitempty"`
	NewValue   datatypes.JSON `json:"newValue,omitempty"`
	Note       string         `gorm:"type:text" json:"note,omitempty"`
	Actor      string         `gorm:"size:100" json:"actor,omitempty"`
	ActorIP    string         `gorm:"size:45" json:"actorIp,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"createdAt"`
}

func (AuditEntry) TableName() string { return "api_audit_entries" }

func (AuditEntry) BeforeUpdate(*gorm.DB) error {
	return apierr.Immutable("audit entry")
}

func (AuditEntry) BeforeDelete(*gorm.DB) error {
	return apierr.Immutable("audit entry")
}
