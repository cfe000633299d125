package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/httputil"
	"github.com/rowapi/rowapi/pkg/store"
)

// maxAdminBodySize caps admin request bodies (1MB).
const maxAdminBodySize = 1 << 20

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// versionRequest is the payload for creating a version, inline in route
// creation or standalone.
type versionRequest struct {
	RequestSpec  map[string]definition.ParamSpec `json:"requestSpec,omitempty"`
	LogicKind    string                          `json:"logicKind"`
	LogicPayload json.RawMessage                 `json:"logicPayload"`
	LogicConfig  *definition.LogicConfig         `json:"logicConfig,omitempty"`
	ResponseSpec map[string]any                  `json:"responseSpec,omitempty"`
	StatusCodes  map[string]int                  `json:"statusCodes,omitempty"`
	SampleParams map[string]any                  `json:"sampleParams,omitempty"`
	ChangeNote   string                          `json:"changeNote,omitempty"`
}

type createRouteRequest struct {
	Path           string          `json:"path"`
	Method         string          `json:"method"`
	Name           string          `json:"name,omitempty"`
	Description    string          `json:"description,omitempty"`
	AuthRequired   bool            `json:"authRequired,omitempty"`
	AllowedOrigins []string        `json:"allowedOrigins,omitempty"`
	RateLimit      int             `json:"rateLimit,omitempty"`
	Version        *versionRequest `json:"version"`
}

type statusRequest struct {
	Active  bool `json:"active"`
	Deleted bool `json:"deleted"`
}

type rollbackRequest struct {
	TargetNumber int `json:"targetNumber"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]string{"status": "ok"})
}

func (a *API) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("includeDeleted") == "true"
	routes, err := a.store.ListRoutes(r.Context(), includeDeleted)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]any{"routes": routes, "count": len(routes)})
}

func (a *API) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := a.store.GetRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteOK(w, route)
}

func (a *API) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if err := readJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := validateRouteRequest(&req); err != nil {
		a.writeError(w, r, err)
		return
	}
	version, err := buildVersion(req.Version)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	route := &definition.Route{
		Path:         req.Path,
		Method:       strings.ToUpper(req.Method),
		Name:         req.Name,
		Description:  req.Description,
		AuthRequired: req.AuthRequired,
		RateLimit:    req.RateLimit,
	}
	if len(req.AllowedOrigins) > 0 {
		origins, err := json.Marshal(req.AllowedOrigins)
		if err != nil {
			a.writeError(w, r, apierr.Internal(err))
			return
		}
		route.AllowedOrigins = datatypes.JSON(origins)
	}

	if err := a.store.CreateRoute(r.Context(), route, version, a.actor(r)); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.log.Info("route created", "route_id", route.ID, "method", route.Method, "path", route.Path)
	httputil.WriteCreated(w, map[string]any{"route": route, "version": version})
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := readJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	route, err := a.store.SetRouteStatus(r.Context(), r.PathValue("id"), req.Active, req.Deleted, a.actor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.invalidate(route)
	a.log.Info("route status changed", "route_id", route.ID, "active", route.Active, "deleted", route.Deleted)
	httputil.WriteOK(w, route)
}

func (a *API) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.store.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]any{"versions": versions, "count": len(versions)})
}

func (a *API) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := readJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	version, err := buildVersion(&req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	version.RouteID = r.PathValue("id")

	if err := a.store.CreateVersion(r.Context(), version, a.actor(r)); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.log.Info("version created", "route_id", version.RouteID, "number", version.Number)
	httputil.WriteCreated(w, version)
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number <= 0 {
		a.writeError(w, r, apierr.Validation(apierr.FieldViolation{
			Field: "number", Message: "must be a positive integer",
		}))
		return
	}

	routeID := r.PathValue("id")
	version, err := a.store.ActivateVersion(r.Context(), routeID, number, a.actor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	route, err := a.store.GetRoute(r.Context(), routeID)
	if err == nil {
		a.invalidate(route)
	}
	a.log.Info("version activated", "route_id", routeID, "number", number)
	httputil.WriteOK(w, version)
}

func (a *API) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := readJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.TargetNumber <= 0 {
		a.writeError(w, r, apierr.Validation(apierr.FieldViolation{
			Field: "targetNumber", Message: "must be a positive integer",
		}))
		return
	}

	routeID := r.PathValue("id")
	version, err := a.store.Rollback(r.Context(), routeID, req.TargetNumber, a.actor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	route, err := a.store.GetRoute(r.Context(), routeID)
	if err == nil {
		a.invalidate(route)
	}
	a.log.Info("route rolled back", "route_id", routeID, "target", req.TargetNumber, "new_version", version.Number)
	httputil.WriteOK(w, version)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := a.store.ListAudit(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]any{"entries": entries, "count": len(entries)})
}

// handleTry runs the route's current version against its stored sample
// parameters through the real dispatch pipeline. An optional JSON body
// overrides individual sample values.
func (a *API) handleTry(w http.ResponseWriter, r *http.Request) {
	if a.runner == nil {
		a.writeError(w, r, apierr.Execution("try-it is not enabled on this server", nil))
		return
	}

	route, err := a.store.GetRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	version, err := a.store.CurrentVersion(r.Context(), route.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	snap, err := definition.NewSnapshot(route, version)
	if err != nil {
		a.writeError(w, r, apierr.Internal(err))
		return
	}

	raw := make(map[string]any)
	if len(version.SampleParams) > 0 {
		if err := json.Unmarshal(version.SampleParams, &raw); err != nil {
			a.writeError(w, r, apierr.Internal(fmt.Errorf("decode sample params: %w", err)))
			return
		}
	}
	var overrides map[string]any
	if err := readJSON(r, &overrides); err == nil {
		for key, value := range overrides {
			raw[key] = value
		}
	}

	body, status, err := a.runner.Try(r.Context(), snap, raw)
	if err != nil {
		e := apierr.From(err)
		httputil.WriteOK(w, map[string]any{
			"ok":     false,
			"error":  e.Public(),
			"status": e.HTTPStatus(),
		})
		return
	}
	httputil.WriteOK(w, map[string]any{
		"ok":     true,
		"status": status,
		"body":   body,
	})
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.From(err)
	a.log.Warn("admin request failed",
		"method", r.Method, "path", r.URL.Path,
		"kind", string(e.Kind), "error", e.Message, "detail", e.Detail)
	httputil.WriteAPIError(w, err)
}

// actor identifies the caller for the audit trail. Identity comes from the
// X-Actor header; absent means "admin".
func (a *API) actor(r *http.Request) store.Actor {
	name := r.Header.Get("X-Actor")
	if name == "" {
		name = "admin"
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return store.Actor{Name: name, IP: ip}
}

func readJSON(r *http.Request, target any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAdminBodySize))
	if err != nil {
		return apierr.Execution("reading request body", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return apierr.Validation(apierr.FieldViolation{
			Field: "body", Message: "invalid JSON: " + err.Error(),
		})
	}
	return nil
}

func validateRouteRequest(req *createRouteRequest) error {
	var fields []apierr.FieldViolation
	if req.Path == "" || !strings.HasPrefix(req.Path, "/") {
		fields = append(fields, apierr.FieldViolation{
			Field: "path", Message: "must start with /",
		})
	}
	if !allowedMethods[strings.ToUpper(req.Method)] {
		fields = append(fields, apierr.FieldViolation{
			Field: "method", Message: "must be GET, POST, PUT, PATCH or DELETE",
		})
	}
	if req.Version == nil {
		fields = append(fields, apierr.FieldViolation{
			Field: "version", Message: "initial version is required",
		})
	}
	if len(fields) > 0 {
		return apierr.Validation(fields...)
	}
	return nil
}

// buildVersion validates a version request and converts it into the stored
// model. The logic payload is schema-checked for its kind here, at write
// time, so dispatch never sees a malformed stored payload.
func buildVersion(req *versionRequest) (*definition.Version, error) {
	kind, err := definition.ParseLogicKind(req.LogicKind)
	if err != nil {
		return nil, apierr.Validation(apierr.FieldViolation{
			Field: "logicKind", Message: err.Error(),
		})
	}
	if err := definition.ValidatePayload(kind, req.LogicPayload); err != nil {
		return nil, err
	}

	v := &definition.Version{
		LogicKind:    kind,
		LogicPayload: datatypes.JSON(req.LogicPayload),
		ChangeNote:   req.ChangeNote,
	}

	encode := func(field string, value any, target *datatypes.JSON) error {
		if value == nil {
			return nil
		}
		data, err := json.Marshal(value)
		if err != nil {
			return apierr.Validation(apierr.FieldViolation{
				Field: field, Message: "not encodable as JSON",
			})
		}
		*target = datatypes.JSON(data)
		return nil
	}

	if len(req.RequestSpec) > 0 {
		if err := encode("requestSpec", req.RequestSpec, &v.RequestSpec); err != nil {
			return nil, err
		}
	}
	if req.LogicConfig != nil {
		if err := encode("logicConfig", req.LogicConfig, &v.LogicConfig); err != nil {
			return nil, err
		}
	}
	if len(req.ResponseSpec) > 0 {
		if err := encode("responseSpec", req.ResponseSpec, &v.ResponseSpec); err != nil {
			return nil, err
		}
	}
	if len(req.StatusCodes) > 0 {
		if err := encode("statusCodes", req.StatusCodes, &v.StatusCodes); err != nil {
			return nil, err
		}
	}
	if len(req.SampleParams) > 0 {
		if err := encode("sampleParams", req.SampleParams, &v.SampleParams); err != nil {
			return nil, err
		}
	}
	return v, nil
}
