package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/service"
)

// Services bundles the services the HTTP API calls.
type Services struct {
	Versions *service.VersionService
	Filter   *service.Filter
	Composer *service.ViewComposer
	Branches *service.BranchService
	Workflow *service.WorkflowService
}

// Handlers contains HTTP handlers for the web API
type Handlers struct {
	svc Services
	log zerolog.Logger
}

// NewHandlers creates new API handlers
func NewHandlers(svc Services, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

// ListEntities handles GET /api/v1/entities/:type
func (h *Handlers) ListEntities(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	recs, err := h.svc.Filter.Resolve(c.Request.Context(), &service.ResolveRequest{
		EntityType:     entityType,
		Scope:          scope,
		Branch:         c.Query("branch"),
		IncludeDeleted: queryBool(c, "include_deleted"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListRecordsResponse{Records: toRecords(recs)})
}

// CreateEntity handles POST /api/v1/entities/:type
func (h *Handlers) CreateEntity(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}
	var req WriteEntityRequest
	if !h.bind(c, &req) {
		return
	}

	rec, err := h.svc.Versions.Create(c.Request.Context(), &service.CreateRequest{
		EntityType: entityType,
		ProjectID:  req.ProjectID,
		Branch:     req.Branch,
		EntityID:   req.EntityID,
		Payload:    req.Payload,
		Actor:      actor(c, req.Actor),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRecord(rec))
}

// GetEntity handles GET /api/v1/entities/:type/:id
func (h *Handlers) GetEntity(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}

	rec, err := h.svc.Versions.Get(c.Request.Context(), &service.GetRequest{
		EntityType:     entityType,
		EntityID:       c.Param("id"),
		Branch:         c.Query("branch"),
		IncludeDeleted: queryBool(c, "include_deleted"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecord(rec))
}

// UpdateEntity handles PUT /api/v1/entities/:type/:id
func (h *Handlers) UpdateEntity(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}
	var req WriteEntityRequest
	if !h.bind(c, &req) {
		return
	}

	rec, err := h.svc.Versions.Update(c.Request.Context(), &service.UpdateRequest{
		EntityType: entityType,
		EntityID:   c.Param("id"),
		Branch:     req.Branch,
		Payload:    req.Payload,
		Actor:      actor(c, req.Actor),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecord(rec))
}

// DeleteEntity handles DELETE /api/v1/entities/:type/:id
//
// In a change order branch an entity that so far only exists in main is
// forked and deleted; in main the entity must exist.
func (h *Handlers) DeleteEntity(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}

	rec, err := h.svc.Versions.DeleteInBranch(c.Request.Context(), &service.DeleteRequest{
		EntityType: entityType,
		EntityID:   c.Param("id"),
		Branch:     c.Query("branch"),
		Actor:      actor(c, ""),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecord(rec))
}

// RestoreEntity handles POST /api/v1/entities/:type/:id/restore
func (h *Handlers) RestoreEntity(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}

	rec, err := h.svc.Versions.Restore(c.Request.Context(), &service.DeleteRequest{
		EntityType: entityType,
		EntityID:   c.Param("id"),
		Branch:     c.Query("branch"),
		Actor:      actor(c, ""),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecord(rec))
}

// EntityHistory handles GET /api/v1/entities/:type/:id/history
func (h *Handlers) EntityHistory(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}

	recs, err := h.svc.Versions.History(c.Request.Context(), entityType, c.Param("id"), c.Query("branch"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(recs) == 0 {
		h.fail(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, ListRecordsResponse{Records: toRecords(recs)})
}

// EntityVersion handles GET /api/v1/entities/:type/:id/versions/:version
func (h *Handlers) EntityVersion(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil || version < 1 {
		h.fail(c, domain.ErrInvalidArgument)
		return
	}

	rec, err := h.svc.Versions.GetVersion(c.Request.Context(), entityType, c.Param("id"), c.Query("branch"), version)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecord(rec))
}

// View handles GET /api/v1/view/:type
//
// Returns main overlaid with the branch, or only the branch's own rows when
// branch_only is set.
func (h *Handlers) View(c *gin.Context) {
	entityType, ok := h.entityType(c)
	if !ok {
		return
	}
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	req := &service.ComposeRequest{
		EntityType: entityType,
		Scope:      scope,
		Branch:     c.Query("branch"),
	}
	var (
		entries []domain.ViewEntry
		err     error
	)
	if queryBool(c, "branch_only") {
		entries, err = h.svc.Composer.BranchOnly(c.Request.Context(), req)
	} else {
		entries, err = h.svc.Composer.Compose(c.Request.Context(), req)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(req.Branch, entries))
}

// ListBranches handles GET /api/v1/branches
func (h *Handlers) ListBranches(c *gin.Context) {
	infos, err := h.svc.Branches.ListBranches(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]BranchResponse, 0, len(infos))
	for _, b := range infos {
		out = append(out, toBranch(b))
	}
	c.JSON(http.StatusOK, gin.H{"branches": out})
}

// CreateChangeOrder handles POST /api/v1/change-orders
func (h *Handlers) CreateChangeOrder(c *gin.Context) {
	var req CreateChangeOrderRequest
	if !h.bind(c, &req) {
		return
	}

	co, err := h.svc.Workflow.Create(c.Request.Context(), &service.CreateChangeOrderRequest{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Actor:       actor(c, req.Actor),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toChangeOrder(co))
}

// ListChangeOrders handles GET /api/v1/change-orders
func (h *Handlers) ListChangeOrders(c *gin.Context) {
	cos, err := h.svc.Workflow.List(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]ChangeOrderResponse, 0, len(cos))
	for _, co := range cos {
		out = append(out, toChangeOrder(co))
	}
	c.JSON(http.StatusOK, gin.H{"changeOrders": out})
}

// GetChangeOrder handles GET /api/v1/change-orders/:id
func (h *Handlers) GetChangeOrder(c *gin.Context) {
	co, err := h.svc.Workflow.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toChangeOrder(co))
}

// DiffChangeOrder handles GET /api/v1/change-orders/:id/diff
func (h *Handlers) DiffChangeOrder(c *gin.Context) {
	ctx := c.Request.Context()
	co, err := h.svc.Workflow.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	changes, err := h.svc.Branches.Diff(ctx, co.Branch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branch": co.Branch, "changes": toChanges(changes)})
}

// ApproveChangeOrder handles POST /api/v1/change-orders/:id/approve
func (h *Handlers) ApproveChangeOrder(c *gin.Context) {
	co, changes, err := h.svc.Workflow.Approve(c.Request.Context(), c.Param("id"), actor(c, ""))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := toChangeOrder(co)
	resp.Changes = toChanges(changes)
	c.JSON(http.StatusOK, resp)
}

// ReopenChangeOrder handles POST /api/v1/change-orders/:id/reopen
func (h *Handlers) ReopenChangeOrder(c *gin.Context) {
	co, err := h.svc.Workflow.Reopen(c.Request.Context(), c.Param("id"), actor(c, ""))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toChangeOrder(co))
}

// ExecuteChangeOrder handles POST /api/v1/change-orders/:id/execute
func (h *Handlers) ExecuteChangeOrder(c *gin.Context) {
	co, result, err := h.svc.Workflow.Execute(c.Request.Context(), c.Param("id"), actor(c, ""))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := toChangeOrder(co)
	resp.Merge = toMerge(result)
	c.JSON(http.StatusOK, resp)
}

// CancelChangeOrder handles POST /api/v1/change-orders/:id/cancel
func (h *Handlers) CancelChangeOrder(c *gin.Context) {
	co, result, err := h.svc.Workflow.Cancel(c.Request.Context(), c.Param("id"), actor(c, ""))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := toChangeOrder(co)
	resp.Archive = toArchive(result)
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) entityType(c *gin.Context) (domain.EntityType, bool) {
	t, err := domain.ParseEntityType(c.Param("type"))
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	return t, true
}

func (h *Handlers) scope(c *gin.Context) (domain.Scope, bool) {
	scope := domain.Scope{
		ProjectID: c.Query("project_id"),
		ParentID:  c.Query("parent_id"),
	}
	if ids := c.Query("ids"); ids != "" {
		scope.EntityIDs = strings.Split(ids, ",")
	}
	for name, dst := range map[string]*int{"limit": &scope.Limit, "offset": &scope.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name, Code: "INVALID_ARGUMENT"})
			return scope, false
		}
		*dst = n
	}
	return scope, true
}

func (h *Handlers) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return false
	}
	return true
}

// fail writes err with the HTTP status its domain sentinel maps to.
func (h *Handlers) fail(c *gin.Context, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, ErrorResponse{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnknownBranch):
		return http.StatusNotFound, "UNKNOWN_BRANCH"
	case errors.Is(err, domain.ErrDuplicateEntity):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, domain.ErrConcurrentModify):
		return http.StatusConflict, "CONCURRENT_MODIFICATION"
	case errors.Is(err, domain.ErrBranchLocked):
		return http.StatusConflict, "BRANCH_LOCKED"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

// actor prefers the body's actor and falls back to the X-Actor header.
func actor(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.GetHeader("X-Actor")
}
