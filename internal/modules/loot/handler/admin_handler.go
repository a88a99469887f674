// Package handler 掉落服务的 HTTP 管理接口与 RPC 入口
package handler

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"

	"tsu-loot/internal/modules/loot/dto"
	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/response"
	"tsu-loot/internal/pkg/validator"
	"tsu-loot/internal/pkg/xerrors"
	"tsu-loot/internal/protocol/lootpb"
	"tsu-loot/internal/repository/interfaces"
)

// Registry 管理接口依赖的注册表能力
type Registry interface {
	Snapshot() []service.ContainerInfo
	Get(containerID uint32) (*service.Container, bool)
	Remove(ctx context.Context, containerID uint32, reason service.DespawnReason) error
	QueryNearby(viewerID service.EntityID, at lootpb.Vector3, radius float64) []*service.Container
}

// AdminHandler 掉落容器管理 Handler
type AdminHandler struct {
	registry   Registry
	records    interfaces.DropRecordRepository
	respWriter response.Writer
}

// NewAdminHandler 创建管理 Handler，records 为 nil 时审计查询不可用
func NewAdminHandler(registry Registry, records interfaces.DropRecordRepository, respWriter response.Writer) *AdminHandler {
	return &AdminHandler{
		registry:   registry,
		records:    records,
		respWriter: respWriter,
	}
}

// RegisterRoutes 注册管理路由
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/loot", h.ListContainers)
	g.GET("/loot/nearby", h.QueryNearby)
	g.GET("/loot/records", h.ListDropRecords)
	g.GET("/loot/:id", h.GetContainer)
	g.DELETE("/loot/:id", h.RemoveContainer)
}

// ListContainers 查询所有存活容器
// @Summary 查询存活掉落容器
// @Tags 掉落管理
// @Produce json
// @Success 200 {object} response.ResponseResult[dto.ContainerListResponse]
// @Router /admin/loot [get]
func (h *AdminHandler) ListContainers(c echo.Context) error {
	items := h.registry.Snapshot()
	return response.EchoOK(c, h.respWriter, dto.ContainerListResponse{
		Items: items,
		Total: len(items),
	})
}

// GetContainer 查询单个容器
// @Summary 查询掉落容器详情
// @Tags 掉落管理
// @Produce json
// @Param id path int true "容器ID"
// @Success 200 {object} response.ResponseResult[service.ContainerInfo]
// @Failure 404 {object} response.ResponseResult[response.EmptyData] "容器不存在(900004)"
// @Router /admin/loot/{id} [get]
func (h *AdminHandler) GetContainer(c echo.Context) error {
	var req dto.ContainerPathRequest
	if err := h.bind(c, &req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	container, ok := h.registry.Get(req.ContainerID)
	if !ok {
		return response.EchoError(c, h.respWriter, xerrors.NewContainerNotFoundError(req.ContainerID))
	}
	return response.EchoOK(c, h.respWriter, service.Describe(container))
}

// RemoveContainer 立即销毁容器
// @Summary 移除掉落容器
// @Description 立即销毁容器并通知所有查看者，reason 可选 admin/claimed/sweep，默认 admin
// @Tags 掉落管理
// @Produce json
// @Param id path int true "容器ID"
// @Param reason query string false "回收原因" Enums(admin, claimed, sweep)
// @Success 200 {object} response.ResponseResult[dto.RemoveContainerResponse]
// @Failure 404 {object} response.ResponseResult[response.EmptyData] "容器不存在(900004)"
// @Failure 409 {object} response.ResponseResult[response.EmptyData] "容器正在销毁(900005)"
// @Router /admin/loot/{id} [delete]
func (h *AdminHandler) RemoveContainer(c echo.Context) error {
	var req dto.RemoveContainerRequest
	if err := h.bind(c, &req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	reason := req.DespawnReason()
	if err := h.registry.Remove(c.Request().Context(), req.ContainerID, reason); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, dto.RemoveContainerResponse{
		ContainerID: req.ContainerID,
		Reason:      string(reason),
	})
}

// QueryNearby 查询实体附近可见的容器
// @Summary 查询附近掉落
// @Tags 掉落管理
// @Produce json
// @Param entity_id query int true "实体ID"
// @Param x query number false "X坐标"
// @Param y query number false "Y坐标"
// @Param z query number false "Z坐标"
// @Param radius query number false "半径(默认使用服务端拾取半径)"
// @Success 200 {object} response.ResponseResult[dto.ContainerListResponse]
// @Router /admin/loot/nearby [get]
func (h *AdminHandler) QueryNearby(c echo.Context) error {
	var req dto.NearbyLootRequest
	if err := h.bind(c, &req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	at := lootpb.Vector3{X: req.X, Y: req.Y, Z: req.Z}
	found := h.registry.QueryNearby(service.EntityID(req.EntityID), at, req.Radius)

	items := make([]service.ContainerInfo, 0, len(found))
	for _, container := range found {
		items = append(items, service.Describe(container))
	}
	return response.EchoOK(c, h.respWriter, dto.ContainerListResponse{
		Items: items,
		Total: len(items),
	})
}

// ListDropRecords 查询掉落审计记录
// @Summary 查询掉落审计记录
// @Tags 掉落管理
// @Produce json
// @Param owner_id query int false "拥有者ID，不传查询最近记录"
// @Param limit query int false "条数(默认50,最大500)"
// @Success 200 {object} response.ResponseResult[dto.DropRecordListResponse]
// @Failure 503 {object} response.ResponseResult[response.EmptyData] "审计库未配置"
// @Router /admin/loot/records [get]
func (h *AdminHandler) ListDropRecords(c echo.Context) error {
	if h.records == nil {
		return response.EchoError(c, h.respWriter,
			xerrors.NewExternalServiceError("postgres", nil).WithMetadata("reason", "未配置审计数据库"))
	}

	var req dto.DropRecordQuery
	if err := h.bind(c, &req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	ctx := c.Request().Context()
	var (
		records []*interfaces.DropRecord
		err     error
	)
	if req.OwnerID > 0 {
		records, err = h.records.ListByOwner(ctx, req.OwnerID, req.Limit)
	} else {
		records, err = h.records.ListRecent(ctx, req.Limit)
	}
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	items := make([]dto.DropRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, dto.NewDropRecordResponse(r))
	}
	return response.EchoOK(c, h.respWriter, dto.DropRecordListResponse{
		Items: items,
		Total: len(items),
	})
}

// bind 绑定并校验请求，错误统一转为参数错误
func (h *AdminHandler) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return xerrors.NewWithError(xerrors.CodeInvalidRequest, xerrors.CodeInvalidRequest.Message(), err)
	}
	if err := c.Validate(req); err != nil {
		msg := validator.TranslateValidationError(err)
		if httpErr, ok := err.(*echo.HTTPError); ok {
			msg = fmt.Sprint(httpErr.Message)
		}
		return xerrors.New(xerrors.CodeInvalidParams, msg)
	}
	return nil
}
