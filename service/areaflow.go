package service

import (
	"sort"

	"stageflow/cache"
	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/logutils"
	"stageflow/response"

	"github.com/gin-gonic/gin"
)

type uriAreaID struct {
	AreaID uint `uri:"areaId" binding:"required"`
}

// activeFlowsFrom returns the active outgoing edges of one area,
// ordered by flow order.
func activeFlowsFrom(areaID uint) ([]model.AreaFlow, error) {
	var flows []model.AreaFlow
	err := query.DB.
		Where("from_area_id = ?", areaID).
		Order("flow_order, id").
		Find(&flows).Error
	return flows, err
}

// GetFlowConfiguration returns, per area, its active outgoing edges.
// A read failure degrades to an empty configuration with a warn log:
// the dashboard renders an empty state instead of crashing.
func GetFlowConfiguration(c *gin.Context) {
	if cfg, ok := cache.GetFlowConfiguration(c.Request.Context()); ok {
		response.Success(c, cfg)
		return
	}

	var flows []model.AreaFlow
	if err := query.DB.Order("from_area_id, flow_order, id").Find(&flows).Error; err != nil {
		logutils.Log.Warn("flow configuration read failed: ", err)
		response.Success(c, map[uint][]model.AreaFlow{})
		return
	}
	cfg := make(map[uint][]model.AreaFlow)
	for _, f := range flows {
		cfg[f.FromAreaID] = append(cfg[f.FromAreaID], f)
	}
	cache.SetFlowConfiguration(c.Request.Context(), cfg)
	response.Success(c, cfg)
}

// nextRequiredFlow picks the mandatory next step from a set of edges:
// the required edge with the lowest flow order, or nil.
func nextRequiredFlow(flows []model.AreaFlow) *model.AreaFlow {
	var required []model.AreaFlow
	for _, f := range flows {
		if f.Required {
			required = append(required, f)
		}
	}
	if len(required) == 0 {
		return nil
	}
	sort.SliceStable(required, func(i, j int) bool {
		if required[i].FlowOrder != required[j].FlowOrder {
			return required[i].FlowOrder < required[j].FlowOrder
		}
		return required[i].ID < required[j].ID
	})
	return &required[0]
}

// GetNextFlowStep returns the single next mandatory edge for an area,
// or null when the area has no required outgoing edge.
func GetNextFlowStep(c *gin.Context) {
	var uri uriAreaID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	flows, err := activeFlowsFrom(uri.AreaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, nextRequiredFlow(flows))
}

// GetAlternativeFlows returns the optional (non-required) active edges
// from an area.
func GetAlternativeFlows(c *gin.Context) {
	var uri uriAreaID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	flows, err := activeFlowsFrom(uri.AreaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	alternatives := make([]model.AreaFlow, 0, len(flows))
	for _, f := range flows {
		if !f.Required {
			alternatives = append(alternatives, f)
		}
	}
	response.Success(c, alternatives)
}

type ValidateTransferReq struct {
	ProjectID  uint `json:"projectId" binding:"required"`
	FromAreaID uint `json:"fromAreaId" binding:"required"`
	ToAreaID   uint `json:"toAreaId" binding:"required"`
}

type TransferValidity struct {
	Valid            bool   `json:"valid"`
	Reason           string `json:"reason,omitempty"`
	RequiresApproval bool   `json:"requiresApproval,omitempty"`
}

// checkTransferLegality answers whether moving a project along
// from→to follows the active flow graph. A required lower-order edge
// to a different area blocks the move unless that edge can be skipped.
func checkTransferLegality(fromAreaID, toAreaID uint) (TransferValidity, error) {
	flows, err := activeFlowsFrom(fromAreaID)
	if err != nil {
		return TransferValidity{}, err
	}

	var edge *model.AreaFlow
	for i := range flows {
		if flows[i].ToAreaID == toAreaID {
			edge = &flows[i]
			break
		}
	}
	if edge == nil {
		return TransferValidity{Valid: false, Reason: "no active flow between the two areas"}, nil
	}

	if next := nextRequiredFlow(flows); next != nil && next.ToAreaID != toAreaID && !next.CanSkip {
		return TransferValidity{
			Valid:  false,
			Reason: "a required flow step to another area must be traversed first",
		}, nil
	}
	return TransferValidity{Valid: true, RequiresApproval: edge.RequiresApproval}, nil
}

// ValidateTransfer checks edge legality for a specific project.
func ValidateTransfer(c *gin.Context) {
	var req ValidateTransferReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.FromAreaID == req.ToAreaID {
		response.Success(c, TransferValidity{Valid: false, Reason: "source and destination areas are the same"})
		return
	}
	var project model.Project
	if err := query.DB.First(&project, req.ProjectID).Error; err != nil {
		response.Success(c, TransferValidity{Valid: false, Reason: "project not found"})
		return
	}
	if project.AreaID != req.FromAreaID {
		response.Success(c, TransferValidity{Valid: false, Reason: "project is not in the source area"})
		return
	}
	validity, err := checkTransferLegality(req.FromAreaID, req.ToAreaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, validity)
}

type AreaFlowReq struct {
	FromAreaID       uint           `json:"fromAreaId" binding:"required"`
	ToAreaID         uint           `json:"toAreaId" binding:"required"`
	FlowOrder        int            `json:"flowOrder"`
	Required         bool           `json:"required"`
	RequiresApproval bool           `json:"requiresApproval"`
	CanSkip          bool           `json:"canSkip"`
	Description      string         `json:"description"`
	Conditions       map[string]any `json:"conditions"`
}

func CreateAreaFlow(c *gin.Context) {
	if _, ok := requireCapability(c, CapFlowWrite); !ok {
		return
	}
	var req AreaFlowReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.FromAreaID == req.ToAreaID {
		response.BadRequestError(c, "source and destination areas must differ")
		return
	}
	var count int64
	query.DB.Model(&model.Area{}).Where("id IN ?", []uint{req.FromAreaID, req.ToAreaID}).Count(&count)
	if count != 2 {
		response.NotFoundError(c, "source or destination area not found")
		return
	}
	flow := model.AreaFlow{
		FromAreaID:       req.FromAreaID,
		ToAreaID:         req.ToAreaID,
		FlowOrder:        req.FlowOrder,
		Required:         req.Required,
		RequiresApproval: req.RequiresApproval,
		CanSkip:          req.CanSkip,
		Description:      req.Description,
		Conditions:       req.Conditions,
	}
	if err := query.DB.Create(&flow).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	cache.InvalidateFlowConfiguration(c.Request.Context())
	response.Success(c, flow)
}

func UpdateAreaFlow(c *gin.Context) {
	if _, ok := requireCapability(c, CapFlowWrite); !ok {
		return
	}
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var req AreaFlowReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.FromAreaID == req.ToAreaID {
		response.BadRequestError(c, "source and destination areas must differ")
		return
	}
	var flow model.AreaFlow
	if err := query.DB.First(&flow, uri.ID).Error; err != nil {
		response.NotFoundError(c, "area flow not found")
		return
	}
	flow.FromAreaID = req.FromAreaID
	flow.ToAreaID = req.ToAreaID
	flow.FlowOrder = req.FlowOrder
	flow.Required = req.Required
	flow.RequiresApproval = req.RequiresApproval
	flow.CanSkip = req.CanSkip
	flow.Description = req.Description
	flow.Conditions = req.Conditions
	if err := query.DB.Save(&flow).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	cache.InvalidateFlowConfiguration(c.Request.Context())
	response.Success(c, flow)
}

// DeleteAreaFlow deactivates an edge. Soft delete only: the row stays
// for history, it just leaves the active set.
func DeleteAreaFlow(c *gin.Context) {
	if _, ok := requireCapability(c, CapFlowWrite); !ok {
		return
	}
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var flow model.AreaFlow
	if err := query.DB.First(&flow, uri.ID).Error; err != nil {
		response.NotFoundError(c, "area flow not found")
		return
	}
	if err := query.DB.Delete(&flow).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	cache.InvalidateFlowConfiguration(c.Request.Context())
	response.Success(c, "area flow deactivated")
}

func RegisterAreaFlow(g *gin.RouterGroup) {
	g.GET("/area-flows/configuration", GetFlowConfiguration)
	g.GET("/area-flows/next/:areaId", GetNextFlowStep)
	g.GET("/area-flows/alternatives/:areaId", GetAlternativeFlows)
	g.POST("/area-flows/validate", ValidateTransfer)
	g.POST("/area-flows", CreateAreaFlow)
	g.PUT("/area-flows/:id", UpdateAreaFlow)
	g.DELETE("/area-flows/:id", DeleteAreaFlow)
}
