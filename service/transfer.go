package service

import (
	"strconv"

	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListTransfers returns transfer records, newest first, optionally for
// one project. Per-project history is append-only.
func ListTransfers(c *gin.Context) {
	page, limit := pagination(c)
	q := query.DB.Model(&model.Transfer{})
	if raw := c.Query("projectId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			q = q.Where("project_id = ?", id)
		}
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	var transfers []model.Transfer
	if err := q.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&transfers).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, gin.H{"transfers": transfers, "total": total, "page": page, "limit": limit})
}

func pendingTransferByID(c *gin.Context) (*model.Transfer, bool) {
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return nil, false
	}
	var transfer model.Transfer
	if err := query.DB.First(&transfer, uri.ID).Error; err != nil {
		response.NotFoundError(c, "transfer not found")
		return nil, false
	}
	if transfer.Status.Terminal() {
		response.ConflictError(c, "transfer is already finalized")
		return nil, false
	}
	return &transfer, true
}

type TransferDecisionReq struct {
	Notes string `json:"notes"`
}

// ApproveTransfer finalizes a pending transfer and moves the project
// into the destination area in the same transaction.
func ApproveTransfer(c *gin.Context) {
	session, ok := requireCapability(c, CapTransferApprove)
	if !ok {
		return
	}
	transfer, ok := pendingTransferByID(c)
	if !ok {
		return
	}
	var req TransferDecisionReq
	_ = c.ShouldBind(&req)

	err := query.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Project{}).
			Where("id = ? AND area_id = ?", transfer.ProjectID, transfer.FromAreaID).
			Update("area_id", transfer.ToAreaID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		transfer.Status = model.TransferApproved
		transfer.ApprovedBy = &session.UserID
		if req.Notes != "" {
			transfer.Notes = req.Notes
		}
		return tx.Save(transfer).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			response.ConflictError(c, "project is no longer in the source area")
			return
		}
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, transfer)
}

// RejectTransfer finalizes a pending transfer without moving anything.
func RejectTransfer(c *gin.Context) {
	session, ok := requireCapability(c, CapTransferApprove)
	if !ok {
		return
	}
	transfer, ok := pendingTransferByID(c)
	if !ok {
		return
	}
	var req TransferDecisionReq
	_ = c.ShouldBind(&req)

	transfer.Status = model.TransferRejected
	transfer.ApprovedBy = &session.UserID
	if req.Notes != "" {
		transfer.Notes = req.Notes
	}
	if err := query.DB.Save(transfer).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, transfer)
}

// CancelTransfer withdraws a pending transfer. Unlike reject it needs
// only the execute capability: the requester can take their own
// request back.
func CancelTransfer(c *gin.Context) {
	if _, ok := requireCapability(c, CapTransferExec); !ok {
		return
	}
	transfer, ok := pendingTransferByID(c)
	if !ok {
		return
	}
	var req TransferDecisionReq
	_ = c.ShouldBind(&req)

	transfer.Status = model.TransferCancelled
	if req.Notes != "" {
		transfer.Notes = req.Notes
	}
	if err := query.DB.Save(transfer).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, transfer)
}

func RegisterTransfer(g *gin.RouterGroup) {
	g.GET("/transfers", ListTransfers)
	g.POST("/transfers/:id/approve", ApproveTransfer)
	g.POST("/transfers/:id/reject", RejectTransfer)
	g.POST("/transfers/:id/cancel", CancelTransfer)
}
