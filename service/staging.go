package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/logutils"
	"stageflow/mapper"
	"stageflow/response"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 200 {
		limit = 20
	}
	return page, limit
}

// ListStagingProjects lists staged records, optionally filtered by
// area and status, paginated.
func ListStagingProjects(c *gin.Context) {
	page, limit := pagination(c)
	q := query.DB.Model(&model.StagingProject{})
	if raw := c.Query("areaId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			q = q.Where("area_id = ?", id)
		}
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	var rows []model.StagingProject
	if err := q.Order("id").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, gin.H{"projects": rows, "total": total, "page": page, "limit": limit})
}

func stagingByID(c *gin.Context) (*model.StagingProject, bool) {
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return nil, false
	}
	var row model.StagingProject
	if err := query.DB.First(&row, uri.ID).Error; err != nil {
		response.NotFoundError(c, "staging record not found")
		return nil, false
	}
	return &row, true
}

func GetStagingProject(c *gin.Context) {
	row, ok := stagingByID(c)
	if !ok {
		return
	}
	response.Success(c, row)
}

type UpdateStagingReq struct {
	Fields map[string]any `json:"fields"`
	Notes  *string        `json:"notes"`
}

// UpdateStagingProject edits the mapped field values. Edits drop the
// record back to pending; it must be validated again before transfer.
func UpdateStagingProject(c *gin.Context) {
	if _, ok := requireCapability(c, CapStagingWrite); !ok {
		return
	}
	row, ok := stagingByID(c)
	if !ok {
		return
	}
	var req UpdateStagingReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.Fields != nil {
		merged := map[string]any(row.Fields)
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range req.Fields {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		row.Fields = datatypes.JSONMap(merged)
		row.Status = model.StagingPending
		row.ValidationErrors = datatypes.NewJSONType[[]model.FieldError](nil)
	}
	if req.Notes != nil {
		row.Notes = *req.Notes
	}
	if err := query.DB.Save(row).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, row)
}

// validateStagingRow checks a staged record's mapped fields against the
// area's mapping set: required target fields must be present and
// non-empty, and fields carrying a validation rule must still satisfy
// it. Raw cell values are gone at this point, so rule checks apply to
// string-valued fields only.
func validateStagingRow(row *model.StagingProject, mappings []model.FieldMapping) []model.FieldError {
	var errs []model.FieldError
	for _, m := range mappings {
		v, present := row.Fields[m.TargetField]
		s, isStr := v.(string)
		empty := !present || v == nil || (isStr && strings.TrimSpace(s) == "")
		if empty {
			if m.Required {
				errs = append(errs, model.FieldError{
					Field:   m.TargetField,
					Message: "required field is empty",
				})
			}
			continue
		}
		if m.ValidationRule != "" && isStr {
			if err := mapper.Validate(m.ValidationRule, s); err != nil {
				errs = append(errs, model.FieldError{
					Field:   m.TargetField,
					Message: err.Error(),
				})
			}
		}
	}
	return errs
}

// ValidateStagingProject runs server validation for one staged record
// and stores the outcome on the row.
func ValidateStagingProject(c *gin.Context) {
	if _, ok := requireCapability(c, CapStagingWrite); !ok {
		return
	}
	row, ok := stagingByID(c)
	if !ok {
		return
	}
	mappings, err := mappingsForArea(query.DB, row.AreaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	errs := validateStagingRow(row, mappings)
	if len(errs) == 0 {
		row.Status = model.StagingValidated
		row.ValidationErrors = datatypes.NewJSONType[[]model.FieldError](nil)
	} else {
		row.Status = model.StagingError
		row.ValidationErrors = datatypes.NewJSONType(errs)
	}
	if err := query.DB.Save(row).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, gin.H{"status": row.Status, "errors": errs})
}

// GetValidationErrors returns the stored field-level failures.
func GetValidationErrors(c *gin.Context) {
	row, ok := stagingByID(c)
	if !ok {
		return
	}
	response.Success(c, row.ValidationErrors.Data())
}

type StagingStatusReq struct {
	Status model.StagingStatus `json:"status" binding:"required"`
	Notes  *string             `json:"notes"`
}

// UpdateStagingStatus is the explicit status transition (e.g. mark
// reviewed), independent of field edits.
func UpdateStagingStatus(c *gin.Context) {
	if _, ok := requireCapability(c, CapStagingWrite); !ok {
		return
	}
	row, ok := stagingByID(c)
	if !ok {
		return
	}
	var req StagingStatusReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	switch req.Status {
	case model.StagingPending, model.StagingValidated, model.StagingError, model.StagingReviewed:
	default:
		response.BadRequestError(c, "unknown staging status")
		return
	}
	row.Status = req.Status
	if req.Notes != nil {
		row.Notes = *req.Notes
	}
	if err := query.DB.Save(row).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, row)
}

// DeleteStagingProject is a hard delete with no undo; the client
// confirms with the user before calling.
func DeleteStagingProject(c *gin.Context) {
	if _, ok := requireCapability(c, CapStagingWrite); !ok {
		return
	}
	row, ok := stagingByID(c)
	if !ok {
		return
	}
	if err := query.DB.Unscoped().Delete(row).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	logutils.Log.WithFields(logutils.Fields{
		"stagingID": row.ID, "areaID": row.AreaID, "importID": row.ImportID,
	}).Info("staging record hard-deleted")
	response.Success(c, "staging record deleted")
}

var (
	errStagingConsumed = errors.New("record is no longer in staging")
	errStagingNotReady = errors.New("record must be validated before transfer")
	errTransferIllegal = errors.New("transfer does not follow an active area flow")
	errForceNotAllowed = errors.New("role cannot force an illegal transfer")
)

// promoteStaging converts one staging row into a live Project and, when
// the promotion moves the record along a flow edge, the matching
// Transfer record. The staging row is consumed inside the transaction,
// so a second call on the same id fails instead of succeeding twice.
func promoteStaging(tx *gorm.DB, id uint, toAreaID uint, force, mayForce bool) (*model.Project, error) {
	var row model.StagingProject
	if err := tx.First(&row, id).Error; err != nil {
		return nil, errStagingConsumed
	}
	if row.Status != model.StagingValidated && row.Status != model.StagingReviewed {
		return nil, errStagingNotReady
	}

	var flows []model.AreaFlow
	if err := tx.Where("from_area_id = ?", row.AreaID).Order("flow_order, id").Find(&flows).Error; err != nil {
		return nil, err
	}

	// Default destination: the mandatory next step of the source area.
	var edge *model.AreaFlow
	if toAreaID == 0 {
		edge = nextRequiredFlow(flows)
		if edge != nil {
			toAreaID = edge.ToAreaID
		}
	} else if toAreaID != row.AreaID {
		for i := range flows {
			if flows[i].ToAreaID == toAreaID {
				edge = &flows[i]
				break
			}
		}
		// A required lower-order edge to another area blocks the
		// move unless it can be skipped.
		if edge != nil {
			if next := nextRequiredFlow(flows); next != nil && next.ToAreaID != toAreaID && !next.CanSkip {
				edge = nil
			}
		}
		if edge == nil {
			if !force {
				return nil, errTransferIllegal
			}
			if !mayForce {
				return nil, errForceNotAllowed
			}
		}
	}

	name, _ := row.Fields["name"].(string)
	if name == "" {
		name = fmt.Sprintf("import-%s-row-%d", row.ImportID, row.RowNumber)
	}
	code, _ := row.Fields["code"].(string)

	project := model.Project{
		Name:     name,
		Code:     code,
		AreaID:   row.AreaID,
		Fields:   row.Fields,
		ImportID: row.ImportID,
	}
	if err := tx.Create(&project).Error; err != nil {
		return nil, err
	}

	if toAreaID != 0 && toAreaID != row.AreaID {
		transfer := model.Transfer{
			ProjectID:  project.ID,
			FromAreaID: row.AreaID,
			ToAreaID:   toAreaID,
			Forced:     edge == nil,
		}
		pendingApproval := edge != nil && edge.RequiresApproval
		if pendingApproval {
			transfer.Status = model.TransferPending
		} else {
			transfer.Status = model.TransferCompleted
			project.AreaID = toAreaID
			if err := tx.Save(&project).Error; err != nil {
				return nil, err
			}
		}
		if err := tx.Create(&transfer).Error; err != nil {
			return nil, err
		}
	}

	// Consume the staging row. Hard delete: promotion is terminal.
	if err := tx.Unscoped().Delete(&row).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

type TransferToActiveReq struct {
	ToAreaID uint `json:"toAreaId"`
	Force    bool `json:"force"`
}

// TransferToActive promotes one staged record into the live project
// set. At most once per id: once the staging row is consumed, a repeat
// call gets a conflict.
func TransferToActive(c *gin.Context) {
	session, ok := requireCapability(c, CapTransferExec)
	if !ok {
		return
	}
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var req TransferToActiveReq
	_ = c.ShouldBind(&req) // body is optional

	mayForce := HasCapability(session.Role, CapTransferForce)
	var project *model.Project
	err := query.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = promoteStaging(tx, uri.ID, req.ToAreaID, req.Force, mayForce)
		return err
	})
	if err != nil {
		transferError(c, err)
		return
	}
	response.Success(c, project)
}

func transferError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errStagingConsumed), errors.Is(err, errStagingNotReady),
		errors.Is(err, errTransferIllegal):
		response.ConflictError(c, err.Error())
	case errors.Is(err, errForceNotAllowed):
		response.HTTPError(c, 403, err.Error(), response.InvalidRole)
	default:
		response.Error(c, err.Error(), response.NotSpecified)
	}
}

type BatchTransferReq struct {
	ProjectIDs []uint `json:"projectIds" binding:"required"`
	ToAreaID   uint   `json:"toAreaId"`
	Force      bool   `json:"force"`
}

type BatchTransferResult struct {
	ID        uint   `json:"id"`
	Succeeded bool   `json:"succeeded"`
	ProjectID uint   `json:"projectId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BatchTransferToActive promotes several staged records. Each id runs
// in its own transaction; one bad record never rolls back the rest.
func BatchTransferToActive(c *gin.Context) {
	session, ok := requireCapability(c, CapTransferExec)
	if !ok {
		return
	}
	var req BatchTransferReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	mayForce := HasCapability(session.Role, CapTransferForce)

	results := make([]BatchTransferResult, 0, len(req.ProjectIDs))
	for _, id := range req.ProjectIDs {
		var project *model.Project
		err := query.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			project, err = promoteStaging(tx, id, req.ToAreaID, req.Force, mayForce)
			return err
		})
		if err != nil {
			results = append(results, BatchTransferResult{ID: id, Reason: err.Error()})
			continue
		}
		results = append(results, BatchTransferResult{ID: id, Succeeded: true, ProjectID: project.ID})
	}
	response.Success(c, results)
}

func RegisterStaging(g *gin.RouterGroup) {
	g.GET("/staging", ListStagingProjects)
	g.GET("/staging/:id", GetStagingProject)
	g.PUT("/staging/:id", UpdateStagingProject)
	g.POST("/staging/:id/validate", ValidateStagingProject)
	g.GET("/staging/:id/errors", GetValidationErrors)
	g.PATCH("/staging/:id/status", UpdateStagingStatus)
	g.DELETE("/staging/:id", DeleteStagingProject)
	g.POST("/staging/:id/transfer", TransferToActive)
	g.POST("/staging/batch/transfer", BatchTransferToActive)
}
