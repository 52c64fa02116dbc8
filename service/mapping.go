package service

import (
	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/mapper"
	"stageflow/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CloneReplace flips the clone-mappings semantics from additive upsert
// to wholesale replace. Kept as one switch pending a product decision;
// see DESIGN.md.
const CloneReplace = false

func mappingsForArea(db *gorm.DB, areaID uint) ([]model.FieldMapping, error) {
	var mappings []model.FieldMapping
	err := db.Where("area_id = ?", areaID).Order("order_index, id").Find(&mappings).Error
	return mappings, err
}

// GetFieldMappings lists an area's mappings ordered by order index.
func GetFieldMappings(c *gin.Context) {
	var uri uriAreaID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	mappings, err := mappingsForArea(query.DB, uri.AreaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, mappings)
}

type FieldMappingReq struct {
	AreaID         uint    `json:"areaId" binding:"required"`
	SourceField    string  `json:"sourceField" binding:"required"`
	TargetField    string  `json:"targetField" binding:"required"`
	TargetTable    string  `json:"targetTable"`
	Required       bool    `json:"required"`
	Transformation string  `json:"transformation"`
	ValidationRule string  `json:"validationRule"`
	DefaultValue   *string `json:"defaultValue"`
	OrderIndex     int     `json:"orderIndex"`
}

func (req *FieldMappingReq) apply(m *model.FieldMapping) {
	m.AreaID = req.AreaID
	m.SourceField = req.SourceField
	m.TargetField = req.TargetField
	m.TargetTable = req.TargetTable
	if m.TargetTable == "" {
		m.TargetTable = "projects"
	}
	m.Required = req.Required
	m.Transformation = req.Transformation
	m.ValidationRule = req.ValidationRule
	m.DefaultValue = req.DefaultValue
	m.OrderIndex = req.OrderIndex
}

func validateMappingReq(c *gin.Context, req *FieldMappingReq) bool {
	if req.Transformation != "" && !mapper.KnownTransform(req.Transformation) {
		response.BadRequestError(c, "unknown transformation "+req.Transformation)
		return false
	}
	if req.ValidationRule != "" && !mapper.KnownRule(req.ValidationRule) {
		response.BadRequestError(c, "unknown validation rule "+req.ValidationRule)
		return false
	}
	return true
}

func CreateFieldMapping(c *gin.Context) {
	if _, ok := requireCapability(c, CapMappingWrite); !ok {
		return
	}
	var req FieldMappingReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if !validateMappingReq(c, &req) {
		return
	}
	var mapping model.FieldMapping
	req.apply(&mapping)
	if err := query.DB.Create(&mapping).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, mapping)
}

func UpdateFieldMapping(c *gin.Context) {
	if _, ok := requireCapability(c, CapMappingWrite); !ok {
		return
	}
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var req FieldMappingReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if !validateMappingReq(c, &req) {
		return
	}
	var mapping model.FieldMapping
	if err := query.DB.First(&mapping, uri.ID).Error; err != nil {
		response.NotFoundError(c, "field mapping not found")
		return
	}
	req.apply(&mapping)
	if err := query.DB.Save(&mapping).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, mapping)
}

func DeleteFieldMapping(c *gin.Context) {
	if _, ok := requireCapability(c, CapMappingWrite); !ok {
		return
	}
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if err := query.DB.Delete(&model.FieldMapping{}, uri.ID).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, "field mapping deleted")
}

type TestMappingReq struct {
	SourceAreaID uint              `json:"sourceAreaId" binding:"required"`
	TestData     map[string]string `json:"testData" binding:"required"`
}

// TestMapping maps one example row through an area's configuration so
// an administrator can sanity-check it before an import run. Also
// reports configuration errors (unknown transforms, duplicate source
// fields).
func TestMapping(c *gin.Context) {
	var req TestMappingReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	mappings, err := mappingsForArea(query.DB, req.SourceAreaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	result := mapper.ApplyMappings(mappings, req.TestData)
	response.Success(c, gin.H{
		"fields":       result.Fields,
		"errors":       result.Errors,
		"configErrors": mapper.CheckConfiguration(mappings),
	})
}

type CloneMappingsReq struct {
	SourceAreaID uint `json:"sourceAreaId" binding:"required"`
	TargetAreaID uint `json:"targetAreaId" binding:"required"`
}

// CloneMappings copies the source area's mapping set into the target
// area. Additive upsert by (targetTable, sourceField): colliding target
// rows are overwritten, other target rows are left untouched, so a
// later clone never erases mappings added to the target in between.
func CloneMappings(c *gin.Context) {
	if _, ok := requireCapability(c, CapMappingWrite); !ok {
		return
	}
	var req CloneMappingsReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.SourceAreaID == req.TargetAreaID {
		response.BadRequestError(c, "source and target areas must differ")
		return
	}

	var cloned []model.FieldMapping
	err := query.DB.Transaction(func(tx *gorm.DB) error {
		source, err := mappingsForArea(tx, req.SourceAreaID)
		if err != nil {
			return err
		}
		if CloneReplace {
			if err := tx.Where("area_id = ?", req.TargetAreaID).
				Delete(&model.FieldMapping{}).Error; err != nil {
				return err
			}
		}
		for _, m := range source {
			var existing model.FieldMapping
			err := tx.Where("area_id = ? AND target_table = ? AND source_field = ?",
				req.TargetAreaID, m.TargetTable, m.SourceField).First(&existing).Error
			if err == nil {
				existing.TargetField = m.TargetField
				existing.Required = m.Required
				existing.Transformation = m.Transformation
				existing.ValidationRule = m.ValidationRule
				existing.DefaultValue = m.DefaultValue
				existing.OrderIndex = m.OrderIndex
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				continue
			}
			copied := model.FieldMapping{
				AreaID:         req.TargetAreaID,
				SourceField:    m.SourceField,
				TargetField:    m.TargetField,
				TargetTable:    m.TargetTable,
				Required:       m.Required,
				Transformation: m.Transformation,
				ValidationRule: m.ValidationRule,
				DefaultValue:   m.DefaultValue,
				OrderIndex:     m.OrderIndex,
			}
			if err := tx.Create(&copied).Error; err != nil {
				return err
			}
		}
		cloned, err = mappingsForArea(tx, req.TargetAreaID)
		return err
	})
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, cloned)
}

type MappingOrderReq struct {
	Mappings []struct {
		ID         uint `json:"id" binding:"required"`
		OrderIndex int  `json:"orderIndex"`
	} `json:"mappings" binding:"required"`
}

// UpdateMappingOrder re-sequences order indices in one transaction so
// drag-reordering in the UI is atomic.
func UpdateMappingOrder(c *gin.Context) {
	if _, ok := requireCapability(c, CapMappingWrite); !ok {
		return
	}
	var req MappingOrderReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	err := query.DB.Transaction(func(tx *gorm.DB) error {
		for _, item := range req.Mappings {
			res := tx.Model(&model.FieldMapping{}).
				Where("id = ?", item.ID).
				Update("order_index", item.OrderIndex)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return nil
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			response.NotFoundError(c, "field mapping not found")
			return
		}
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, "mapping order updated")
}

// ExportMappings serializes an area's mapping set into the portable
// JSON document used for backup and cross-environment migration.
func ExportMappings(c *gin.Context) {
	var uri uriAreaID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var area model.Area
	if err := query.DB.First(&area, uri.AreaID).Error; err != nil {
		response.NotFoundError(c, "area not found")
		return
	}
	mappings, err := mappingsForArea(query.DB, uri.AreaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	doc := model.MappingDocument{
		Version:  model.MappingDocumentVersion,
		AreaCode: area.Code,
		Mappings: make([]model.PortableMapping, 0, len(mappings)),
	}
	for i := range mappings {
		doc.Mappings = append(doc.Mappings, mappings[i].Portable())
	}
	response.Success(c, doc)
}

type ImportMappingsReq struct {
	AreaID   uint                  `json:"areaId" binding:"required"`
	Document model.MappingDocument `json:"document" binding:"required"`
}

// ImportMappings loads a portable mapping document into an area, with
// the same upsert semantics as clone.
func ImportMappings(c *gin.Context) {
	if _, ok := requireCapability(c, CapMappingWrite); !ok {
		return
	}
	var req ImportMappingsReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.Document.Version != model.MappingDocumentVersion {
		response.BadRequestError(c, "unsupported mapping document version")
		return
	}

	var imported []model.FieldMapping
	err := query.DB.Transaction(func(tx *gorm.DB) error {
		for _, p := range req.Document.Mappings {
			table := p.TargetTable
			if table == "" {
				table = "projects"
			}
			var existing model.FieldMapping
			err := tx.Where("area_id = ? AND target_table = ? AND source_field = ?",
				req.AreaID, table, p.SourceField).First(&existing).Error
			if err == nil {
				existing.TargetField = p.TargetField
				existing.Required = p.Required
				existing.Transformation = p.Transformation
				existing.ValidationRule = p.ValidationRule
				existing.DefaultValue = p.DefaultValue
				existing.OrderIndex = p.OrderIndex
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				continue
			}
			mapping := model.FieldMapping{
				AreaID:         req.AreaID,
				SourceField:    p.SourceField,
				TargetField:    p.TargetField,
				TargetTable:    table,
				Required:       p.Required,
				Transformation: p.Transformation,
				ValidationRule: p.ValidationRule,
				DefaultValue:   p.DefaultValue,
				OrderIndex:     p.OrderIndex,
			}
			if err := tx.Create(&mapping).Error; err != nil {
				return err
			}
		}
		var err error
		imported, err = mappingsForArea(tx, req.AreaID)
		return err
	})
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, imported)
}

func RegisterMapping(g *gin.RouterGroup) {
	g.GET("/field-mappings/area/:areaId", GetFieldMappings)
	g.GET("/field-mappings/area/:areaId/export", ExportMappings)
	g.POST("/field-mappings", CreateFieldMapping)
	g.PUT("/field-mappings/order", UpdateMappingOrder)
	g.PUT("/field-mappings/:id", UpdateFieldMapping)
	g.DELETE("/field-mappings/:id", DeleteFieldMapping)
	g.POST("/field-mappings/test", TestMapping)
	g.POST("/field-mappings/clone", CloneMappings)
	g.POST("/field-mappings/import", ImportMappings)
}
