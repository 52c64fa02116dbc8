package service

import (
	"errors"

	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AreaReq struct {
	Name  string `json:"name" binding:"required"`
	Code  string `json:"code" binding:"required"`
	Color string `json:"color"`
}

type uriID struct {
	ID uint `uri:"id" binding:"required"`
}

func ListAreas(c *gin.Context) {
	var areas []model.Area
	if err := query.DB.Order("code").Find(&areas).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, areas)
}

func GetArea(c *gin.Context) {
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var area model.Area
	if err := query.DB.First(&area, uri.ID).Error; err != nil {
		response.NotFoundError(c, "area not found")
		return
	}
	response.Success(c, area)
}

func CreateArea(c *gin.Context) {
	if _, ok := requireCapability(c, CapAreaWrite); !ok {
		return
	}
	var req AreaReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	area := model.Area{Name: req.Name, Code: req.Code, Color: req.Color}
	if err := query.DB.Create(&area).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			response.ConflictError(c, "area code already exists")
			return
		}
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, area)
}

func UpdateArea(c *gin.Context) {
	if _, ok := requireCapability(c, CapAreaWrite); !ok {
		return
	}
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var req AreaReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var area model.Area
	if err := query.DB.First(&area, uri.ID).Error; err != nil {
		response.NotFoundError(c, "area not found")
		return
	}
	area.Name = req.Name
	area.Code = req.Code
	area.Color = req.Color
	if err := query.DB.Save(&area).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, area)
}

func DeleteArea(c *gin.Context) {
	if _, ok := requireCapability(c, CapAreaWrite); !ok {
		return
	}
	var uri uriID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if err := query.DB.Delete(&model.Area{}, uri.ID).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, "area deleted")
}

func RegisterArea(g *gin.RouterGroup) {
	g.GET("/areas", ListAreas)
	g.GET("/areas/:id", GetArea)
	g.POST("/areas", CreateArea)
	g.PUT("/areas/:id", UpdateArea)
	g.DELETE("/areas/:id", DeleteArea)
}
