package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stageflow/config"
	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/logutils"
	"stageflow/mapper"
	"stageflow/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const defaultPreviewRows = 10

// uploadedSheet saves the multipart file under the upload dir and
// parses it. The stored copy is kept so a failed import can be retried
// without re-uploading.
func uploadedSheet(c *gin.Context, keep bool) (*mapper.Sheet, string, string, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, "", "", fmt.Errorf("file is required")
	}

	uploadDir := config.GetConfig().Import.UploadDir
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, "", "", err
	}
	stored := filepath.Join(uploadDir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, stored); err != nil {
		return nil, "", "", fmt.Errorf("saving uploaded file failed: %w", err)
	}
	if !keep {
		defer os.Remove(stored)
	}

	f, err := os.Open(stored)
	if err != nil {
		return nil, "", "", err
	}
	defer f.Close()
	sheet, err := mapper.ReadWorkbook(f)
	if err != nil {
		if keep {
			os.Remove(stored)
		}
		return nil, "", "", err
	}
	if !keep {
		stored = ""
	}
	return sheet, stored, file.Filename, nil
}

func formAreaID(c *gin.Context) (uint, bool) {
	raw := c.PostForm("sourceAreaId")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		response.BadRequestError(c, "sourceAreaId is required")
		return 0, false
	}
	return uint(id), true
}

// ValidateExcelStructure checks headers against the area's mapping set
// without persisting anything. Purely advisory; importing does not
// require it.
func ValidateExcelStructure(c *gin.Context) {
	areaID, ok := formAreaID(c)
	if !ok {
		return
	}
	sheet, _, _, err := uploadedSheet(c, false)
	if err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	mappings, err := mappingsForArea(query.DB, areaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	summary := mapper.SummarizeColumns(mappings, sheet.Headers)
	response.Success(c, gin.H{
		"valid":     len(summary.MissingRequired) == 0 && len(summary.Recognized) > 0,
		"sheetName": sheet.Name,
		"dataRows":  sheet.DataRowCount(),
		"columns":   summary,
	})
}

// PreviewExcelData maps a capped number of sample rows. Never persists
// and never returns more than maxRows rows regardless of file size.
func PreviewExcelData(c *gin.Context) {
	areaID, ok := formAreaID(c)
	if !ok {
		return
	}
	maxRows := defaultPreviewRows
	if raw := c.PostForm("maxRows"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxRows = v
		}
	}
	sheet, _, _, err := uploadedSheet(c, false)
	if err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	mappings, err := mappingsForArea(query.DB, areaID)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}

	count := sheet.DataRowCount()
	if count > maxRows {
		count = maxRows
	}
	samples := make([]mapper.Result, 0, count)
	for i := 0; i < count; i++ {
		samples = append(samples, mapper.ApplyMappings(mappings, sheet.RowMap(i)))
	}
	response.Success(c, gin.H{
		"samples":   samples,
		"totalRows": sheet.DataRowCount(),
		"columns":   mapper.SummarizeColumns(mappings, sheet.Headers),
	})
}

// ImportExcelToStaging is the one upload call with side effects: it
// creates the ImportLog row and, in the background, the staging rows.
// Clients poll the progress endpoint; the log row carries real counts,
// updated as each batch commits.
func ImportExcelToStaging(c *gin.Context) {
	if _, ok := requireCapability(c, CapImportRun); !ok {
		return
	}
	areaID, ok := formAreaID(c)
	if !ok {
		return
	}
	var area model.Area
	if err := query.DB.First(&area, areaID).Error; err != nil {
		response.NotFoundError(c, "area not found")
		return
	}

	opts := model.ImportOptions{
		BatchSize: config.GetConfig().Import.DefaultBatchSize,
		StartRow:  1,
	}
	if raw := c.PostForm("batchSize"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			opts.BatchSize = v
		}
	}
	if raw := c.PostForm("startRow"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 1 {
			opts.StartRow = v
		}
	}
	opts.SkipValidation = c.PostForm("skipValidation") == "true"

	sheet, stored, fileName, err := uploadedSheet(c, true)
	if err != nil {
		response.BadRequestError(c, err.Error())
		return
	}

	log := model.ImportLog{
		ImportID:   uuid.New().String(),
		AreaID:     areaID,
		FileName:   fileName,
		StoredPath: stored,
		Status:     model.ImportProcessing,
		TotalRows:  sheet.DataRowCount(),
		Options:    datatypes.NewJSONType(opts),
		StartedAt:  time.Now(),
	}
	if err := query.DB.Create(&log).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}

	go runImport(log.ImportID, sheet)

	response.Success(c, gin.H{
		"importId":  log.ImportID,
		"totalRows": log.TotalRows,
		"status":    log.Status,
	})
}

// runImport processes the parsed sheet into staging rows, committing
// batch by batch and refreshing the log row after each batch. The
// cancel endpoint flips the log status; the flag is honored between
// batches, so cancel is best effort by design.
func runImport(importID string, sheet *mapper.Sheet) {
	var log model.ImportLog
	if err := query.DB.Where("import_id = ?", importID).First(&log).Error; err != nil {
		logutils.Log.Error("import log vanished: ", err)
		return
	}
	opts := log.Options.Data()

	finish := func(status model.ImportStatus, msg string) {
		now := time.Now()
		err := query.DB.Model(&model.ImportLog{}).
			Where("import_id = ?", importID).
			Updates(map[string]any{
				"status":            status,
				"error_message":     msg,
				"records_processed": log.RecordsProcessed,
				"records_failed":    log.RecordsFailed,
				"finished_at":       now,
			}).Error
		if err != nil {
			logutils.Log.Error("finalize import log: ", err)
		}
	}

	mappings, err := mappingsForArea(query.DB, log.AreaID)
	if err != nil {
		finish(model.ImportError, err.Error())
		return
	}
	if len(mappings) == 0 {
		finish(model.ImportError, "no field mappings configured for area")
		return
	}

	start := opts.StartRow - 1
	if start < 0 {
		start = 0
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for offset := start; offset < sheet.DataRowCount(); offset += batchSize {
		// Honor a cancel requested since the last batch.
		var current model.ImportLog
		if err := query.DB.Where("import_id = ?", importID).First(&current).Error; err == nil &&
			current.Status == model.ImportCancelled {
			finish(model.ImportCancelled, "cancelled by operator")
			return
		}

		end := offset + batchSize
		if end > sheet.DataRowCount() {
			end = sheet.DataRowCount()
		}

		batch := make([]model.StagingProject, 0, end-offset)
		failed := 0
		for i := offset; i < end; i++ {
			result := mapper.ApplyMappings(mappings, sheet.RowMap(i))
			row := model.StagingProject{
				AreaID:    log.AreaID,
				ImportID:  importID,
				RowNumber: i + 1,
				Fields:    datatypes.JSONMap(result.Fields),
				Status:    model.StagingPending,
			}
			if !opts.SkipValidation {
				if result.Valid() {
					row.Status = model.StagingValidated
				} else {
					row.Status = model.StagingError
					row.ValidationErrors = datatypes.NewJSONType(result.Errors)
					failed++
				}
			}
			batch = append(batch, row)
		}
		if len(batch) > 0 {
			if err := query.DB.Create(&batch).Error; err != nil {
				// None of the batch was persisted: every row of it
				// counts as processed and failed, the per-row
				// validation tally is subsumed.
				log.RecordsProcessed += end - offset
				log.RecordsFailed += end - offset
				finish(model.ImportError, err.Error())
				return
			}
		}

		log.RecordsProcessed += end - offset
		log.RecordsFailed += failed
		// Counter-only update: a concurrent cancel must not be
		// overwritten by a stale full-row save.
		err := query.DB.Model(&model.ImportLog{}).
			Where("import_id = ?", importID).
			Updates(map[string]any{
				"records_processed": log.RecordsProcessed,
				"records_failed":    log.RecordsFailed,
			}).Error
		if err != nil {
			logutils.Log.Error("update import progress: ", err)
		}
	}

	finish(model.ImportCompleted, "")
}

type uriImportID struct {
	ImportID string `uri:"id" binding:"required"`
}

func importLogByID(c *gin.Context) (*model.ImportLog, bool) {
	var uri uriImportID
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequestError(c, err.Error())
		return nil, false
	}
	var log model.ImportLog
	if err := query.DB.Where("import_id = ?", uri.ImportID).First(&log).Error; err != nil {
		response.NotFoundError(c, "import not found")
		return nil, false
	}
	return &log, true
}

// GetImportProgress returns the live state of one import.
func GetImportProgress(c *gin.Context) {
	log, ok := importLogByID(c)
	if !ok {
		return
	}
	percent := 0
	if log.TotalRows > 0 {
		percent = log.RecordsProcessed * 100 / log.TotalRows
	} else if log.Status != model.ImportProcessing {
		// No data rows: the run is done the moment it stops processing.
		percent = 100
	}
	response.Success(c, gin.H{
		"importId":         log.ImportID,
		"status":           log.Status,
		"totalRows":        log.TotalRows,
		"recordsProcessed": log.RecordsProcessed,
		"recordsFailed":    log.RecordsFailed,
		"percent":          percent,
		"errorMessage":     log.ErrorMessage,
	})
}

// CancelImport requests a best-effort stop of an in-flight import.
func CancelImport(c *gin.Context) {
	if _, ok := requireCapability(c, CapImportRun); !ok {
		return
	}
	log, ok := importLogByID(c)
	if !ok {
		return
	}
	// Status-guarded column update: the import goroutine owns the
	// counter columns and may be writing them concurrently.
	res := query.DB.Model(&model.ImportLog{}).
		Where("import_id = ? AND status = ?", log.ImportID, model.ImportProcessing).
		Update("status", model.ImportCancelled)
	if res.Error != nil {
		response.Error(c, res.Error.Error(), response.NotSpecified)
		return
	}
	if res.RowsAffected == 0 {
		response.ConflictError(c, "import is not in progress")
		return
	}
	response.Success(c, gin.H{"importId": log.ImportID, "status": model.ImportCancelled})
}

// RetryImport re-runs a failed or cancelled import from the stored
// upload copy, as a fresh import batch with its own log row.
func RetryImport(c *gin.Context) {
	if _, ok := requireCapability(c, CapImportRun); !ok {
		return
	}
	prev, ok := importLogByID(c)
	if !ok {
		return
	}
	if prev.Status != model.ImportError && prev.Status != model.ImportCancelled {
		response.ConflictError(c, "only failed or cancelled imports can be retried")
		return
	}
	f, err := os.Open(prev.StoredPath)
	if err != nil {
		response.ConflictError(c, "stored upload no longer available, re-upload the file")
		return
	}
	sheet, err := mapper.ReadWorkbook(f)
	f.Close()
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}

	log := model.ImportLog{
		ImportID:   uuid.New().String(),
		AreaID:     prev.AreaID,
		FileName:   prev.FileName,
		StoredPath: prev.StoredPath,
		Status:     model.ImportProcessing,
		TotalRows:  sheet.DataRowCount(),
		Options:    prev.Options,
		StartedAt:  time.Now(),
	}
	if err := query.DB.Create(&log).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	go runImport(log.ImportID, sheet)
	response.Success(c, gin.H{"importId": log.ImportID, "retriedFrom": prev.ImportID})
}

// ListImportLogs returns the import history, newest first.
func ListImportLogs(c *gin.Context) {
	page, limit := pagination(c)
	q := query.DB.Model(&model.ImportLog{})
	if raw := c.Query("areaId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			q = q.Where("area_id = ?", id)
		}
	}
	var total int64
	q.Count(&total)
	var logs []model.ImportLog
	if err := q.Order("started_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&logs).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, gin.H{"logs": logs, "total": total, "page": page, "limit": limit})
}

// ImportStats aggregates the import history for the dashboard.
func ImportStats(c *gin.Context) {
	type statusCount struct {
		Status model.ImportStatus
		Count  int64
	}
	var counts []statusCount
	if err := query.DB.Model(&model.ImportLog{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error; err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	byStatus := make(map[model.ImportStatus]int64, len(counts))
	for _, sc := range counts {
		byStatus[sc.Status] = sc.Count
	}
	var processed, failedRows int64
	query.DB.Model(&model.ImportLog{}).Select("coalesce(sum(records_processed),0)").Scan(&processed)
	query.DB.Model(&model.ImportLog{}).Select("coalesce(sum(records_failed),0)").Scan(&failedRows)
	response.Success(c, gin.H{
		"byStatus":         byStatus,
		"recordsProcessed": processed,
		"recordsFailed":    failedRows,
	})
}

func RegisterImport(g *gin.RouterGroup) {
	g.POST("/excel-import/validate", ValidateExcelStructure)
	g.POST("/excel-import/preview", PreviewExcelData)
	g.POST("/excel-import/staging", ImportExcelToStaging)
	g.GET("/excel-import/progress/:id", GetImportProgress)
	g.POST("/excel-import/cancel/:id", CancelImport)
	g.POST("/excel-import/retry/:id", RetryImport)
	g.GET("/excel-import/logs", ListImportLogs)
	g.GET("/excel-import/stats", ImportStats)
}
