package service

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"stageflow/dao/model"
	"stageflow/mapper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func waitForImport(t *testing.T, db *gorm.DB, importID string) model.ImportLog {
	t.Helper()
	var log model.ImportLog
	require.Eventually(t, func() bool {
		if err := db.Where("import_id = ?", importID).First(&log).Error; err != nil {
			return false
		}
		return log.Status != model.ImportProcessing
	}, 5*time.Second, 20*time.Millisecond, "import did not finish")
	return log
}

func TestPreviewNeverExceedsMaxRows(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	seedMapping(t, db, a.ID, "Name", "name")

	rows := make([][]string, 25)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("project-%d", i)}
	}
	workbook := buildWorkbook(t, []string{"Name"}, rows)

	w := doUpload(t, r, "/api/excel-import/preview", token, workbook, map[string]string{
		"sourceAreaId": fmt.Sprint(a.ID),
		"maxRows":      "10",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Samples   []map[string]any `json:"samples"`
		TotalRows int              `json:"totalRows"`
	}
	decodeData(t, w, &out)
	assert.Len(t, out.Samples, 10)
	assert.Equal(t, 25, out.TotalRows)
}

func TestImportHeaderOnlyFileCompletes(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	seedMapping(t, db, a.ID, "Name", "name")

	workbook := buildWorkbook(t, []string{"Name"}, nil)
	w := doUpload(t, r, "/api/excel-import/staging", token, workbook, map[string]string{
		"sourceAreaId": fmt.Sprint(a.ID),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var started struct {
		ImportID string `json:"importId"`
	}
	decodeData(t, w, &started)

	log := waitForImport(t, db, started.ImportID)
	assert.Equal(t, model.ImportCompleted, log.Status)
	assert.Equal(t, 0, log.RecordsProcessed)
	assert.Equal(t, 0, log.RecordsFailed)
}

func TestImportCreatesStagingRows(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	seedMapping(t, db, a.ID, "Name", "name", func(m *model.FieldMapping) { m.Required = true })
	seedMapping(t, db, a.ID, "Budget", "budget", func(m *model.FieldMapping) {
		m.Transformation = "currency-parse"
	})

	workbook := buildWorkbook(t, []string{"Name", "Budget"}, [][]string{
		{"Alpha", "$100.00"},
		{"", "$50.00"}, // missing required name
		{"Gamma", "not-a-number"},
	})
	w := doUpload(t, r, "/api/excel-import/staging", token, workbook, map[string]string{
		"sourceAreaId": fmt.Sprint(a.ID),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var started struct {
		ImportID  string `json:"importId"`
		TotalRows int    `json:"totalRows"`
	}
	decodeData(t, w, &started)
	assert.Equal(t, 3, started.TotalRows)

	log := waitForImport(t, db, started.ImportID)
	assert.Equal(t, model.ImportCompleted, log.Status)
	assert.Equal(t, 3, log.RecordsProcessed)
	assert.Equal(t, 2, log.RecordsFailed)

	var staged []model.StagingProject
	require.NoError(t, db.Where("import_id = ?", started.ImportID).Order("row_number").Find(&staged).Error)
	require.Len(t, staged, 3)
	assert.Equal(t, model.StagingValidated, staged[0].Status)
	assert.Equal(t, "Alpha", staged[0].Fields["name"])
	assert.InDelta(t, 100.0, staged[0].Fields["budget"], 0.001)
	assert.Equal(t, model.StagingError, staged[1].Status)
	assert.Equal(t, model.StagingError, staged[2].Status)
	errs := staged[2].ValidationErrors.Data()
	require.NotEmpty(t, errs)
	assert.Equal(t, "Budget", errs[0].Field)
}

func TestTwoImportsProduceTwoLogs(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	seedMapping(t, db, a.ID, "Name", "name")

	workbook := buildWorkbook(t, []string{"Name"}, [][]string{{"Alpha"}})
	var ids []string
	for i := 0; i < 2; i++ {
		w := doUpload(t, r, "/api/excel-import/staging", token, workbook, map[string]string{
			"sourceAreaId": fmt.Sprint(a.ID),
		})
		require.Equal(t, http.StatusOK, w.Code)
		var started struct {
			ImportID string `json:"importId"`
		}
		decodeData(t, w, &started)
		waitForImport(t, db, started.ImportID)
		ids = append(ids, started.ImportID)
	}
	assert.NotEqual(t, ids[0], ids[1])

	// No data-level dedup: re-importing the same file stages duplicates.
	var count int64
	db.Model(&model.StagingProject{}).Where("area_id = ?", a.ID).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestCancelFinishedImportConflicts(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	seedMapping(t, db, a.ID, "Name", "name")

	workbook := buildWorkbook(t, []string{"Name"}, [][]string{{"Alpha"}})
	w := doUpload(t, r, "/api/excel-import/staging", token, workbook, map[string]string{
		"sourceAreaId": fmt.Sprint(a.ID),
	})
	var started struct {
		ImportID string `json:"importId"`
	}
	decodeData(t, w, &started)
	waitForImport(t, db, started.ImportID)

	w = doJSON(t, r, http.MethodPost, "/api/excel-import/cancel/"+started.ImportID, token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelOnlyTouchesStatus(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	log := model.ImportLog{
		ImportID:         "inflight",
		AreaID:           1,
		Status:           model.ImportProcessing,
		TotalRows:        100,
		RecordsProcessed: 40,
		RecordsFailed:    3,
		StartedAt:        time.Now(),
	}
	require.NoError(t, db.Create(&log).Error)

	w := doJSON(t, r, http.MethodPost, "/api/excel-import/cancel/inflight", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, db.Where("import_id = ?", "inflight").First(&log).Error)
	assert.Equal(t, model.ImportCancelled, log.Status)
	assert.Equal(t, 40, log.RecordsProcessed, "cancel must not write counter columns")
	assert.Equal(t, 3, log.RecordsFailed)

	w = doJSON(t, r, http.MethodPost, "/api/excel-import/cancel/inflight", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFailedBatchCountsAllItsRows(t *testing.T) {
	db := setupDB(t)

	a := seedArea(t, db, "Area A", "A")
	seedMapping(t, db, a.ID, "Name", "name", func(m *model.FieldMapping) { m.Required = true })
	log := model.ImportLog{
		ImportID:  "doomed",
		AreaID:    a.ID,
		Status:    model.ImportProcessing,
		TotalRows: 2,
		StartedAt: time.Now(),
	}
	require.NoError(t, db.Create(&log).Error)

	// Without the staging table every insert fails.
	require.NoError(t, db.Migrator().DropTable(&model.StagingProject{}))
	runImport("doomed", &mapper.Sheet{
		Name:    "Sheet1",
		Headers: []string{"Name"},
		Rows:    [][]string{{"Alpha"}, {""}},
	})

	require.NoError(t, db.Where("import_id = ?", "doomed").First(&log).Error)
	assert.Equal(t, model.ImportError, log.Status)
	assert.Equal(t, 2, log.RecordsProcessed)
	assert.Equal(t, 2, log.RecordsFailed, "the uninserted rows are the failures, counted once")
}

func TestProgressOfEmptyImportReflectsStatus(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	log := model.ImportLog{
		ImportID:  "empty",
		AreaID:    1,
		Status:    model.ImportProcessing,
		TotalRows: 0,
		StartedAt: time.Now(),
	}
	require.NoError(t, db.Create(&log).Error)

	var out struct {
		Percent int                `json:"percent"`
		Status  model.ImportStatus `json:"status"`
	}
	w := doJSON(t, r, http.MethodGet, "/api/excel-import/progress/empty", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &out)
	assert.Equal(t, 0, out.Percent, "a run with no rows is not done until it finishes")

	require.NoError(t, db.Model(&model.ImportLog{}).
		Where("import_id = ?", "empty").
		Update("status", model.ImportCompleted).Error)
	w = doJSON(t, r, http.MethodGet, "/api/excel-import/progress/empty", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &out)
	assert.Equal(t, 100, out.Percent)
}

func TestImportWithoutMappingsErrors(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	workbook := buildWorkbook(t, []string{"Name"}, [][]string{{"Alpha"}})
	w := doUpload(t, r, "/api/excel-import/staging", token, workbook, map[string]string{
		"sourceAreaId": fmt.Sprint(a.ID),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var started struct {
		ImportID string `json:"importId"`
	}
	decodeData(t, w, &started)

	log := waitForImport(t, db, started.ImportID)
	assert.Equal(t, model.ImportError, log.Status)
	assert.Contains(t, log.ErrorMessage, "no field mappings")
}

func TestValidateStructureReportsColumns(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	seedMapping(t, db, a.ID, "Name", "name", func(m *model.FieldMapping) { m.Required = true })
	seedMapping(t, db, a.ID, "Budget", "budget", func(m *model.FieldMapping) { m.Required = true })

	workbook := buildWorkbook(t, []string{"Name", "Extra"}, [][]string{{"Alpha", "x"}})
	w := doUpload(t, r, "/api/excel-import/validate", token, workbook, map[string]string{
		"sourceAreaId": fmt.Sprint(a.ID),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Valid   bool `json:"valid"`
		Columns struct {
			Recognized      []string `json:"recognized"`
			Unmapped        []string `json:"unmapped"`
			MissingRequired []string `json:"missingRequired"`
		} `json:"columns"`
	}
	decodeData(t, w, &out)
	assert.False(t, out.Valid)
	assert.True(t, stringsContain(out.Columns.Recognized, "Name"))
	assert.True(t, stringsContain(out.Columns.Unmapped, "Extra"))
	assert.True(t, stringsContain(out.Columns.MissingRequired, "Budget"))

	// Nothing was persisted by validation.
	var count int64
	db.Model(&model.ImportLog{}).Count(&count)
	assert.Zero(t, count)
}
