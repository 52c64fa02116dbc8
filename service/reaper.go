package service

import (
	"time"

	"stageflow/config"
	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/logutils"

	"github.com/robfig/cron/v3"
)

// StartImportReaper schedules a periodic sweep that fails imports
// stuck in processing, e.g. after a crash mid-run. Runs every five
// minutes; the staleness deadline comes from configuration.
func StartImportReaper() *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("*/5 * * * *", ReapStaleImports)
	if err != nil {
		logutils.Log.Error("failed to schedule import reaper: ", err)
		return nil
	}
	c.Start()
	return c
}

// ReapStaleImports marks processing imports older than the configured
// deadline as errored. The log row keeps its counts so the history
// list still shows how far the run got.
func ReapStaleImports() {
	staleAfter := time.Duration(config.GetConfig().Import.StaleAfterMinutes) * time.Minute
	cutoff := time.Now().Add(-staleAfter)

	res := query.DB.Model(&model.ImportLog{}).
		Where("status = ? AND started_at < ?", model.ImportProcessing, cutoff).
		Updates(map[string]any{
			"status":        model.ImportError,
			"error_message": "import timed out",
			"finished_at":   time.Now(),
		})
	if res.Error != nil {
		logutils.Log.Error("reap stale imports: ", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		logutils.Log.Warnf("marked %d stale imports as errored", res.RowsAffected)
	}
}
