package main

import (
	"fmt"
	"os"

	"stageflow/config"
	"stageflow/dao/query"
	"stageflow/logutils"
	"stageflow/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	r := gin.Default()
	err := query.InitDB()
	if err != nil {
		fmt.Println("err init:", err)
		os.Exit(1)
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	reaper := service.StartImportReaper()
	if reaper != nil {
		defer reaper.Stop()
	}

	api := r.Group("/api")
	service.RegisterAuth(api)

	protected := api.Group("", service.AuthMiddleware())
	service.RegisterSession(protected)
	service.RegisterArea(protected)
	service.RegisterAreaFlow(protected)
	service.RegisterMapping(protected)
	service.RegisterImport(protected)
	service.RegisterStaging(protected)
	service.RegisterTransfer(protected)

	err = r.Run(":" + config.GetConfig().Server.Port)
	if err != nil {
		logutils.Log.Fatal(err)
	}
}
