package cmd

import (
	"github.com/wacrm/pkg/config"
	"github.com/wacrm/pkg/database"
	"github.com/wacrm/pkg/logger"
	"github.com/wacrm/pkg/server"
	"github.com/wacrm/pkg/utils"
)

func StartApp() {
	utils.LoadEnv()
	config := config.InitConfig()
	log := logger.Init(config.Log)
	defer log.Sync()

	database.InitDB(config.Database)
	defer database.Close()

	server.LaunchHttpServer(config, log)
}
