package main

import (
	"github.com/wfunc/escaperoom/config"
	"github.com/wfunc/escaperoom/logger"
	"github.com/wfunc/escaperoom/persistence"
	"github.com/wfunc/escaperoom/server"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database (optional: records and leaderboard only)
	var db persistence.Database
	if cfg.Database.Enabled {
		pg := cfg.Database.Postgres
		switch cfg.Database.Driver {
		case "postgres":
			db, err = persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		default:
			db, err = persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		}
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		logger.Log.Info("Database connection successful.")
	} else {
		logger.Log.Info("Database disabled, game records will not be stored.")
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, db)

	// Start Server
	logger.Log.Infof("Starting escape room server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
