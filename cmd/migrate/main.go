package main

import (
	"context"
	"flag"
	"fmt"

	"pcapi/internal/config"
	"pcapi/internal/database"
	"pcapi/internal/database/migrations"
	"pcapi/internal/logger"
)

func main() {
	action := flag.String("action", "up", "up, down, to or version")
	target := flag.Uint("version", 0, "target version for -action=to")
	flag.Parse()

	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{Dir: cfg.LogDir, Prefix: "pcapi-migrate"})
	defer log.Close()

	db, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	runner := migrations.NewRunner(db, migrations.MigrateOptions{SourceURL: cfg.Database.MigrationsPath}, log)
	switch *action {
	case "up":
		err = runner.RunMigrations()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*target)
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = runner.Version()
		if err == nil {
			log.Info("MIGRATION", fmt.Sprintf("version=%d dirty=%t", version, dirty))
		}
	default:
		err = fmt.Errorf("unknown action %q", *action)
	}
	if cerr := runner.Close(); cerr != nil {
		log.Error("MIGRATION", cerr.Error())
	}
	if err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	log.Info("MIGRATION", fmt.Sprintf("%s done", *action))
}
