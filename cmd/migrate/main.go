package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"

	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/database"
	"github.com/frostdev-ops/campaign-automation/pkg/logger"
)

const usage = `Usage: migrate <command> [args]

Commands:
  up             apply all pending migrations
  down [steps]   roll back the given number of migrations (all when omitted)
  version        print the applied migration version

The database comes from config.yaml or DATABASE_PATH. Set CONFIG_FILE to read
another configuration file.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	log := logger.New(logger.Options{Format: "text"})

	cfg, err := config.LoadWith(viper.New(), os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	db, err := database.Initialize(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer db.Close()

	switch command := os.Args[1]; command {
	case "up":
		if err := database.Migrate(db); err != nil {
			log.Fatal(err)
		}
		log.Info("Migrations applied successfully")
	case "down":
		steps := 0
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil || steps <= 0 {
				log.Fatalf("Invalid step count %q", os.Args[2])
			}
		}
		if err := database.Rollback(db, steps); err != nil {
			log.Fatal(err)
		}
		log.Info("Migrations rolled back successfully")
	case "version":
		version, dirty, err := database.Version(db)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s\n", command, usage)
		os.Exit(2)
	}
}
