package main

import (
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/migrations/relaydb"
	"github.com/chainsafe/fusion-swap/pkg/pgutil"
	mghelper "github.com/chainsafe/fusion-swap/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.relay.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadRelay(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	// Connect to database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for intent relay database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, relaydb.Migrations)
	if err := mghelper.RunMigrations(migrator, flag.Args()...); err != nil {
		mghelper.Exitf(err.Error())
	}
}
