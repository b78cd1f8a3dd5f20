package main

import (
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/migrations/resolverdb"
	"github.com/chainsafe/fusion-swap/pkg/pgutil"
	mghelper "github.com/chainsafe/fusion-swap/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.resolver.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadResolver(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	// Connect to database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for resolver database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, resolverdb.Migrations)
	if err := mghelper.RunMigrations(migrator, flag.Args()...); err != nil {
		mghelper.Exitf(err.Error())
	}
}
