package relaydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/fusion-swap/pkg/intentstore"
	mghelper "github.com/chainsafe/fusion-swap/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating intents table...")
		if err := mghelper.CreateSchema(ctx, db, &intentstore.IntentDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &intentstore.IntentDao{}, "status", "maker", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping intents table...")
		if err := mghelper.DropModelIndexes(ctx, db, &intentstore.IntentDao{}, "status", "maker", "created_at"); err != nil {
			return err
		}
		return mghelper.DropTables(ctx, db, &intentstore.IntentDao{})
	})
}
