package resolverdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/chainsafe/fusion-swap/pkg/pgutil/migrations"
	"github.com/chainsafe/fusion-swap/pkg/swapstore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating swaps table...")
		if err := mghelper.CreateSchema(ctx, db, &swapstore.SwapDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &swapstore.SwapDao{}, "state", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping swaps table...")
		if err := mghelper.DropModelIndexes(ctx, db, &swapstore.SwapDao{}, "state", "created_at"); err != nil {
			return err
		}
		return mghelper.DropTables(ctx, db, &swapstore.SwapDao{})
	})
}
