package intentstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
	"github.com/chainsafe/fusion-swap/pkg/relay"
)

// IntentDao is a data access object that maps directly to the 'intents' table in PostgreSQL.
type IntentDao struct {
	bun.BaseModel `bun:"table:intents,alias:i"`
	ID            string          `bun:"id,pk,type:varchar(66)"`
	Maker         string          `bun:"maker,notnull,type:varchar(42)"`
	Order         json.RawMessage `bun:"order_json,notnull,type:jsonb"`
	Signature     []byte          `bun:"signature,notnull,type:bytea"`
	Status        string          `bun:"status,notnull,type:varchar(16)"`
	Resolver      *string         `bun:"resolver,type:varchar(66)"`
	Secret        *string         `bun:"secret,type:varchar(66)"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull"`
}

func toIntentDao(in *relay.Intent) (*IntentDao, error) {
	raw, err := json.Marshal(in.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	dao := &IntentDao{
		ID:        in.ID.Hex(),
		Order:     raw,
		Signature: in.Signature,
		Status:    string(in.Status),
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
	if in.Order != nil {
		dao.Maker = in.Order.Maker.Hex()
	}
	if in.Resolver != "" {
		dao.Resolver = &in.Resolver
	}
	if in.Secret != nil {
		s := in.Secret.Hex()
		dao.Secret = &s
	}
	return dao, nil
}

func toIntent(dao *IntentDao) (*relay.Intent, error) {
	var o order.Order
	if err := json.Unmarshal(dao.Order, &o); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", dao.ID, err)
	}
	status, err := relay.ParseStatus(dao.Status)
	if err != nil {
		return nil, err
	}
	in := &relay.Intent{
		ID:        common.HexToHash(dao.ID),
		Order:     &o,
		Signature: dao.Signature,
		Status:    status,
		CreatedAt: dao.CreatedAt,
		UpdatedAt: dao.UpdatedAt,
	}
	if dao.Resolver != nil {
		in.Resolver = *dao.Resolver
	}
	if dao.Secret != nil {
		s, err := hashlock.ParseSecret(*dao.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode secret of %s: %w", dao.ID, err)
		}
		in.Secret = &s
	}
	return in, nil
}
