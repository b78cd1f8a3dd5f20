package swapstore

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
	"github.com/chainsafe/fusion-swap/pkg/resolver"
)

// SwapDao maps to the 'swaps' table. Escrow legs are stored as jsonb since
// they are only ever read back whole.
type SwapDao struct {
	bun.BaseModel `bun:"table:swaps,alias:s"`
	OrderHash     string          `bun:"order_hash,pk,type:varchar(66)"`
	State         string          `bun:"state,notnull,type:varchar(32)"`
	Maker         string          `bun:"maker,notnull,type:varchar(42)"`
	SrcChain      string          `bun:"src_chain,notnull,type:varchar(16)"`
	DstChain      string          `bun:"dst_chain,notnull,type:varchar(16)"`
	Order         json.RawMessage `bun:"order_json,notnull,type:jsonb"`
	Signature     []byte          `bun:"signature,notnull,type:bytea"`
	DstAmount     *string         `bun:"dst_amount,type:numeric"`
	SrcLeg        json.RawMessage `bun:"src_leg,type:jsonb"`
	DstLeg        json.RawMessage `bun:"dst_leg,type:jsonb"`
	Secret        *string         `bun:"secret,type:varchar(66)"`
	LastError     *string         `bun:"last_error,type:text"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull"`
}

func toSwapDao(r *resolver.Record) (*SwapDao, error) {
	raw, err := json.Marshal(r.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	dao := &SwapDao{
		OrderHash: r.OrderHash.Hex(),
		State:     string(r.State),
		Order:     raw,
		Signature: r.Signature,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Order != nil {
		dao.Maker = r.Order.Maker.Hex()
		dao.SrcChain = r.Order.SrcChain.String()
		dao.DstChain = r.Order.DstChain().String()
	}
	if r.DstAmount != nil {
		s := r.DstAmount.String()
		dao.DstAmount = &s
	}
	if dao.SrcLeg, err = encodeLeg(r.Src); err != nil {
		return nil, err
	}
	if dao.DstLeg, err = encodeLeg(r.Dst); err != nil {
		return nil, err
	}
	if r.Secret != nil {
		s := r.Secret.Hex()
		dao.Secret = &s
	}
	if r.LastError != "" {
		dao.LastError = &r.LastError
	}
	return dao, nil
}

func encodeLeg(l *resolver.Leg) (json.RawMessage, error) {
	if l == nil {
		return nil, nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to encode escrow leg: %w", err)
	}
	return raw, nil
}

func decodeLeg(raw json.RawMessage) (*resolver.Leg, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var l resolver.Leg
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func toRecord(dao *SwapDao) (*resolver.Record, error) {
	var o order.Order
	if err := json.Unmarshal(dao.Order, &o); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", dao.OrderHash, err)
	}
	state, err := resolver.ParseState(dao.State)
	if err != nil {
		return nil, err
	}
	r := &resolver.Record{
		OrderHash: common.HexToHash(dao.OrderHash),
		Order:     &o,
		Signature: dao.Signature,
		State:     state,
		CreatedAt: dao.CreatedAt,
		UpdatedAt: dao.UpdatedAt,
	}
	if dao.DstAmount != nil {
		v, ok := new(big.Int).SetString(*dao.DstAmount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid dst_amount %q for %s", *dao.DstAmount, dao.OrderHash)
		}
		r.DstAmount = v
	}
	if r.Src, err = decodeLeg(dao.SrcLeg); err != nil {
		return nil, fmt.Errorf("failed to decode source leg of %s: %w", dao.OrderHash, err)
	}
	if r.Dst, err = decodeLeg(dao.DstLeg); err != nil {
		return nil, fmt.Errorf("failed to decode destination leg of %s: %w", dao.OrderHash, err)
	}
	if dao.Secret != nil {
		s, err := hashlock.ParseSecret(*dao.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode secret of %s: %w", dao.OrderHash, err)
		}
		r.Secret = &s
	}
	if dao.LastError != nil {
		r.LastError = *dao.LastError
	}
	return r, nil
}
