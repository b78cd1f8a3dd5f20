package ethereum

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsafe/fusion-swap/pkg/escrow"
)

// classify maps an RPC error to the escrow error taxonomy. Reverts are
// permanent; anything that never reached execution is transient.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if revert := revertData(dataErr.ErrorData()); len(revert) >= 4 &&
			bytes.Equal(revert[:4], c.factory.AlreadyDeployedSelector()) {
			return fmt.Errorf("%w: %v", escrow.ErrAlreadyDeployed, err)
		}
		return err
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return err
	}
	return escrow.Transient(err)
}

func revertData(data interface{}) []byte {
	s, ok := data.(string)
	if !ok {
		return nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil
	}
	return b
}

// neverSent reports whether the request failed while connecting.
func neverSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
