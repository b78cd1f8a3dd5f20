//go:build ignore

// Builds, signs and submits a maker intent to a running relay, then prints
// the order hash and the secret the maker must keep until both escrows are
// funded.
//
// Run with:
//
//	MAKER_PRIVATE_KEY=0x... go run scripts/submit-intent.go -relay http://localhost:8080 -params order.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/fusion-swap/pkg/order"
	"github.com/chainsafe/fusion-swap/pkg/relay"
)

func main() {
	relayURL := flag.String("relay", "http://localhost:8080", "Relay base URL")
	paramsPath := flag.String("params", "order.json", "JSON-encoded order build parameters")
	chainID := flag.Uint64("chain-id", 1, "EIP-712 domain chain id")
	verifier := flag.String("verifying-contract", "", "EIP-712 verifying contract")
	flag.Parse()

	signer, err := order.NewKeySignerFromHex(os.Getenv("MAKER_PRIVATE_KEY"))
	if err != nil {
		fail("load maker key: %v", err)
	}

	raw, err := os.ReadFile(*paramsPath)
	if err != nil {
		fail("read params: %v", err)
	}
	var params order.BuildParams
	if err := json.Unmarshal(raw, &params); err != nil {
		fail("decode params: %v", err)
	}
	if params.Maker == "" {
		params.Maker = signer.Address().Hex()
	}

	o, secret, err := order.Build(params)
	if err != nil {
		fail("build order: %v", err)
	}
	sig, err := order.Sign(o, order.NewDomain(*chainID, common.HexToAddress(*verifier)), signer)
	if err != nil {
		fail("sign order: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := relay.NewClient(*relayURL).Submit(ctx, o, sig)
	if err != nil {
		fail("submit: %v", err)
	}

	fmt.Printf("order hash: %s\n", id.Hex())
	fmt.Printf("secret:     %s\n", secret.Hex())
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
