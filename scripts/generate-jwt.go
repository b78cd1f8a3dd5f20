//go:build ignore

// Issues a relay bearer token for a resolver address without the login
// handshake. Useful for local runs and for resolvers configured with a
// static relay.token.
//
// Run with: go run scripts/generate-jwt.go -config config.relay.yaml -resolver 0x...
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/fusion-swap/pkg/auth"
	"github.com/chainsafe/fusion-swap/pkg/config"
)

func main() {
	cfgPath := flag.String("config", "config.relay.yaml", "Relay configuration file holding the JWT secret")
	resolver := flag.String("resolver", "", "Resolver EVM address the token is issued to")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	flag.Parse()

	if !common.IsHexAddress(*resolver) {
		fmt.Fprintln(os.Stderr, "-resolver must be an EVM address")
		os.Exit(2)
	}

	cfg, err := config.LoadRelay(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	issuer := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, lifetime)
	token, exp, err := issuer.Issue(common.HexToAddress(*resolver).Hex())
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	fmt.Println(token)
}
