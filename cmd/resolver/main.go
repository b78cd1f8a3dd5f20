package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/fusion-swap/pkg/app"
	resolverapp "github.com/chainsafe/fusion-swap/pkg/app/resolver"
	"github.com/chainsafe/fusion-swap/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.resolver.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadResolver(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = resolverapp.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Resolver exited: %v\n", err)
		os.Exit(1)
	}
}
