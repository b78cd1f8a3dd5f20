package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/fusion-swap/pkg/app"
	relayapp "github.com/chainsafe/fusion-swap/pkg/app/relay"
	"github.com/chainsafe/fusion-swap/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.relay.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadRelay(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = relayapp.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Relay exited: %v\n", err)
		os.Exit(1)
	}
}
