// Command relay runs the star-topology network overlay:
// `relay <base_port> <num_servers>`.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jabolina/contextd/internal/config"
	"github.com/jabolina/contextd/internal/logging"
	"github.com/jabolina/contextd/internal/relay"
	"github.com/spf13/pflag"
)

func main() {
	pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	cfg, err := config.ParseRelayConfig(pflag.CommandLine, pflag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New("relay")
	log.ToggleDebug(cfg.Debug)

	r := relay.New(cfg.BasePort, cfg.NumServers, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := r.Listen(ctx); err != nil {
			log.Errorf("relay: listen failed: %v", err)
		}
	}()

	exited := r.RunCLI(os.Stdin, log)
	r.Shutdown()
	cancel()

	if !exited {
		os.Exit(0)
	}
	os.Exit(0)
}
