// Command node runs a single context-store server node: it dials the relay,
// runs the consensus engine, and serves the operator CLI on stdin:
// `node <id> <target_host> <target_port>`.
package main

import (
	"fmt"
	"os"

	"github.com/jabolina/contextd/internal/config"
	"github.com/jabolina/contextd/internal/generator"
	"github.com/jabolina/contextd/internal/logging"
	"github.com/jabolina/contextd/internal/node"
	"github.com/spf13/pflag"
)

func main() {
	pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	cfg, err := config.ParseNodeConfig(pflag.CommandLine, pflag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(fmt.Sprintf("node-%d", cfg.ID))
	log.ToggleDebug(cfg.Debug)

	gen := generator.NewClient(cfg.APIKey)

	nd, err := node.Dial(cfg.ID, cfg.NumServers, cfg.TargetHost, cfg.TargetPort, gen, log)
	if err != nil {
		log.Fatalf("node: %v", err)
	}

	nd.RunCLI(os.Stdin, os.Stdout)

	nd.Shutdown()
	nd.Wait()
}
