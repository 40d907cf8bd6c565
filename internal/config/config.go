// Package config centralizes the startup flag parsing and environment
// lookups shared by cmd/node and cmd/relay, using pflag instead of bare
// flag.
package config

import (
	"errors"
	"fmt"

	"github.com/jabolina/contextd/internal/generator"
	"github.com/spf13/pflag"
)

// DefaultNumServers is the fixed cluster size every node assumes, mirroring
// a hardcoded deployment constant rather than a CLI argument: the node
// invocation carries only id, target host and target port.
const DefaultNumServers = 3

// NodeConfig holds one node process's startup parameters: `node <id>
// <target_host> <target_port>`.
type NodeConfig struct {
	ID         int
	NumServers int
	TargetHost string
	TargetPort int
	Debug      bool
	APIKey     string
}

// RelayConfig holds the relay process's startup parameters: `relay
// <base_port> <num_servers>`.
type RelayConfig struct {
	BasePort   int
	NumServers int
	Debug      bool
}

// ParseNodeConfig parses args (as from pflag.Args() after pflag.Parse) into
// a NodeConfig, looking up the generator API key from the environment. A
// missing API key is a fatal configuration error.
func ParseNodeConfig(fs *pflag.FlagSet, args []string) (NodeConfig, error) {
	if len(args) != 3 {
		return NodeConfig{}, errors.New("usage: node <id> <target_host> <target_port>")
	}

	var cfg NodeConfig
	var err error
	if cfg.ID, err = parseInt(args[0], "id"); err != nil {
		return NodeConfig{}, err
	}
	cfg.NumServers = DefaultNumServers
	cfg.TargetHost = args[1]
	if cfg.TargetPort, err = parseInt(args[2], "target_port"); err != nil {
		return NodeConfig{}, err
	}

	if fs != nil {
		cfg.Debug, _ = fs.GetBool("debug")
	}

	cfg.APIKey, err = generator.RequireAPIKey()
	if err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// ParseRelayConfig parses args into a RelayConfig.
func ParseRelayConfig(fs *pflag.FlagSet, args []string) (RelayConfig, error) {
	if len(args) != 2 {
		return RelayConfig{}, errors.New("usage: relay <base_port> <num_servers>")
	}

	var cfg RelayConfig
	var err error
	if cfg.BasePort, err = parseInt(args[0], "base_port"); err != nil {
		return RelayConfig{}, err
	}
	if cfg.NumServers, err = parseInt(args[1], "num_servers"); err != nil {
		return RelayConfig{}, err
	}
	if fs != nil {
		cfg.Debug, _ = fs.GetBool("debug")
	}
	return cfg, nil
}

func parseInt(s, name string) (int, error) {
	var v int
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}
