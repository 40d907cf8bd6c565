// Package generator wraps the external language-model text generator behind
// a narrow interface so the consensus/apply layers never depend on a
// concrete LLM client. From the applier's perspective generate is a pure
// function generate(text) -> text.
package generator

import (
	"context"
	"errors"
	"os"
)

// ErrMissingAPIKey is returned by RequireAPIKey when GEMINI_API_KEY is unset.
// This is a fatal startup error on nodes, never on the relay.
var ErrMissingAPIKey = errors.New("generator: GEMINI_API_KEY is not set")

// Generator produces an answer for a given prompt. Implementations must be
// safe to call concurrently from multiple nodes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NullGenerator always returns an empty answer without error; useful in
// tests that don't exercise the external call, and as a safe fallback the
// applier can use after a generator failure (query slot applied with an
// empty answer locally).
type NullGenerator struct{}

func (NullGenerator) Generate(context.Context, string) (string, error) {
	return "", nil
}

// EnvKey is the environment variable that configures the generator client.
const EnvKey = "GEMINI_API_KEY"

// RequireAPIKey fails startup with a fatal, non-zero-exit configuration
// error when the key is missing from a node's environment.
func RequireAPIKey() (string, error) {
	key := os.Getenv(EnvKey)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}
