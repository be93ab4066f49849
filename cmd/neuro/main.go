// Neuro is a voice/text assistant that turns an utterance into a batch of
// commands (open apps, search, answer questions, switch devices) and runs
// them concurrently.
//
// Configuration comes from an optional YAML file, a .env file and NEURO_*
// environment variables; see internal/neuro/config.
//
// Usage:
//
//	neuro serve                       # HTTP API on http.addr
//	neuro ask "open chrome and play lofi"
//	neuro ask                         # interactive prompt on stdin
//	neuro classify "what's the weather"
//	neuro version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
