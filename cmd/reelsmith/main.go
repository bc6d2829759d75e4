// Command reelsmith is the CLI for the content pipeline: it queues jobs,
// inspects their checkpoints, and can run the daemon in the foreground.
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
