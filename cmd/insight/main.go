// Command insight is the entry point for the Guestlytics Insight Engine.
// It provides a CLI interface (via Cobra) and an HTTP API server that answers
// analytics questions over indexed hotel-marketing metrics.
package main

import (
	"fmt"
	"os"

	"github.com/guestlytics/insight-go/cmd/insight/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
