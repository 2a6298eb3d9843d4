// Command stewardctl talks to a running steward server over its HTTP API.
//
// Environment:
//
//	STEWARD_URL   - server base URL (default: http://localhost:8080)
//	STEWARD_TOKEN - bearer token sent with every request
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
