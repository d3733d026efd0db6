// Command roster manages a local store of teams and the people in them.
package main

import (
	"os"

	"github.com/custodia-labs/roster/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
