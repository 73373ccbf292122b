// quarkpan - bulk save, share and download for Quark cloud drive.
package main

import (
	"os"

	"github.com/quarkpan/quarkpan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
