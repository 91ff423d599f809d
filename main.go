package main

import (
	"fmt"
	"os"

	"github.com/kvesta/vulnmap/cli"
	scanerr "github.com/kvesta/vulnmap/internal/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(scanerr.GetExitCode(err))
	}
}
