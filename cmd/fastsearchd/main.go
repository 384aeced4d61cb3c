package main

import (
	"fmt"
	"os"

	"github.com/fastsearch/fastsearch/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("fastsearchd %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cli.SetVersionInfo(version, buildTime)
	cli.Execute()
}
