package main

import (
	"os"

	"github.com/feedfusion/feedfusion/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
