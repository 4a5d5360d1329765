package main

import (
	"os"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
