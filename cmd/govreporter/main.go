// Package main is the entry point for the govreporter CLI.
package main

import (
	"os"

	"github.com/govreporter/govreporter/cmd/govreporter/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
