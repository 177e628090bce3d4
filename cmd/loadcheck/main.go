// Package main is the entry point for the loadcheck binary.
package main

import (
	"os"

	"loadcheck/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
