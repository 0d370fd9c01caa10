// Package main is the entry point for the datachat binary.
package main

import (
	"os"

	"datachat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
