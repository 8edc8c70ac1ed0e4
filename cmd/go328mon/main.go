package main

import (
	"os"

	"go328mon/m328mon/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
