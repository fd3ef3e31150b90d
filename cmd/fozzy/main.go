package main

import (
	"os"

	"github.com/fozzylabs/fozzy/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
