package main

import (
	"os"

	"github.com/mangrovedao/vault-console/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
