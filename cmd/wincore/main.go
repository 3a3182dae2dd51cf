package main

import (
	"os"

	"github.com/buildforge/wincore/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
