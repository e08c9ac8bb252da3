package main

import (
	"os"

	"github.com/zot/modbind/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
