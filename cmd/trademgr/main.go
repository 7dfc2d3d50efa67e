package main

import (
	"os"

	"github.com/rustyeddy/trademanager/cmd/trademgr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
