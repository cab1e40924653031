package main

import (
	"os"

	"fxreplay/cmd/fxreplay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
