package main

import (
	"os"

	"github.com/conneroisu/livecanvas/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
