package main

import (
	"os"

	"blobship/cmd/blobship/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
