package main

import (
	"os"

	"github.com/meetbrief/meetbrief/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
