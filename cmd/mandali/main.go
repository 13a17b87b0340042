package main

import (
	"os"

	"github.com/mandali-ai/mandali/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
